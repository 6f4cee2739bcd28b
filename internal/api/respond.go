package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a structured error. Internal details never reach the
// caller; handlers log them before calling this.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pageSpec is the limit/offset window of a listing request.
type pageSpec struct {
	Limit  int
	Offset int
}

// parsePageSpec reads limit and offset query parameters. Limit defaults to
// defaultLimit and is capped at maxLimit; offset defaults to zero.
func parsePageSpec(r *http.Request) (pageSpec, error) {
	qs := r.URL.Query()
	spec := pageSpec{Limit: defaultLimit}

	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return pageSpec{}, errInvalidLimit
		}
		if n > maxLimit {
			n = maxLimit
		}
		spec.Limit = n
	}
	if v := qs.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return pageSpec{}, errInvalidOffset
		}
		spec.Offset = n
	}
	return spec, nil
}

// slicePage applies the window to a slice length and returns [lo, hi).
func (p pageSpec) slicePage(total int) (int, int) {
	lo := p.Offset
	if lo > total {
		lo = total
	}
	hi := lo + p.Limit
	if hi > total {
		hi = total
	}
	return lo, hi
}

// parseEventNames splits the comma-separated events parameter.
func parseEventNames(r *http.Request) []string {
	raw := r.URL.Query().Get("events")
	if raw == "" {
		return nil
	}
	var names []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

var (
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errInvalidOffset = &parseError{msg: "invalid offset"}
	errInvalidView   = &parseError{msg: "invalid view, must be 'summary' or 'full'"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
