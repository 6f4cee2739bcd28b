package api

import (
	"errors"
	"net/http"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/storage"
)

// HandleHash hashes a raw pubkey. The utility mirrors exactly what the
// store does internally, so clients can resolve their own identifier.
// Endpoint: GET /api/v1/hash?pubkey=
func (c *Controller) HandleHash(w http.ResponseWriter, r *http.Request) {
	pubkey := r.URL.Query().Get("pubkey")
	if pubkey == "" {
		writeError(w, http.StatusBadRequest, "pubkey is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pubkey_hash": c.Hasher.Hash(pubkey)})
}

// HandleIdentify returns the pubkey hash of the swap side that traded the
// given ticker.
// Endpoint: GET /api/v1/identify?uuid=&ticker=
func (c *Controller) HandleIdentify(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	uuid := qs.Get("uuid")
	ticker := qs.Get("ticker")
	if uuid == "" || ticker == "" {
		writeError(w, http.StatusBadRequest, "uuid and ticker are required")
		return
	}

	s, err := c.Store.Get(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "swap not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	leg := s.Leg(domain.NormalizeSymbol(ticker, ""))
	if leg == nil {
		writeError(w, http.StatusBadRequest, "ticker not part of swap")
		return
	}
	if leg.PubkeyHash == "" {
		writeError(w, http.StatusNotFound, "pubkey not found for ticker")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pubkey_hash": leg.PubkeyHash})
}
