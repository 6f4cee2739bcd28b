package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/domain"
)

// eventJSON is one event group with its lifecycle state.
type eventJSON struct {
	Name     string `json:"name"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	State    string `json:"state"`
	BaseCoin string `json:"base_coin,omitempty"`
	RelCoin  string `json:"rel_coin,omitempty"`
}

func renderEvent(g domain.EventGroup, now int64) eventJSON {
	return eventJSON{
		Name:     g.Name,
		Start:    g.Start,
		End:      g.End,
		State:    string(g.State(now)),
		BaseCoin: g.BaseCoin,
		RelCoin:  g.RelCoin,
	}
}

// HandleEvents lists event groups, optionally filtered by lifecycle state.
// Endpoint: GET /api/v1/events?state=upcoming|active|complete
func (c *Controller) HandleEvents(w http.ResponseWriter, r *http.Request) {
	now := time.Now().Unix()

	state := domain.EventState("")
	if v := r.URL.Query().Get("state"); v != "" {
		parsed, ok := domain.ParseEventState(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid state, must be upcoming, active or complete")
			return
		}
		state = parsed
	}

	groups := c.Resolver.WithState(now, state)
	data := make([]eventJSON, len(groups))
	for i, g := range groups {
		data[i] = renderEvent(g, now)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// HandleEventDetail returns one event with its aggregate summary.
// Endpoint: GET /api/v1/events/{name}
func (c *Controller) HandleEventDetail(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	g, ok := c.Resolver.ByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	now := time.Now().Unix()
	summary, err := c.Aggregator.EventSummary(r.Context(), g, now)
	if err != nil {
		c.Logger.Error("event summary failed", zap.String("event", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event":            renderEvent(g, now),
		"swap_count":       summary.SwapCount,
		"trader_count":     summary.TraderCount,
		"total_volume_usd": summary.TotalVolume,
	})
}
