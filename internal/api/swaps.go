package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/storage"
)

// HandleSwap returns a single swap by uuid.
// Endpoint: GET /api/v1/swaps/{uuid}?view=
func (c *Controller) HandleSwap(w http.ResponseWriter, r *http.Request) {
	view, err := parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	uuid := mux.Vars(r)["uuid"]
	s, err := c.Store.Get(r.Context(), uuid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "swap not found")
			return
		}
		c.Logger.Error("swap lookup failed", zap.String("uuid", uuid), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, renderSwap(s, view))
}

// HandleSwapsTotal reports the number of stored swaps.
// Endpoint: GET /api/v1/swaps/total
func (c *Controller) HandleSwapsTotal(w http.ResponseWriter, r *http.Request) {
	total, err := c.Store.Total(r.Context())
	if err != nil {
		c.Logger.Error("total failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"total": total})
}

// HandlePairStats aggregates swap activity for one oriented pair in a time
// window.
// Endpoint: GET /api/v1/stats/pair?maker_coin=&taker_coin=&start_ts=&end_ts=
func (c *Controller) HandlePairStats(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	makerCoin := qs.Get("maker_coin")
	takerCoin := qs.Get("taker_coin")
	if makerCoin == "" || takerCoin == "" {
		writeError(w, http.StatusBadRequest, "maker_coin and taker_coin are required")
		return
	}
	startTS, err1 := strconv.ParseInt(qs.Get("start_ts"), 10, 64)
	endTS, err2 := strconv.ParseInt(qs.Get("end_ts"), 10, 64)
	if err1 != nil || err2 != nil || startTS < 0 || endTS < 0 {
		writeError(w, http.StatusBadRequest, "start_ts and end_ts must be non-negative integers")
		return
	}
	if endTS < startTS {
		writeError(w, http.StatusBadRequest, "end_ts must be >= start_ts")
		return
	}

	stats, err := c.Aggregator.PairStats(r.Context(), makerCoin, takerCoin, startTS, endTS)
	if err != nil {
		c.Logger.Error("pair stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"maker_coin":       stats.MakerCoin,
		"taker_coin":       stats.TakerCoin,
		"start":            stats.Start,
		"end":              stats.End,
		"total_swaps":      stats.TotalSwaps,
		"maker_amount_sum": stats.MakerAmountSum.String(),
		"taker_amount_sum": stats.TakerAmountSum.String(),
	})
}
