package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// traderJSON is one leaderboard row.
type traderJSON struct {
	Rank       int     `json:"rank"`
	PubkeyHash string  `json:"pubkey_hash"`
	Moniker    string  `json:"moniker,omitempty"`
	SwapCount  int     `json:"swap_count"`
	VolumeUSD  float64 `json:"total_volume_usd"`
}

// HandleTraders returns the trader ranking for the selected event groups.
// Endpoint: GET /api/v1/traders?events=&limit=&offset=&search=
func (c *Controller) HandleTraders(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names := parseEventNames(r)
	search := r.URL.Query().Get("search")

	records, err := c.Aggregator.RankTraders(r.Context(), names, search)
	if err != nil {
		c.Logger.Error("rank traders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	monikers := c.monikers(r)

	lo, hi := page.slicePage(len(records))
	data := make([]traderJSON, 0, hi-lo)
	for _, rec := range records[lo:hi] {
		data = append(data, traderJSON{
			Rank:       rec.Rank,
			PubkeyHash: rec.PubkeyHash,
			Moniker:    monikers[rec.PubkeyHash],
			SwapCount:  rec.SwapCount,
			VolumeUSD:  rec.TotalVolume,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":   data,
		"total":  len(records),
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// HandleTraderSwaps returns one trader's swap history. The path accepts a
// raw pubkey or an already-hashed identifier.
// Endpoint: GET /api/v1/traders/{pubkey}/swaps?events=&limit=&offset=&view=
func (c *Controller) HandleTraderSwaps(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trader := mux.Vars(r)["pubkey"]
	swaps, err := c.Aggregator.TraderSwaps(r.Context(), trader, parseEventNames(r))
	if err != nil {
		c.Logger.Error("trader swaps failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	lo, hi := page.slicePage(len(swaps))
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   renderSwaps(swaps[lo:hi], view),
		"total":  len(swaps),
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// monikers resolves registered display names, or nothing when the
// registration workflow is disabled.
func (c *Controller) monikers(r *http.Request) map[string]string {
	if c.Registration == nil {
		return nil
	}
	m, err := c.Registration.Monikers(r.Context())
	if err != nil {
		c.Logger.Warn("moniker lookup failed", zap.Error(err))
		return nil
	}
	return m
}
