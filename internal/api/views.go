package api

import (
	"net/http"

	"kdf-swap-tracker/internal/domain"
)

// View selects how much of a swap a response carries.
type View int

const (
	// ViewSummary is the default public projection.
	ViewSummary View = iota
	// ViewFull adds timestamps, USD prices and client metadata.
	ViewFull
)

// parseView reads the view query parameter.
func parseView(r *http.Request) (View, error) {
	switch r.URL.Query().Get("view") {
	case "", "summary":
		return ViewSummary, nil
	case "full":
		return ViewFull, nil
	}
	return ViewSummary, errInvalidView
}

// legJSON is one side of a swap as rendered to clients. The raw pubkey is
// replaced by its hash.
type legJSON struct {
	Ticker     string `json:"ticker"`
	Amount     string `json:"amount"`
	PubkeyHash string `json:"pubkey_hash"`
	USDPrice   string `json:"usd_price,omitempty"`
	GUI        string `json:"gui,omitempty"`
	Version    string `json:"version,omitempty"`
}

// swapJSON is the response shape of one swap.
type swapJSON struct {
	UUID       string   `json:"uuid"`
	Timestamp  int64    `json:"timestamp"`
	Maker      legJSON  `json:"maker"`
	Taker      legJSON  `json:"taker"`
	EventNames []string `json:"event_names"`
	StartedAt  int64    `json:"started_at,omitempty"`
	FinishedAt int64    `json:"finished_at,omitempty"`
}

// renderSwap projects a swap for the given view.
func renderSwap(s *domain.Swap, v View) swapJSON {
	out := swapJSON{
		UUID:       s.UUID,
		Timestamp:  s.Timestamp,
		Maker:      renderLeg(s.Maker, v),
		Taker:      renderLeg(s.Taker, v),
		EventNames: s.EventNames,
	}
	if out.EventNames == nil {
		out.EventNames = []string{}
	}
	if v == ViewFull {
		out.StartedAt = s.StartedAt
		out.FinishedAt = s.FinishedAt
	}
	return out
}

func renderLeg(l domain.SwapLeg, v View) legJSON {
	out := legJSON{
		Ticker:     l.Ticker,
		Amount:     l.Amount.String(),
		PubkeyHash: l.PubkeyHash,
	}
	if v == ViewFull {
		out.USDPrice = l.USDPrice.String()
		out.GUI = l.GUI
		out.Version = l.Version
	}
	return out
}

func renderSwaps(swaps []*domain.Swap, v View) []swapJSON {
	out := make([]swapJSON, len(swaps))
	for i, s := range swaps {
		out[i] = renderSwap(s, v)
	}
	return out
}
