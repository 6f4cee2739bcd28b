package domain

import "github.com/shopspring/decimal"

// TraderRecord is one row of a trader ranking. Derived, never persisted:
// rankings are recomputed from the swap store on every request.
type TraderRecord struct {
	Rank         int
	PubkeyHash   string
	Moniker      string // display name of a registered player, if any
	SwapCount    int
	USDBaseValue float64
	USDRelValue  float64
	TotalVolume  float64 // USDBaseValue + USDRelValue
}

// EventSummary is the derived reporting view of one event group.
type EventSummary struct {
	Group       EventGroup
	State       EventState
	SwapCount   int
	TraderCount int
	TotalVolume float64
}

// PairWindowStats aggregates swap activity for one oriented maker/taker pair
// within a time range.
type PairWindowStats struct {
	MakerCoin      string
	TakerCoin      string
	Start          int64
	End            int64
	TotalSwaps     int
	MakerAmountSum decimal.Decimal
	TakerAmountSum decimal.Decimal
}
