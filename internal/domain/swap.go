package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Swap leg sides.
const (
	SideMaker = "maker"
	SideTaker = "taker"
)

// SwapLeg is one side of an atomic swap as reported by the daemon.
// Legs are ephemeral: they exist between row decode and pair matching.
type SwapLeg struct {
	UUID       string
	Side       string // "maker" | "taker"
	Ticker     string // normalized symbol
	Platform   string // platform suffix of the coin, if any ("PLG20", "segwit")
	Pubkey     string // raw trading pubkey; may be empty for old rows
	PubkeyHash string // keyed digest of Pubkey, set on store upsert
	Amount     decimal.Decimal
	USDPrice   decimal.Decimal // zero when the daemon recorded no price
	Timestamp  int64           // unix seconds
	GUI        string
	Version    string
	SourceRow  int64 // rowid in the daemon database
}

// Swap is a matched pair of legs sharing a uuid. Immutable once stored
// except for EventNames, which is recomputed on upsert and whenever the
// event configuration changes.
type Swap struct {
	UUID       string
	Maker      SwapLeg
	Taker      SwapLeg
	Timestamp  int64 // min of the leg timestamps
	StartedAt  int64
	FinishedAt int64
	Success    bool
	SourceRow  int64
	EventNames []string // sorted
}

// HasEvent reports whether the swap belongs to the named event group.
func (s *Swap) HasEvent(name string) bool {
	for _, n := range s.EventNames {
		if n == name {
			return true
		}
	}
	return false
}

// InAnyEvent reports whether the swap belongs to at least one of the named
// groups. An empty names slice never matches.
func (s *Swap) InAnyEvent(names []string) bool {
	for _, n := range names {
		if s.HasEvent(n) {
			return true
		}
	}
	return false
}

// Leg returns the leg trading the given normalized ticker, or nil when
// neither side matches.
func (s *Swap) Leg(ticker string) *SwapLeg {
	switch ticker {
	case s.Maker.Ticker:
		return &s.Maker
	case s.Taker.Ticker:
		return &s.Taker
	}
	return nil
}

// NormalizeSymbol returns the canonical symbol for a coin/ticker pair: the
// explicit ticker when present, platform suffix stripped, uppercased.
// ("DGB-segwit", "") -> "DGB"; ("USDC-PLG20", "usdc") -> "USDC".
func NormalizeSymbol(coin, ticker string) string {
	s := coin
	if ticker != "" {
		s = ticker
	}
	if i := strings.Index(s, "-"); i >= 0 {
		s = s[:i]
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
