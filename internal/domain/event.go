package domain

import "strings"

// EventState classifies an event window against a point in time.
type EventState string

// Event lifecycle states.
const (
	EventUpcoming EventState = "upcoming"
	EventActive   EventState = "active"
	EventComplete EventState = "complete"
)

// ParseEventState converts a query-string value into an EventState.
func ParseEventState(s string) (EventState, bool) {
	switch EventState(strings.ToLower(s)) {
	case EventUpcoming:
		return EventUpcoming, true
	case EventActive:
		return EventActive, true
	case EventComplete:
		return EventComplete, true
	}
	return "", false
}

// EventGroup is a named competition window loaded from static configuration
// and read-only at runtime. BaseCoin/RelCoin restrict membership to one
// trading pair when set; a group without them is purely temporal.
type EventGroup struct {
	Name     string
	Start    int64 // unix seconds, inclusive
	End      int64 // unix seconds, inclusive
	BaseCoin string
	RelCoin  string
	Extra    map[string]any // unrecognized configuration keys, kept verbatim
}

// State classifies the window relative to now.
func (g EventGroup) State(now int64) EventState {
	switch {
	case now < g.Start:
		return EventUpcoming
	case now > g.End:
		return EventComplete
	default:
		return EventActive
	}
}

// Contains reports whether ts falls inside the window, boundaries inclusive.
func (g EventGroup) Contains(ts int64) bool {
	return ts >= g.Start && ts <= g.End
}

// MatchesPair reports whether the pair (a, b) matches the group's configured
// pair in either orientation. Groups without a pair constraint match any pair.
func (g EventGroup) MatchesPair(a, b string) bool {
	if g.BaseCoin == "" || g.RelCoin == "" {
		return true
	}
	ca, cb := strings.ToUpper(a), strings.ToUpper(b)
	base, rel := strings.ToUpper(g.BaseCoin), strings.ToUpper(g.RelCoin)
	return (ca == base && cb == rel) || (ca == rel && cb == base)
}

// Member reports whether the swap belongs to this group: inside the window
// and, when a pair is configured, trading that pair.
func (g EventGroup) Member(s *Swap) bool {
	return g.Contains(s.Timestamp) && g.MatchesPair(s.Maker.Ticker, s.Taker.Ticker)
}
