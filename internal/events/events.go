// Package events loads competition event definitions and resolves event
// window state and swap membership.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"kdf-swap-tracker/internal/domain"
)

// Load reads event group definitions from a JSON file. Three shapes are
// accepted:
//
//  1. a flat list: [{"name": ..., "start": ..., "stop": ...}, ...]
//  2. a name-keyed object: {"NAME": {"start": ..., "stop": ...}, ...}
//  3. a grouped competition: {"GROUP": {"start": ..., "stop": ...,
//     "base_coin": "KMD", "rel_coins": ["ARRR", "DGB"]}} which expands to one
//     group per rel coin, named GROUP_RELCOIN.
//
// "end" is accepted as an alias for "stop". base_coin/rel_coin are optional;
// groups without them are purely temporal. Entries that cannot be parsed are
// skipped. A missing file is reported via os.IsNotExist on the returned error.
func Load(path string) ([]domain.EventGroup, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes event definitions from raw JSON. See Load for the accepted
// shapes.
func Parse(raw []byte) ([]domain.EventGroup, error) {
	var anyRoot any
	if err := json.Unmarshal(raw, &anyRoot); err != nil {
		return nil, fmt.Errorf("decode events file: %w", err)
	}

	var groups []domain.EventGroup
	switch root := anyRoot.(type) {
	case []any:
		for _, item := range root {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := asString(entry["name"])
			if name == "" {
				name = asString(entry["event_name"])
			}
			if name == "" {
				name = "event"
			}
			groups = append(groups, parseEntries(name, entry)...)
		}
	case map[string]any:
		names := make([]string, 0, len(root))
		for name := range root {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			entry, ok := root[name].(map[string]any)
			if !ok {
				continue
			}
			groups = append(groups, parseEntries(name, entry)...)
		}
	default:
		return nil, fmt.Errorf("decode events file: expected array or object at top level")
	}

	return groups, nil
}

// parseEntries turns one raw entry into event groups: one group normally,
// one per rel coin for the grouped competition shape.
func parseEntries(name string, entry map[string]any) []domain.EventGroup {
	start, okStart := asInt64(entry["start"])
	stop, okStop := asInt64(entry["stop"])
	if !okStop {
		stop, okStop = asInt64(entry["end"])
	}
	if !okStart || !okStop {
		return nil
	}

	base := strings.ToUpper(asString(entry["base_coin"]))

	if rels, ok := entry["rel_coins"].([]any); ok {
		relCoins := make([]string, 0, len(rels))
		for _, r := range rels {
			if rc := strings.ToUpper(asString(r)); rc != "" {
				relCoins = append(relCoins, rc)
			}
		}
		extra := extraFields(entry, "start", "stop", "end", "base_coin", "rel_coins", "name", "event_name")
		extra["group_name"] = name
		extra["rel_coins"] = relCoins

		groups := make([]domain.EventGroup, 0, len(relCoins))
		for _, rel := range relCoins {
			groups = append(groups, domain.EventGroup{
				Name:     fmt.Sprintf("%s_%s", name, rel),
				Start:    start,
				End:      stop,
				BaseCoin: base,
				RelCoin:  rel,
				Extra:    extra,
			})
		}
		return groups
	}

	rel := strings.ToUpper(asString(entry["rel_coin"]))
	return []domain.EventGroup{{
		Name:     name,
		Start:    start,
		End:      stop,
		BaseCoin: base,
		RelCoin:  rel,
		Extra:    extraFields(entry, "start", "stop", "end", "base_coin", "rel_coin", "name", "event_name"),
	}}
}

// Validate checks the loaded configuration: every window must satisfy
// start <= end, names must be unique, and, unless allowOverlap, no two
// windows may intersect.
func Validate(groups []domain.EventGroup, allowOverlap bool) error {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if g.End < g.Start {
			return fmt.Errorf("event %q: end %d before start %d", g.Name, g.End, g.Start)
		}
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("event %q: duplicate name", g.Name)
		}
		seen[g.Name] = struct{}{}
	}
	if allowOverlap {
		return nil
	}
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			a, b := groups[i], groups[j]
			if a.Start <= b.End && b.Start <= a.End {
				return fmt.Errorf("events %q and %q overlap and overlapping windows are disabled", a.Name, b.Name)
			}
		}
	}
	return nil
}

// Membership returns the sorted names of every group the swap belongs to:
// window contains the swap timestamp and the pair constraint, if any, matches.
func Membership(groups []domain.EventGroup, s *domain.Swap) []string {
	var names []string
	for _, g := range groups {
		if g.Member(s) {
			names = append(names, g.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Resolver answers event lookup and lifecycle questions over a fixed
// configuration.
type Resolver struct {
	groups []domain.EventGroup
	byName map[string]domain.EventGroup
}

// NewResolver creates a Resolver over the given groups.
func NewResolver(groups []domain.EventGroup) *Resolver {
	byName := make(map[string]domain.EventGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	return &Resolver{groups: groups, byName: byName}
}

// Groups returns a copy of the configuration.
func (r *Resolver) Groups() []domain.EventGroup {
	out := make([]domain.EventGroup, len(r.groups))
	copy(out, r.groups)
	return out
}

// ByName retrieves one group by name.
func (r *Resolver) ByName(name string) (domain.EventGroup, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// WithState returns the groups in the given lifecycle state at now. An empty
// state returns every group.
func (r *Resolver) WithState(now int64, state domain.EventState) []domain.EventGroup {
	if state == "" {
		return r.Groups()
	}
	var out []domain.EventGroup
	for _, g := range r.groups {
		if g.State(now) == state {
			out = append(out, g)
		}
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func extraFields(entry map[string]any, exclude ...string) map[string]any {
	skip := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	extra := make(map[string]any)
	for k, v := range entry {
		if _, ok := skip[k]; !ok {
			extra[k] = v
		}
	}
	return extra
}
