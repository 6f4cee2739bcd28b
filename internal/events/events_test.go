package events

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"kdf-swap-tracker/internal/domain"
)

// Startup waives only an absent file, so Load must keep the two failure
// modes distinguishable: missing file reports fs.ErrNotExist, a corrupt
// file does not.
func TestLoad_MissingVersusCorruptFile(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file must report fs.ErrNotExist, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte(`{"spring": {`), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	_, err = Load(corrupt)
	if err == nil {
		t.Fatal("corrupt file must fail to load")
	}
	if errors.Is(err, fs.ErrNotExist) {
		t.Error("a parse failure must not masquerade as a missing file")
	}
}

func TestParse_ListShape(t *testing.T) {
	raw := []byte(`[
		{"name": "spring", "start": 100, "stop": 200, "base_coin": "kmd", "rel_coin": "ltc"},
		{"event_name": "summer", "start": 300, "end": 400}
	]`)

	groups, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Name != "spring" || groups[0].Start != 100 || groups[0].End != 200 {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
	if groups[0].BaseCoin != "KMD" || groups[0].RelCoin != "LTC" {
		t.Errorf("expected uppercased pair constraint, got %q/%q", groups[0].BaseCoin, groups[0].RelCoin)
	}
	if groups[1].Name != "summer" || groups[1].End != 400 {
		t.Errorf("expected end alias to populate stop, got %+v", groups[1])
	}
	if groups[1].BaseCoin != "" || groups[1].RelCoin != "" {
		t.Errorf("expected purely temporal group, got %q/%q", groups[1].BaseCoin, groups[1].RelCoin)
	}
}

func TestParse_DictShape(t *testing.T) {
	raw := []byte(`{
		"beta": {"start": 300, "stop": 400},
		"alpha": {"start": 100, "stop": 200}
	}`)

	groups, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	// Dict shape is emitted in name order so loads are deterministic.
	if groups[0].Name != "alpha" || groups[1].Name != "beta" {
		t.Errorf("expected name-sorted groups, got %q, %q", groups[0].Name, groups[1].Name)
	}
}

func TestParse_GroupedShapeExpandsRelCoins(t *testing.T) {
	raw := []byte(`{
		"SPRING2024": {
			"start": 1000,
			"stop": 2000,
			"base_coin": "KMD",
			"rel_coins": ["arrr", "DGB"],
			"note": "season one"
		}
	}`)

	groups, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected one group per rel coin, got %d", len(groups))
	}

	byName := make(map[string]domain.EventGroup, len(groups))
	for _, g := range groups {
		byName[g.Name] = g
	}
	arrr, ok := byName["SPRING2024_ARRR"]
	if !ok {
		t.Fatalf("missing expanded group SPRING2024_ARRR, have %v", groups)
	}
	if arrr.BaseCoin != "KMD" || arrr.RelCoin != "ARRR" {
		t.Errorf("unexpected pair constraint: %q/%q", arrr.BaseCoin, arrr.RelCoin)
	}
	if arrr.Start != 1000 || arrr.End != 2000 {
		t.Errorf("expanded group must inherit the window, got %d..%d", arrr.Start, arrr.End)
	}
	if _, ok := byName["SPRING2024_DGB"]; !ok {
		t.Errorf("missing expanded group SPRING2024_DGB")
	}

	if got := arrr.Extra["group_name"]; got != "SPRING2024" {
		t.Errorf("expected group_name extra SPRING2024, got %v", got)
	}
	wantRels := []string{"ARRR", "DGB"}
	if got, ok := arrr.Extra["rel_coins"].([]string); !ok || !reflect.DeepEqual(got, wantRels) {
		t.Errorf("expected rel_coins extra %v, got %v", wantRels, arrr.Extra["rel_coins"])
	}
	if got := arrr.Extra["note"]; got != "season one" {
		t.Errorf("expected passthrough extra note, got %v", got)
	}
}

func TestParse_SkipsMalformedEntries(t *testing.T) {
	raw := []byte(`[
		{"name": "good", "start": 1, "stop": 2},
		{"name": "no-window"},
		"not an object",
		{"name": "bad-start", "start": "soon", "stop": 2}
	]`)

	groups, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(groups) != 1 || groups[0].Name != "good" {
		t.Fatalf("expected only the well-formed entry, got %v", groups)
	}
}

func TestParse_RejectsScalarRoot(t *testing.T) {
	if _, err := Parse([]byte(`42`)); err == nil {
		t.Fatal("expected error for scalar top level")
	}
}

func TestValidate_EndBeforeStart(t *testing.T) {
	groups := []domain.EventGroup{{Name: "bad", Start: 200, End: 100}}
	if err := Validate(groups, true); err == nil {
		t.Fatal("expected error for end before start")
	}
}

func TestValidate_DuplicateNames(t *testing.T) {
	groups := []domain.EventGroup{
		{Name: "twin", Start: 1, End: 2},
		{Name: "twin", Start: 3, End: 4},
	}
	if err := Validate(groups, true); err == nil {
		t.Fatal("expected error for duplicate names")
	}
}

func TestValidate_Overlap(t *testing.T) {
	groups := []domain.EventGroup{
		{Name: "a", Start: 100, End: 200},
		{Name: "b", Start: 150, End: 250},
	}
	if err := Validate(groups, true); err != nil {
		t.Fatalf("overlap must be accepted when allowed: %v", err)
	}
	if err := Validate(groups, false); err == nil {
		t.Fatal("expected overlap error when disallowed")
	}

	touching := []domain.EventGroup{
		{Name: "a", Start: 100, End: 200},
		{Name: "b", Start: 200, End: 300},
	}
	if err := Validate(touching, false); err == nil {
		t.Fatal("shared boundary second counts as overlap: both windows contain ts=200")
	}

	disjoint := []domain.EventGroup{
		{Name: "a", Start: 100, End: 200},
		{Name: "b", Start: 201, End: 300},
	}
	if err := Validate(disjoint, false); err != nil {
		t.Fatalf("disjoint windows must validate: %v", err)
	}
}

func TestMembership_WindowAndPair(t *testing.T) {
	groups := []domain.EventGroup{
		{Name: "temporal", Start: 100, End: 200},
		{Name: "kmd-ltc", Start: 100, End: 200, BaseCoin: "KMD", RelCoin: "LTC"},
		{Name: "kmd-dgb", Start: 100, End: 200, BaseCoin: "KMD", RelCoin: "DGB"},
		{Name: "later", Start: 500, End: 600},
	}
	s := &domain.Swap{
		UUID:      "u1",
		Maker:     domain.SwapLeg{UUID: "u1", Side: domain.SideMaker, Ticker: "KMD", Amount: decimal.NewFromInt(1), Timestamp: 150},
		Taker:     domain.SwapLeg{UUID: "u1", Side: domain.SideTaker, Ticker: "LTC", Amount: decimal.NewFromInt(1), Timestamp: 150},
		Timestamp: 150,
	}

	got := Membership(groups, s)
	want := []string{"kmd-ltc", "temporal"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected membership %v, got %v", want, got)
	}
}

func TestMembership_BoundariesInclusive(t *testing.T) {
	groups := []domain.EventGroup{{Name: "window", Start: 100, End: 200}}
	for _, tc := range []struct {
		ts   int64
		want int
	}{
		{99, 0},
		{100, 1},
		{200, 1},
		{201, 0},
	} {
		s := &domain.Swap{
			UUID:      "u1",
			Maker:     domain.SwapLeg{UUID: "u1", Ticker: "A", Timestamp: tc.ts},
			Taker:     domain.SwapLeg{UUID: "u1", Ticker: "B", Timestamp: tc.ts},
			Timestamp: tc.ts,
		}
		if got := len(Membership(groups, s)); got != tc.want {
			t.Errorf("ts=%d: expected %d memberships, got %d", tc.ts, tc.want, got)
		}
	}
}

func TestMembership_PairOrientationInsensitive(t *testing.T) {
	groups := []domain.EventGroup{
		{Name: "pairwin", Start: 0, End: 1000, BaseCoin: "KMD", RelCoin: "LTC"},
	}
	s := &domain.Swap{
		UUID:      "u1",
		Maker:     domain.SwapLeg{UUID: "u1", Ticker: "LTC", Timestamp: 500},
		Taker:     domain.SwapLeg{UUID: "u1", Ticker: "KMD", Timestamp: 500},
		Timestamp: 500,
	}
	if got := Membership(groups, s); len(got) != 1 {
		t.Errorf("reversed pair must still match, got %v", got)
	}
}

func TestResolver_WithState(t *testing.T) {
	groups := []domain.EventGroup{
		{Name: "past", Start: 0, End: 100},
		{Name: "now", Start: 100, End: 300},
		{Name: "future", Start: 500, End: 600},
	}
	r := NewResolver(groups)

	if got := r.WithState(200, domain.EventActive); len(got) != 1 || got[0].Name != "now" {
		t.Errorf("expected active=now at ts=200, got %v", got)
	}
	if got := r.WithState(200, domain.EventComplete); len(got) != 1 || got[0].Name != "past" {
		t.Errorf("expected complete=past at ts=200, got %v", got)
	}
	if got := r.WithState(200, domain.EventUpcoming); len(got) != 1 || got[0].Name != "future" {
		t.Errorf("expected upcoming=future at ts=200, got %v", got)
	}
	if got := r.WithState(200, ""); len(got) != 3 {
		t.Errorf("empty state must return all groups, got %d", len(got))
	}

	if _, ok := r.ByName("now"); !ok {
		t.Error("ByName must find configured group")
	}
	if _, ok := r.ByName("nope"); ok {
		t.Error("ByName must miss unknown group")
	}
}
