package metrics

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/storage/memory"
)

type staticPrices map[string]float64

func (p staticPrices) Price(symbol string) (float64, bool) {
	v, ok := p[symbol]
	return v, ok
}

func testStore(t *testing.T, groups []domain.EventGroup) (*memory.SwapStore, *idhash.Hasher) {
	t.Helper()
	hasher := idhash.New("test-key")
	return memory.NewSwapStore(hasher, groups), hasher
}

func addSwap(t *testing.T, store *memory.SwapStore, uuid string, ts int64, makerPK, takerPK string, makerUSD, takerUSD float64) {
	t.Helper()
	err := store.Upsert(context.Background(), &domain.Swap{
		UUID: uuid,
		Maker: domain.SwapLeg{
			Ticker: "KMD", Pubkey: makerPK,
			Amount:   decimal.NewFromInt(1),
			USDPrice: decimal.NewFromFloat(makerUSD),
		},
		Taker: domain.SwapLeg{
			Ticker: "LTC", Pubkey: takerPK,
			Amount:   decimal.NewFromInt(1),
			USDPrice: decimal.NewFromFloat(takerUSD),
		},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", uuid, err)
	}
}

func TestRankTraders_OrderAndBothSidesCredited(t *testing.T) {
	store, hasher := testStore(t, nil)
	agg := NewAggregator(store, nil)

	// alice makes two swaps worth 30 each, bob takes one, carol takes the
	// other. Everyone is credited the full swap value.
	addSwap(t, store, "u1", 100, "alice", "bob", 10, 20)
	addSwap(t, store, "u2", 200, "alice", "carol", 10, 20)

	records, err := agg.RankTraders(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("RankTraders: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 traders, got %d", len(records))
	}
	if records[0].PubkeyHash != hasher.Hash("alice") {
		t.Errorf("expected alice first, got %s", records[0].PubkeyHash)
	}
	if records[0].TotalVolume != 60 {
		t.Errorf("expected alice volume 60, got %v", records[0].TotalVolume)
	}
	if records[0].SwapCount != 2 {
		t.Errorf("expected alice swap count 2, got %d", records[0].SwapCount)
	}
	for i, rec := range records {
		if rec.Rank != i+1 {
			t.Errorf("record %d: rank %d", i, rec.Rank)
		}
	}

	// bob and carol tie at 30; the digest breaks the tie.
	if records[1].PubkeyHash > records[2].PubkeyHash {
		t.Errorf("tie not broken by digest: %s before %s", records[1].PubkeyHash, records[2].PubkeyHash)
	}
}

func TestRankTraders_EventFilter(t *testing.T) {
	groups := []domain.EventGroup{{Name: "week1", Start: 100, End: 150}}
	store, _ := testStore(t, groups)
	agg := NewAggregator(store, nil)

	addSwap(t, store, "in", 120, "alice", "bob", 1, 1)
	addSwap(t, store, "out", 500, "mallory", "trent", 100, 100)

	records, err := agg.RankTraders(context.Background(), []string{"week1"}, "")
	if err != nil {
		t.Fatalf("RankTraders: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 traders inside the window, got %d", len(records))
	}
}

func TestRankTraders_SearchKeepsRanks(t *testing.T) {
	store, _ := testStore(t, nil)
	agg := NewAggregator(store, nil)

	addSwap(t, store, "u1", 100, "alice", "bob", 10, 20)
	addSwap(t, store, "u2", 200, "alice", "carol", 10, 20)

	all, err := agg.RankTraders(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("RankTraders: %v", err)
	}
	target := all[len(all)-1] // last-ranked trader

	filtered, err := agg.RankTraders(context.Background(), nil, target.PubkeyHash[:16])
	if err != nil {
		t.Fatalf("RankTraders with search: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("expected 1 match, got %d", len(filtered))
	}
	if filtered[0].Rank != target.Rank {
		t.Errorf("search changed rank: %d != %d", filtered[0].Rank, target.Rank)
	}
}

func TestRankTraders_PriceSourceFallback(t *testing.T) {
	store, _ := testStore(t, nil)
	agg := NewAggregator(store, staticPrices{"KMD": 0.5, "LTC": 80})

	// No prices recorded on the legs; the price source fills the gap.
	addSwap(t, store, "u1", 100, "alice", "bob", 0, 0)

	records, err := agg.RankTraders(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("RankTraders: %v", err)
	}
	if records[0].TotalVolume != 80.5 {
		t.Errorf("expected volume 80.5 from the price source, got %v", records[0].TotalVolume)
	}
}

func TestRankTraders_BaseRelOrientation(t *testing.T) {
	groups := []domain.EventGroup{{Name: "comp_LTC", Start: 0, End: 1000, BaseCoin: "LTC", RelCoin: "KMD"}}
	store, _ := testStore(t, groups)
	agg := NewAggregator(store, nil)

	// The taker leg trades the base coin, so its value lands on the base side.
	addSwap(t, store, "u1", 100, "alice", "bob", 1, 90)

	records, err := agg.RankTraders(context.Background(), []string{"comp_LTC"}, "")
	if err != nil {
		t.Fatalf("RankTraders: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 traders, got %d", len(records))
	}
	if records[0].USDBaseValue != 90 {
		t.Errorf("expected base value 90, got %v", records[0].USDBaseValue)
	}
	if records[0].USDRelValue != 1 {
		t.Errorf("expected rel value 1, got %v", records[0].USDRelValue)
	}
}

func TestEventSummary(t *testing.T) {
	groups := []domain.EventGroup{{Name: "week1", Start: 100, End: 300}}
	store, _ := testStore(t, groups)
	agg := NewAggregator(store, nil)

	addSwap(t, store, "u1", 150, "alice", "bob", 10, 20)
	addSwap(t, store, "u2", 200, "alice", "carol", 10, 20)
	addSwap(t, store, "late", 900, "dave", "erin", 1, 1)

	summary, err := agg.EventSummary(context.Background(), groups[0], 400)
	if err != nil {
		t.Fatalf("EventSummary: %v", err)
	}
	if summary.SwapCount != 2 {
		t.Errorf("expected 2 swaps, got %d", summary.SwapCount)
	}
	if summary.TraderCount != 3 {
		t.Errorf("expected 3 distinct traders, got %d", summary.TraderCount)
	}
	if summary.TotalVolume != 60 {
		t.Errorf("expected volume 60, got %v", summary.TotalVolume)
	}
	if summary.State != domain.EventComplete {
		t.Errorf("expected complete state, got %s", summary.State)
	}
}

func TestPairStats_WindowAndNormalization(t *testing.T) {
	store, _ := testStore(t, nil)
	agg := NewAggregator(store, nil)

	addSwap(t, store, "in1", 100, "a", "b", 0, 0)
	addSwap(t, store, "in2", 200, "c", "d", 0, 0)
	addSwap(t, store, "late", 900, "e", "f", 0, 0)

	// Lowercase, platform-suffixed input must still match the stored KMD/LTC.
	stats, err := agg.PairStats(context.Background(), "kmd", "ltc-segwit", 0, 500)
	if err != nil {
		t.Fatalf("PairStats: %v", err)
	}
	if stats.TotalSwaps != 2 {
		t.Errorf("expected 2 swaps in window, got %d", stats.TotalSwaps)
	}
	if !stats.MakerAmountSum.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected maker sum 2, got %s", stats.MakerAmountSum)
	}

	// Reversed orientation matches nothing.
	reversed, err := agg.PairStats(context.Background(), "LTC", "KMD", 0, 500)
	if err != nil {
		t.Fatalf("PairStats reversed: %v", err)
	}
	if reversed.TotalSwaps != 0 {
		t.Errorf("expected 0 swaps for reversed pair, got %d", reversed.TotalSwaps)
	}
}
