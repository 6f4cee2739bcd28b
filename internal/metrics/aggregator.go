// Package metrics computes leaderboard rankings and window statistics from
// stored swaps.
package metrics

import (
	"context"
	"math"
	"sort"
	"strings"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/storage"
)

// PriceSource resolves a USD price for a normalized symbol. The second
// return reports whether a price is known.
type PriceSource interface {
	Price(symbol string) (float64, bool)
}

// Aggregator computes trader rankings and pair statistics. Results are
// recomputed from the store on every call so they always reflect the latest
// upserts and prunes.
type Aggregator struct {
	store  storage.SwapStore
	prices PriceSource
}

// NewAggregator creates a new aggregator. prices may be nil, in which case
// only prices recorded on the legs themselves are used.
func NewAggregator(store storage.SwapStore, prices PriceSource) *Aggregator {
	return &Aggregator{store: store, prices: prices}
}

// RankTraders builds the leaderboard for the named event groups. With no
// names every stored swap participates. Each trader is credited the full USD
// value of every swap they took part in, on both sides. Records are ordered
// by total volume DESC with pubkey digest ASC on ties, ranks reflect the
// position in the unfiltered board, and search (when non-empty) keeps only
// digests containing it case-insensitively.
func (a *Aggregator) RankTraders(ctx context.Context, names []string, search string) ([]domain.TraderRecord, error) {
	swaps, err := a.selectSwaps(ctx, names)
	if err != nil {
		return nil, err
	}

	base, err := a.sharedBaseCoin(ctx, names)
	if err != nil {
		return nil, err
	}

	byTrader := make(map[string]*domain.TraderRecord)
	for _, s := range swaps {
		baseVal, relVal := a.swapValues(s, base)
		for _, digest := range []string{s.Maker.PubkeyHash, s.Taker.PubkeyHash} {
			if digest == "" {
				continue
			}
			rec, ok := byTrader[digest]
			if !ok {
				rec = &domain.TraderRecord{PubkeyHash: digest}
				byTrader[digest] = rec
			}
			rec.SwapCount++
			rec.USDBaseValue += baseVal
			rec.USDRelValue += relVal
			rec.TotalVolume += baseVal + relVal
		}
	}

	records := make([]domain.TraderRecord, 0, len(byTrader))
	for _, rec := range byTrader {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].TotalVolume != records[j].TotalVolume {
			return records[i].TotalVolume > records[j].TotalVolume
		}
		return records[i].PubkeyHash < records[j].PubkeyHash
	})
	for i := range records {
		records[i].Rank = i + 1
	}

	if search == "" {
		return records, nil
	}
	needle := strings.ToLower(search)
	filtered := records[:0]
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.PubkeyHash), needle) {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

// TraderSwaps returns one trader's swaps, optionally restricted to the named
// event groups. The trader may be identified by raw pubkey or digest.
func (a *Aggregator) TraderSwaps(ctx context.Context, hashOrRaw string, names []string) ([]*domain.Swap, error) {
	return a.store.QueryByPubkey(ctx, hashOrRaw, names)
}

// EventSummary describes one event group at time now: lifecycle state, swap
// and distinct trader counts, and total USD volume across member swaps.
func (a *Aggregator) EventSummary(ctx context.Context, g domain.EventGroup, now int64) (domain.EventSummary, error) {
	swaps, err := a.store.QueryByEvent(ctx, []string{g.Name})
	if err != nil {
		return domain.EventSummary{}, err
	}

	traders := make(map[string]struct{})
	volume := 0.0
	for _, s := range swaps {
		baseVal, relVal := a.swapValues(s, strings.ToUpper(g.BaseCoin))
		volume += baseVal + relVal
		if s.Maker.PubkeyHash != "" {
			traders[s.Maker.PubkeyHash] = struct{}{}
		}
		if s.Taker.PubkeyHash != "" {
			traders[s.Taker.PubkeyHash] = struct{}{}
		}
	}

	return domain.EventSummary{
		Group:       g,
		State:       g.State(now),
		SwapCount:   len(swaps),
		TraderCount: len(traders),
		TotalVolume: volume,
	}, nil
}

// PairStats sums swap amounts for one oriented pair within [start, end]. The
// coins are normalized before matching; only swaps whose maker traded
// makerCoin and taker traded takerCoin count.
func (a *Aggregator) PairStats(ctx context.Context, makerCoin, takerCoin string, start, end int64) (domain.PairWindowStats, error) {
	stats := domain.PairWindowStats{
		MakerCoin: domain.NormalizeSymbol(makerCoin, ""),
		TakerCoin: domain.NormalizeSymbol(takerCoin, ""),
		Start:     start,
		End:       end,
	}

	swaps, err := a.store.QueryRange(ctx, start, end)
	if err != nil {
		return stats, err
	}
	for _, s := range swaps {
		if s.Maker.Ticker != stats.MakerCoin || s.Taker.Ticker != stats.TakerCoin {
			continue
		}
		stats.TotalSwaps++
		stats.MakerAmountSum = stats.MakerAmountSum.Add(s.Maker.Amount)
		stats.TakerAmountSum = stats.TakerAmountSum.Add(s.Taker.Amount)
	}
	return stats, nil
}

// selectSwaps loads the swap population for a leaderboard: the named events'
// members, or everything when no names are given.
func (a *Aggregator) selectSwaps(ctx context.Context, names []string) ([]*domain.Swap, error) {
	if len(names) == 0 {
		return a.store.QueryRange(ctx, 0, math.MaxInt64)
	}
	return a.store.QueryByEvent(ctx, names)
}

// sharedBaseCoin returns the BaseCoin common to every selected group, or ""
// when the groups disagree or name no base. With no base the maker leg is
// treated as the base side.
func (a *Aggregator) sharedBaseCoin(ctx context.Context, names []string) (string, error) {
	if len(names) == 0 {
		return "", nil
	}
	groups, err := a.store.Events(ctx)
	if err != nil {
		return "", err
	}
	selected := make(map[string]struct{}, len(names))
	for _, n := range names {
		selected[n] = struct{}{}
	}
	base := ""
	for _, g := range groups {
		if _, ok := selected[g.Name]; !ok {
			continue
		}
		if g.BaseCoin == "" {
			return "", nil
		}
		if base == "" {
			base = strings.ToUpper(g.BaseCoin)
			continue
		}
		if base != strings.ToUpper(g.BaseCoin) {
			return "", nil
		}
	}
	return base, nil
}

// swapValues computes the USD value of each side of a swap. When base names
// the ticker of the taker leg the orientation flips so the base side is
// reported first; otherwise the maker leg is the base side.
func (a *Aggregator) swapValues(s *domain.Swap, base string) (baseVal, relVal float64) {
	makerVal := a.legUSD(s.Maker)
	takerVal := a.legUSD(s.Taker)
	if base != "" && s.Taker.Ticker == base {
		return takerVal, makerVal
	}
	return makerVal, takerVal
}

// legUSD values one leg: the price recorded on the leg wins, then the price
// source, then zero.
func (a *Aggregator) legUSD(leg domain.SwapLeg) float64 {
	amount := leg.Amount.InexactFloat64()
	if leg.USDPrice.IsPositive() {
		return amount * leg.USDPrice.InexactFloat64()
	}
	if a.prices != nil {
		if p, ok := a.prices.Price(leg.Ticker); ok {
			return amount * p
		}
	}
	return 0
}
