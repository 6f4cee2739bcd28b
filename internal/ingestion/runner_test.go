package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/match"
	"kdf-swap-tracker/internal/storage/memory"
)

func newTestRunner(t *testing.T, src *Source, loadHistory bool, since int64) (*Runner, *memory.SwapStore) {
	t.Helper()
	store := memory.NewSwapStore(idhash.New("test-key"), []domain.EventGroup{
		{Name: "comp", Start: 100, End: 200},
	})
	r := NewRunner(RunnerOptions{
		Source:        src,
		Matcher:       match.New(match.Options{}),
		Store:         store,
		PollInterval:  10 * time.Millisecond,
		LoadHistory:   loadHistory,
		BackfillSince: since,
	})
	return r, store
}

// runUntil runs the runner until check passes or the deadline expires.
func runUntil(t *testing.T, r *Runner, check func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("condition not reached before deadline")
}

func TestRun_BackfillThenLive(t *testing.T) {
	src, db := newTestSource(t)
	seedRow(t, db, 1, "old-swap", 100, 140, 1)

	r, store := newTestRunner(t, src, true, 0)
	ctx := context.Background()

	runUntil(t, r, func() bool {
		n, _ := store.Total(ctx)
		return n >= 1
	})

	s, err := store.Get(ctx, "old-swap")
	require.NoError(t, err)
	require.Equal(t, int64(100), s.Timestamp)
	require.Equal(t, []string{"comp"}, s.EventNames)
	// Raw pubkeys are digested on upsert.
	require.NotEqual(t, "02maker", s.Maker.PubkeyHash)
	require.NotEmpty(t, s.Maker.PubkeyHash)
}

func TestRun_BackfillSinceBound(t *testing.T) {
	src, db := newTestSource(t)
	seedRow(t, db, 1, "too-old", 100, 140, 1)
	seedRow(t, db, 2, "recent", 150, 190, 1)

	r, store := newTestRunner(t, src, true, 150)
	ctx := context.Background()

	runUntil(t, r, func() bool {
		_, err := store.Get(ctx, "recent")
		return err == nil
	})

	_, err := store.Get(ctx, "too-old")
	require.Error(t, err)
}

func TestRun_SkipsHistoryWhenDisabled(t *testing.T) {
	src, db := newTestSource(t)
	seedRow(t, db, 1, "historic", 100, 140, 1)

	r, store := newTestRunner(t, src, false, 0)
	ctx := context.Background()

	// Insert a live row once polling is underway; only it should appear.
	go func() {
		time.Sleep(50 * time.Millisecond)
		seedRow(t, db, 2, "live", 300, 340, 1)
	}()

	runUntil(t, r, func() bool {
		_, err := store.Get(ctx, "live")
		return err == nil
	})

	_, err := store.Get(ctx, "historic")
	require.Error(t, err)
}

func TestRun_MakerLegCompletesPendingPair(t *testing.T) {
	src, db := newTestSource(t)
	seedRow(t, db, 1, "straggler", 100, 140, 1)

	store := memory.NewSwapStore(idhash.New("test-key"), []domain.EventGroup{
		{Name: "comp", Start: 100, End: 200},
	})
	matcher := match.New(match.Options{})

	// A taker leg left waiting by an earlier row. The next row's maker
	// observation completes the pair, so that swap must be stored even
	// though the row's own taker leg is still unmatched afterwards.
	require.Nil(t, matcher.Observe(domain.SwapLeg{
		UUID:      "straggler",
		Side:      domain.SideTaker,
		Ticker:    "DGB",
		Amount:    decimal.NewFromInt(200),
		Timestamp: 120,
		Pubkey:    "03taker",
	}))

	r := NewRunner(RunnerOptions{
		Source:       src,
		Matcher:      matcher,
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		LoadHistory:  true,
	})
	ctx := context.Background()

	runUntil(t, r, func() bool {
		_, err := store.Get(ctx, "straggler")
		return err == nil
	})

	s, err := store.Get(ctx, "straggler")
	require.NoError(t, err)
	// Paired with the waiting leg (ts=120), not the row's own taker (ts=140).
	require.Equal(t, int64(120), s.FinishedAt)
	require.Equal(t, int64(100), s.Timestamp)
}
