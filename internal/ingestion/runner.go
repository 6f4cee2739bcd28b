package ingestion

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/match"
	"kdf-swap-tracker/internal/observability"
	"kdf-swap-tracker/internal/storage"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Source  *Source
	Matcher *match.Matcher
	Store   storage.SwapStore
	Logger  *zap.Logger

	// PollInterval is the cadence of the live poll loop.
	PollInterval time.Duration

	// LoadHistory replays historical rows before live polling begins.
	// BackfillSince bounds the replay from below; zero means everything.
	LoadHistory   bool
	BackfillSince int64
}

// Runner drives ingestion: an optional historical backfill followed by a
// live poll loop over new stats_swaps rows. It is the single writer to the
// swap store; every matched swap is upserted individually so readers are
// never blocked behind a batch.
type Runner struct {
	source   *Source
	matcher  *match.Matcher
	store    storage.SwapStore
	logger   *zap.Logger
	interval time.Duration

	loadHistory   bool
	backfillSince int64

	lastID int64
}

// NewRunner creates a Runner. PollInterval defaults to 2s when zero.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		source:        opts.Source,
		matcher:       opts.Matcher,
		store:         opts.Store,
		logger:        opts.Logger,
		interval:      opts.PollInterval,
		loadHistory:   opts.LoadHistory,
		backfillSince: opts.BackfillSince,
		lastID:        -1,
	}
}

// Run ingests until the context is cancelled. With history loading enabled
// it first replays completed rows (bounded below by BackfillSince) and then
// polls from the highest rowid; otherwise it starts at the current maximum
// and only reports swaps completed after startup.
func (r *Runner) Run(ctx context.Context) error {
	if r.loadHistory {
		if err := r.backfill(ctx); err != nil {
			return err
		}
	}

	// Position the cursor. After a backfill this skips rows the replay
	// already delivered; without one it skips all history.
	maxID, err := r.source.MaxRowID(ctx)
	if err != nil {
		return err
	}
	r.lastID = maxID
	r.logger.Info("live polling started",
		zap.Int64("from_row", r.lastID),
		zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := r.pollOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				r.logger.Warn("poll failed, reopening source", zap.Error(err))
				if reopenErr := r.source.Reopen(); reopenErr != nil {
					r.logger.Warn("reopen failed, will retry", zap.Error(reopenErr))
				}
				continue
			}
			r.sweep(now)
			observability.DefaultMetrics.LastSuccessfulPoll.Set(float64(now.Unix()))
		}
	}
}

// backfill replays historical rows through the same pipeline as live rows.
func (r *Runner) backfill(ctx context.Context) error {
	since := r.backfillSince
	until := time.Now().Unix()
	r.logger.Info("backfill started", zap.Int64("since", since), zap.Int64("until", until))

	rows, skipped, err := r.source.RowsBetween(ctx, since, until)
	if err != nil {
		return err
	}
	for _, id := range skipped {
		r.logger.Warn("skipping malformed backfill row", zap.Int64("row", id))
		observability.RecordRowSkipped("malformed")
	}
	stored := 0
	for _, row := range rows {
		observability.DefaultMetrics.BackfillRows.Inc()
		stored += r.ingest(ctx, row)
	}
	r.logger.Info("backfill complete",
		zap.Int("rows", len(rows)),
		zap.Int("swaps_stored", stored),
		zap.Int("skipped", len(skipped)))
	return nil
}

// pollOnce reads rows past the cursor and feeds them through the matcher.
// The cursor only advances after the batch is processed, so a failed read is
// retried in full on the next tick.
func (r *Runner) pollOnce(ctx context.Context) error {
	rows, skipped, err := r.source.RowsSince(ctx, r.lastID)
	if err != nil {
		return err
	}
	for _, id := range skipped {
		r.logger.Warn("skipping malformed row", zap.Int64("row", id))
		observability.RecordRowSkipped("malformed")
		if id > r.lastID {
			r.lastID = id
		}
	}
	for _, row := range rows {
		observability.RecordRowRead(row.ID)
		r.ingest(ctx, row)
		if row.ID > r.lastID {
			r.lastID = row.ID
		}
	}
	return nil
}

// ingest pushes one row's legs through the matcher and upserts whatever
// pairs complete. Either observation can emit: the maker leg pairs with a
// counterpart already pending from an earlier row. Returns the number of
// swaps stored.
func (r *Runner) ingest(ctx context.Context, row Row) int {
	observability.DefaultMetrics.LegsObserved.Add(2)
	stored := 0
	if swap := r.matcher.Observe(row.Maker); swap != nil {
		stored += r.upsert(ctx, swap)
	}
	if swap := r.matcher.Observe(row.Taker); swap != nil {
		stored += r.upsert(ctx, swap)
	}
	return stored
}

// upsert stores one matched swap, tolerating validation rejects.
func (r *Runner) upsert(ctx context.Context, swap *domain.Swap) int {
	if err := r.store.Upsert(ctx, swap); err != nil {
		if errors.Is(err, storage.ErrValidation) {
			r.logger.Warn("rejecting invalid swap",
				zap.String("uuid", swap.UUID), zap.Error(err))
			observability.RecordRowSkipped("validation")
			return 0
		}
		r.logger.Error("upsert failed", zap.String("uuid", swap.UUID), zap.Error(err))
		return 0
	}
	observability.RecordSwapStored()
	if total, err := r.store.Total(ctx); err == nil {
		observability.UpdateStoreTotal(total)
	}
	return 1
}

// sweep expires pending legs that outlived the matcher timeout.
func (r *Runner) sweep(now time.Time) {
	expired := r.matcher.Sweep(now)
	if len(expired) > 0 {
		observability.RecordUnmatchedLegs(len(expired))
	}
	observability.UpdateMatcherPending(r.matcher.PendingCount())
}
