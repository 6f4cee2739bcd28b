// Package match pairs maker and taker swap legs into complete swaps.
package match

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"kdf-swap-tracker/internal/domain"
)

const (
	// DefaultTimeout is how long a lone leg may wait for its counterpart
	// before Sweep reports it as an anomaly.
	DefaultTimeout = 10 * time.Minute
)

// Options configures a Matcher.
type Options struct {
	// Timeout is the maximum age of an unpaired leg. Defaults to
	// DefaultTimeout when zero.
	Timeout time.Duration

	// Logger for anomaly reporting. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// pendingPair holds the legs seen so far for one swap UUID. firstSeen is
// wall-clock arrival time, not the leg timestamp, so that historical legs
// replayed during backfill are not instantly expired.
type pendingPair struct {
	maker     *domain.SwapLeg
	taker     *domain.SwapLeg
	firstSeen time.Time
}

// Matcher accumulates swap legs keyed by UUID and emits a complete
// domain.Swap once both sides have arrived. Safe for concurrent use.
type Matcher struct {
	mu      sync.Mutex
	pending map[string]*pendingPair
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a Matcher with the given options.
func New(opts Options) *Matcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Matcher{
		pending: make(map[string]*pendingPair),
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Observe records one leg. When the leg completes a pair the assembled swap
// is returned and the UUID is forgotten; otherwise nil is returned and the
// leg waits for its counterpart. A second leg for a side already held
// replaces the held one if its timestamp is equal or newer.
func (m *Matcher) Observe(leg domain.SwapLeg) *domain.Swap {
	if leg.Side != domain.SideMaker && leg.Side != domain.SideTaker {
		m.logger.Warn("dropping leg with unknown side",
			zap.String("uuid", leg.UUID),
			zap.String("side", string(leg.Side)))
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[leg.UUID]
	if !ok {
		p = &pendingPair{firstSeen: time.Now()}
		m.pending[leg.UUID] = p
	}

	l := leg
	if leg.Side == domain.SideMaker {
		if p.maker == nil || l.Timestamp >= p.maker.Timestamp {
			p.maker = &l
		}
	} else {
		if p.taker == nil || l.Timestamp >= p.taker.Timestamp {
			p.taker = &l
		}
	}

	if p.maker == nil || p.taker == nil {
		return nil
	}

	delete(m.pending, leg.UUID)
	return assemble(p.maker, p.taker)
}

// Sweep removes pending legs older than the timeout and returns them so the
// caller can record the anomaly. now is the wall clock to compare against.
func (m *Matcher) Sweep(now time.Time) []domain.SwapLeg {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []domain.SwapLeg
	for uuid, p := range m.pending {
		if now.Sub(p.firstSeen) < m.timeout {
			continue
		}
		if p.maker != nil {
			expired = append(expired, *p.maker)
		}
		if p.taker != nil {
			expired = append(expired, *p.taker)
		}
		delete(m.pending, uuid)
		m.logger.Warn("unpaired swap leg timed out",
			zap.String("uuid", uuid),
			zap.Bool("had_maker", p.maker != nil),
			zap.Bool("had_taker", p.taker != nil))
	}
	return expired
}

// PendingCount reports how many swap UUIDs are awaiting a counterpart leg.
func (m *Matcher) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// assemble builds the complete swap from a matched pair of legs.
func assemble(maker, taker *domain.SwapLeg) *domain.Swap {
	ts := maker.Timestamp
	if taker.Timestamp < ts {
		ts = taker.Timestamp
	}
	row := maker.SourceRow
	if taker.SourceRow > row {
		row = taker.SourceRow
	}
	return &domain.Swap{
		UUID:       maker.UUID,
		Maker:      *maker,
		Taker:      *taker,
		Timestamp:  ts,
		StartedAt:  maker.Timestamp,
		FinishedAt: taker.Timestamp,
		Success:    true,
		SourceRow:  row,
	}
}
