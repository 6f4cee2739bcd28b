package storage

import (
	"context"
	"time"

	"kdf-swap-tracker/internal/domain"
)

// SwapStore owns the authoritative collection of matched swaps. All other
// components read through it.
type SwapStore interface {
	// Upsert inserts or replaces a swap by uuid and recomputes its event
	// membership. Idempotent: re-upserting an identical record leaves
	// observable state unchanged. Returns ErrValidation for malformed records.
	Upsert(ctx context.Context, s *domain.Swap) error

	// Get retrieves a swap by uuid. Returns ErrNotFound if absent.
	Get(ctx context.Context, uuid string) (*domain.Swap, error)

	// QueryByEvent returns swaps whose event membership intersects names,
	// ordered by timestamp ASC (uuid ASC on ties).
	QueryByEvent(ctx context.Context, names []string) ([]*domain.Swap, error)

	// QueryByPubkey returns swaps involving one trader, identified by raw
	// pubkey or pubkey hash, optionally filtered by event names, ordered by
	// timestamp ASC.
	QueryByPubkey(ctx context.Context, hashOrRaw string, names []string) ([]*domain.Swap, error)

	// QueryRange returns swaps with timestamp within [start, end] inclusive,
	// ordered by timestamp ASC.
	QueryRange(ctx context.Context, start, end int64) ([]*domain.Swap, error)

	// Total reports the number of stored swaps.
	Total(ctx context.Context) (int, error)

	// Events returns the current event configuration.
	Events(ctx context.Context) ([]domain.EventGroup, error)

	// SetEvents replaces the event configuration and recomputes membership
	// for every stored swap.
	SetEvents(ctx context.Context, groups []domain.EventGroup) error

	// Prune removes swaps with timestamp older than now minus retention
	// unless they belong to any event group. Returns the number removed.
	Prune(ctx context.Context, now int64, retention time.Duration) (int, error)
}

// RegistrationStore persists competition sign-ups across restarts.
type RegistrationStore interface {
	// GetByAddress retrieves a registration by address. Returns ErrNotFound
	// if absent.
	GetByAddress(ctx context.Context, address string) (*domain.Registration, error)

	// CreateOrRefreshPending inserts a new pending registration or recycles
	// an expired row for the same address. Returns ErrDuplicateKey when the
	// address is already pending/registered or the moniker is taken by
	// another active user.
	CreateOrRefreshPending(ctx context.Context, r *domain.Registration) (*domain.Registration, error)

	// ListPending returns pending registrations ordered by last update ASC.
	ListPending(ctx context.Context) ([]*domain.Registration, error)

	// ExpireOlderThan flips pending rows last updated before cutoff to
	// expired. Returns the number of rows expired.
	ExpireOlderThan(ctx context.Context, cutoff int64) (int, error)

	// SetRegistered marks a pending registration as registered, recording the
	// fee transaction. Returns ErrNotFound when no pending row matches.
	SetRegistered(ctx context.Context, address, txid string) error

	// ListPlayers returns registered users ordered by moniker ASC.
	ListPlayers(ctx context.Context) ([]*domain.Registration, error)

	// Close releases the underlying database handle.
	Close() error
}
