package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/events"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/storage"
)

// SwapStore is an in-memory implementation of storage.SwapStore. Swaps are
// keyed by uuid; pubkeys are digested on upsert so raw keys never leave the
// store. Two secondary indices are maintained under the same write lock as
// the primary map: a timestamp-ordered slice for range and event queries and
// a digest-to-uuid index for trader lookups.
type SwapStore struct {
	mu     sync.RWMutex
	hasher *idhash.Hasher
	groups []domain.EventGroup
	data   map[string]*domain.Swap // keyed by uuid

	byTime   []*domain.Swap                 // timestamp ASC, uuid ASC on ties
	byPubkey map[string]map[string]struct{} // pubkey digest -> uuid set
}

// NewSwapStore creates a new in-memory swap store using hasher for pubkey
// digests and groups for event membership tagging.
func NewSwapStore(hasher *idhash.Hasher, groups []domain.EventGroup) *SwapStore {
	return &SwapStore{
		hasher:   hasher,
		groups:   append([]domain.EventGroup(nil), groups...),
		data:     make(map[string]*domain.Swap),
		byPubkey: make(map[string]map[string]struct{}),
	}
}

// Upsert inserts or replaces a swap by uuid. The stored copy carries pubkey
// digests and freshly computed event membership. The primary map and both
// indices are updated under one write lock; a replacement first unlinks the
// old record so no stale index entry survives. Returns ErrValidation without
// mutating state when the record is malformed.
func (s *SwapStore) Upsert(_ context.Context, swap *domain.Swap) error {
	if err := validate(swap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := cloneSwap(swap)
	copy.Maker.UUID = copy.UUID
	copy.Taker.UUID = copy.UUID
	copy.Maker.Side = domain.SideMaker
	copy.Taker.Side = domain.SideTaker
	copy.Maker.PubkeyHash = s.digest(copy.Maker.Pubkey)
	copy.Taker.PubkeyHash = s.digest(copy.Taker.Pubkey)
	copy.EventNames = events.Membership(s.groups, copy)

	if old, ok := s.data[copy.UUID]; ok {
		s.unlinkLocked(old)
	}
	s.data[copy.UUID] = copy
	s.linkLocked(copy)
	return nil
}

// Get retrieves a swap by uuid. Returns ErrNotFound if absent.
func (s *SwapStore) Get(_ context.Context, uuid string) (*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	swap, ok := s.data[uuid]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneSwap(swap), nil
}

// QueryByEvent retrieves swaps belonging to at least one of the named
// groups, ordered by timestamp ASC. An empty names slice matches nothing.
func (s *SwapStore) QueryByEvent(_ context.Context, names []string) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Swap{}
	for _, swap := range s.byTime {
		if swap.InAnyEvent(names) {
			result = append(result, cloneSwap(swap))
		}
	}
	return result, nil
}

// QueryByPubkey retrieves one trader's swaps ordered by timestamp ASC. The
// trader may be identified by pubkey digest or by raw pubkey: the input is
// first matched as a digest, and only if nothing matches is it digested and
// retried. A non-empty names slice additionally filters by event membership.
func (s *SwapStore) QueryByPubkey(_ context.Context, hashOrRaw string, names []string) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.byDigestLocked(hashOrRaw, names)
	if len(result) == 0 {
		result = s.byDigestLocked(s.digest(hashOrRaw), names)
	}
	return result, nil
}

// byDigestLocked collects the digest's swaps in timestamp order via the
// pubkey index. Caller must hold at least the read lock.
func (s *SwapStore) byDigestLocked(digest string, names []string) []*domain.Swap {
	result := []*domain.Swap{}
	uuids, ok := s.byPubkey[digest]
	if digest == "" || !ok {
		return result
	}
	for _, swap := range s.byTime {
		if _, mine := uuids[swap.UUID]; !mine {
			continue
		}
		if len(names) > 0 && !swap.InAnyEvent(names) {
			continue
		}
		result = append(result, cloneSwap(swap))
	}
	return result
}

// QueryRange retrieves swaps with timestamp within [start, end] inclusive,
// ordered by timestamp ASC. Both bounds locate positions in the time index,
// so the scan touches only the window.
func (s *SwapStore) QueryRange(_ context.Context, start, end int64) ([]*domain.Swap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo := sort.Search(len(s.byTime), func(i int) bool {
		return s.byTime[i].Timestamp >= start
	})
	hi := sort.Search(len(s.byTime), func(i int) bool {
		return s.byTime[i].Timestamp > end
	})

	result := make([]*domain.Swap, 0, hi-lo)
	for _, swap := range s.byTime[lo:hi] {
		result = append(result, cloneSwap(swap))
	}
	return result, nil
}

// Total reports the number of stored swaps.
func (s *SwapStore) Total(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Events returns a copy of the current event configuration.
func (s *SwapStore) Events(_ context.Context) ([]domain.EventGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EventGroup(nil), s.groups...), nil
}

// SetEvents replaces the event configuration and retags every stored swap.
func (s *SwapStore) SetEvents(_ context.Context, groups []domain.EventGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups = append([]domain.EventGroup(nil), groups...)
	for _, swap := range s.data {
		swap.EventNames = events.Membership(s.groups, swap)
	}
	return nil
}

// Prune removes swaps older than now minus retention. Swaps belonging to any
// event group are never removed regardless of age. Returns the number removed.
func (s *SwapStore) Prune(_ context.Context, now int64, retention time.Duration) (int, error) {
	cutoff := now - int64(retention.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.byTime[:0]
	for _, swap := range s.byTime {
		if swap.Timestamp >= cutoff || len(swap.EventNames) > 0 {
			kept = append(kept, swap)
			continue
		}
		delete(s.data, swap.UUID)
		s.dropDigestLocked(swap.Maker.PubkeyHash, swap.UUID)
		s.dropDigestLocked(swap.Taker.PubkeyHash, swap.UUID)
		removed++
	}
	s.byTime = kept
	return removed, nil
}

// linkLocked inserts the swap into both secondary indices. Caller must hold
// the write lock.
func (s *SwapStore) linkLocked(swap *domain.Swap) {
	at := s.timeIndexLocked(swap.Timestamp, swap.UUID)
	s.byTime = append(s.byTime, nil)
	copy(s.byTime[at+1:], s.byTime[at:])
	s.byTime[at] = swap

	s.addDigestLocked(swap.Maker.PubkeyHash, swap.UUID)
	s.addDigestLocked(swap.Taker.PubkeyHash, swap.UUID)
}

// unlinkLocked removes the swap from both secondary indices. Caller must
// hold the write lock.
func (s *SwapStore) unlinkLocked(swap *domain.Swap) {
	at := s.timeIndexLocked(swap.Timestamp, swap.UUID)
	if at < len(s.byTime) && s.byTime[at].UUID == swap.UUID {
		s.byTime = append(s.byTime[:at], s.byTime[at+1:]...)
	}
	s.dropDigestLocked(swap.Maker.PubkeyHash, swap.UUID)
	s.dropDigestLocked(swap.Taker.PubkeyHash, swap.UUID)
}

// timeIndexLocked returns the sorted position of (ts, uuid) in the time
// index.
func (s *SwapStore) timeIndexLocked(ts int64, uuid string) int {
	return sort.Search(len(s.byTime), func(i int) bool {
		e := s.byTime[i]
		if e.Timestamp != ts {
			return e.Timestamp > ts
		}
		return e.UUID >= uuid
	})
}

// addDigestLocked records a digest-to-uuid association. Empty digests are
// never indexed so pubkey-less legs cannot alias each other.
func (s *SwapStore) addDigestLocked(digest, uuid string) {
	if digest == "" {
		return
	}
	set, ok := s.byPubkey[digest]
	if !ok {
		set = make(map[string]struct{})
		s.byPubkey[digest] = set
	}
	set[uuid] = struct{}{}
}

// dropDigestLocked removes a digest-to-uuid association, deleting the set
// when it empties.
func (s *SwapStore) dropDigestLocked(digest, uuid string) {
	if digest == "" {
		return
	}
	set, ok := s.byPubkey[digest]
	if !ok {
		return
	}
	delete(set, uuid)
	if len(set) == 0 {
		delete(s.byPubkey, digest)
	}
}

// digest applies the pubkey hasher, passing empty pubkeys through untouched
// so absent keys never alias each other.
func (s *SwapStore) digest(pubkey string) string {
	if pubkey == "" {
		return ""
	}
	return s.hasher.Hash(pubkey)
}

// validate checks a swap before any state is touched. Failures are wrapped
// around storage.ErrValidation.
func validate(swap *domain.Swap) error {
	switch {
	case swap == nil:
		return fmt.Errorf("%w: nil swap", storage.ErrValidation)
	case swap.UUID == "":
		return fmt.Errorf("%w: missing uuid", storage.ErrValidation)
	case swap.Maker.UUID != "" && swap.Maker.UUID != swap.UUID:
		return fmt.Errorf("%w: maker leg uuid %q does not match swap uuid %q", storage.ErrValidation, swap.Maker.UUID, swap.UUID)
	case swap.Taker.UUID != "" && swap.Taker.UUID != swap.UUID:
		return fmt.Errorf("%w: taker leg uuid %q does not match swap uuid %q", storage.ErrValidation, swap.Taker.UUID, swap.UUID)
	case swap.Maker.Ticker == "":
		return fmt.Errorf("%w: missing maker ticker", storage.ErrValidation)
	case swap.Taker.Ticker == "":
		return fmt.Errorf("%w: missing taker ticker", storage.ErrValidation)
	case swap.Timestamp <= 0:
		return fmt.Errorf("%w: missing timestamp", storage.ErrValidation)
	case swap.Maker.Amount.IsNegative():
		return fmt.Errorf("%w: negative maker amount", storage.ErrValidation)
	case swap.Taker.Amount.IsNegative():
		return fmt.Errorf("%w: negative taker amount", storage.ErrValidation)
	}
	return nil
}

// cloneSwap deep-copies a swap so callers can never mutate stored state.
func cloneSwap(swap *domain.Swap) *domain.Swap {
	copy := *swap
	copy.EventNames = append([]string(nil), swap.EventNames...)
	return &copy
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)
