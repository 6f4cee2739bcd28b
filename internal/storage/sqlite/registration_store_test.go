package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/storage"
)

func newTestStore(t *testing.T) (*RegistrationStore, *int64) {
	t.Helper()
	now := int64(1_000_000)
	store, err := NewRegistrationStore(
		filepath.Join(t.TempDir(), "DEX_COMP.db"),
		func() int64 { return now })
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, &now
}

func pending(moniker, address string, fee string) *domain.Registration {
	return &domain.Registration{
		Moniker:    moniker,
		Address:    address,
		Pubkey:     "02" + address,
		PubkeyHash: "hash-" + address,
		RegoFee:    decimal.RequireFromString(fee),
		RegoUUID:   "uuid-" + address,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateOrRefreshPending(ctx, pending("alice", "RAddrA", "1.2345"))
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationPending, created.Status)
	require.Equal(t, "1.2345", created.RegoFee.String())
	require.Empty(t, created.RegoTxID)

	got, err := store.GetByAddress(ctx, "RAddrA")
	require.NoError(t, err)
	require.Equal(t, "alice", got.Moniker)

	_, err = store.GetByAddress(ctx, "RUnknown")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreate_DuplicateRules(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateOrRefreshPending(ctx, pending("alice", "RAddrA", "1.1"))
	require.NoError(t, err)

	// Same address, still pending.
	_, err = store.CreateOrRefreshPending(ctx, pending("alice2", "RAddrA", "1.2"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Moniker held by another active user.
	_, err = store.CreateOrRefreshPending(ctx, pending("alice", "RAddrB", "1.3"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Fee amount already assigned to a pending row.
	_, err = store.CreateOrRefreshPending(ctx, pending("bob", "RAddrC", "1.1"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestExpireAndRecycle(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateOrRefreshPending(ctx, pending("alice", "RAddrA", "1.1"))
	require.NoError(t, err)

	*now += 100_000
	n, err := store.ExpireOlderThan(ctx, *now-3600)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := store.GetByAddress(ctx, "RAddrA")
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationExpired, got.Status)

	// An expired row is recycled by a fresh submission, moniker included.
	refreshed, err := store.CreateOrRefreshPending(ctx, pending("newalice", "RAddrA", "2.2"))
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationPending, refreshed.Status)
	require.Equal(t, "newalice", refreshed.Moniker)
	require.Equal(t, "2.2", refreshed.RegoFee.String())
}

func TestSetRegisteredAndListPlayers(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateOrRefreshPending(ctx, pending("zoe", "RAddrZ", "1.1"))
	require.NoError(t, err)
	_, err = store.CreateOrRefreshPending(ctx, pending("adam", "RAddrB", "1.2"))
	require.NoError(t, err)

	require.NoError(t, store.SetRegistered(ctx, "RAddrZ", "tx-z"))
	require.NoError(t, store.SetRegistered(ctx, "RAddrB", "tx-b"))

	// Already registered: nothing pending to flip.
	err = store.SetRegistered(ctx, "RAddrZ", "tx-z2")
	require.ErrorIs(t, err, storage.ErrNotFound)

	players, err := store.ListPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, players, 2)
	require.Equal(t, "adam", players[0].Moniker)
	require.Equal(t, "zoe", players[1].Moniker)
	require.Equal(t, "tx-b", players[0].RegoTxID)
}

func TestListPending_OrderedByLastUpdate(t *testing.T) {
	store, now := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateOrRefreshPending(ctx, pending("first", "RAddrA", "1.1"))
	require.NoError(t, err)
	*now += 10
	_, err = store.CreateOrRefreshPending(ctx, pending("second", "RAddrB", "1.2"))
	require.NoError(t, err)

	list, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "first", list[0].Moniker)
	require.Equal(t, "second", list[1].Moniker)
}
