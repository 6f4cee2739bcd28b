package registration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/insight"
	"kdf-swap-tracker/internal/storage"
	"kdf-swap-tracker/internal/storage/sqlite"
)

// Known pubkey/address pair (KMD P2PKH derivation).
const (
	testPubkey  = "020e46e79a2a8d12b9b5d12c7a91adb4e454edfae43c0a0cb805427d2ac7613fd9"
	testAddress = "RXL3YXG2ceaB6C5hfJcN4fvmLH2C34knhA"
	destAddress = "RDestAddrForFees"
)

// fakeExplorer serves a scripted transaction list.
type fakeExplorer struct {
	txs []insight.Tx
	err error
}

func (f *fakeExplorer) TxsForAddress(context.Context, string, int) ([]insight.Tx, error) {
	return f.txs, f.err
}

func newTestService(t *testing.T, explorer Explorer) (*Service, storage.RegistrationStore) {
	t.Helper()
	store, err := sqlite.NewRegistrationStore(
		filepath.Join(t.TempDir(), "rego.db"),
		func() int64 { return time.Now().Unix() })
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := New(Options{
		Store:       store,
		Hasher:      idhash.New("test-key"),
		Explorer:    explorer,
		DestAddress: destAddress,
		Expiry:      24 * time.Hour,
		FeeMin:      0.001,
		FeeMax:      3.33,
	})
	return svc, store
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newTestService(t, &fakeExplorer{})
	ctx := context.Background()

	_, err := svc.Submit(ctx, "has spaces!", testAddress, testPubkey)
	require.ErrorIs(t, err, ErrInvalidMoniker)

	_, err = svc.Submit(ctx, "alice", testAddress, "nothex")
	require.ErrorIs(t, err, ErrInvalidPubkey)

	_, err = svc.Submit(ctx, "alice", "RWrongAddress", testPubkey)
	require.ErrorIs(t, err, ErrAddressMismatch)
}

func TestSubmit_CreatesPendingWithUniqueFee(t *testing.T) {
	svc, _ := newTestService(t, &fakeExplorer{})
	ctx := context.Background()

	reg, err := svc.Submit(ctx, "alice", testAddress, testPubkey)
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationPending, reg.Status)
	require.NotEmpty(t, reg.RegoUUID)
	require.True(t, reg.RegoFee.InexactFloat64() >= 0.001)
	require.True(t, reg.RegoFee.InexactFloat64() <= 3.33)
	// Raw pubkey stored alongside its digest, not instead of it.
	require.NotEqual(t, reg.Pubkey, reg.PubkeyHash)

	// Re-submitting while pending is a conflict.
	_, err = svc.Submit(ctx, "alice", testAddress, testPubkey)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestPollOnce_ConfirmsExactFeePayment(t *testing.T) {
	explorer := &fakeExplorer{}
	svc, store := newTestService(t, explorer)
	ctx := context.Background()

	reg, err := svc.Submit(ctx, "alice", testAddress, testPubkey)
	require.NoError(t, err)

	explorer.txs = []insight.Tx{
		{TxID: "tx-wrong", Vout: []insight.Vout{{
			Value:        "99.00000000",
			ScriptPubKey: insight.ScriptPubKey{Addresses: []string{destAddress}},
		}}},
		{TxID: "tx-match", Vout: []insight.Vout{{
			Value:        reg.RegoFee.StringFixed(8),
			ScriptPubKey: insight.ScriptPubKey{Addresses: []string{destAddress}},
		}}},
	}

	svc.PollOnce(ctx)

	got, err := store.GetByAddress(ctx, testAddress)
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationRegistered, got.Status)
	require.Equal(t, "tx-match", got.RegoTxID)

	monikers, err := svc.Monikers(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", monikers[got.PubkeyHash])
}

func TestPollOnce_IgnoresPaymentsToOtherAddresses(t *testing.T) {
	explorer := &fakeExplorer{}
	svc, store := newTestService(t, explorer)
	ctx := context.Background()

	reg, err := svc.Submit(ctx, "alice", testAddress, testPubkey)
	require.NoError(t, err)

	explorer.txs = []insight.Tx{
		{TxID: "tx-elsewhere", Vout: []insight.Vout{{
			Value:        reg.RegoFee.StringFixed(8),
			ScriptPubKey: insight.ScriptPubKey{Addresses: []string{"RSomeoneElse"}},
		}}},
	}

	svc.PollOnce(ctx)

	got, err := store.GetByAddress(ctx, testAddress)
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationPending, got.Status)
}

func TestPollOnce_ExpiresStaleRows(t *testing.T) {
	explorer := &fakeExplorer{}
	store, err := sqlite.NewRegistrationStore(
		filepath.Join(t.TempDir(), "rego.db"),
		func() int64 { return time.Now().Add(-48 * time.Hour).Unix() })
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := New(Options{
		Store:       store,
		Hasher:      idhash.New("test-key"),
		Explorer:    explorer,
		DestAddress: destAddress,
		Expiry:      24 * time.Hour,
		FeeMin:      0.001,
		FeeMax:      3.33,
	})
	ctx := context.Background()

	_, err = svc.Submit(ctx, "alice", testAddress, testPubkey)
	require.NoError(t, err)

	svc.PollOnce(ctx)

	got, err := store.GetByAddress(ctx, testAddress)
	require.NoError(t, err)
	require.Equal(t, domain.RegistrationExpired, got.Status)
}
