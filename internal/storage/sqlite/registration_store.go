// Package sqlite persists registrations in an embedded SQLite database owned
// by this service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS registered_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	moniker TEXT NOT NULL CHECK(length(moniker) <= 16),
	address TEXT NOT NULL UNIQUE CHECK(length(address) <= 64),
	pubkey TEXT NOT NULL,
	pubkey_hash TEXT NOT NULL,
	rego_fee TEXT NOT NULL,
	rego_uuid TEXT NOT NULL UNIQUE CHECK(length(rego_uuid) <= 64),
	rego_transaction TEXT UNIQUE,
	status TEXT NOT NULL CHECK(status IN ('expired','pending','registered')),
	last_update INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_registered_users_status ON registered_users(status);
CREATE INDEX IF NOT EXISTS idx_registered_users_last_update ON registered_users(last_update);
`

// RegistrationStore is a storage.RegistrationStore backed by SQLite.
type RegistrationStore struct {
	db  *sql.DB
	now func() int64
}

// NewRegistrationStore opens (creating if needed) the registration database
// at path and ensures the schema exists.
func NewRegistrationStore(path string, now func() int64) (*RegistrationStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open registration database: %w", err)
	}
	// The store is the sole writer; a single connection sidesteps SQLite
	// write contention entirely.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure registration schema: %w", err)
	}
	return &RegistrationStore{db: db, now: now}, nil
}

// Close releases the database handle.
func (s *RegistrationStore) Close() error {
	return s.db.Close()
}

const selectColumns = `id, moniker, address, pubkey, pubkey_hash, rego_fee,
rego_uuid, COALESCE(rego_transaction, ''), status, last_update`

// GetByAddress retrieves a registration by address.
func (s *RegistrationStore) GetByAddress(ctx context.Context, address string) (*domain.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM registered_users WHERE address = ?", selectColumns), address)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return r, err
}

// CreateOrRefreshPending inserts a pending registration, or recycles an
// expired row for the same address. An address that is already pending or
// registered, a moniker in use by another active user, and a fee amount
// already assigned to a pending row are all ErrDuplicateKey.
func (s *RegistrationStore) CreateOrRefreshPending(ctx context.Context, r *domain.Registration) (*domain.Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM registered_users WHERE address = ?", r.Address).Scan(&status)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check address: %w", err)
	}
	if exists && status != domain.RegistrationExpired {
		return nil, fmt.Errorf("%w: address already %s", storage.ErrDuplicateKey, status)
	}

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM registered_users
WHERE moniker = ? AND address != ? AND status IN ('pending','registered')`,
		r.Moniker, r.Address).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("check moniker: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: moniker already in use", storage.ErrDuplicateKey)
	}

	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM registered_users
WHERE rego_fee = ? AND status = 'pending' AND address != ?`,
		r.RegoFee.StringFixed(8), r.Address).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("check fee: %w", err)
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: fee amount already assigned", storage.ErrDuplicateKey)
	}

	now := s.now()
	if exists {
		_, err = tx.ExecContext(ctx, `UPDATE registered_users
SET moniker = ?, pubkey = ?, pubkey_hash = ?, rego_fee = ?, rego_uuid = ?,
rego_transaction = NULL, status = 'pending', last_update = ?
WHERE address = ?`,
			r.Moniker, r.Pubkey, r.PubkeyHash, r.RegoFee.StringFixed(8), r.RegoUUID, now, r.Address)
	} else {
		_, err = tx.ExecContext(ctx, `INSERT INTO registered_users
(moniker, address, pubkey, pubkey_hash, rego_fee, rego_uuid, rego_transaction, status, last_update)
VALUES (?, ?, ?, ?, ?, ?, NULL, 'pending', ?)`,
			r.Moniker, r.Address, r.Pubkey, r.PubkeyHash, r.RegoFee.StringFixed(8), r.RegoUUID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("write registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return s.GetByAddress(ctx, r.Address)
}

// ListPending returns pending registrations ordered by last update ASC.
func (s *RegistrationStore) ListPending(ctx context.Context) ([]*domain.Registration, error) {
	return s.list(ctx, fmt.Sprintf(
		"SELECT %s FROM registered_users WHERE status = 'pending' ORDER BY last_update ASC", selectColumns))
}

// ExpireOlderThan flips pending rows last updated before cutoff to expired.
func (s *RegistrationStore) ExpireOlderThan(ctx context.Context, cutoff int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE registered_users SET status = 'expired', last_update = ? WHERE status = 'pending' AND last_update < ?",
		s.now(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire registrations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// SetRegistered marks a pending registration as registered with its fee
// transaction.
func (s *RegistrationStore) SetRegistered(ctx context.Context, address, txid string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE registered_users SET rego_transaction = ?, status = 'registered', last_update = ? WHERE address = ? AND status = 'pending'",
		txid, s.now(), address)
	if err != nil {
		return fmt.Errorf("set registered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListPlayers returns registered users ordered by moniker ASC.
func (s *RegistrationStore) ListPlayers(ctx context.Context) ([]*domain.Registration, error) {
	return s.list(ctx, fmt.Sprintf(
		"SELECT %s FROM registered_users WHERE status = 'registered' ORDER BY moniker ASC", selectColumns))
}

func (s *RegistrationStore) list(ctx context.Context, query string) ([]*domain.Registration, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []*domain.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(sc scanner) (*domain.Registration, error) {
	var r domain.Registration
	var fee string
	err := sc.Scan(&r.ID, &r.Moniker, &r.Address, &r.Pubkey, &r.PubkeyHash,
		&fee, &r.RegoUUID, &r.RegoTxID, &r.Status, &r.LastUpdate)
	if err != nil {
		return nil, err
	}
	r.RegoFee, err = decimal.NewFromString(strings.TrimSpace(fee))
	if err != nil {
		return nil, fmt.Errorf("parse stored fee %q: %w", fee, err)
	}
	return &r, nil
}

// Compile-time interface check.
var _ storage.RegistrationStore = (*RegistrationStore)(nil)
