// Package ingestion tails the daemon's stats database and feeds swap legs
// through the pair matcher into the swap store.
package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"kdf-swap-tracker/internal/domain"
)

// selectColumns is the projection shared by live polling and backfill.
const selectColumns = `id, uuid, maker_coin, taker_coin, started_at, finished_at,
maker_amount, taker_amount, is_success, maker_coin_ticker, maker_coin_platform,
taker_coin_ticker, taker_coin_platform, maker_coin_usd_price, taker_coin_usd_price,
maker_pubkey, taker_pubkey, maker_gui, taker_gui, maker_version, taker_version`

// Source reads completed swap rows from the daemon's stats_swaps table. The
// database belongs to the daemon and is opened strictly read-only.
type Source struct {
	path string
	db   *sql.DB
}

// OpenSource opens the daemon database read-only. The file must already
// exist: the daemon creates it, and without it there is no data to serve.
func OpenSource(path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("daemon database %s: %w", path, err)
	}
	s := &Source{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) open() error {
	db, err := sql.Open("sqlite", "file:"+s.path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open daemon database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping daemon database: %w", err)
	}
	s.db = db
	return nil
}

// Reopen closes and reopens the connection. The daemon writes to the same
// file, so a transiently locked database is recovered by reconnecting.
func (s *Source) Reopen() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return s.open()
}

// Close releases the database handle.
func (s *Source) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MaxRowID returns the highest rowid present, or -1 for an empty table.
func (s *Source) MaxRowID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM stats_swaps").Scan(&max)
	if err != nil {
		return -1, fmt.Errorf("query max rowid: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return max.Int64, nil
}

// Row is one completed stats_swaps row decoded into its two legs.
type Row struct {
	ID    int64
	Maker domain.SwapLeg
	Taker domain.SwapLeg
}

// RowsSince returns completed rows with id greater than lastID, ordered by
// id ascending. Rows that cannot be decoded are returned in the second slice
// as their rowids so the caller can count them without stalling the cursor.
func (s *Source) RowsSince(ctx context.Context, lastID int64) ([]Row, []int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM stats_swaps
WHERE id > ? AND is_success = 1 AND finished_at IS NOT NULL
ORDER BY id ASC`, selectColumns)
	return s.selectRows(ctx, query, lastID)
}

// RowsBetween returns completed rows whose finished_at falls within
// [startTS, endTS], ordered by id ascending. Used for historical backfill.
func (s *Source) RowsBetween(ctx context.Context, startTS, endTS int64) ([]Row, []int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM stats_swaps
WHERE finished_at BETWEEN ? AND ? AND is_success = 1
ORDER BY id ASC`, selectColumns)
	return s.selectRows(ctx, query, startTS, endTS)
}

func (s *Source) selectRows(ctx context.Context, query string, args ...any) ([]Row, []int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query stats_swaps: %w", err)
	}
	defer rows.Close()

	var out []Row
	var skipped []int64
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, nil, err
		}
		decoded, ok := decodeRow(r)
		if !ok {
			skipped = append(skipped, r.id)
			continue
		}
		out = append(out, decoded)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate stats_swaps: %w", err)
	}
	return out, skipped, nil
}

// rawRow mirrors the stats_swaps columns with daemon-compatible nullability.
type rawRow struct {
	id                           int64
	uuid                         sql.NullString
	makerCoin, takerCoin         sql.NullString
	startedAt, finishedAt        sql.NullInt64
	makerAmount, takerAmount     sql.NullFloat64
	isSuccess                    sql.NullInt64
	makerTicker, makerPlatform   sql.NullString
	takerTicker, takerPlatform   sql.NullString
	makerUSDPrice, takerUSDPrice sql.NullFloat64
	makerPubkey, takerPubkey     sql.NullString
	makerGUI, takerGUI           sql.NullString
	makerVersion, takerVersion   sql.NullString
}

func scanRow(rows *sql.Rows) (rawRow, error) {
	var r rawRow
	err := rows.Scan(
		&r.id, &r.uuid, &r.makerCoin, &r.takerCoin, &r.startedAt, &r.finishedAt,
		&r.makerAmount, &r.takerAmount, &r.isSuccess,
		&r.makerTicker, &r.makerPlatform, &r.takerTicker, &r.takerPlatform,
		&r.makerUSDPrice, &r.takerUSDPrice,
		&r.makerPubkey, &r.takerPubkey, &r.makerGUI, &r.takerGUI,
		&r.makerVersion, &r.takerVersion,
	)
	if err != nil {
		return rawRow{}, fmt.Errorf("scan stats_swaps row: %w", err)
	}
	return r, nil
}

// decodeRow turns one raw row into a maker and a taker leg. Rows without a
// uuid, coins, or timestamps cannot identify a swap and are rejected.
func decodeRow(r rawRow) (Row, bool) {
	if !r.uuid.Valid || r.uuid.String == "" {
		return Row{}, false
	}
	if !r.startedAt.Valid || !r.finishedAt.Valid || r.finishedAt.Int64 <= 0 {
		return Row{}, false
	}
	makerTicker := domain.NormalizeSymbol(r.makerCoin.String, r.makerTicker.String)
	takerTicker := domain.NormalizeSymbol(r.takerCoin.String, r.takerTicker.String)
	if makerTicker == "" || takerTicker == "" {
		return Row{}, false
	}

	maker := domain.SwapLeg{
		UUID:      r.uuid.String,
		Side:      domain.SideMaker,
		Ticker:    makerTicker,
		Platform:  r.makerPlatform.String,
		Pubkey:    r.makerPubkey.String,
		Amount:    decimalFrom(r.makerAmount),
		USDPrice:  decimalFrom(r.makerUSDPrice),
		Timestamp: r.startedAt.Int64,
		GUI:       r.makerGUI.String,
		Version:   r.makerVersion.String,
		SourceRow: r.id,
	}
	taker := domain.SwapLeg{
		UUID:      r.uuid.String,
		Side:      domain.SideTaker,
		Ticker:    takerTicker,
		Platform:  r.takerPlatform.String,
		Pubkey:    r.takerPubkey.String,
		Amount:    decimalFrom(r.takerAmount),
		USDPrice:  decimalFrom(r.takerUSDPrice),
		Timestamp: r.finishedAt.Int64,
		GUI:       r.takerGUI.String,
		Version:   r.takerVersion.String,
		SourceRow: r.id,
	}
	return Row{ID: r.id, Maker: maker, Taker: taker}, true
}

func decimalFrom(v sql.NullFloat64) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v.Float64)
}
