// Package registration runs the competition sign-up workflow: validate a
// submission, assign a unique fee amount, and confirm the fee payment
// against the DOC block explorer.
package registration

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/domain"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/insight"
	"kdf-swap-tracker/internal/komodo"
	"kdf-swap-tracker/internal/observability"
	"kdf-swap-tracker/internal/storage"
)

var (
	// ErrInvalidMoniker rejects display names outside 1-16 word characters.
	ErrInvalidMoniker = errors.New("moniker must be 1-16 characters of letters, digits, _ or -")

	// ErrInvalidPubkey rejects anything but a compressed secp256k1 pubkey.
	ErrInvalidPubkey = errors.New("pubkey must be 66 hex characters starting 02 or 03")

	// ErrAddressMismatch rejects submissions whose address was not derived
	// from the submitted pubkey.
	ErrAddressMismatch = errors.New("address does not match pubkey")
)

var (
	monikerRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)
	pubkeyRe  = regexp.MustCompile(`^0[23][0-9a-fA-F]{64}$`)
)

// Explorer is the slice of the insight client the poller needs.
type Explorer interface {
	TxsForAddress(ctx context.Context, address string, page int) ([]insight.Tx, error)
}

// Options configures a Service.
type Options struct {
	Store    storage.RegistrationStore
	Hasher   *idhash.Hasher
	Explorer Explorer
	Logger   *zap.Logger

	// DestAddress receives the registration fees.
	DestAddress string

	// Expiry is how long a pending registration waits for its payment.
	Expiry time.Duration

	// FeeMin and FeeMax bound the randomly drawn fee amount.
	FeeMin, FeeMax float64
}

// Service implements the registration lifecycle. The fee amount doubles as
// the payment identifier: it is drawn uniquely among pending rows, so an
// explorer output of exactly that value to the destination address proves
// which registrant paid.
type Service struct {
	store    storage.RegistrationStore
	hasher   *idhash.Hasher
	explorer Explorer
	logger   *zap.Logger

	destAddress string
	expiry      time.Duration
	feeMin      float64
	feeMax      float64

	rng *rand.Rand
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 24 * time.Hour
	}
	return &Service{
		store:       opts.Store,
		hasher:      opts.Hasher,
		explorer:    opts.Explorer,
		logger:      opts.Logger,
		destAddress: opts.DestAddress,
		expiry:      opts.Expiry,
		feeMin:      opts.FeeMin,
		feeMax:      opts.FeeMax,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DestAddress returns the configured fee destination.
func (s *Service) DestAddress() string {
	return s.destAddress
}

// Submit validates a registration request and persists it as pending. An
// expired row for the same address is recycled; an active one is a
// duplicate (storage.ErrDuplicateKey).
func (s *Service) Submit(ctx context.Context, moniker, address, pubkey string) (*domain.Registration, error) {
	if !monikerRe.MatchString(moniker) {
		return nil, ErrInvalidMoniker
	}
	if !pubkeyRe.MatchString(pubkey) {
		return nil, ErrInvalidPubkey
	}
	derived, err := komodo.Address(pubkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	if derived != address {
		return nil, ErrAddressMismatch
	}

	// Draw until the fee is unique among pending rows. Collisions at
	// 8 decimals are vanishingly rare, so a bounded retry loop suffices.
	var created *domain.Registration
	for attempt := 0; attempt < 10; attempt++ {
		created, err = s.store.CreateOrRefreshPending(ctx, &domain.Registration{
			Moniker:    moniker,
			Address:    address,
			Pubkey:     pubkey,
			PubkeyHash: s.hasher.Hash(pubkey),
			RegoFee:    s.drawFee(),
			RegoUUID:   uuid.NewString(),
		})
		if err == nil {
			observability.DefaultMetrics.RegistrationsCreated.Inc()
			return created, nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, err
		}
		// A fee collision is worth retrying; an address or moniker
		// conflict never resolves itself.
		if !isFeeConflict(err) {
			return nil, err
		}
	}
	return nil, err
}

// Status returns the registration for an address.
func (s *Service) Status(ctx context.Context, address string) (*domain.Registration, error) {
	return s.store.GetByAddress(ctx, address)
}

// Players returns registered users for public display.
func (s *Service) Players(ctx context.Context) ([]*domain.Registration, error) {
	return s.store.ListPlayers(ctx)
}

// Monikers returns the moniker for each registered pubkey hash.
func (s *Service) Monikers(ctx context.Context) (map[string]string, error) {
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(players))
	for _, p := range players {
		out[p.PubkeyHash] = p.Moniker
	}
	return out, nil
}

// PollOnce expires stale pending rows, then checks the explorer for fee
// payments matching the remaining ones. Explorer failures are logged and
// retried on the next cycle.
func (s *Service) PollOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.expiry).Unix()
	expired, err := s.store.ExpireOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		observability.DefaultMetrics.RegistrationsExpired.Add(float64(expired))
		s.logger.Info("expired stale registrations", zap.Int("count", expired))
	}

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		s.logger.Error("list pending failed", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		return
	}

	txs, err := s.explorer.TxsForAddress(ctx, s.destAddress, 0)
	if err != nil {
		observability.DefaultMetrics.ExplorerErrors.Inc()
		s.logger.Warn("explorer poll failed, will retry", zap.Error(err))
		return
	}

	paidBy := paymentsTo(txs, s.destAddress)
	for _, reg := range pending {
		txid, ok := paidBy[reg.RegoFee.StringFixed(8)]
		if !ok {
			continue
		}
		if err := s.store.SetRegistered(ctx, reg.Address, txid); err != nil {
			s.logger.Error("mark registered failed",
				zap.String("address", reg.Address), zap.Error(err))
			continue
		}
		observability.DefaultMetrics.RegistrationsPaid.Inc()
		s.logger.Info("registration confirmed",
			zap.String("moniker", reg.Moniker),
			zap.String("txid", txid))
	}
}

// Run polls on the given interval until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// drawFee picks a fee uniformly from [feeMin, feeMax] rounded to 8 decimals.
func (s *Service) drawFee() decimal.Decimal {
	v := s.feeMin + s.rng.Float64()*(s.feeMax-s.feeMin)
	return decimal.NewFromFloat(v).Round(8)
}

// paymentsTo indexes explorer outputs paying the destination address by
// exact 8-decimal value. Later (older) transactions never overwrite newer
// ones.
func paymentsTo(txs []insight.Tx, dest string) map[string]string {
	out := make(map[string]string)
	for _, tx := range txs {
		for _, v := range tx.Vout {
			if !v.PaysTo(dest) {
				continue
			}
			amount, err := decimal.NewFromString(v.Value)
			if err != nil {
				continue
			}
			key := amount.StringFixed(8)
			if _, seen := out[key]; !seen {
				out[key] = tx.TxID
			}
		}
	}
	return out
}

// isFeeConflict distinguishes a retryable fee collision from address or
// moniker conflicts.
func isFeeConflict(err error) bool {
	return errors.Is(err, storage.ErrDuplicateKey) && strings.Contains(err.Error(), "fee")
}
