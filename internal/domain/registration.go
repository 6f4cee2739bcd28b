package domain

import "github.com/shopspring/decimal"

// Registration statuses.
const (
	RegistrationPending    = "pending"
	RegistrationRegistered = "registered"
	RegistrationExpired    = "expired"
)

// Registration is a competition sign-up bound to a trading pubkey. The fee
// amount is unique among pending rows so the payment itself identifies the
// payer; expired rows are recycled when the same address signs up again.
type Registration struct {
	ID         int64
	Moniker    string
	Address    string // P2PKH address derived from Pubkey, supplied by the user
	Pubkey     string
	PubkeyHash string
	RegoFee    decimal.Decimal
	RegoUUID   string
	RegoTxID   string // transaction that paid the fee; empty until seen
	Status     string
	LastUpdate int64 // unix seconds
}
