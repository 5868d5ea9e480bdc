package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a wallet holder in the ledger.
// WalletBalance is mutated only by the goal factory (debit) and the release
// engine (credit), always inside a per-user ledger transaction.
type User struct {
	ID            uuid.UUID
	DisplayName   string
	WalletBalance decimal.Decimal
	CreatedAt     time.Time
}

// Validate ensures the user adheres to domain rules
func (u *User) Validate() error {
	if u.WalletBalance.IsNegative() {
		return errors.New("wallet balance cannot be negative")
	}
	return nil
}
