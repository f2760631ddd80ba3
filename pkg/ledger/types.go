package ledger

import (
	"context"
	"fmt"
	"strings"
)

// Points is a signed points quantity. Balances are never negative; deltas may be.
type Points int64

// Int64 exposes the raw value.
func (points Points) Int64() int64 {
	return int64(points)
}

// PositivePoints is a strictly positive amount used for credits and debits.
type PositivePoints int64

// NewPositivePoints validates that raw is greater than zero.
func NewPositivePoints(raw int64) (PositivePoints, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPoints)
	}
	return PositivePoints(raw), nil
}

// ToPoints converts to the signed representation.
func (amount PositivePoints) ToPoints() Points {
	return Points(amount)
}

// Negated returns the debit delta for the amount.
func (amount PositivePoints) Negated() Points {
	return Points(-int64(amount))
}

// UserID identifies a points holder. The value comes from the identity provider and is trusted.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

func (id UserID) String() string {
	return id.value
}

// Reason is the stable reason code stored with every transaction.
type Reason struct {
	value string
}

// NewReason validates a reason code.
func NewReason(raw string) (Reason, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reason{}, fmt.Errorf("%w: empty value", ErrInvalidReason)
	}
	return Reason{value: trimmed}, nil
}

func (reason Reason) String() string {
	return reason.value
}

// Reference points at the entity that caused a transaction. The zero value means none.
type Reference struct {
	refType string
	refID   string
}

// NewReference builds a reference. Both parts must be set together.
func NewReference(refType string, refID string) (Reference, error) {
	normalizedType := strings.TrimSpace(refType)
	normalizedID := strings.TrimSpace(refID)
	if normalizedType == "" && normalizedID == "" {
		return Reference{}, nil
	}
	if normalizedType == "" || normalizedID == "" {
		return Reference{}, fmt.Errorf("%w: type and id are both required", ErrInvalidReference)
	}
	return Reference{refType: normalizedType, refID: normalizedID}, nil
}

// Type returns the referenced entity kind.
func (reference Reference) Type() string {
	return reference.refType
}

// ID returns the referenced entity identifier.
func (reference Reference) ID() string {
	return reference.refID
}

// IsZero reports whether the reference is empty.
func (reference Reference) IsZero() bool {
	return reference.refType == "" && reference.refID == ""
}

// Balance is the per-user aggregate. Balance always equals TotalEarned minus TotalSpent.
type Balance struct {
	Balance     Points
	TotalEarned Points
	TotalSpent  Points
}

// Validate checks the aggregate invariants.
func (balance Balance) Validate() error {
	if balance.Balance < 0 {
		return fmt.Errorf("%w: negative balance %d", ErrInvalidBalance, balance.Balance)
	}
	if balance.TotalEarned-balance.TotalSpent != balance.Balance {
		return fmt.Errorf("%w: earned %d minus spent %d differs from balance %d", ErrInvalidBalance, balance.TotalEarned, balance.TotalSpent, balance.Balance)
	}
	return nil
}

// Transaction is one immutable row of points history.
type Transaction struct {
	TransactionID  string
	UserID         string
	Amount         Points
	BalanceAfter   Points
	Reason         string
	RefType        string
	RefID          string
	Description    string
	CreatedUnixUTC int64
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// ApplyDelta adds delta to the user's balance in one conditional statement, creating the
	// row on first touch. It returns ErrInsufficientBalance when the result would be negative.
	ApplyDelta(ctx context.Context, userID UserID, delta Points) (Balance, error)
	InsertTransaction(ctx context.Context, transaction Transaction) error
	// GetBalance reads without side effects; an unknown user has a zero balance.
	GetBalance(ctx context.Context, userID UserID) (Balance, error)
	ListTransactions(ctx context.Context, userID UserID, limit int, offset int) ([]Transaction, error)
}
