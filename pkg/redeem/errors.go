package redeem

import (
	"errors"
	"fmt"
)

// Business rejections returned by the claim protocol, the issuer and the gacha allocator.
var (
	ErrCodeNotFound       = errors.New("redemption code not found")
	ErrCodeAlreadyClaimed = errors.New("redemption code already claimed")
	ErrCodeDisabled       = errors.New("redemption code disabled")
	ErrCodeExpired        = errors.New("redemption code expired")
	ErrCodeClaimed        = errors.New("claimed codes cannot be changed")
	ErrCodeExists         = errors.New("redemption code already exists")
	ErrDuplicateRecord    = errors.New("redemption record already exists")
	ErrNoneAvailable      = errors.New("no codes available")
	ErrLostRace           = errors.New("lost the race for a code, try again")
	ErrIssuanceFailed     = errors.New("reward issuance failed")
	ErrGachaFailed        = errors.New("gacha draw failed, try again")

	ErrInvalidCode          = errors.New("invalid redemption code")
	ErrInvalidReward        = errors.New("invalid reward")
	ErrInvalidCodeStatus    = errors.New("invalid code status")
	ErrInvalidBadge         = errors.New("invalid badge definition")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// IssuanceError reports a reward application failure after the code was already claimed.
// It matches ErrIssuanceFailed and unwraps to the underlying cause.
type IssuanceError struct {
	CodeID string
	UserID string
	err    error
}

func (issuanceError *IssuanceError) Error() string {
	return fmt.Sprintf("%v: code %s user %s: %v", ErrIssuanceFailed, issuanceError.CodeID, issuanceError.UserID, issuanceError.err)
}

func (issuanceError *IssuanceError) Unwrap() []error {
	return []error{ErrIssuanceFailed, issuanceError.err}
}
