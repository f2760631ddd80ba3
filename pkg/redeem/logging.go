package redeem

import (
	"context"
	"math/rand"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

// OperationLogger receives a best-effort record of every claim, issuance and admin change.
// It has no error return: a failing sink cannot change an operation's outcome.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one redemption-side operation.
type OperationLog struct {
	Operation  string
	UserID     ledger.UserID
	CodeID     string
	Code       string
	RewardKind RewardKind
	Detail     string
	Status     string
	Error      error
}

// Option configures Service, Issuer and Gacha.
type Option func(*settings)

type settings struct {
	logger      OperationLogger
	randomIndex func(n int) int
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(current *settings) {
		current.logger = logger
	}
}

// WithRandomIndex replaces the uniform picker used by the gacha allocator.
func WithRandomIndex(randomIndex func(n int) int) Option {
	return func(current *settings) {
		if randomIndex != nil {
			current.randomIndex = randomIndex
		}
	}
}

func applyOptions(options []Option) settings {
	resolved := settings{randomIndex: rand.Intn}
	for _, option := range options {
		if option != nil {
			option(&resolved)
		}
	}
	return resolved
}

func emit(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
