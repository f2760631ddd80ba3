package ledger

import (
	"context"
	"fmt"
)

// Service contains the domain logic over a Store.
type Service struct {
	store   Store
	nowFn   func() int64
	logger  OperationLogger
	pending *pendingLog
}

type pendingLog struct {
	entries []OperationLog
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Bind returns a copy of the service that runs against txStore, so callers can fold
// balance mutations into a transaction they already hold. The copy holds its log entries
// until Settle is called with the outcome of the caller's transaction.
func (service *Service) Bind(txStore Store) *Service {
	bound := *service
	bound.store = txStore
	bound.pending = &pendingLog{}
	return &bound
}

// Settle forwards the entries held by a bound service. A non-nil cause means the caller's
// transaction rolled back, so entries that succeeded inside it are reported as rolled back.
// Settle is a no-op on an unbound service and on a second call.
func (service *Service) Settle(ctx context.Context, cause error) {
	if service == nil || service.pending == nil {
		return
	}
	entries := service.pending.entries
	service.pending.entries = nil
	for _, entry := range entries {
		if cause != nil && entry.Error == nil {
			entry.Status = operationStatusRolledBack
			entry.BalanceAfter = 0
			entry.Error = cause
		}
		service.forward(ctx, entry)
	}
}

// Credit adds amount to the user's balance and appends one transaction.
func (service *Service) Credit(ctx context.Context, userID UserID, amount PositivePoints, reason Reason, reference Reference, description string) (Balance, error) {
	return service.apply(ctx, operationCredit, userID, amount.ToPoints(), reason, reference, description)
}

// Debit subtracts amount and appends one transaction. The sufficiency check and the
// mutation are a single conditional update, so concurrent debits cannot overdraw.
func (service *Service) Debit(ctx context.Context, userID UserID, amount PositivePoints, reason Reason, reference Reference, description string) (Balance, error) {
	return service.apply(ctx, operationDebit, userID, amount.Negated(), reason, reference, description)
}

// Balance reads the current aggregate without creating rows.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	return service.store.GetBalance(ctx, userID)
}

// ListTransactions pages through a user's history, newest first.
func (service *Service) ListTransactions(ctx context.Context, userID UserID, limit int, offset int) ([]Transaction, error) {
	return service.store.ListTransactions(ctx, userID, normalizePageLimit(limit), max(offset, 0))
}

func (service *Service) apply(ctx context.Context, operation string, userID UserID, delta Points, reason Reason, reference Reference, description string) (Balance, error) {
	var updated Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		balance, err := transactionStore.ApplyDelta(ctx, userID, delta)
		if err != nil {
			return err
		}
		if err := balance.Validate(); err != nil {
			return WrapError(errorOperationService, errorSubjectBalance, errorCodeNegative, err)
		}
		transaction := Transaction{
			UserID:         userID.String(),
			Amount:         delta,
			BalanceAfter:   balance.Balance,
			Reason:         reason.String(),
			RefType:        reference.Type(),
			RefID:          reference.ID(),
			Description:    description,
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		updated = balance
		return nil
	})
	if operationError != nil {
		updated = Balance{}
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operation,
		UserID:       userID,
		Amount:       delta,
		Reason:       reason,
		Reference:    reference,
		BalanceAfter: updated.Balance,
		Error:        operationError,
	})
	return updated, operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if service.pending != nil {
		service.pending.entries = append(service.pending.entries, entry)
		return
	}
	service.forward(ctx, entry)
}

func (service *Service) forward(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func normalizePageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
