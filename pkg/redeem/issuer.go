package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

// Issuer applies a code's reward at most once per (code, user).
type Issuer struct {
	store  Store
	ledger *ledger.Service
	nowFn  func() time.Time
	logger OperationLogger
}

// NewIssuer wires an Issuer.
func NewIssuer(store Store, ledgerService *ledger.Service, now func() time.Time, options ...Option) (*Issuer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(options)
	return &Issuer{store: store, ledger: ledgerService, nowFn: now, logger: resolved.logger}, nil
}

// Issue applies code.Reward to userID. An existing record for the pair is replayed with no
// side effects. Reward application and the record insert commit together; on failure
// nothing is kept and the error matches ErrIssuanceFailed.
func (issuer *Issuer) Issue(ctx context.Context, userID ledger.UserID, code Code, client ClientInfo) (IssuedReward, error) {
	var (
		issued       IssuedReward
		badgeSkipped bool
		boundLedger  *ledger.Service
	)
	transactionError := issuer.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		boundLedger = issuer.ledger.Bind(transactionStore.Ledger())
		record, found, err := transactionStore.FindRecord(ctx, code.ID, userID)
		if err != nil {
			return err
		}
		if found {
			issued = replayedReward(record, code)
			return nil
		}
		issuedAt := issuer.nowFn()
		pointsGranted, skipped, err := issuer.apply(ctx, transactionStore, boundLedger, userID, code)
		if err != nil {
			return err
		}
		record, err = transactionStore.InsertRecord(ctx, Record{
			CodeID:    code.ID,
			UserID:    userID.String(),
			Reward:    code.Reward,
			Client:    client,
			CreatedAt: issuedAt,
		})
		if err != nil {
			return err
		}
		badgeSkipped = skipped
		issued = IssuedReward{
			RecordID:      record.ID,
			CodeID:        code.ID,
			Code:          code.Code,
			Reward:        record.Reward,
			Hint:          code.Hint,
			PointsGranted: pointsGranted,
			IssuedAt:      record.CreatedAt,
		}
		return nil
	})
	// ledger entries reach the audit log only with the outcome of the enclosing transaction
	boundLedger.Settle(ctx, transactionError)
	if errors.Is(transactionError, ErrDuplicateRecord) {
		// a concurrent issuance for the same pair committed first
		record, found, err := issuer.store.FindRecord(ctx, code.ID, userID)
		if err == nil && found {
			issued, transactionError = replayedReward(record, code), nil
		}
	}
	if transactionError != nil {
		issued = IssuedReward{}
		transactionError = &IssuanceError{CodeID: code.ID, UserID: userID.String(), err: transactionError}
	}

	entry := OperationLog{
		Operation:  operationIssue,
		UserID:     userID,
		CodeID:     code.ID,
		Code:       code.Code,
		RewardKind: code.Reward.Kind(),
		Error:      transactionError,
	}
	switch {
	case transactionError != nil:
	case issued.Replayed:
		entry.Status = operationStatusReplayed
	case badgeSkipped:
		entry.Status = operationStatusSkipped
		entry.Detail = "badge definition missing: " + code.Reward.BadgeKey()
	}
	emit(ctx, issuer.logger, entry)
	return issued, transactionError
}

func (issuer *Issuer) apply(ctx context.Context, transactionStore Store, boundLedger *ledger.Service, userID ledger.UserID, code Code) (ledger.Points, bool, error) {
	reward := code.Reward
	switch reward.Kind() {
	case RewardPoints:
		granted, err := issuer.credit(ctx, boundLedger, userID, reward.Amount(), ledger.ReasonCodeRedeem, referenceTypeCode, code, "redeem code "+code.Code)
		return granted, false, err
	case RewardItem:
		return 0, false, transactionStore.IncrementInventory(ctx, userID, reward.ItemType(), reward.Amount())
	case RewardBadge:
		definition, found, err := transactionStore.GetAchievementDefinition(ctx, reward.BadgeKey())
		if err != nil {
			return 0, false, err
		}
		if !found {
			return 0, true, nil
		}
		if err := transactionStore.UnlockAchievement(ctx, userID, definition, issuer.nowFn()); err != nil {
			return 0, false, err
		}
		// badge points are granted on every issuance, not only on first unlock
		if definition.Points <= 0 {
			return 0, false, nil
		}
		granted, err := issuer.credit(ctx, boundLedger, userID, definition.Points, ledger.ReasonCodeBadgeReward, referenceTypeCodeBadge, code, "badge reward "+reward.BadgeName())
		return granted, false, err
	case RewardExternalKey:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: unsupported kind %q", ErrInvalidReward, reward.Kind())
	}
}

func (issuer *Issuer) credit(ctx context.Context, boundLedger *ledger.Service, userID ledger.UserID, rawAmount int64, reason ledger.Reason, referenceType string, code Code, description string) (ledger.Points, error) {
	amount, err := ledger.NewPositivePoints(rawAmount)
	if err != nil {
		return 0, err
	}
	reference, err := ledger.NewReference(referenceType, code.ID)
	if err != nil {
		return 0, err
	}
	if _, err := boundLedger.Credit(ctx, userID, amount, reason, reference, description); err != nil {
		return 0, err
	}
	return amount.ToPoints(), nil
}

func replayedReward(record Record, code Code) IssuedReward {
	return IssuedReward{
		RecordID: record.ID,
		CodeID:   record.CodeID,
		Code:     code.Code,
		Reward:   record.Reward,
		Hint:     code.Hint,
		Replayed: true,
		IssuedAt: record.CreatedAt,
	}
}
