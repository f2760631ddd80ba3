package redeem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

// GachaStatus summarizes whether a user can play.
type GachaStatus struct {
	Cost           ledger.Points
	AvailableCodes int64
	Balance        ledger.Points
	CanPlay        bool
}

// GachaResult is the code allocated by a successful play. The reward is a preview:
// the user redeems the code separately to receive it.
type GachaResult struct {
	CodeID           string
	Code             string
	Reward           Reward
	Hint             string
	Cost             ledger.Points
	RemainingBalance ledger.Points
}

// Gacha hands a random claimable code to a user for an entry fee.
type Gacha struct {
	store       Store
	ledger      *ledger.Service
	cost        ledger.PositivePoints
	nowFn       func() time.Time
	randomIndex func(n int) int
	logger      OperationLogger
}

// NewGacha wires a Gacha. A zero cost falls back to the default entry fee.
func NewGacha(store Store, ledgerService *ledger.Service, cost ledger.PositivePoints, now func() time.Time, options ...Option) (*Gacha, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if cost <= 0 {
		cost = defaultGachaCost
	}
	resolved := applyOptions(options)
	return &Gacha{
		store:       store,
		ledger:      ledgerService,
		cost:        cost,
		nowFn:       now,
		randomIndex: resolved.randomIndex,
		logger:      resolved.logger,
	}, nil
}

// Status reports the entry fee, the number of claimable codes and the user's balance.
func (gacha *Gacha) Status(ctx context.Context, userID ledger.UserID) (GachaStatus, error) {
	available, err := gacha.store.CountClaimableCodes(ctx, gacha.nowFn())
	if err != nil {
		return GachaStatus{}, err
	}
	balance, err := gacha.ledger.Balance(ctx, userID)
	if err != nil {
		return GachaStatus{}, err
	}
	cost := gacha.cost.ToPoints()
	return GachaStatus{
		Cost:           cost,
		AvailableCodes: available,
		Balance:        balance.Balance,
		CanPlay:        balance.Balance >= cost && available > 0,
	}, nil
}

// Play claims one random code for userID and debits the entry fee. The claim and the debit
// commit together: on any error neither is kept.
func (gacha *Gacha) Play(ctx context.Context, userID ledger.UserID) (GachaResult, error) {
	result, err := gacha.play(ctx, userID)
	emit(ctx, gacha.logger, OperationLog{
		Operation:  operationGachaPlay,
		UserID:     userID,
		CodeID:     result.CodeID,
		Code:       result.Code,
		RewardKind: result.Reward.Kind(),
		Error:      err,
	})
	return result, err
}

func (gacha *Gacha) play(ctx context.Context, userID ledger.UserID) (GachaResult, error) {
	// fail fast only; the debit below is the authoritative check
	balance, err := gacha.ledger.Balance(ctx, userID)
	if err != nil {
		return GachaResult{}, fmt.Errorf("%w: %w", ErrGachaFailed, err)
	}
	if balance.Balance < gacha.cost.ToPoints() {
		return GachaResult{}, fmt.Errorf("%w: need %d, have %d", ledger.ErrInsufficientBalance, gacha.cost, balance.Balance)
	}

	var (
		result      GachaResult
		boundLedger *ledger.Service
	)
	err = gacha.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		boundLedger = gacha.ledger.Bind(transactionStore.Ledger())
		code, err := gacha.claimRandom(ctx, transactionStore, userID)
		if err != nil {
			return err
		}
		reference, err := ledger.NewReference(referenceTypeCode, code.ID)
		if err != nil {
			return err
		}
		updated, err := boundLedger.Debit(ctx, userID, gacha.cost, ledger.ReasonGachaSpend, reference, "gacha draw "+code.Code)
		if err != nil {
			return err
		}
		result = GachaResult{
			CodeID:           code.ID,
			Code:             code.Code,
			Reward:           code.Reward,
			Hint:             code.Hint,
			Cost:             gacha.cost.ToPoints(),
			RemainingBalance: updated.Balance,
		}
		return nil
	})
	boundLedger.Settle(ctx, err)
	if err == nil {
		return result, nil
	}
	for _, expected := range []error{ErrNoneAvailable, ErrLostRace, ledger.ErrInsufficientBalance} {
		if errors.Is(err, expected) {
			return GachaResult{}, err
		}
	}
	return GachaResult{}, fmt.Errorf("%w: %w", ErrGachaFailed, err)
}

// claimRandom re-samples the claimable set on every attempt since the previous candidate
// may have been taken.
func (gacha *Gacha) claimRandom(ctx context.Context, transactionStore Store, userID ledger.UserID) (Code, error) {
	for attempt := 0; attempt < gachaMaxAttempts; attempt++ {
		now := gacha.nowFn()
		candidates, err := transactionStore.ListClaimableCodes(ctx, now)
		if err != nil {
			return Code{}, err
		}
		if len(candidates) == 0 {
			return Code{}, ErrNoneAvailable
		}
		candidate := candidates[gacha.randomIndex(len(candidates))]
		claimed, err := transactionStore.ClaimCode(ctx, candidate.ID, userID, now)
		if err != nil {
			return Code{}, err
		}
		if claimed {
			candidate.Status = CodeStatusClaimed
			candidate.ClaimedBy = userID.String()
			candidate.ClaimedAt = &now
			return candidate, nil
		}
	}
	return Code{}, ErrLostRace
}
