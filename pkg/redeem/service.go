package redeem

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

// Service runs the claim protocol for direct redemption and the administrative transitions.
type Service struct {
	store  Store
	issuer *Issuer
	nowFn  func() time.Time
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, issuer *Issuer, now func() time.Time, options ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if issuer == nil {
		return nil, fmt.Errorf("%w: issuer dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	resolved := applyOptions(options)
	return &Service{store: store, issuer: issuer, nowFn: now, logger: resolved.logger}, nil
}

// Redeem claims rawCode for userID and issues its reward.
//
// A code already claimed by the same user resumes or replays issuance without touching the
// code again. The claim is committed before issuance, so an issuance failure leaves the code
// claimed and a later Redeem by the same user retries it safely.
func (service *Service) Redeem(ctx context.Context, rawCode string, userID ledger.UserID, client ClientInfo) (IssuedReward, error) {
	var code Code
	issued, err := func() (IssuedReward, error) {
		normalized, err := NormalizeCode(rawCode)
		if err != nil {
			return IssuedReward{}, err
		}
		code, err = service.store.GetCode(ctx, normalized)
		if err != nil {
			return IssuedReward{}, err
		}
		now := service.nowFn()
		if code.Status == CodeStatusClaimed {
			if code.ClaimedBy != userID.String() {
				return IssuedReward{}, ErrCodeAlreadyClaimed
			}
			return service.issuer.Issue(ctx, userID, code, client)
		}
		if code.PastExpiry(now) {
			return IssuedReward{}, ErrCodeExpired
		}
		switch code.Status {
		case CodeStatusDisabled:
			return IssuedReward{}, ErrCodeDisabled
		case CodeStatusExpired:
			return IssuedReward{}, ErrCodeExpired
		}
		claimed, err := service.store.ClaimCode(ctx, code.ID, userID, now)
		if err != nil {
			return IssuedReward{}, err
		}
		if !claimed {
			return service.afterLostClaim(ctx, code.Code, userID, client)
		}
		code.Status = CodeStatusClaimed
		code.ClaimedBy = userID.String()
		code.ClaimedAt = &now
		return service.issuer.Issue(ctx, userID, code, client)
	}()
	entry := OperationLog{
		Operation:  operationRedeem,
		UserID:     userID,
		CodeID:     code.ID,
		Code:       code.Code,
		RewardKind: code.Reward.Kind(),
		Error:      err,
	}
	if err == nil && issued.Replayed {
		entry.Status = operationStatusReplayed
	}
	emit(ctx, service.logger, entry)
	return issued, err
}

// afterLostClaim re-reads a code whose conditional claim matched no row. A concurrent
// request from the same user that won the claim leads to the idempotent issuance path.
func (service *Service) afterLostClaim(ctx context.Context, normalized string, userID ledger.UserID, client ClientInfo) (IssuedReward, error) {
	current, err := service.store.GetCode(ctx, normalized)
	if err != nil {
		return IssuedReward{}, err
	}
	if current.Status == CodeStatusClaimed && current.ClaimedBy == userID.String() {
		return service.issuer.Issue(ctx, userID, current, client)
	}
	return IssuedReward{}, ErrCodeAlreadyClaimed
}

// CreateCode stores a new active code.
func (service *Service) CreateCode(ctx context.Context, draft CodeDraft) (Code, error) {
	normalized, err := NormalizeCode(draft.Code)
	if err == nil && draft.Reward.IsZero() {
		err = fmt.Errorf("%w: reward is required", ErrInvalidReward)
	}
	var created Code
	if err == nil {
		draft.Code = normalized
		created, err = service.store.CreateCode(ctx, draft, service.nowFn())
	}
	emit(ctx, service.logger, OperationLog{
		Operation:  operationCreateCode,
		CodeID:     created.ID,
		Code:       normalized,
		RewardKind: draft.Reward.Kind(),
		Error:      err,
	})
	return created, err
}

// Disable moves an unclaimed code to disabled. Claimed codes are immutable.
func (service *Service) Disable(ctx context.Context, rawCode string) (Code, error) {
	code, err := func() (Code, error) {
		normalized, err := NormalizeCode(rawCode)
		if err != nil {
			return Code{}, err
		}
		code, err := service.store.GetCode(ctx, normalized)
		if err != nil {
			return Code{}, err
		}
		if code.Status == CodeStatusClaimed {
			return code, ErrCodeClaimed
		}
		disabled, err := service.store.DisableCode(ctx, code.ID)
		if err != nil {
			return code, err
		}
		if !disabled {
			return code, ErrCodeClaimed
		}
		code.Status = CodeStatusDisabled
		return code, nil
	}()
	emit(ctx, service.logger, OperationLog{
		Operation: operationDisableCode,
		CodeID:    code.ID,
		Code:      code.Code,
		Error:     err,
	})
	if err != nil {
		return Code{}, err
	}
	return code, nil
}

// ExpireOverdue marks active codes past their expiry as expired and returns how many changed.
func (service *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	expired, err := service.store.ExpireCodes(ctx, service.nowFn())
	emit(ctx, service.logger, OperationLog{
		Operation: operationExpireCodes,
		Detail:    strconv.FormatInt(expired, 10),
		Error:     err,
	})
	return expired, err
}

// DefineBadge creates or replaces a badge definition used by badge rewards.
func (service *Service) DefineBadge(ctx context.Context, definition AchievementDefinition) error {
	if err := definition.Validate(); err != nil {
		return err
	}
	return service.store.UpsertAchievementDefinition(ctx, definition)
}

// Stats counts codes per status.
func (service *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := service.store.CountCodesByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Active:   counts[CodeStatusActive],
		Claimed:  counts[CodeStatusClaimed],
		Disabled: counts[CodeStatusDisabled],
		Expired:  counts[CodeStatusExpired],
	}
	stats.Total = stats.Active + stats.Claimed + stats.Disabled + stats.Expired
	return stats, nil
}

// History lists a user's redemption records, newest first.
func (service *Service) History(ctx context.Context, userID ledger.UserID, limit int, offset int) ([]Record, error) {
	return service.store.ListRecords(ctx, userID, normalizePageLimit(limit), max(offset, 0))
}

// Inventory lists a user's item holdings.
func (service *Service) Inventory(ctx context.Context, userID ledger.UserID) ([]InventoryItem, error) {
	return service.store.ListInventory(ctx, userID)
}
