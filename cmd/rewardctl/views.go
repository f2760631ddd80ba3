package main

import (
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/quota"
	"github.com/MarkoPoloResearchLab/rewards/pkg/redeem"
)

type rewardView struct {
	Kind     string `json:"kind"`
	Preview  string `json:"preview"`
	Amount   int64  `json:"amount,omitempty"`
	ItemType string `json:"item_type,omitempty"`
	BadgeKey string `json:"badge_key,omitempty"`
	PoolRef  string `json:"pool_ref,omitempty"`
}

func newRewardView(reward redeem.Reward) rewardView {
	return rewardView{
		Kind:     reward.Kind().String(),
		Preview:  reward.Preview(),
		Amount:   reward.Amount(),
		ItemType: reward.ItemType(),
		BadgeKey: reward.BadgeKey(),
		PoolRef:  reward.PoolRef(),
	}
}

type codeView struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	Reward      rewardView `json:"reward"`
	Description string     `json:"description,omitempty"`
	Hint        string     `json:"hint,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
}

func newCodeView(code redeem.Code) codeView {
	return codeView{
		ID:          code.ID,
		Code:        code.Code,
		Status:      code.Status.String(),
		Reward:      newRewardView(code.Reward),
		Description: code.Description,
		Hint:        code.Hint,
		ExpiresAt:   code.ExpiresAt,
		ClaimedBy:   code.ClaimedBy,
	}
}

type issuedView struct {
	RecordID      string     `json:"record_id"`
	Code          string     `json:"code"`
	Reward        rewardView `json:"reward"`
	Hint          string     `json:"hint,omitempty"`
	PointsGranted int64      `json:"points_granted"`
	Replayed      bool       `json:"replayed"`
}

type gachaView struct {
	Code             string     `json:"code"`
	Reward           rewardView `json:"reward"`
	Hint             string     `json:"hint,omitempty"`
	Cost             int64      `json:"cost"`
	RemainingBalance int64      `json:"remaining_balance"`
}

type recordView struct {
	ID        string     `json:"id"`
	CodeID    string     `json:"code_id"`
	Reward    rewardView `json:"reward"`
	CreatedAt time.Time  `json:"created_at"`
}

type quotaView struct {
	Key   string      `json:"key"`
	Quota *quota.Info `json:"quota"`
}
