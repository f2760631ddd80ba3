package redeem

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RewardKind tags the reward variant stored with a code.
type RewardKind string

const (
	RewardPoints      RewardKind = "points"
	RewardItem        RewardKind = "item"
	RewardBadge       RewardKind = "badge"
	RewardExternalKey RewardKind = "api_key"
)

// ParseRewardKind validates a stored reward tag.
func ParseRewardKind(raw string) (RewardKind, error) {
	switch kind := RewardKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case RewardPoints, RewardItem, RewardBadge, RewardExternalKey:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidReward, raw)
	}
}

func (kind RewardKind) String() string {
	return string(kind)
}

// Reward is the tagged union attached to a code: points, an inventory item, a badge or an
// external key from a pool. Only the fields of the active variant are set.
type Reward struct {
	kind      RewardKind
	amount    int64
	itemType  string
	badgeKey  string
	badgeName string
	poolRef   string
}

// NewPointsReward grants amount points.
func NewPointsReward(amount int64) (Reward, error) {
	if amount <= 0 {
		return Reward{}, fmt.Errorf("%w: points amount must be greater than zero", ErrInvalidReward)
	}
	return Reward{kind: RewardPoints, amount: amount}, nil
}

// NewItemReward grants amount units of itemType.
func NewItemReward(itemType string, amount int64) (Reward, error) {
	normalized := strings.TrimSpace(itemType)
	if normalized == "" {
		return Reward{}, fmt.Errorf("%w: item type is required", ErrInvalidReward)
	}
	if amount <= 0 {
		return Reward{}, fmt.Errorf("%w: item amount must be greater than zero", ErrInvalidReward)
	}
	return Reward{kind: RewardItem, itemType: normalized, amount: amount}, nil
}

// NewBadgeReward unlocks the achievement keyed by badgeKey.
func NewBadgeReward(badgeKey string, badgeName string) (Reward, error) {
	normalizedKey := strings.TrimSpace(badgeKey)
	if normalizedKey == "" {
		return Reward{}, fmt.Errorf("%w: badge key is required", ErrInvalidReward)
	}
	normalizedName := strings.TrimSpace(badgeName)
	if normalizedName == "" {
		normalizedName = normalizedKey
	}
	return Reward{kind: RewardBadge, badgeKey: normalizedKey, badgeName: normalizedName}, nil
}

// NewExternalKeyReward records the intent to hand out a key from poolRef.
func NewExternalKeyReward(poolRef string) (Reward, error) {
	normalized := strings.TrimSpace(poolRef)
	if normalized == "" {
		return Reward{}, fmt.Errorf("%w: pool reference is required", ErrInvalidReward)
	}
	return Reward{kind: RewardExternalKey, poolRef: normalized}, nil
}

// Kind returns the active variant.
func (reward Reward) Kind() RewardKind {
	return reward.kind
}

// Amount is the points or item quantity.
func (reward Reward) Amount() int64 {
	return reward.amount
}

// ItemType is set for item rewards.
func (reward Reward) ItemType() string {
	return reward.itemType
}

// BadgeKey is set for badge rewards.
func (reward Reward) BadgeKey() string {
	return reward.badgeKey
}

// BadgeName is set for badge rewards.
func (reward Reward) BadgeName() string {
	return reward.badgeName
}

// PoolRef is set for external key rewards.
func (reward Reward) PoolRef() string {
	return reward.poolRef
}

// IsZero reports whether no variant was set.
func (reward Reward) IsZero() bool {
	return reward.kind == ""
}

// Preview is a short human readable description.
func (reward Reward) Preview() string {
	switch reward.kind {
	case RewardPoints:
		return fmt.Sprintf("%d points", reward.amount)
	case RewardItem:
		return fmt.Sprintf("%d x %s", reward.amount, reward.itemType)
	case RewardBadge:
		return "badge " + reward.badgeName
	case RewardExternalKey:
		return "key from " + reward.poolRef
	default:
		return ""
	}
}

type pointsValue struct {
	Amount int64 `json:"amount"`
}

type itemValue struct {
	ItemType string `json:"item_type"`
	Amount   *int64 `json:"amount,omitempty"`
}

type badgeValue struct {
	BadgeKey  string `json:"badge_key"`
	BadgeName string `json:"badge_name,omitempty"`
}

type externalKeyValue struct {
	PoolRef string `json:"pool_ref"`
}

// MarshalValue encodes the variant payload stored next to the kind tag.
func (reward Reward) MarshalValue() ([]byte, error) {
	switch reward.kind {
	case RewardPoints:
		return json.Marshal(pointsValue{Amount: reward.amount})
	case RewardItem:
		amount := reward.amount
		return json.Marshal(itemValue{ItemType: reward.itemType, Amount: &amount})
	case RewardBadge:
		return json.Marshal(badgeValue{BadgeKey: reward.badgeKey, BadgeName: reward.badgeName})
	case RewardExternalKey:
		return json.Marshal(externalKeyValue{PoolRef: reward.poolRef})
	default:
		return nil, fmt.Errorf("%w: empty reward", ErrInvalidReward)
	}
}

// ParseReward decodes a kind tag and its JSON payload. Item rewards without an amount grant one unit.
func ParseReward(rawKind string, value []byte) (Reward, error) {
	kind, err := ParseRewardKind(rawKind)
	if err != nil {
		return Reward{}, err
	}
	switch kind {
	case RewardPoints:
		var decoded pointsValue
		if err := json.Unmarshal(value, &decoded); err != nil {
			return Reward{}, fmt.Errorf("%w: %v", ErrInvalidReward, err)
		}
		return NewPointsReward(decoded.Amount)
	case RewardItem:
		var decoded itemValue
		if err := json.Unmarshal(value, &decoded); err != nil {
			return Reward{}, fmt.Errorf("%w: %v", ErrInvalidReward, err)
		}
		amount := int64(defaultItemAmount)
		if decoded.Amount != nil {
			amount = *decoded.Amount
		}
		return NewItemReward(decoded.ItemType, amount)
	case RewardBadge:
		var decoded badgeValue
		if err := json.Unmarshal(value, &decoded); err != nil {
			return Reward{}, fmt.Errorf("%w: %v", ErrInvalidReward, err)
		}
		return NewBadgeReward(decoded.BadgeKey, decoded.BadgeName)
	default:
		var decoded externalKeyValue
		if err := json.Unmarshal(value, &decoded); err != nil {
			return Reward{}, fmt.Errorf("%w: %v", ErrInvalidReward, err)
		}
		return NewExternalKeyReward(decoded.PoolRef)
	}
}
