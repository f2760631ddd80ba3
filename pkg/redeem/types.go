package redeem

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
)

// CodeStatus is the lifecycle state of a redemption code.
type CodeStatus string

const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusClaimed  CodeStatus = "claimed"
	CodeStatusDisabled CodeStatus = "disabled"
	CodeStatusExpired  CodeStatus = "expired"
)

// ParseCodeStatus validates a stored status.
func ParseCodeStatus(raw string) (CodeStatus, error) {
	switch status := CodeStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case CodeStatusActive, CodeStatusClaimed, CodeStatusDisabled, CodeStatusExpired:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCodeStatus, raw)
	}
}

func (status CodeStatus) String() string {
	return string(status)
}

// NormalizeCode trims and upper-cases a code identifier.
func NormalizeCode(raw string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidCode)
	}
	return normalized, nil
}

// Code is a redemption code. ClaimedBy is set if and only if Status is claimed.
type Code struct {
	ID          string
	Code        string
	Reward      Reward
	Status      CodeStatus
	Description string
	Hint        string
	ExpiresAt   *time.Time
	ClaimedBy   string
	ClaimedAt   *time.Time
	CreatedAt   time.Time
}

// PastExpiry reports whether the code has an expiry at or before now.
func (code Code) PastExpiry(now time.Time) bool {
	return code.ExpiresAt != nil && !code.ExpiresAt.After(now)
}

// CodeDraft carries the administrative input for a new code.
type CodeDraft struct {
	Code        string
	Reward      Reward
	Description string
	Hint        string
	ExpiresAt   *time.Time
}

// ClientInfo is the caller metadata stored with a redemption record.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// NewClientInfo trims both fields and truncates the user agent.
func NewClientInfo(ipAddress string, userAgent string) ClientInfo {
	return ClientInfo{
		IPAddress: strings.TrimSpace(ipAddress),
		UserAgent: truncateRunes(strings.TrimSpace(userAgent), maxUserAgentLength),
	}
}

// Record is the append-only witness that a (code, user) pair was issued.
type Record struct {
	ID        string
	CodeID    string
	UserID    string
	Reward    Reward
	Client    ClientInfo
	CreatedAt time.Time
}

// IssuedReward is what a redemption hands back to the caller.
type IssuedReward struct {
	RecordID      string
	CodeID        string
	Code          string
	Reward        Reward
	Hint          string
	PointsGranted ledger.Points
	Replayed      bool
	IssuedAt      time.Time
}

// AchievementDefinition configures a badge.
type AchievementDefinition struct {
	Key         string
	Name        string
	Points      int64
	TargetValue int64
}

// Validate checks a badge definition before it is stored.
func (definition AchievementDefinition) Validate() error {
	if strings.TrimSpace(definition.Key) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidBadge)
	}
	if definition.Points < 0 || definition.TargetValue < 0 {
		return fmt.Errorf("%w: points and target must not be negative", ErrInvalidBadge)
	}
	return nil
}

// InventoryItem is one user's holding of an item type.
type InventoryItem struct {
	ItemType string
	Quantity int64
}

// Stats counts codes per status.
type Stats struct {
	Total    int64
	Active   int64
	Claimed  int64
	Disabled int64
	Expired  int64
}

// Store is the persistence contract for codes, records, inventory and achievements.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	// Ledger returns the points store sharing this store's connection or transaction.
	Ledger() ledger.Store

	CreateCode(ctx context.Context, draft CodeDraft, createdAt time.Time) (Code, error)
	GetCode(ctx context.Context, code string) (Code, error)
	ListClaimableCodes(ctx context.Context, at time.Time) ([]Code, error)
	CountClaimableCodes(ctx context.Context, at time.Time) (int64, error)
	// ClaimCode moves an active, unclaimed code to claimed in one conditional update.
	ClaimCode(ctx context.Context, codeID string, userID ledger.UserID, at time.Time) (bool, error)
	// DisableCode disables a code that has not been claimed.
	DisableCode(ctx context.Context, codeID string) (bool, error)
	ExpireCodes(ctx context.Context, at time.Time) (int64, error)
	CountCodesByStatus(ctx context.Context) (map[CodeStatus]int64, error)

	FindRecord(ctx context.Context, codeID string, userID ledger.UserID) (Record, bool, error)
	// InsertRecord returns ErrDuplicateRecord when (code, user) already has a record.
	InsertRecord(ctx context.Context, record Record) (Record, error)
	ListRecords(ctx context.Context, userID ledger.UserID, limit int, offset int) ([]Record, error)

	IncrementInventory(ctx context.Context, userID ledger.UserID, itemType string, amount int64) error
	ListInventory(ctx context.Context, userID ledger.UserID) ([]InventoryItem, error)

	UpsertAchievementDefinition(ctx context.Context, definition AchievementDefinition) error
	GetAchievementDefinition(ctx context.Context, key string) (AchievementDefinition, bool, error)
	UnlockAchievement(ctx context.Context, userID ledger.UserID, definition AchievementDefinition, at time.Time) error
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
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
