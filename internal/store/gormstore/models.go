package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserBalance mirrors the user_balances table. Rows are created on first mutation.
type UserBalance struct {
	UserID      string    `gorm:"primaryKey;size:191"`
	Balance     int64     `gorm:"not null"`
	TotalEarned int64     `gorm:"not null"`
	TotalSpent  int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (UserBalance) TableName() string { return "user_balances" }

// PointsTransaction mirrors the points_transactions table.
type PointsTransaction struct {
	TransactionID string    `gorm:"type:uuid;primaryKey"`
	UserID        string    `gorm:"size:191;not null;index:idx_points_tx_user_created,priority:1"`
	Amount        int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	Reason        string    `gorm:"size:64;not null"`
	RefType       *string   `gorm:"size:64"`
	RefID         *string   `gorm:"size:191"`
	Description   string    `gorm:"size:500"`
	CreatedAt     time.Time `gorm:"not null;index:idx_points_tx_user_created,priority:2"`
}

func (PointsTransaction) TableName() string { return "points_transactions" }

func (transaction *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// RedemptionCode mirrors the redemption_codes table.
type RedemptionCode struct {
	CodeID      string         `gorm:"type:uuid;primaryKey"`
	Code        string         `gorm:"size:64;not null;uniqueIndex:uniq_redemption_codes_code"`
	RewardType  string         `gorm:"size:16;not null"`
	RewardValue datatypes.JSON `gorm:"not null"`
	Status      string         `gorm:"size:16;not null;index:idx_redemption_codes_status"`
	Description string         `gorm:"size:500"`
	Hint        string         `gorm:"size:255"`
	ExpiresAt   *time.Time
	ClaimedBy   *string `gorm:"size:191;index:idx_redemption_codes_claimed_by"`
	ClaimedAt   *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (RedemptionCode) TableName() string { return "redemption_codes" }

func (code *RedemptionCode) BeforeCreate(tx *gorm.DB) error {
	if code.CodeID == "" {
		code.CodeID = uuid.NewString()
	}
	return nil
}

// clientMetadata is the JSON document stored with each redemption record.
type clientMetadata struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// RedemptionRecord mirrors the append-only redemption_records table. The unique
// (code_id, user_id) index is the idempotency witness for issuance.
type RedemptionRecord struct {
	RecordID    string                               `gorm:"type:uuid;primaryKey"`
	CodeID      string                               `gorm:"type:uuid;not null;uniqueIndex:uniq_redemption_records_code_user,priority:1"`
	UserID      string                               `gorm:"size:191;not null;uniqueIndex:uniq_redemption_records_code_user,priority:2;index:idx_redemption_records_user_created,priority:1"`
	RewardType  string                               `gorm:"size:16;not null"`
	RewardValue datatypes.JSON                       `gorm:"not null"`
	Client      datatypes.JSONType[clientMetadata]   `gorm:"column:client_info"`
	CreatedAt   time.Time                            `gorm:"not null;index:idx_redemption_records_user_created,priority:2"`
}

func (RedemptionRecord) TableName() string { return "redemption_records" }

func (record *RedemptionRecord) BeforeCreate(tx *gorm.DB) error {
	if record.RecordID == "" {
		record.RecordID = uuid.NewString()
	}
	return nil
}

// UserItem mirrors the user_items inventory table.
type UserItem struct {
	UserID    string    `gorm:"primaryKey;size:191"`
	ItemType  string    `gorm:"primaryKey;size:64"`
	Quantity  int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserItem) TableName() string { return "user_items" }

// AchievementDefinition mirrors the achievement_definitions table.
type AchievementDefinition struct {
	AchievementKey string `gorm:"primaryKey;size:64"`
	Name           string `gorm:"size:128;not null"`
	Points         int64  `gorm:"not null"`
	TargetValue    int64  `gorm:"not null"`
}

func (AchievementDefinition) TableName() string { return "achievement_definitions" }

// UserAchievement mirrors the user_achievements table.
type UserAchievement struct {
	UserID         string `gorm:"primaryKey;size:191"`
	AchievementKey string `gorm:"primaryKey;size:64"`
	Status         string `gorm:"size:16;not null"`
	ProgressValue  int64  `gorm:"not null"`
	UnlockedAt     *time.Time
	UpdatedAt      time.Time `gorm:"not null"`
}

func (UserAchievement) TableName() string { return "user_achievements" }

// Models lists every table owned by the store, in migration order.
func Models() []interface{} {
	return []interface{}{
		&UserBalance{},
		&PointsTransaction{},
		&RedemptionCode{},
		&RedemptionRecord{},
		&UserItem{},
		&AchievementDefinition{},
		&UserAchievement{},
	}
}
