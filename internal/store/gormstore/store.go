package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	"github.com/MarkoPoloResearchLab/rewards/pkg/redeem"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const achievementStatusUnlocked = "unlocked"

// Store implements redeem.Store using GORM. Its Ledger shares the same connection or
// transaction, so claims, records and points commit together.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table owned by the store.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore redeem.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Ledger returns the points store bound to the same connection.
func (store *Store) Ledger() ledger.Store {
	return &LedgerStore{db: store.db}
}

func (store *Store) CreateCode(ctx context.Context, draft redeem.CodeDraft, createdAt time.Time) (redeem.Code, error) {
	value, err := draft.Reward.MarshalValue()
	if err != nil {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	row := RedemptionCode{
		Code:        draft.Code,
		RewardType:  draft.Reward.Kind().String(),
		RewardValue: datatypes.JSON(value),
		Status:      redeem.CodeStatusActive.String(),
		Description: draft.Description,
		Hint:        draft.Hint,
		ExpiresAt:   utcPointer(draft.ExpiresAt),
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   createdAt.UTC(),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeDuplicate, redeem.ErrCodeExists)
	}
	if err != nil {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeCreate, err)
	}
	return mapCode(row)
}

func (store *Store) GetCode(ctx context.Context, code string) (redeem.Code, error) {
	var row RedemptionCode
	err := store.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeGet, redeem.ErrCodeNotFound)
	}
	if err != nil {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeGet, err)
	}
	return mapCode(row)
}

func (store *Store) ListClaimableCodes(ctx context.Context, at time.Time) ([]redeem.Code, error) {
	var rows []RedemptionCode
	if err := store.claimable(ctx, at).Order("code ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCode, errorCodeList, err)
	}
	codes := make([]redeem.Code, 0, len(rows))
	for _, row := range rows {
		code, err := mapCode(row)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func (store *Store) CountClaimableCodes(ctx context.Context, at time.Time) (int64, error) {
	var count int64
	if err := store.claimable(ctx, at).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectCode, errorCodeCount, err)
	}
	return count, nil
}

func (store *Store) claimable(ctx context.Context, at time.Time) *gorm.DB {
	return store.db.WithContext(ctx).
		Model(&RedemptionCode{}).
		Where("status = ? AND claimed_by IS NULL", redeem.CodeStatusActive.String()).
		Where("(expires_at IS NULL OR expires_at > ?)", at.UTC())
}

// ClaimCode is the compare-and-swap on {status, claimant}.
func (store *Store) ClaimCode(ctx context.Context, codeID string, userID ledger.UserID, at time.Time) (bool, error) {
	claimedAt := at.UTC()
	result := store.db.WithContext(ctx).
		Model(&RedemptionCode{}).
		Where("code_id = ? AND status = ? AND claimed_by IS NULL", codeID, redeem.CodeStatusActive.String()).
		Updates(map[string]interface{}{
			"status":     redeem.CodeStatusClaimed.String(),
			"claimed_by": userID.String(),
			"claimed_at": claimedAt,
			"updated_at": claimedAt,
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectCode, errorCodeClaim, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) DisableCode(ctx context.Context, codeID string) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&RedemptionCode{}).
		Where("code_id = ? AND status <> ? AND claimed_by IS NULL", codeID, redeem.CodeStatusClaimed.String()).
		Updates(map[string]interface{}{
			"status":     redeem.CodeStatusDisabled.String(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectCode, errorCodeDisable, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) ExpireCodes(ctx context.Context, at time.Time) (int64, error) {
	result := store.db.WithContext(ctx).
		Model(&RedemptionCode{}).
		Where("status = ? AND claimed_by IS NULL", redeem.CodeStatusActive.String()).
		Where("expires_at IS NOT NULL AND expires_at <= ?", at.UTC()).
		Updates(map[string]interface{}{
			"status":     redeem.CodeStatusExpired.String(),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectCode, errorCodeExpire, result.Error)
	}
	return result.RowsAffected, nil
}

type statusCount struct {
	Status string
	Total  int64
}

func (store *Store) CountCodesByStatus(ctx context.Context) (map[redeem.CodeStatus]int64, error) {
	var rows []statusCount
	err := store.db.WithContext(ctx).
		Model(&RedemptionCode{}).
		Select("status, count(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectCode, errorCodeCount, err)
	}
	counts := make(map[redeem.CodeStatus]int64, len(rows))
	for _, row := range rows {
		status, err := redeem.ParseCodeStatus(row.Status)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
		}
		counts[status] = row.Total
	}
	return counts, nil
}

func (store *Store) FindRecord(ctx context.Context, codeID string, userID ledger.UserID) (redeem.Record, bool, error) {
	var row RedemptionRecord
	err := store.db.WithContext(ctx).
		Where("code_id = ? AND user_id = ?", codeID, userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return redeem.Record{}, false, nil
	}
	if err != nil {
		return redeem.Record{}, false, wrapStoreError(errorSubjectRecord, errorCodeGet, err)
	}
	record, err := mapRecord(row)
	if err != nil {
		return redeem.Record{}, false, err
	}
	return record, true, nil
}

func (store *Store) InsertRecord(ctx context.Context, record redeem.Record) (redeem.Record, error) {
	value, err := record.Reward.MarshalValue()
	if err != nil {
		return redeem.Record{}, wrapStoreError(errorSubjectRecord, errorCodeInvalid, err)
	}
	row := RedemptionRecord{
		CodeID:      record.CodeID,
		UserID:      record.UserID,
		RewardType:  record.Reward.Kind().String(),
		RewardValue: datatypes.JSON(value),
		Client: datatypes.NewJSONType(clientMetadata{
			IPAddress: record.Client.IPAddress,
			UserAgent: record.Client.UserAgent,
		}),
		CreatedAt: record.CreatedAt.UTC(),
	}
	err = store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return redeem.Record{}, wrapStoreError(errorSubjectRecord, errorCodeDuplicate, redeem.ErrDuplicateRecord)
	}
	if err != nil {
		return redeem.Record{}, wrapStoreError(errorSubjectRecord, errorCodeInsert, err)
	}
	return mapRecord(row)
}

func (store *Store) ListRecords(ctx context.Context, userID ledger.UserID, limit int, offset int) ([]redeem.Record, error) {
	var rows []RedemptionRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRecord, errorCodeList, err)
	}
	records := make([]redeem.Record, 0, len(rows))
	for _, row := range rows {
		record, err := mapRecord(row)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// IncrementInventory upserts the (user, item) row and adds amount in the same statement.
func (store *Store) IncrementInventory(ctx context.Context, userID ledger.UserID, itemType string, amount int64) error {
	row := UserItem{UserID: userID.String(), ItemType: itemType, Quantity: amount, UpdatedAt: time.Now().UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "item_type"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("user_items.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectInventory, errorCodeIncrement, err)
	}
	return nil
}

func (store *Store) ListInventory(ctx context.Context, userID ledger.UserID) ([]redeem.InventoryItem, error) {
	var rows []UserItem
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND quantity > 0", userID.String()).
		Order("item_type ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectInventory, errorCodeList, err)
	}
	items := make([]redeem.InventoryItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, redeem.InventoryItem{ItemType: row.ItemType, Quantity: row.Quantity})
	}
	return items, nil
}

func (store *Store) UpsertAchievementDefinition(ctx context.Context, definition redeem.AchievementDefinition) error {
	row := AchievementDefinition{
		AchievementKey: definition.Key,
		Name:           definition.Name,
		Points:         definition.Points,
		TargetValue:    definition.TargetValue,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "achievement_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "points", "target_value"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectAchievement, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetAchievementDefinition(ctx context.Context, key string) (redeem.AchievementDefinition, bool, error) {
	var row AchievementDefinition
	err := store.db.WithContext(ctx).Where("achievement_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return redeem.AchievementDefinition{}, false, nil
	}
	if err != nil {
		return redeem.AchievementDefinition{}, false, wrapStoreError(errorSubjectAchievement, errorCodeGet, err)
	}
	return redeem.AchievementDefinition{
		Key:         row.AchievementKey,
		Name:        row.Name,
		Points:      row.Points,
		TargetValue: row.TargetValue,
	}, true, nil
}

// UnlockAchievement sets the achievement to unlocked at full progress, creating it if absent.
func (store *Store) UnlockAchievement(ctx context.Context, userID ledger.UserID, definition redeem.AchievementDefinition, at time.Time) error {
	unlockedAt := at.UTC()
	row := UserAchievement{
		UserID:         userID.String(),
		AchievementKey: definition.Key,
		Status:         achievementStatusUnlocked,
		ProgressValue:  definition.TargetValue,
		UnlockedAt:     &unlockedAt,
		UpdatedAt:      unlockedAt,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "progress_value", "unlocked_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectAchievement, errorCodeUpsert, err)
	}
	return nil
}

func mapCode(row RedemptionCode) (redeem.Code, error) {
	reward, err := redeem.ParseReward(row.RewardType, row.RewardValue)
	if err != nil {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	status, err := redeem.ParseCodeStatus(row.Status)
	if err != nil {
		return redeem.Code{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	return redeem.Code{
		ID:          row.CodeID,
		Code:        row.Code,
		Reward:      reward,
		Status:      status,
		Description: row.Description,
		Hint:        row.Hint,
		ExpiresAt:   utcPointer(row.ExpiresAt),
		ClaimedBy:   valueOrEmpty(row.ClaimedBy),
		ClaimedAt:   utcPointer(row.ClaimedAt),
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func mapRecord(row RedemptionRecord) (redeem.Record, error) {
	reward, err := redeem.ParseReward(row.RewardType, row.RewardValue)
	if err != nil {
		return redeem.Record{}, wrapStoreError(errorSubjectRecord, errorCodeInvalid, err)
	}
	client := row.Client.Data()
	return redeem.Record{
		ID:        row.RecordID,
		CodeID:    row.CodeID,
		UserID:    row.UserID,
		Reward:    reward,
		Client:    redeem.ClientInfo{IPAddress: client.IPAddress, UserAgent: client.UserAgent},
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}
