package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore implements ledger.Store using GORM.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm.DB.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx executes fn within a transaction, or a savepoint when db is already transactional.
func (store *LedgerStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &LedgerStore{db: transaction})
	})
}

func (store *LedgerStore) ApplyDelta(ctx context.Context, userID ledger.UserID, delta ledger.Points) (ledger.Balance, error) {
	database := store.db.WithContext(ctx)
	now := time.Now().UTC()
	seed := UserBalance{UserID: userID.String(), CreatedAt: now, UpdatedAt: now}
	if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return ledger.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeCreate, err)
	}

	var earned, spent int64
	if delta > 0 {
		earned = delta.Int64()
	} else {
		spent = -delta.Int64()
	}
	result := database.Model(&UserBalance{}).
		Where("user_id = ? AND balance + ? >= 0", userID.String(), delta.Int64()).
		Updates(map[string]interface{}{
			"balance":      gorm.Expr("balance + ?", delta.Int64()),
			"total_earned": gorm.Expr("total_earned + ?", earned),
			"total_spent":  gorm.Expr("total_spent + ?", spent),
			"updated_at":   now,
		})
	if result.Error != nil {
		return ledger.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeApplyDelta, result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeInsufficient, ledger.ErrInsufficientBalance)
	}

	var row UserBalance
	if err := database.Where("user_id = ?", userID.String()).Take(&row).Error; err != nil {
		return ledger.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return mapBalance(row), nil
}

func (store *LedgerStore) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	row := PointsTransaction{
		UserID:       transaction.UserID,
		Amount:       transaction.Amount.Int64(),
		BalanceAfter: transaction.BalanceAfter.Int64(),
		Reason:       transaction.Reason,
		RefType:      optionalString(transaction.RefType),
		RefID:        optionalString(transaction.RefID),
		Description:  transaction.Description,
		CreatedAt:    time.Unix(transaction.CreatedUnixUTC, 0).UTC(),
	}
	if transaction.CreatedUnixUTC == 0 {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *LedgerStore) GetBalance(ctx context.Context, userID ledger.UserID) (ledger.Balance, error) {
	var row UserBalance
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Balance{}, nil
	}
	if err != nil {
		return ledger.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return mapBalance(row), nil
}

func (store *LedgerStore) ListTransactions(ctx context.Context, userID ledger.UserID, limit int, offset int) ([]ledger.Transaction, error) {
	var rows []PointsTransaction
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, ledger.Transaction{
			TransactionID:  row.TransactionID,
			UserID:         row.UserID,
			Amount:         ledger.Points(row.Amount),
			BalanceAfter:   ledger.Points(row.BalanceAfter),
			Reason:         row.Reason,
			RefType:        valueOrEmpty(row.RefType),
			RefID:          valueOrEmpty(row.RefID),
			Description:    row.Description,
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return transactions, nil
}

func mapBalance(row UserBalance) ledger.Balance {
	return ledger.Balance{
		Balance:     ledger.Points(row.Balance),
		TotalEarned: ledger.Points(row.TotalEarned),
		TotalSpent:  ledger.Points(row.TotalSpent),
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func valueOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
