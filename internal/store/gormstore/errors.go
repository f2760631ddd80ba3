package gormstore

import (
	"errors"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	sqlitePrimaryKeyCode  = 1555
	sqliteUniqueCode      = 2067

	errorOperationStore     = "store"
	errorSubjectBalance     = "balance"
	errorSubjectTransaction = "transaction"
	errorSubjectCode        = "code"
	errorSubjectRecord      = "record"
	errorSubjectInventory   = "inventory"
	errorSubjectAchievement = "achievement"
	errorSubjectSchema      = "schema"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeCount          = "count"
	errorCodeApplyDelta     = "apply_delta"
	errorCodeInsufficient   = "insufficient"
	errorCodeClaim          = "claim"
	errorCodeDisable        = "disable"
	errorCodeExpire         = "expire"
	errorCodeIncrement      = "increment"
	errorCodeUpsert         = "upsert"
	errorCodeMigrate        = "migrate"
)

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

// isUniqueViolation recognizes duplicate-key failures from GORM, Postgres and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		// trigger, check and not-null failures share the primary constraint code
		switch sqliteErr.Code() {
		case sqliteConstraintCode, sqlitePrimaryKeyCode, sqliteUniqueCode:
			return true
		}
		return false
	}
	return false
}
