// Package audit forwards domain operation callbacks to zap.
package audit

import (
	"context"

	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	"github.com/MarkoPoloResearchLab/rewards/pkg/quota"
	"github.com/MarkoPoloResearchLab/rewards/pkg/redeem"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LedgerLogger implements ledger.OperationLogger.
type LedgerLogger struct {
	logger *zap.Logger
}

// RedeemLogger implements redeem.OperationLogger.
type RedeemLogger struct {
	logger *zap.Logger
}

// QuotaLogger implements quota.OutcomeLogger.
type QuotaLogger struct {
	logger *zap.Logger
}

func NewLedgerLogger(logger *zap.Logger) LedgerLogger {
	return LedgerLogger{logger: named(logger, "ledger")}
}

func NewRedeemLogger(logger *zap.Logger) RedeemLogger {
	return RedeemLogger{logger: named(logger, "redeem")}
}

func NewQuotaLogger(logger *zap.Logger) QuotaLogger {
	return QuotaLogger{logger: named(logger, "quota")}
}

func (sink LedgerLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("reason", entry.Reason.String()),
		zap.String("status", entry.Status),
	}
	if !entry.Reference.IsZero() {
		fields = append(fields, zap.String("ref_type", entry.Reference.Type()), zap.String("ref_id", entry.Reference.ID()))
	}
	if entry.Error != nil {
		sink.logger.Warn("ledger operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	sink.logger.Info("ledger operation", append(fields, zap.Int64("balance_after", entry.BalanceAfter.Int64()))...)
}

func (sink RedeemLogger) LogOperation(_ context.Context, entry redeem.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.UserID.String() != "" {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.CodeID != "" {
		fields = append(fields, zap.String("code_id", entry.CodeID))
	}
	if entry.Code != "" {
		fields = append(fields, zap.String("code", entry.Code))
	}
	if entry.RewardKind != "" {
		fields = append(fields, zap.String("reward_kind", string(entry.RewardKind)))
	}
	if entry.Detail != "" {
		fields = append(fields, zap.String("detail", entry.Detail))
	}
	if entry.Error != nil {
		sink.logger.Warn("redeem operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	sink.logger.Info("redeem operation", fields...)
}

func (sink QuotaLogger) LogOutcome(_ context.Context, entry quota.OutcomeLog) {
	fields := []zap.Field{zap.String("key", entry.MaskedKey)}
	if entry.Result == "" {
		fields = append(fields,
			zap.String("endpoint", entry.Endpoint),
			zap.String("strategy", entry.Strategy),
			zap.String("outcome", string(entry.Outcome)),
		)
		if entry.Error != nil {
			fields = append(fields, zap.Error(entry.Error))
		}
		sink.logger.Debug("quota attempt", fields...)
		return
	}
	fields = append(fields, zap.String("result", entry.Result))
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}
	level := zapcore.DebugLevel
	if entry.Result == quota.ResultStale {
		level = zapcore.InfoLevel
	}
	sink.logger.Log(level, "quota lookup", fields...)
}

func named(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.Named(name)
}
