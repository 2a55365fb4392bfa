package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const zapMessage = "ledger operation"

// Zap writes one structured line per ledger operation.
type Zap struct {
	logger *zap.Logger
}

// NewZap wraps logger. A nil logger discards everything.
func NewZap(logger *zap.Logger) *Zap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Zap{logger: logger}
}

func (sink *Zap) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("customer_id", entry.CustomerID.String()),
	}
	if transactionID := entry.TransactionID.String(); transactionID != "" {
		fields = append(fields, zap.String("transaction_id", transactionID))
	}
	if entry.Direction != "" {
		fields = append(fields,
			zap.String("direction", entry.Direction.String()),
			zap.String("amount", entry.Amount.String()),
			zap.String("balance", entry.Balance.String()),
		)
	}
	level := zapcore.InfoLevel
	switch entry.Status {
	case ledger.OperationStatusError:
		level = zapcore.ErrorLevel
		if ledger.Kind(entry.Error) == ledger.KindValidation || ledger.Kind(entry.Error) == ledger.KindNotFound {
			level = zapcore.WarnLevel
		}
	case ledger.OperationStatusDeclined:
		level = zapcore.WarnLevel
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error), zap.String("error_kind", string(ledger.Kind(entry.Error))))
	}
	sink.logger.Log(level, zapMessage, fields...)
}
