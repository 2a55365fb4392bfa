package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
)

// Fanout delivers each entry to every logger in order.
type Fanout []ledger.OperationLogger

func (loggers Fanout) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}
