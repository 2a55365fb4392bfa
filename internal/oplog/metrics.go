package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ledger operations for Prometheus.
type Metrics struct {
	operations *prometheus.CounterVec
	amounts    *prometheus.CounterVec
}

// NewMetrics registers the collectors against registerer, or the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditbook_operations_total",
		Help: "Ledger operations partitioned by operation and outcome.",
	}, []string{"operation", "status"})
	amounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "creditbook_recorded_amount_total",
		Help: "Sum of recorded transaction amounts by direction.",
	}, []string{"direction"})
	registerer.MustRegister(operations, amounts)
	return &Metrics{operations: operations, amounts: amounts}
}

func (metrics *Metrics) LogOperation(_ context.Context, entry ledger.OperationLog) {
	if metrics == nil {
		return
	}
	metrics.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if entry.Operation != ledger.OperationRecordTransaction || entry.Error != nil || !entry.Amount.IsPositive() {
		return
	}
	metrics.amounts.WithLabelValues(entry.Direction.String()).Add(entry.Amount.Decimal().InexactFloat64())
}
