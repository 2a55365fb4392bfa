package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation     string
	CustomerID    CustomerID
	TransactionID TransactionID
	Direction     Direction
	Amount        Money
	Balance       Money
	Status        string
	Error         error
}

// OperationStatus reports the outcome label used in OperationLog.Status.
func OperationStatus(err error) string {
	switch {
	case err == nil:
		return OperationStatusOK
	case Kind(err) == KindLimitExceeded:
		return OperationStatusDeclined
	default:
		return OperationStatusError
	}
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithDefaultCreditLimit overrides the ceiling applied to accounts without an explicit limit.
func WithDefaultCreditLimit(limit Money) ServiceOption {
	return func(service *Service) {
		service.defaultLimit = limit
	}
}

// WithIDGenerator replaces the uuid-based id source.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(service *Service) {
		service.newID = newID
	}
}
