package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidName          = errors.New("invalid customer name")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidDirection     = errors.New("invalid direction")
	ErrInvalidCustomerID    = errors.New("invalid customer id")
	ErrInvalidTransactionID = errors.New("invalid transaction id")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrInvalidSnapshot      = errors.New("invalid snapshot")
	ErrBalanceDrift         = errors.New("balance does not match transactions")
	ErrUnknownCustomer      = errors.New("unknown customer")
	ErrUnknownTransaction   = errors.New("unknown transaction")
	ErrLimitExceeded        = errors.New("credit limit exceeded")
	ErrPersistence          = errors.New("persistence failure")
)

// ErrorKind groups errors into the categories callers present to operators.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindLimitExceeded ErrorKind = "limit_exceeded"
	KindPersistence   ErrorKind = "persistence"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err. A nil error has an empty kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLimitExceeded):
		return KindLimitExceeded
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrUnknownCustomer), errors.Is(err, ErrUnknownTransaction):
		return KindNotFound
	case errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDirection),
		errors.Is(err, ErrInvalidCustomerID),
		errors.Is(err, ErrInvalidTransactionID):
		return KindValidation
	default:
		return KindInternal
	}
}

// LimitExceededError is the advisory warning raised when a credit would push
// the balance past the effective ceiling. It matches ErrLimitExceeded.
type LimitExceededError struct {
	Limit            Money
	CurrentBalance   Money
	ProjectedBalance Money
}

func (limitError *LimitExceededError) Error() string {
	return fmt.Sprintf("%v: limit %s, current balance %s, projected balance %s",
		ErrLimitExceeded, limitError.Limit, limitError.CurrentBalance, limitError.ProjectedBalance)
}

// Is reports whether target is ErrLimitExceeded.
func (limitError *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// persistenceError marks a store failure as ErrPersistence while keeping the
// store's own error reachable through errors.Is / errors.As.
type persistenceError struct {
	err error
}

func (failure persistenceError) Error() string {
	return fmt.Sprintf("%v: %v", ErrPersistence, failure.err)
}

func (failure persistenceError) Unwrap() []error {
	return []error{ErrPersistence, failure.err}
}
