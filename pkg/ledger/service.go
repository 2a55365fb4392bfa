package ledger

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Confirmation records the operator's answer to a credit-limit warning.
type Confirmation bool

const (
	// WithinLimitOnly declines any credit that would pass the ceiling.
	WithinLimitOnly Confirmation = false
	// ConfirmOverLimit accepts a credit even when it passes the ceiling.
	ConfirmOverLimit Confirmation = true
)

// Draft is an evaluated but not yet applied transaction.
type Draft struct {
	customerID       CustomerID
	direction        Direction
	amount           Money
	memo             string
	limit            Money
	currentBalance   Money
	projectedBalance Money
	limitExceeded    bool
}

func (draft Draft) CustomerID() CustomerID {
	return draft.customerID
}

func (draft Draft) Direction() Direction {
	return draft.direction
}

func (draft Draft) Amount() Money {
	return draft.amount
}

func (draft Draft) ProjectedBalance() Money {
	return draft.projectedBalance
}

// LimitExceeded returns the advisory warning, or nil when the draft is within the ceiling.
func (draft Draft) LimitExceeded() *LimitExceededError {
	if !draft.limitExceeded {
		return nil
	}
	return &LimitExceededError{
		Limit:            draft.limit,
		CurrentBalance:   draft.currentBalance,
		ProjectedBalance: draft.projectedBalance,
	}
}

// Notification carries what a messaging collaborator needs to tell the
// customer about their latest transaction. Composing and sending is the caller's job.
type Notification struct {
	CustomerName string
	Contact      string
	Amount       Money
	Direction    Direction
	NewBalance   Money
}

// Receipt is the result of a successful ledger mutation.
type Receipt struct {
	Account      Account
	Transaction  Transaction
	Notification Notification
}

// Service is the ledger engine: the only path by which balances and histories change.
// Operations are serialised; every mutation is persisted before it becomes visible.
type Service struct {
	mu           sync.Mutex
	store        SnapshotStore
	directory    *Directory
	nowFn        func() time.Time
	newID        func() string
	defaultLimit Money
	logger       OperationLogger
}

// NewService wires a Service with an empty directory. Call Load to restore persisted state.
func NewService(store SnapshotStore, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:        store,
		directory:    NewDirectory(),
		nowFn:        now,
		newID:        uuid.NewString,
		defaultLimit: MoneyFromInt(DefaultCreditLimitUnits),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.newID == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidServiceConfig)
	}
	if !service.defaultLimit.IsPositive() {
		return nil, fmt.Errorf("%w: default credit limit must be positive", ErrInvalidServiceConfig)
	}
	return service, nil
}

// Load replaces the in-memory directory with the store's snapshot.
func (service *Service) Load(ctx context.Context) error {
	snapshot, err := service.store.LoadSnapshot(ctx)
	if err != nil {
		return WrapError(errorOperationService, errorSubjectSnapshot, errorCodeLoad, persistenceError{err: err})
	}
	directory, err := RestoreDirectory(snapshot)
	if err != nil {
		return WrapError(errorOperationService, errorSubjectSnapshot, errorCodeLoad, err)
	}
	service.mu.Lock()
	defer service.mu.Unlock()
	service.directory = directory
	return nil
}

// DefaultCreditLimit is the ceiling applied to accounts without an explicit limit.
func (service *Service) DefaultCreditLimit() Money {
	return service.defaultLimit
}

// CreateAccount adds a customer with a fresh id and the next customer number.
func (service *Service) CreateAccount(ctx context.Context, name string, contact string, rawCreditLimit string) (Account, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	account, operationError := service.createAccount(ctx, name, contact, rawCreditLimit)
	service.logOperation(ctx, OperationLog{
		Operation:  OperationCreateAccount,
		CustomerID: account.id,
		Error:      operationError,
	})
	return account, operationError
}

func (service *Service) createAccount(ctx context.Context, name string, contact string, rawCreditLimit string) (Account, error) {
	customerID, err := NewCustomerID(service.newID())
	if err != nil {
		return Account{}, err
	}
	next := service.directory.clone()
	account, err := next.Create(customerID, name, contact, rawCreditLimit, service.nowFn())
	if err != nil {
		return Account{}, err
	}
	if err := service.commit(ctx, next); err != nil {
		return Account{}, err
	}
	return account, nil
}

// DeleteAccount removes a customer and their whole history. Deleting an
// unknown customer succeeds without touching the store.
func (service *Service) DeleteAccount(ctx context.Context, rawCustomerID string) error {
	service.mu.Lock()
	defer service.mu.Unlock()

	customerID, operationError := NewCustomerID(rawCustomerID)
	if operationError == nil {
		next := service.directory.clone()
		if next.Delete(customerID) {
			operationError = service.commit(ctx, next)
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:  OperationDeleteAccount,
		CustomerID: customerID,
		Error:      operationError,
	})
	return operationError
}

// Account returns a copy of one customer account.
func (service *Service) Account(rawCustomerID string) (Account, error) {
	customerID, err := NewCustomerID(rawCustomerID)
	if err != nil {
		return Account{}, err
	}
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.directory.Get(customerID)
}

// Accounts returns copies of all accounts in directory order.
func (service *Service) Accounts() []Account {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.directory.Accounts()
}

// Find searches by name or customer number over the directory as it is now.
func (service *Service) Find(query string) iter.Seq[Account] {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.directory.Find(query)
}

// Dashboard aggregates the current directory against the given reference day.
func (service *Service) Dashboard(today time.Time) Dashboard {
	return Summarize(service.Accounts(), today, service.defaultLimit)
}

// DraftTransaction validates a transaction and evaluates it against the credit ceiling
// without changing anything. Inspect Draft.LimitExceeded before committing.
func (service *Service) DraftTransaction(rawCustomerID string, direction Direction, rawAmount string, memo string) (Draft, error) {
	customerID, err := NewCustomerID(rawCustomerID)
	if err != nil {
		return Draft{}, err
	}
	parsedDirection, err := ParseDirection(direction.String())
	if err != nil {
		return Draft{}, err
	}
	amount, err := ParseAmount(rawAmount)
	if err != nil {
		return Draft{}, err
	}
	service.mu.Lock()
	defer service.mu.Unlock()
	account, err := service.directory.Get(customerID)
	if err != nil {
		return Draft{}, err
	}
	return service.evaluate(account, parsedDirection, amount, memo), nil
}

// CommitDraft applies a draft. The ceiling is evaluated again against the
// current balance; an over-limit credit needs ConfirmOverLimit. Drafts carry
// no identity: every successful commit records a new transaction, so
// committing the same draft twice records it twice.
func (service *Service) CommitDraft(ctx context.Context, draft Draft, confirmation Confirmation) (Receipt, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	receipt, operationError := service.commitDraft(ctx, draft, confirmation)
	service.logOperation(ctx, OperationLog{
		Operation:     OperationRecordTransaction,
		CustomerID:    draft.customerID,
		TransactionID: receipt.Transaction.id,
		Direction:     draft.direction,
		Amount:        draft.amount,
		Balance:       receipt.Account.balance,
		Error:         operationError,
	})
	return receipt, operationError
}

func (service *Service) commitDraft(ctx context.Context, draft Draft, confirmation Confirmation) (Receipt, error) {
	if draft.customerID.value == "" {
		return Receipt{}, fmt.Errorf("%w: draft has no customer", ErrInvalidCustomerID)
	}
	account, err := service.directory.Get(draft.customerID)
	if err != nil {
		return Receipt{}, err
	}
	current := service.evaluate(account, draft.direction, draft.amount, draft.memo)
	if warning := current.LimitExceeded(); warning != nil && confirmation != ConfirmOverLimit {
		return Receipt{}, warning
	}
	transactionID, err := NewTransactionID(service.newID())
	if err != nil {
		return Receipt{}, err
	}
	transaction, err := NewTransaction(transactionID, current.direction, current.amount, current.memo, service.nowFn())
	if err != nil {
		return Receipt{}, err
	}
	account.prepend(transaction)
	next := service.directory.clone()
	next.replace(account)
	if err := service.commit(ctx, next); err != nil {
		return Receipt{}, err
	}
	return newReceipt(account, transaction), nil
}

// RecordTransaction drafts and commits in one call.
func (service *Service) RecordTransaction(ctx context.Context, rawCustomerID string, direction Direction, rawAmount string, memo string, confirmation Confirmation) (Receipt, error) {
	draft, err := service.DraftTransaction(rawCustomerID, direction, rawAmount, memo)
	if err != nil {
		customerID, _ := NewCustomerID(rawCustomerID)
		service.logOperation(ctx, OperationLog{
			Operation:  OperationRecordTransaction,
			CustomerID: customerID,
			Direction:  direction,
			Error:      err,
		})
		return Receipt{}, err
	}
	return service.CommitDraft(ctx, draft, confirmation)
}

// ReverseTransaction removes an entry and applies its exact inverse to the balance.
func (service *Service) ReverseTransaction(ctx context.Context, rawCustomerID string, rawTransactionID string) (Receipt, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	receipt, operationError := service.reverseTransaction(ctx, rawCustomerID, rawTransactionID)
	customerID, _ := NewCustomerID(rawCustomerID)
	transactionID, _ := NewTransactionID(rawTransactionID)
	service.logOperation(ctx, OperationLog{
		Operation:     OperationReverseTransaction,
		CustomerID:    customerID,
		TransactionID: transactionID,
		Direction:     receipt.Transaction.direction,
		Amount:        receipt.Transaction.amount,
		Balance:       receipt.Account.balance,
		Error:         operationError,
	})
	return receipt, operationError
}

func (service *Service) reverseTransaction(ctx context.Context, rawCustomerID string, rawTransactionID string) (Receipt, error) {
	customerID, err := NewCustomerID(rawCustomerID)
	if err != nil {
		return Receipt{}, err
	}
	transactionID, err := NewTransactionID(rawTransactionID)
	if err != nil {
		return Receipt{}, err
	}
	account, err := service.directory.Get(customerID)
	if err != nil {
		return Receipt{}, err
	}
	transaction, removed := account.remove(transactionID)
	if !removed {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}
	next := service.directory.clone()
	next.replace(account)
	if err := service.commit(ctx, next); err != nil {
		return Receipt{}, err
	}
	return newReceipt(account, transaction), nil
}

func (service *Service) evaluate(account Account, direction Direction, amount Money, memo string) Draft {
	projected := account.balance.Add(direction.signed(amount))
	limit := account.EffectiveCreditLimit(service.defaultLimit)
	return Draft{
		customerID:       account.id,
		direction:        direction,
		amount:           amount,
		memo:             memo,
		limit:            limit,
		currentBalance:   account.balance,
		projectedBalance: projected,
		limitExceeded:    direction == DirectionCredit && projected.GreaterThan(limit),
	}
}

// commit persists next and installs it only when the write succeeded.
func (service *Service) commit(ctx context.Context, next *Directory) error {
	if err := service.store.PersistSnapshot(ctx, next.Snapshot()); err != nil {
		return WrapError(errorOperationService, errorSubjectSnapshot, errorCodePersist, persistenceError{err: err})
	}
	service.directory = next
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		entry.Status = OperationStatus(entry.Error)
	}
	service.logger.LogOperation(ctx, entry)
}

func newReceipt(account Account, transaction Transaction) Receipt {
	return Receipt{
		Account:     account.clone(),
		Transaction: transaction,
		Notification: Notification{
			CustomerName: account.name,
			Contact:      account.contact,
			Amount:       transaction.amount,
			Direction:    transaction.direction,
			NewBalance:   account.balance,
		},
	}
}
