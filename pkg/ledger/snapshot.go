package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SnapshotStore is the persistence contract used by Service.
// Implementations write the whole snapshot atomically or not at all.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
	PersistSnapshot(ctx context.Context, snapshot Snapshot) error
}

// Snapshot is the persisted form of a Directory.
type Snapshot struct {
	// LastSequenceNumber is the highest customer number ever issued, including deleted customers.
	LastSequenceNumber int
	Accounts           []AccountRecord
}

// AccountRecord is the storage shape of an Account.
type AccountRecord struct {
	CustomerID     string
	SequenceNumber string
	Name           string
	Contact        string
	CreditLimit    Money
	HasCreditLimit bool
	Balance        Money
	CreatedAt      time.Time
	// Transactions are ordered newest first.
	Transactions []TransactionRecord
}

// TransactionRecord is the storage shape of a Transaction.
type TransactionRecord struct {
	TransactionID string
	Direction     string
	Amount        Money
	Memo          string
	CreatedAt     time.Time
}

// Record converts an account into its storage shape.
func (account Account) Record() AccountRecord {
	transactions := make([]TransactionRecord, 0, len(account.transactions))
	for _, transaction := range account.transactions {
		transactions = append(transactions, TransactionRecord{
			TransactionID: transaction.id.String(),
			Direction:     transaction.direction.String(),
			Amount:        transaction.amount,
			Memo:          transaction.memo,
			CreatedAt:     transaction.createdAt,
		})
	}
	return AccountRecord{
		CustomerID:     account.id.String(),
		SequenceNumber: account.sequenceNumber.String(),
		Name:           account.name,
		Contact:        account.contact,
		CreditLimit:    account.creditLimit,
		HasCreditLimit: account.hasCreditLimit,
		Balance:        account.balance,
		CreatedAt:      account.createdAt,
		Transactions:   transactions,
	}
}

// NewAccountFromRecord rebuilds an account and checks that its balance matches its history.
func NewAccountFromRecord(record AccountRecord) (Account, error) {
	customerID, err := NewCustomerID(record.CustomerID)
	if err != nil {
		return Account{}, err
	}
	name := strings.TrimSpace(record.Name)
	if name == "" {
		return Account{}, fmt.Errorf("%w: customer %s has no name", ErrInvalidName, customerID)
	}
	transactions := make([]Transaction, 0, len(record.Transactions))
	seen := make(map[TransactionID]struct{}, len(record.Transactions))
	for _, transactionRecord := range record.Transactions {
		transactionID, err := NewTransactionID(transactionRecord.TransactionID)
		if err != nil {
			return Account{}, err
		}
		if _, duplicate := seen[transactionID]; duplicate {
			return Account{}, fmt.Errorf("%w: duplicate transaction %s", ErrInvalidSnapshot, transactionID)
		}
		seen[transactionID] = struct{}{}
		direction, err := ParseDirection(transactionRecord.Direction)
		if err != nil {
			return Account{}, err
		}
		transaction, err := NewTransaction(transactionID, direction, transactionRecord.Amount, transactionRecord.Memo, transactionRecord.CreatedAt)
		if err != nil {
			return Account{}, err
		}
		transactions = append(transactions, transaction)
	}
	account := Account{
		id:             customerID,
		sequenceNumber: SequenceNumber(strings.TrimSpace(record.SequenceNumber)),
		name:           name,
		contact:        strings.TrimSpace(record.Contact),
		creditLimit:    record.CreditLimit,
		hasCreditLimit: record.HasCreditLimit && record.CreditLimit.IsPositive(),
		balance:        record.Balance,
		transactions:   transactions,
		createdAt:      record.CreatedAt,
	}
	if !account.hasCreditLimit {
		account.creditLimit = Money{}
	}
	if err := VerifyBalance(account); err != nil {
		return Account{}, err
	}
	return account, nil
}
