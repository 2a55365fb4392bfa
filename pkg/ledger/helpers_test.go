package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"
)

const (
	errorMismatchMessage = "expected %v, got %v"
	customerNameValue    = "Nimal Perera"
	contactValue         = "0771234567"
)

var fixedNow = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

// memoryStore keeps the last persisted snapshot and can be told to fail.
type memoryStore struct {
	snapshot     Snapshot
	persistCalls int
	persistError error
	loadError    error
}

func (store *memoryStore) LoadSnapshot(context.Context) (Snapshot, error) {
	if store.loadError != nil {
		return Snapshot{}, store.loadError
	}
	return store.snapshot, nil
}

func (store *memoryStore) PersistSnapshot(_ context.Context, snapshot Snapshot) error {
	store.persistCalls++
	if store.persistError != nil {
		return store.persistError
	}
	store.snapshot = snapshot
	return nil
}

func sequentialIDs(prefix string) func() string {
	counter := 0
	return func() string {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter)
	}
}

func mustNewService(test *testing.T, store SnapshotStore, options ...ServiceOption) *Service {
	test.Helper()
	options = append([]ServiceOption{WithIDGenerator(sequentialIDs("id"))}, options...)
	service, err := NewService(store, func() time.Time { return fixedNow }, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustCreateAccount(test *testing.T, service *Service, name string, rawCreditLimit string) Account {
	test.Helper()
	account, err := service.CreateAccount(context.Background(), name, contactValue, rawCreditLimit)
	if err != nil {
		test.Fatalf("create account: %v", err)
	}
	return account
}

func mustRecord(test *testing.T, service *Service, customerID CustomerID, direction Direction, rawAmount string) Receipt {
	test.Helper()
	receipt, err := service.RecordTransaction(context.Background(), customerID.String(), direction, rawAmount, "", ConfirmOverLimit)
	if err != nil {
		test.Fatalf("record %s %s: %v", direction, rawAmount, err)
	}
	return receipt
}

func mustMoney(test *testing.T, raw string) Money {
	test.Helper()
	value, err := ParseMoney(raw)
	if err != nil {
		test.Fatalf("money: %v", err)
	}
	return value
}

func mustCustomerID(test *testing.T, raw string) CustomerID {
	test.Helper()
	value, err := NewCustomerID(raw)
	if err != nil {
		test.Fatalf("customer id: %v", err)
	}
	return value
}

func transactionRecord(id string, direction Direction, amount string, createdAt time.Time) TransactionRecord {
	value, err := ParseMoney(amount)
	if err != nil {
		panic(err)
	}
	return TransactionRecord{TransactionID: id, Direction: direction.String(), Amount: value, CreatedAt: createdAt}
}

// mustAccountWithHistory builds an account whose balance is the sum of the given entries.
func mustAccountWithHistory(test *testing.T, id string, transactions ...TransactionRecord) Account {
	test.Helper()
	var balance Money
	for _, record := range transactions {
		direction, err := ParseDirection(record.Direction)
		if err != nil {
			test.Fatalf("direction: %v", err)
		}
		balance = balance.Add(direction.signed(record.Amount))
	}
	account, err := NewAccountFromRecord(AccountRecord{
		CustomerID:   id,
		Name:         "customer " + id,
		Balance:      balance,
		Transactions: transactions,
	})
	if err != nil {
		test.Fatalf("account: %v", err)
	}
	return account
}

func assertBalanceConsistent(test *testing.T, account Account) {
	test.Helper()
	if err := VerifyBalance(account); err != nil {
		test.Fatalf("balance invariant broken: %v", err)
	}
}
