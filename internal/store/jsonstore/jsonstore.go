package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
)

const (
	documentFormat       = "creditbook_snapshot"
	documentVersion      = 1
	filePermissions      = 0o600
	directoryPermissions = 0o755
	errorOperationStore  = "store"
	errorSubjectFile     = "file"
	errorCodeDecode      = "decode"
	errorCodeEncode      = "encode"
	errorCodeRead        = "read"
	errorCodeWrite       = "write"
)

// Store keeps the whole directory in a single JSON file.
type Store struct {
	path string
	now  func() time.Time
}

// New returns a Store writing to path.
func New(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the snapshot file location.
func (store *Store) Path() string {
	return store.path
}

type document struct {
	Format             string            `json:"format"`
	Version            int               `json:"version"`
	SavedAt            time.Time         `json:"saved_at"`
	LastSequenceNumber int               `json:"last_sequence_number"`
	Customers          []customerPayload `json:"customers"`
}

type customerPayload struct {
	CustomerID     string               `json:"id"`
	SequenceNumber string               `json:"customer_number"`
	Name           string               `json:"name"`
	Contact        string               `json:"contact,omitempty"`
	CreditLimit    *ledger.Money        `json:"credit_limit,omitempty"`
	Balance        ledger.Money         `json:"balance"`
	CreatedAt      time.Time            `json:"created_at"`
	Transactions   []transactionPayload `json:"transactions"`
}

type transactionPayload struct {
	TransactionID string       `json:"id"`
	Direction     string       `json:"type"`
	Amount        ledger.Money `json:"amount"`
	Memo          string       `json:"memo"`
	CreatedAt     time.Time    `json:"date"`
}

// LoadSnapshot reads the file. A missing file is an empty directory.
func (store *Store) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Snapshot{}, err
	}
	file, err := os.Open(store.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Snapshot{}, nil
	}
	if err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorCodeRead, err)
	}
	defer file.Close()

	var payload document
	if err := json.NewDecoder(file).Decode(&payload); err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorCodeDecode, err)
	}
	if payload.Format != documentFormat || payload.Version != documentVersion {
		return ledger.Snapshot{}, wrapStoreError(errorCodeDecode, fmt.Errorf("%w: unsupported document %q version %d", ledger.ErrInvalidSnapshot, payload.Format, payload.Version))
	}
	return payload.snapshot(), nil
}

// PersistSnapshot writes to a temporary file and renames it over the old one.
func (store *Store) PersistSnapshot(ctx context.Context, snapshot ledger.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(store.path), directoryPermissions); err != nil {
		return wrapStoreError(errorCodeWrite, err)
	}
	temporaryPath := store.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return wrapStoreError(errorCodeWrite, err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(newDocument(snapshot, store.now().UTC())); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)
		return wrapStoreError(errorCodeEncode, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)
		return wrapStoreError(errorCodeWrite, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(temporaryPath)
		return wrapStoreError(errorCodeWrite, err)
	}
	if err := os.Rename(temporaryPath, store.path); err != nil {
		return wrapStoreError(errorCodeWrite, err)
	}
	return nil
}

func newDocument(snapshot ledger.Snapshot, savedAt time.Time) document {
	payload := document{
		Format:             documentFormat,
		Version:            documentVersion,
		SavedAt:            savedAt,
		LastSequenceNumber: snapshot.LastSequenceNumber,
		Customers:          make([]customerPayload, 0, len(snapshot.Accounts)),
	}
	for _, account := range snapshot.Accounts {
		customer := customerPayload{
			CustomerID:     account.CustomerID,
			SequenceNumber: account.SequenceNumber,
			Name:           account.Name,
			Contact:        account.Contact,
			Balance:        account.Balance,
			CreatedAt:      account.CreatedAt,
			Transactions:   make([]transactionPayload, 0, len(account.Transactions)),
		}
		if account.HasCreditLimit {
			limit := account.CreditLimit
			customer.CreditLimit = &limit
		}
		for _, record := range account.Transactions {
			customer.Transactions = append(customer.Transactions, transactionPayload{
				TransactionID: record.TransactionID,
				Direction:     record.Direction,
				Amount:        record.Amount,
				Memo:          record.Memo,
				CreatedAt:     record.CreatedAt,
			})
		}
		payload.Customers = append(payload.Customers, customer)
	}
	return payload
}

func (payload document) snapshot() ledger.Snapshot {
	snapshot := ledger.Snapshot{
		LastSequenceNumber: payload.LastSequenceNumber,
		Accounts:           make([]ledger.AccountRecord, 0, len(payload.Customers)),
	}
	for _, customer := range payload.Customers {
		record := ledger.AccountRecord{
			CustomerID:     customer.CustomerID,
			SequenceNumber: customer.SequenceNumber,
			Name:           customer.Name,
			Contact:        customer.Contact,
			Balance:        customer.Balance,
			CreatedAt:      customer.CreatedAt,
			Transactions:   make([]ledger.TransactionRecord, 0, len(customer.Transactions)),
		}
		if customer.CreditLimit != nil {
			record.CreditLimit = *customer.CreditLimit
			record.HasCreditLimit = true
		}
		for _, transaction := range customer.Transactions {
			record.Transactions = append(record.Transactions, ledger.TransactionRecord{
				TransactionID: transaction.TransactionID,
				Direction:     transaction.Direction,
				Amount:        transaction.Amount,
				Memo:          transaction.Memo,
				CreatedAt:     transaction.CreatedAt,
			})
		}
		snapshot.Accounts = append(snapshot.Accounts, record)
	}
	return snapshot
}

func wrapStoreError(code string, err error) error {
	return ledger.WrapError(errorOperationStore, errorSubjectFile, code, err)
}
