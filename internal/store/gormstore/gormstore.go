package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	insertBatchSize         = 200
	errorOperationStore     = "store"
	errorSubjectCustomer    = "customer"
	errorSubjectTransaction = "transaction"
	errorSubjectState       = "directory_state"
	errorSubjectSchema      = "schema"
	errorCodeClear          = "clear"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeList           = "list"
	errorCodeMigrate        = "migrate"
	errorCodeSave           = "save"
)

// Store implements ledger.SnapshotStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables the store writes to.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// LoadSnapshot reads every customer with their history, in directory order.
func (store *Store) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	db := store.db.WithContext(ctx)

	var state DirectoryState
	err := db.Where("id = ?", directoryStateKey).Take(&state).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectState, errorCodeList, err)
	}

	var customers []Customer
	if err := db.Order("position ASC").Find(&customers).Error; err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectCustomer, errorCodeList, err)
	}
	var rows []CustomerTransaction
	if err := db.Order("customer_id ASC").Order("position ASC").Find(&rows).Error; err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	history := make(map[string][]ledger.TransactionRecord, len(customers))
	for _, row := range rows {
		history[row.CustomerID] = append(history[row.CustomerID], mapTransactionRow(row))
	}

	snapshot := ledger.Snapshot{
		LastSequenceNumber: state.LastSequenceNumber,
		Accounts:           make([]ledger.AccountRecord, 0, len(customers)),
	}
	for _, customer := range customers {
		snapshot.Accounts = append(snapshot.Accounts, mapCustomerRow(customer, history[customer.CustomerID]))
	}
	return snapshot, nil
}

// PersistSnapshot replaces the stored directory inside one transaction.
func (store *Store) PersistSnapshot(ctx context.Context, snapshot ledger.Snapshot) error {
	customers, transactions := snapshotRows(snapshot)
	return store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&CustomerTransaction{}).Error; err != nil {
			return wrapStoreError(errorSubjectTransaction, errorCodeClear, err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Customer{}).Error; err != nil {
			return wrapStoreError(errorSubjectCustomer, errorCodeClear, err)
		}
		if len(customers) > 0 {
			err := tx.CreateInBatches(customers, insertBatchSize).Error
			if isUniqueConflict(err) {
				return wrapStoreError(errorSubjectCustomer, errorCodeDuplicate, err)
			}
			if err != nil {
				return wrapStoreError(errorSubjectCustomer, errorCodeInsert, err)
			}
		}
		if len(transactions) > 0 {
			err := tx.CreateInBatches(transactions, insertBatchSize).Error
			if isUniqueConflict(err) {
				return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, err)
			}
			if err != nil {
				return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
			}
		}
		state := DirectoryState{
			ID:                 directoryStateKey,
			LastSequenceNumber: snapshot.LastSequenceNumber,
			UpdatedAt:          time.Now().UTC(),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_sequence_number", "updated_at"}),
		}).Create(&state).Error
		if err != nil {
			return wrapStoreError(errorSubjectState, errorCodeSave, err)
		}
		return nil
	})
}

func snapshotRows(snapshot ledger.Snapshot) ([]Customer, []CustomerTransaction) {
	customers := make([]Customer, 0, len(snapshot.Accounts))
	var transactions []CustomerTransaction
	for position, account := range snapshot.Accounts {
		customer := Customer{
			CustomerID:     account.CustomerID,
			Position:       position,
			SequenceNumber: account.SequenceNumber,
			Name:           account.Name,
			Contact:        account.Contact,
			Balance:        account.Balance.Decimal(),
			CreatedAt:      account.CreatedAt.UTC(),
		}
		if account.HasCreditLimit {
			customer.CreditLimit = decimal.NewNullDecimal(account.CreditLimit.Decimal())
		}
		customers = append(customers, customer)
		for transactionPosition, record := range account.Transactions {
			transactions = append(transactions, CustomerTransaction{
				CustomerID:    account.CustomerID,
				TransactionID: record.TransactionID,
				Position:      transactionPosition,
				Direction:     record.Direction,
				Amount:        record.Amount.Decimal(),
				Memo:          record.Memo,
				Day:           datatypes.Date(record.CreatedAt.UTC()),
				CreatedAt:     record.CreatedAt.UTC(),
			})
		}
	}
	return customers, transactions
}

func mapCustomerRow(row Customer, history []ledger.TransactionRecord) ledger.AccountRecord {
	record := ledger.AccountRecord{
		CustomerID:     row.CustomerID,
		SequenceNumber: row.SequenceNumber,
		Name:           row.Name,
		Contact:        row.Contact,
		Balance:        ledger.NewMoney(row.Balance),
		CreatedAt:      row.CreatedAt.UTC(),
		Transactions:   history,
	}
	if row.CreditLimit.Valid {
		record.CreditLimit = ledger.NewMoney(row.CreditLimit.Decimal)
		record.HasCreditLimit = true
	}
	return record
}

func mapTransactionRow(row CustomerTransaction) ledger.TransactionRecord {
	return ledger.TransactionRecord{
		TransactionID: row.TransactionID,
		Direction:     row.Direction,
		Amount:        ledger.NewMoney(row.Amount),
		Memo:          row.Memo,
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
