package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectCustomer    = "customer"
	errorSubjectSchema      = "schema"
	errorSubjectState       = "directory_state"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeClear          = "clear"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeSave           = "save"

	sqlCreateSchema = `
		create table if not exists customers (
			customer_id text primary key,
			position integer not null,
			sequence_number text not null default '',
			name text not null,
			contact text not null default '',
			credit_limit numeric,
			balance numeric not null,
			created_at timestamptz not null
		);
		create index if not exists idx_customers_position on customers(position);
		create table if not exists customer_transactions (
			customer_id text not null references customers(customer_id) on delete cascade,
			transaction_id text not null,
			position integer not null,
			direction text not null check (direction in ('credit','payment')),
			amount numeric not null check (amount > 0),
			memo text not null default '',
			day date not null,
			created_at timestamptz not null,
			primary key (customer_id, transaction_id)
		);
		create index if not exists idx_customer_transactions_position on customer_transactions(customer_id, position);
		create index if not exists idx_customer_transactions_day on customer_transactions(day);
		create table if not exists directory_state (
			id integer primary key,
			last_sequence_number integer not null,
			updated_at timestamptz not null default now()
		);
	`

	sqlSelectState = `select last_sequence_number from directory_state where id = 1`

	sqlSelectCustomers = `
		select customer_id, sequence_number, name, contact, credit_limit::text, balance::text, created_at
		from customers
		order by position asc
	`

	sqlSelectTransactions = `
		select customer_id, transaction_id, direction, amount::text, memo, created_at
		from customer_transactions
		order by customer_id asc, position asc
	`

	sqlDeleteCustomers = `delete from customers`

	sqlUpsertState = `
		insert into directory_state(id, last_sequence_number, updated_at) values (1, $1, now())
		on conflict (id) do update set last_sequence_number = excluded.last_sequence_number, updated_at = excluded.updated_at
	`
)

var (
	customerColumns    = []string{"customer_id", "position", "sequence_number", "name", "contact", "credit_limit", "balance", "created_at"}
	transactionColumns = []string{"customer_id", "transaction_id", "position", "direction", "amount", "memo", "day", "created_at"}
)

// Store implements ledger.SnapshotStore using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables when they do not exist yet.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) LoadSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	var snapshot ledger.Snapshot
	err := store.pool.QueryRow(ctx, sqlSelectState).Scan(&snapshot.LastSequenceNumber)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectState, errorCodeList, err)
	}

	history, err := store.loadHistory(ctx)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	rows, err := store.pool.Query(ctx, sqlSelectCustomers)
	if err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectCustomer, errorCodeList, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			row         customerRow
			creditLimit *string
		)
		if err := rows.Scan(&row.customerID, &row.sequenceNumber, &row.name, &row.contact, &creditLimit, &row.balance, &row.createdAt); err != nil {
			return ledger.Snapshot{}, wrapStoreError(errorSubjectCustomer, errorCodeList, err)
		}
		if creditLimit != nil {
			row.creditLimit = *creditLimit
		}
		record, err := row.record(history[row.customerID])
		if err != nil {
			return ledger.Snapshot{}, wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
		}
		snapshot.Accounts = append(snapshot.Accounts, record)
	}
	if err := rows.Err(); err != nil {
		return ledger.Snapshot{}, wrapStoreError(errorSubjectCustomer, errorCodeList, err)
	}
	return snapshot, nil
}

func (store *Store) loadHistory(ctx context.Context) (map[string][]ledger.TransactionRecord, error) {
	rows, err := store.pool.Query(ctx, sqlSelectTransactions)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	history := make(map[string][]ledger.TransactionRecord)
	for rows.Next() {
		var (
			customerID string
			row        transactionRow
		)
		if err := rows.Scan(&customerID, &row.transactionID, &row.direction, &row.amount, &row.memo, &row.createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
		}
		record, err := row.record()
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		history[customerID] = append(history[customerID], record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return history, nil
}

// PersistSnapshot replaces every table inside one transaction.
func (store *Store) PersistSnapshot(ctx context.Context, snapshot ledger.Snapshot) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := persistWithinTx(ctx, tx, snapshot); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func persistWithinTx(ctx context.Context, tx pgx.Tx, snapshot ledger.Snapshot) error {
	if _, err := tx.Exec(ctx, sqlDeleteCustomers); err != nil {
		return wrapStoreError(errorSubjectCustomer, errorCodeClear, err)
	}
	customers, transactions, err := copyRows(snapshot)
	if err != nil {
		return wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"customers"}, customerColumns, pgx.CopyFromRows(customers)); err != nil {
		return wrapInsertError(errorSubjectCustomer, err)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"customer_transactions"}, transactionColumns, pgx.CopyFromRows(transactions)); err != nil {
		return wrapInsertError(errorSubjectTransaction, err)
	}
	if _, err := tx.Exec(ctx, sqlUpsertState, snapshot.LastSequenceNumber); err != nil {
		return wrapStoreError(errorSubjectState, errorCodeSave, err)
	}
	return nil
}

// copyRows flattens a snapshot into COPY rows. Positions keep directory order
// and newest-first history order.
func copyRows(snapshot ledger.Snapshot) ([][]any, [][]any, error) {
	customers := make([][]any, 0, len(snapshot.Accounts))
	var transactions [][]any
	for position, account := range snapshot.Accounts {
		var creditLimit pgtype.Numeric
		if account.HasCreditLimit {
			parsed, err := numeric(account.CreditLimit)
			if err != nil {
				return nil, nil, err
			}
			creditLimit = parsed
		}
		balance, err := numeric(account.Balance)
		if err != nil {
			return nil, nil, err
		}
		customers = append(customers, []any{
			account.CustomerID,
			position,
			account.SequenceNumber,
			account.Name,
			account.Contact,
			creditLimit,
			balance,
			account.CreatedAt.UTC(),
		})
		for transactionPosition, record := range account.Transactions {
			amount, err := numeric(record.Amount)
			if err != nil {
				return nil, nil, err
			}
			createdAt := record.CreatedAt.UTC()
			transactions = append(transactions, []any{
				account.CustomerID,
				record.TransactionID,
				transactionPosition,
				record.Direction,
				amount,
				record.Memo,
				pgtype.Date{Time: time.Date(createdAt.Year(), createdAt.Month(), createdAt.Day(), 0, 0, 0, 0, time.UTC), Valid: true},
				createdAt,
			})
		}
	}
	return customers, transactions, nil
}

func numeric(money ledger.Money) (pgtype.Numeric, error) {
	var value pgtype.Numeric
	if err := value.Scan(money.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return value, nil
}

type customerRow struct {
	customerID     string
	sequenceNumber string
	name           string
	contact        string
	creditLimit    string
	balance        string
	createdAt      time.Time
}

func (row customerRow) record(history []ledger.TransactionRecord) (ledger.AccountRecord, error) {
	balance, err := ledger.ParseMoney(row.balance)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	record := ledger.AccountRecord{
		CustomerID:     row.customerID,
		SequenceNumber: row.sequenceNumber,
		Name:           row.name,
		Contact:        row.contact,
		Balance:        balance,
		CreatedAt:      row.createdAt.UTC(),
		Transactions:   history,
	}
	if row.creditLimit != "" {
		limit, err := ledger.ParseMoney(row.creditLimit)
		if err != nil {
			return ledger.AccountRecord{}, err
		}
		record.CreditLimit = limit
		record.HasCreditLimit = true
	}
	return record, nil
}

type transactionRow struct {
	transactionID string
	direction     string
	amount        string
	memo          string
	createdAt     time.Time
}

func (row transactionRow) record() (ledger.TransactionRecord, error) {
	amount, err := ledger.ParseMoney(row.amount)
	if err != nil {
		return ledger.TransactionRecord{}, err
	}
	return ledger.TransactionRecord{
		TransactionID: row.transactionID,
		Direction:     row.direction,
		Amount:        amount,
		Memo:          row.memo,
		CreatedAt:     row.createdAt.UTC(),
	}, nil
}

func wrapInsertError(subject string, err error) error {
	if isUniqueConflict(err) {
		return wrapStoreError(subject, errorCodeDuplicate, err)
	}
	return wrapStoreError(subject, errorCodeInsert, err)
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
