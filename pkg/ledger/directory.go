package ledger

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// Directory is the ordered set of customer accounts. It is not safe for
// concurrent use; Service serialises access to it.
type Directory struct {
	accounts           []Account
	lastSequenceNumber int
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// RestoreDirectory rebuilds a directory from a persisted snapshot.
func RestoreDirectory(snapshot Snapshot) (*Directory, error) {
	directory := &Directory{
		accounts:           make([]Account, 0, len(snapshot.Accounts)),
		lastSequenceNumber: max(snapshot.LastSequenceNumber, 0),
	}
	seen := make(map[CustomerID]struct{}, len(snapshot.Accounts))
	seenTransactions := make(map[TransactionID]CustomerID)
	for _, record := range snapshot.Accounts {
		account, err := NewAccountFromRecord(record)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[account.id]; duplicate {
			return nil, fmt.Errorf("%w: duplicate customer %s", ErrInvalidSnapshot, account.id)
		}
		seen[account.id] = struct{}{}
		for _, transaction := range account.transactions {
			if owner, duplicate := seenTransactions[transaction.id]; duplicate {
				return nil, fmt.Errorf("%w: transaction %s appears under %s and %s", ErrInvalidSnapshot, transaction.id, owner, account.id)
			}
			seenTransactions[transaction.id] = account.id
		}
		directory.accounts = append(directory.accounts, account)
		directory.lastSequenceNumber = max(directory.lastSequenceNumber, account.sequenceNumber.Value())
	}
	return directory, nil
}

// Len returns the number of accounts.
func (directory *Directory) Len() int {
	return len(directory.accounts)
}

// Get returns a copy of the account with the given id.
func (directory *Directory) Get(id CustomerID) (Account, error) {
	index := directory.indexOf(id)
	if index < 0 {
		return Account{}, fmt.Errorf("%w: %s", ErrUnknownCustomer, id)
	}
	return directory.accounts[index].clone(), nil
}

// Accounts returns copies of every account in directory order.
func (directory *Directory) Accounts() []Account {
	accounts := make([]Account, 0, len(directory.accounts))
	for _, account := range directory.accounts {
		accounts = append(accounts, account.clone())
	}
	return accounts
}

// Find lazily yields accounts whose name contains query (case-insensitive)
// or whose customer number contains it. An empty query matches everything.
func (directory *Directory) Find(query string) iter.Seq[Account] {
	accounts := directory.accounts
	needle := strings.ToLower(strings.TrimSpace(query))
	return func(yield func(Account) bool) {
		for _, account := range accounts {
			if !matchesQuery(account, needle) {
				continue
			}
			if !yield(account.clone()) {
				return
			}
		}
	}
}

// NextSequenceNumber is one above the highest number ever issued or currently present.
func (directory *Directory) NextSequenceNumber() SequenceNumber {
	highest := directory.lastSequenceNumber
	for _, account := range directory.accounts {
		highest = max(highest, account.sequenceNumber.Value())
	}
	return SequenceNumber(strconv.Itoa(highest + 1))
}

// Create validates the name, assigns the next customer number and appends the account.
func (directory *Directory) Create(id CustomerID, name string, contact string, rawCreditLimit string, createdAt time.Time) (Account, error) {
	if id.value == "" {
		return Account{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Account{}, fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if directory.indexOf(id) >= 0 {
		return Account{}, fmt.Errorf("%w: customer %s already exists", ErrInvalidCustomerID, id)
	}
	creditLimit, hasCreditLimit := ParseCreditLimit(rawCreditLimit)
	sequenceNumber := directory.NextSequenceNumber()
	account := Account{
		id:             id,
		sequenceNumber: sequenceNumber,
		name:           trimmedName,
		contact:        strings.TrimSpace(contact),
		creditLimit:    creditLimit,
		hasCreditLimit: hasCreditLimit,
		transactions:   []Transaction{},
		createdAt:      createdAt,
	}
	directory.accounts = append(directory.accounts, account)
	directory.lastSequenceNumber = sequenceNumber.Value()
	return account.clone(), nil
}

// Delete removes the account and its history. Deleting a missing id is a no-op
// that reports false.
func (directory *Directory) Delete(id CustomerID) bool {
	index := directory.indexOf(id)
	if index < 0 {
		return false
	}
	accounts := make([]Account, 0, len(directory.accounts)-1)
	accounts = append(accounts, directory.accounts[:index]...)
	accounts = append(accounts, directory.accounts[index+1:]...)
	directory.accounts = accounts
	return true
}

// Snapshot returns the persisted form of the directory.
func (directory *Directory) Snapshot() Snapshot {
	records := make([]AccountRecord, 0, len(directory.accounts))
	highest := directory.lastSequenceNumber
	for _, account := range directory.accounts {
		records = append(records, account.Record())
		highest = max(highest, account.sequenceNumber.Value())
	}
	return Snapshot{LastSequenceNumber: highest, Accounts: records}
}

func (directory *Directory) clone() *Directory {
	accounts := make([]Account, len(directory.accounts))
	copy(accounts, directory.accounts)
	return &Directory{accounts: accounts, lastSequenceNumber: directory.lastSequenceNumber}
}

func (directory *Directory) replace(account Account) {
	index := directory.indexOf(account.id)
	if index < 0 {
		return
	}
	directory.accounts[index] = account
}

func (directory *Directory) indexOf(id CustomerID) int {
	for index, account := range directory.accounts {
		if account.id == id {
			return index
		}
	}
	return -1
}

func matchesQuery(account Account, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(account.name), needle) {
		return true
	}
	return account.sequenceNumber != "" && strings.Contains(strings.ToLower(account.sequenceNumber.String()), needle)
}
