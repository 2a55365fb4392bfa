package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Money is a finite decimal amount in the shop's single implicit currency.
type Money struct {
	value decimal.Decimal
}

// NewMoney wraps a decimal value.
func NewMoney(value decimal.Decimal) Money {
	return Money{value: value}
}

// MoneyFromInt returns a whole-unit amount.
func MoneyFromInt(units int64) Money {
	return Money{value: decimal.NewFromInt(units)}
}

// ParseMoney parses any finite decimal, including zero and negative values.
func ParseMoney(raw string) (Money, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Money{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, trimmed)
	}
	if err := checkBounds(value); err != nil {
		return Money{}, fmt.Errorf("%w (%q)", err, trimmed)
	}
	return Money{value: value}, nil
}

// checkBounds rejects values with extreme exponents or too many digits.
func checkBounds(value decimal.Decimal) error {
	exponent := value.Exponent()
	if exponent < -maxFractionDigits || exponent > maxExponent {
		return fmt.Errorf("%w: exponent %d is out of range", ErrInvalidAmount, exponent)
	}
	if value.NumDigits() > maxSignificantDigits {
		return fmt.Errorf("%w: more than %d significant digits", ErrInvalidAmount, maxSignificantDigits)
	}
	return nil
}

// ParseAmount parses a transaction amount and ensures it is strictly positive.
func ParseAmount(raw string) (Money, error) {
	amount, err := ParseMoney(raw)
	if err != nil {
		return Money{}, err
	}
	if !amount.IsPositive() {
		return Money{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return amount, nil
}

// ParseCreditLimit reports an explicit ceiling only for positive numeric input.
func ParseCreditLimit(raw string) (Money, bool) {
	limit, err := ParseAmount(raw)
	if err != nil {
		return Money{}, false
	}
	return limit, true
}

// Decimal exposes the underlying decimal value.
func (money Money) Decimal() decimal.Decimal {
	return money.value
}

func (money Money) Add(other Money) Money {
	return Money{value: money.value.Add(other.value)}
}

func (money Money) Sub(other Money) Money {
	return Money{value: money.value.Sub(other.value)}
}

func (money Money) Neg() Money {
	return Money{value: money.value.Neg()}
}

func (money Money) Cmp(other Money) int {
	return money.value.Cmp(other.value)
}

func (money Money) Equal(other Money) bool {
	return money.value.Equal(other.value)
}

func (money Money) GreaterThan(other Money) bool {
	return money.value.GreaterThan(other.value)
}

func (money Money) IsPositive() bool {
	return money.value.IsPositive()
}

func (money Money) IsNegative() bool {
	return money.value.IsNegative()
}

func (money Money) IsZero() bool {
	return money.value.IsZero()
}

// StringFixed renders the amount with a fixed number of decimal places.
func (money Money) StringFixed(places int32) string {
	return money.value.StringFixed(places)
}

// String returns the shortest exact decimal representation.
func (money Money) String() string {
	return money.value.String()
}

// MarshalJSON encodes the amount as a quoted decimal string.
func (money Money) MarshalJSON() ([]byte, error) {
	return money.value.MarshalJSON()
}

// UnmarshalJSON accepts quoted or bare decimal numbers.
func (money *Money) UnmarshalJSON(raw []byte) error {
	var value decimal.Decimal
	if err := value.UnmarshalJSON(raw); err != nil {
		return err
	}
	if err := checkBounds(value); err != nil {
		return err
	}
	money.value = value
	return nil
}

// CustomerID is the stable identity of a customer account.
type CustomerID struct {
	value string
}

// NewCustomerID validates and normalizes a customer id.
func NewCustomerID(raw string) (CustomerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CustomerID{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	return CustomerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CustomerID) String() string {
	return id.value
}

// TransactionID identifies a single ledger entry.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// SequenceNumber is the operator-facing customer number.
type SequenceNumber string

// Value returns the numeric form; missing or non-numeric numbers count as 0.
func (number SequenceNumber) Value() int {
	parsed, err := strconv.Atoi(strings.TrimSpace(string(number)))
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

func (number SequenceNumber) String() string {
	return string(number)
}

// Direction says whether an entry increases or decreases what a customer owes.
type Direction string

const (
	DirectionCredit  Direction = "credit"
	DirectionPayment Direction = "payment"
)

// ParseDirection validates a direction.
func ParseDirection(raw string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case DirectionCredit:
		return DirectionCredit, nil
	case DirectionPayment:
		return DirectionPayment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, raw)
	}
}

func (direction Direction) String() string {
	return string(direction)
}

func (direction Direction) defaultMemo() string {
	if direction == DirectionCredit {
		return defaultMemoCredit
	}
	return defaultMemoPayment
}

// signed returns the contribution of amount to a balance.
func (direction Direction) signed(amount Money) Money {
	if direction == DirectionCredit {
		return amount
	}
	return amount.Neg()
}

// Transaction is a single immutable line in a customer's ledger.
type Transaction struct {
	id        TransactionID
	direction Direction
	amount    Money
	memo      string
	createdAt time.Time
}

// NewTransaction validates a ledger entry.
func NewTransaction(id TransactionID, direction Direction, amount Money, memo string, createdAt time.Time) (Transaction, error) {
	if id.value == "" {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	if _, err := ParseDirection(direction.String()); err != nil {
		return Transaction{}, err
	}
	if !amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	normalizedMemo := strings.TrimSpace(memo)
	if normalizedMemo == "" {
		normalizedMemo = direction.defaultMemo()
	}
	return Transaction{
		id:        id,
		direction: direction,
		amount:    amount,
		memo:      normalizedMemo,
		createdAt: createdAt,
	}, nil
}

func (transaction Transaction) ID() TransactionID {
	return transaction.id
}

func (transaction Transaction) Direction() Direction {
	return transaction.direction
}

func (transaction Transaction) Amount() Money {
	return transaction.amount
}

func (transaction Transaction) Memo() string {
	return transaction.memo
}

func (transaction Transaction) CreatedAt() time.Time {
	return transaction.createdAt
}

// SignedAmount is +amount for credits and -amount for payments.
func (transaction Transaction) SignedAmount() Money {
	return transaction.direction.signed(transaction.amount)
}

// Account is a customer with a running balance and a newest-first history.
type Account struct {
	id             CustomerID
	sequenceNumber SequenceNumber
	name           string
	contact        string
	creditLimit    Money
	hasCreditLimit bool
	balance        Money
	transactions   []Transaction
	createdAt      time.Time
}

func (account Account) ID() CustomerID {
	return account.id
}

func (account Account) SequenceNumber() SequenceNumber {
	return account.sequenceNumber
}

func (account Account) Name() string {
	return account.name
}

func (account Account) Contact() string {
	return account.contact
}

// CreditLimit returns the explicit ceiling, if one was stored.
func (account Account) CreditLimit() (Money, bool) {
	return account.creditLimit, account.hasCreditLimit
}

func (account Account) Balance() Money {
	return account.balance
}

func (account Account) CreatedAt() time.Time {
	return account.createdAt
}

// Transactions returns a copy of the history, newest first.
func (account Account) Transactions() []Transaction {
	history := make([]Transaction, len(account.transactions))
	copy(history, account.transactions)
	return history
}

// Transaction looks up an entry by id.
func (account Account) Transaction(id TransactionID) (Transaction, bool) {
	for _, transaction := range account.transactions {
		if transaction.id == id {
			return transaction, true
		}
	}
	return Transaction{}, false
}

// EffectiveCreditLimit is the explicit ceiling when set and positive, otherwise defaultLimit.
func (account Account) EffectiveCreditLimit(defaultLimit Money) Money {
	if account.hasCreditLimit && account.creditLimit.IsPositive() {
		return account.creditLimit
	}
	return defaultLimit
}

// IsOverLimit reports whether the balance is above the effective ceiling.
func (account Account) IsOverLimit(defaultLimit Money) bool {
	return account.balance.GreaterThan(account.EffectiveCreditLimit(defaultLimit))
}

// VerifyBalance re-sums the history and compares it with the running balance.
func VerifyBalance(account Account) error {
	var sum Money
	for _, transaction := range account.transactions {
		sum = sum.Add(transaction.SignedAmount())
	}
	if !sum.Equal(account.balance) {
		return fmt.Errorf("%w: customer %s balance %s, history sums to %s", ErrBalanceDrift, account.id, account.balance, sum)
	}
	return nil
}

func (account Account) clone() Account {
	duplicate := account
	duplicate.transactions = account.Transactions()
	return duplicate
}

// prepend applies a new entry; the balance moves by the entry's signed amount.
func (account *Account) prepend(transaction Transaction) {
	history := make([]Transaction, 0, len(account.transactions)+1)
	history = append(history, transaction)
	history = append(history, account.transactions...)
	account.transactions = history
	account.balance = account.balance.Add(transaction.SignedAmount())
}

// remove drops an entry by id and applies the inverse of its signed amount.
func (account *Account) remove(id TransactionID) (Transaction, bool) {
	for index, transaction := range account.transactions {
		if transaction.id != id {
			continue
		}
		history := make([]Transaction, 0, len(account.transactions)-1)
		history = append(history, account.transactions[:index]...)
		history = append(history, account.transactions[index+1:]...)
		account.transactions = history
		account.balance = account.balance.Sub(transaction.SignedAmount())
		return transaction, true
	}
	return Transaction{}, false
}
