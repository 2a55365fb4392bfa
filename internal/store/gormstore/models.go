package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// directoryStateKey is the primary key of the single directory_state row.
const directoryStateKey = 1

// Customer represents the customers table.
type Customer struct {
	CustomerID     string              `gorm:"primaryKey"`
	Position       int                 `gorm:"not null;index:idx_customers_position"`
	SequenceNumber string              `gorm:"not null;default:''"`
	Name           string              `gorm:"not null"`
	Contact        string              `gorm:"not null;default:''"`
	CreditLimit    decimal.NullDecimal `gorm:"type:text"`
	Balance        decimal.Decimal     `gorm:"type:text;not null"`
	CreatedAt      time.Time           `gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

// CustomerTransaction mirrors the customer_transactions table.
type CustomerTransaction struct {
	CustomerID    string          `gorm:"primaryKey;index:idx_customer_transactions_position,priority:1"`
	TransactionID string          `gorm:"primaryKey"`
	Position      int             `gorm:"not null;index:idx_customer_transactions_position,priority:2"`
	Direction     string          `gorm:"not null"`
	Amount        decimal.Decimal `gorm:"type:text;not null"`
	Memo          string          `gorm:"not null;default:''"`
	Day           datatypes.Date  `gorm:"not null;index:idx_customer_transactions_day"`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (CustomerTransaction) TableName() string { return "customer_transactions" }

// DirectoryState holds the customer number high-water mark.
type DirectoryState struct {
	ID                 int       `gorm:"primaryKey;autoIncrement:false"`
	LastSequenceNumber int       `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

func (DirectoryState) TableName() string { return "directory_state" }

// Models lists every table the store needs, for AutoMigrate.
func Models() []any {
	return []any{&Customer{}, &CustomerTransaction{}, &DirectoryState{}}
}
