package shopapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
)

type unlockRequest struct {
	PIN string `json:"pin"`
}

type createCustomerRequest struct {
	Name        string         `json:"name"`
	Contact     string         `json:"contact"`
	CreditLimit flexibleAmount `json:"credit_limit"`
}

type transactionRequest struct {
	Direction string         `json:"direction"`
	Amount    flexibleAmount `json:"amount"`
	Memo      string         `json:"memo"`
	Confirm   bool           `json:"confirm"`
}

type customerPayload struct {
	ID                   string               `json:"id"`
	CustomerNumber       string               `json:"customer_number"`
	Name                 string               `json:"name"`
	Contact              string               `json:"contact"`
	CreditLimit          *ledger.Money        `json:"credit_limit"`
	EffectiveCreditLimit ledger.Money         `json:"effective_credit_limit"`
	Balance              ledger.Money         `json:"balance"`
	OverLimit            bool                 `json:"over_limit"`
	CreatedAt            time.Time            `json:"created_at"`
	Transactions         []transactionPayload `json:"transactions,omitempty"`
}

type transactionPayload struct {
	ID        string       `json:"id"`
	Direction string       `json:"direction"`
	Amount    ledger.Money `json:"amount"`
	Memo      string       `json:"memo"`
	CreatedAt time.Time    `json:"created_at"`
}

type receiptPayload struct {
	Customer     customerPayload    `json:"customer"`
	Transaction  transactionPayload `json:"transaction"`
	Message      string             `json:"message"`
	WhatsAppLink string             `json:"whatsapp_link,omitempty"`
}

type limitPayload struct {
	Limit            ledger.Money `json:"limit"`
	CurrentBalance   ledger.Money `json:"current_balance"`
	ProjectedBalance ledger.Money `json:"projected_balance"`
}

type dashboardPayload struct {
	Date              string       `json:"date"`
	TotalOutstanding  ledger.Money `json:"total_outstanding"`
	TodaysCollections ledger.Money `json:"todays_collections"`
	CustomerCount     int          `json:"customer_count"`
	OverLimitCount    int          `json:"over_limit_count"`
}

func newCustomerPayload(account ledger.Account, defaultLimit ledger.Money, withHistory bool) customerPayload {
	payload := customerPayload{
		ID:                   account.ID().String(),
		CustomerNumber:       account.SequenceNumber().String(),
		Name:                 account.Name(),
		Contact:              account.Contact(),
		EffectiveCreditLimit: account.EffectiveCreditLimit(defaultLimit),
		Balance:              account.Balance(),
		OverLimit:            account.IsOverLimit(defaultLimit),
		CreatedAt:            account.CreatedAt(),
	}
	if limit, ok := account.CreditLimit(); ok {
		payload.CreditLimit = &limit
	}
	if withHistory {
		history := account.Transactions()
		payload.Transactions = make([]transactionPayload, 0, len(history))
		for _, transaction := range history {
			payload.Transactions = append(payload.Transactions, newTransactionPayload(transaction))
		}
	}
	return payload
}

func newTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		ID:        transaction.ID().String(),
		Direction: transaction.Direction().String(),
		Amount:    transaction.Amount(),
		Memo:      transaction.Memo(),
		CreatedAt: transaction.CreatedAt(),
	}
}
