package ledger

import "time"

// Dashboard holds the figures shown on the shop's summary cards.
type Dashboard struct {
	TotalOutstanding  Money
	TodaysCollections Money
	CustomerCount     int
	OverLimitCount    int
}

// TotalOutstanding sums positive balances. Overpaid accounts do not offset debts owed by others.
func TotalOutstanding(accounts []Account) Money {
	var total Money
	for _, account := range accounts {
		if account.balance.IsPositive() {
			total = total.Add(account.balance)
		}
	}
	return total
}

// TodaysCollections sums payments whose calendar date, in today's location, equals today's.
func TodaysCollections(accounts []Account, today time.Time) Money {
	var total Money
	for _, account := range accounts {
		for _, transaction := range account.transactions {
			if transaction.direction != DirectionPayment {
				continue
			}
			if sameDay(transaction.createdAt, today) {
				total = total.Add(transaction.amount)
			}
		}
	}
	return total
}

// Summarize computes every dashboard figure.
func Summarize(accounts []Account, today time.Time, defaultLimit Money) Dashboard {
	overLimit := 0
	for _, account := range accounts {
		if account.IsOverLimit(defaultLimit) {
			overLimit++
		}
	}
	return Dashboard{
		TotalOutstanding:  TotalOutstanding(accounts),
		TodaysCollections: TodaysCollections(accounts, today),
		CustomerCount:     len(accounts),
		OverLimitCount:    overLimit,
	}
}

func sameDay(instant time.Time, reference time.Time) bool {
	localYear, localMonth, localDay := instant.In(reference.Location()).Date()
	year, month, day := reference.Date()
	return localYear == year && localMonth == month && localDay == day
}
