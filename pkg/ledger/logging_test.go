package ledger

import (
	"context"
	"errors"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) statuses() []string {
	statuses := make([]string, 0, len(logger.entries))
	for _, entry := range logger.entries {
		statuses = append(statuses, entry.Operation+":"+entry.Status)
	}
	return statuses
}

func TestServiceLogsOperations(test *testing.T) {
	test.Parallel()
	recorder := &recorderLogger{}
	service := mustNewService(test, &memoryStore{}, WithOperationLogger(recorder))
	account := mustCreateAccount(test, service, customerNameValue, "100")
	receipt := mustRecord(test, service, account.ID(), DirectionCredit, "80")
	if _, err := service.RecordTransaction(context.Background(), account.ID().String(), DirectionCredit, "50", "", WithinLimitOnly); !errors.Is(err, ErrLimitExceeded) {
		test.Fatalf(errorMismatchMessage, ErrLimitExceeded, err)
	}
	if _, err := service.RecordTransaction(context.Background(), account.ID().String(), DirectionPayment, "zero", "", WithinLimitOnly); err == nil {
		test.Fatalf("expected invalid amount to fail")
	}
	if _, err := service.ReverseTransaction(context.Background(), account.ID().String(), receipt.Transaction.ID().String()); err != nil {
		test.Fatalf("reverse: %v", err)
	}
	if err := service.DeleteAccount(context.Background(), account.ID().String()); err != nil {
		test.Fatalf("delete: %v", err)
	}

	want := []string{
		"create_account:ok",
		"record_transaction:ok",
		"record_transaction:declined",
		"record_transaction:error",
		"reverse_transaction:ok",
		"delete_account:ok",
	}
	got := recorder.statuses()
	if len(got) != len(want) {
		test.Fatalf(errorMismatchMessage, want, got)
	}
	for index := range want {
		if got[index] != want[index] {
			test.Fatalf(errorMismatchMessage, want, got)
		}
	}

	recorded := recorder.entries[1]
	if recorded.CustomerID != account.ID() || recorded.TransactionID != receipt.Transaction.ID() {
		test.Fatalf("unexpected identifiers in log entry: %+v", recorded)
	}
	if !recorded.Amount.Equal(MoneyFromInt(80)) || !recorded.Balance.Equal(MoneyFromInt(80)) {
		test.Fatalf("unexpected amounts in log entry: %+v", recorded)
	}
	reversed := recorder.entries[4]
	if reversed.Direction != DirectionCredit || !reversed.Balance.IsZero() {
		test.Fatalf("unexpected reversal log entry: %+v", reversed)
	}
}

func TestOperationStatus(test *testing.T) {
	test.Parallel()
	testCases := map[string]error{
		OperationStatusOK:       nil,
		OperationStatusDeclined: &LimitExceededError{},
		OperationStatusError:    ErrUnknownCustomer,
	}
	for want, err := range testCases {
		if got := OperationStatus(err); got != want {
			test.Fatalf(errorMismatchMessage, want, got)
		}
	}
}
