package ledger

// Operation names and outcome labels reported through OperationLog.
const (
	OperationCreateAccount      = "create_account"
	OperationDeleteAccount      = "delete_account"
	OperationRecordTransaction  = "record_transaction"
	OperationReverseTransaction = "reverse_transaction"

	OperationStatusOK       = "ok"
	OperationStatusError    = "error"
	OperationStatusDeclined = "declined"
)

const (
	defaultMemoCredit  = "Credit"
	defaultMemoPayment = "Payment"

	// DefaultCreditLimitUnits is the ceiling used when an account stores no explicit limit.
	DefaultCreditLimitUnits int64 = 5000

	// Bounds on parsed amounts and decoded money values.
	maxFractionDigits    = 8
	maxExponent          = 12
	maxSignificantDigits = 20

	errorOperationService = "service"
	errorSubjectSnapshot  = "snapshot"
	errorCodePersist      = "persist"
	errorCodeLoad         = "load"
)
