package billing

import "errors"

var (
	// ErrInvalidPayload is returned when a charge payload misses required fields.
	ErrInvalidPayload = errors.New("billing: invalid charge payload")

	// ErrChargerRequired is returned by NewChargeHandler without a charger.
	ErrChargerRequired = errors.New("billing: charger is required")

	// ErrDBRequired is returned by NewPostgresLedger without a database handle.
	ErrDBRequired = errors.New("billing: db is required")

	// ErrLedgerRequired is returned by NewChargeHandler without a ledger.
	ErrLedgerRequired = errors.New("billing: ledger is required")

	// ErrTokenRejected is returned when the payment token fails validation.
	ErrTokenRejected = errors.New("billing: payment token rejected")

	// ErrRecordPayment wraps ledger write failures.
	ErrRecordPayment = errors.New("billing: failed to record payment")
)

var errJobIDRequired = errors.New("job id is required")
