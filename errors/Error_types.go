package errors

var (
	ErrUnknown              = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument      = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrThresholdExceeded    = New(ERR_THRESHOLD_EXCEEDED, "threshold exceeded")
	ErrNotFound             = New(ERR_NOT_FOUND, "not found")
	ErrProcessing           = New(ERR_PROCESSING, "error processing")
	ErrConfiguration        = New(ERR_CONFIGURATION, "configuration error")
	ErrContext              = New(ERR_CONTEXT, "context error")
	ErrContextCanceled      = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrError                = New(ERR_ERROR, "generic error")
	ErrBlockNotFound        = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid         = New(ERR_BLOCK_INVALID, "block invalid")
	ErrBlockExists          = New(ERR_BLOCK_EXISTS, "block exists")
	ErrBlockError           = New(ERR_BLOCK_ERROR, "block error")
	ErrBlockParentNotFound  = New(ERR_BLOCK_PARENT_NOT_FOUND, "block parent not found")
	ErrBlockMutated         = New(ERR_BLOCK_MUTATED, "block mutated")
	ErrBlockTooLarge        = New(ERR_BLOCK_TOO_LARGE, "block too large")
	ErrTxNotFound           = New(ERR_TX_NOT_FOUND, "tx not found")
	ErrTxInvalid            = New(ERR_TX_INVALID, "tx invalid")
	ErrTxInvalidDoubleSpend = New(ERR_TX_INVALID_DOUBLE_SPEND, "tx invalid double spend")
	ErrTxAlreadyExists      = New(ERR_TX_ALREADY_EXISTS, "tx already exists")
	ErrTxMissingInputs      = New(ERR_TX_MISSING_INPUTS, "tx missing inputs")
	ErrTxPolicy             = New(ERR_TX_NON_STANDARD, "tx non-standard")
	ErrTxError              = New(ERR_TX_ERROR, "tx error")
	ErrMempoolFull          = New(ERR_TX_MEMPOOL_FULL, "mempool full")
	ErrServiceUnavailable   = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrServiceError         = New(ERR_SERVICE_ERROR, "service error")
	ErrStorageUnavailable   = New(ERR_STORAGE_UNAVAILABLE, "storage unavailable")
	ErrStorageError         = New(ERR_STORAGE_ERROR, "storage error")
	ErrStoreCorrupt         = New(ERR_STORE_CORRUPT, "store corrupt")
	ErrBlobNotFound         = New(ERR_BLOB_NOT_FOUND, "blob not found")
	ErrSpent                = New(ERR_SPENT, "utxo already spent")
	ErrUtxoExists           = New(ERR_UTXO_EXISTS, "utxo already exists")
	ErrLockTime             = New(ERR_LOCKTIME, "Bad lock time")
	ErrInsufficientData     = New(ERR_INSUFFICIENT_DATA, "insufficient data")
)

// errors initialization functions

func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewError(message string, params ...interface{}) error {
	return New(ERR_ERROR, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}
func NewBlockExistsError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_EXISTS, message, params...)
}
func NewBlockParentNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_PARENT_NOT_FOUND, message, params...)
}
func NewBlockParentInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_PARENT_INVALID, message, params...)
}
func NewBlockMutatedError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_MUTATED, message, params...)
}
func NewBlockTooLargeError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_TOO_LARGE, message, params...)
}
func NewBlockMalformedError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_MALFORMED, message, params...)
}
func NewTxNotFoundError(message string, params ...interface{}) error {
	return New(ERR_TX_NOT_FOUND, message, params...)
}
func NewTxInvalidError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID, message, params...)
}
func NewTxInvalidDoubleSpendError(message string, params ...interface{}) error {
	return New(ERR_TX_INVALID_DOUBLE_SPEND, message, params...)
}
func NewTxAlreadyExistsError(message string, params ...interface{}) error {
	return New(ERR_TX_ALREADY_EXISTS, message, params...)
}
func NewTxError(message string, params ...interface{}) error {
	return New(ERR_TX_ERROR, message, params...)
}
func NewTxMalformedError(message string, params ...interface{}) error {
	return New(ERR_TX_MALFORMED, message, params...)
}
// NewTxMissingInputsError returns the concrete type so callers can attach the
// missing outpoint.
func NewTxMissingInputsError(message string, params ...interface{}) *Error {
	return New(ERR_TX_MISSING_INPUTS, message, params...)
}
func NewTxNonStandardError(message string, params ...interface{}) error {
	return New(ERR_TX_NON_STANDARD, message, params...)
}
func NewTxInsufficientFeeError(message string, params ...interface{}) error {
	return New(ERR_TX_INSUFFICIENT_FEE, message, params...)
}
func NewTxReplacementRejectedError(message string, params ...interface{}) error {
	return New(ERR_TX_REPLACEMENT_REJECTED, message, params...)
}
func NewMempoolFullError(message string, params ...interface{}) error {
	return New(ERR_TX_MEMPOOL_FULL, message, params...)
}
func NewScriptVerifyError(message string, params ...interface{}) error {
	return New(ERR_TX_SCRIPT_VERIFY, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewStorageError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_ERROR, message, params...)
}
func NewStorageUnavailableError(message string, params ...interface{}) error {
	return New(ERR_STORAGE_UNAVAILABLE, message, params...)
}
func NewStoreCorruptError(message string, params ...interface{}) error {
	return New(ERR_STORE_CORRUPT, message, params...)
}
func NewUtxoExistsError(message string, params ...interface{}) error {
	return New(ERR_UTXO_EXISTS, message, params...)
}
func NewBlobNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOB_NOT_FOUND, message, params...)
}
func NewBlobAlreadyExistsError(message string, params ...interface{}) error {
	return New(ERR_BLOB_EXISTS, message, params...)
}
func NewLockTimeError(message string, params ...interface{}) error {
	return New(ERR_LOCKTIME, message, params...)
}
func NewInsufficientDataError(message string, params ...interface{}) error {
	return New(ERR_INSUFFICIENT_DATA, message, params...)
}
