package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidPair          ErrorCode = 102
	ErrCodeInvalidPrice         ErrorCode = 103
	ErrCodeInvalidQuantity      ErrorCode = 104
	ErrCodeInvalidGridLevels    ErrorCode = 105
	ErrCodeInvalidDecision      ErrorCode = 106
	ErrCodeMissingParameter     ErrorCode = 107

	// Repository errors (200-299)
	ErrCodeConfigNotFound   ErrorCode = 200
	ErrCodeOrderNotFound    ErrorCode = 201
	ErrCodeQueryFailed      ErrorCode = 202
	ErrCodeSaveFailed       ErrorCode = 203
	ErrCodeDecisionNotFound ErrorCode = 204
	ErrCodeStorageClosed    ErrorCode = 205

	// Exchange errors (300-399)
	ErrCodeExchangeUnavailable ErrorCode = 300
	ErrCodePriceFetchFailed    ErrorCode = 301
	ErrCodeBalanceFetchFailed  ErrorCode = 302
	ErrCodeOrderFetchFailed    ErrorCode = 303
	ErrCodeTradeFetchFailed    ErrorCode = 304
	ErrCodeNetworkError        ErrorCode = 305

	// Order execution errors (400-499)
	ErrCodeOrderFailed           ErrorCode = 400
	ErrCodeOrderRetriesExhausted ErrorCode = 401
	ErrCodeCancelFailed          ErrorCode = 402
	ErrCodeBelowMinimumValue     ErrorCode = 403
	ErrCodeInsufficientBalance   ErrorCode = 404
	ErrCodeDuplicateOrder        ErrorCode = 405

	// Risk errors (500-599)
	ErrCodeStopLossFailed    ErrorCode = 500
	ErrCodeTrailingUpFailed  ErrorCode = 501
	ErrCodeLiquidationFailed ErrorCode = 502

	// Scheduler/worker errors (600-699)
	ErrCodeWorkerAlreadyRunning ErrorCode = 600
	ErrCodeWorkerNotFound       ErrorCode = 601
	ErrCodeWorkerStopTimeout    ErrorCode = 602
	ErrCodeSchedulerStopped     ErrorCode = 603

	// Notification errors (700-799)
	ErrCodeNotificationFailed ErrorCode = 700
)
