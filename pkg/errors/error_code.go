package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199): synchronous, caller-recoverable.
	ErrCodeInvalidConfiguration   ErrorCode = 100
	ErrCodeInvalidInstrument      ErrorCode = 101
	ErrCodeInvalidInterval        ErrorCode = 102
	ErrCodeInvalidOrderParameters ErrorCode = 103
	ErrCodeInvalidTradingWindow   ErrorCode = 104

	// Session errors (200-299)
	ErrCodeNotConnected   ErrorCode = 200
	ErrCodeConnectionLost ErrorCode = 201

	// Market data errors (300-399)
	ErrCodeDataUnavailable  ErrorCode = 300
	ErrCodeDataSourceFailed ErrorCode = 301
	ErrCodeQueryFailed      ErrorCode = 302

	// Trading errors (400-499). Rejections and cancel failures normally
	// travel through order events; the codes exist for callers that need
	// to wrap those reports into an error value.
	ErrCodeOrderRejected ErrorCode = 400
	ErrCodeCancelFailed  ErrorCode = 401
	ErrCodeOrderFailed   ErrorCode = 402

	// Strategy errors (500-599)
	ErrCodeStrategyNotFound     ErrorCode = 500
	ErrCodeStrategyInitFailed   ErrorCode = 501
	ErrCodeInvalidLifecycle     ErrorCode = 502
	ErrCodeStrategyRuntimeError ErrorCode = 503

	// Adapter/runner errors (600-699)
	ErrCodeFatalAdapter      ErrorCode = 600
	ErrCodeAdapterInitFailed ErrorCode = 601
	ErrCodeRunnerShutdown    ErrorCode = 602
)
