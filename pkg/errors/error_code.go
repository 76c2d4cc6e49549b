package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199). Fatal at startup.
	ErrCodeConfiguration    ErrorCode = 100
	ErrCodeMissingSecret    ErrorCode = 101
	ErrCodeUnsupportedDex   ErrorCode = 102
	ErrCodeInvalidEnvMode   ErrorCode = 103
	ErrCodeMetadataLoadFail ErrorCode = 104

	// Request errors (200-299)
	ErrCodeInvalidParameter  ErrorCode = 200
	ErrCodeMissingParameter  ErrorCode = 201
	ErrCodeUnsupportedSymbol ErrorCode = 202
	ErrCodeNotFound          ErrorCode = 203

	// Upstream errors (300-399)
	ErrCodeUpstream        ErrorCode = 300
	ErrCodeUpstreamTimeout ErrorCode = 301
	ErrCodeOrderRejected   ErrorCode = 302

	// Data shape errors (400-499)
	ErrCodeDataShape ErrorCode = 400

	// Market data errors (500-599)
	ErrCodePriceUnavailable ErrorCode = 500
)
