package protocol

// Error codes returned by the HTTP and WebSocket API.
const (
	ErrInvalidRequest     = "INVALID_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrResourceExhausted  = "RESOURCE_EXHAUSTED"
	ErrFailedPrecondition = "FAILED_PRECONDITION"
	ErrUnavailable        = "UNAVAILABLE"
	ErrStageFailed        = "STAGE_FAILED"
	ErrCanceled           = "CANCELED"
	ErrInternal           = "INTERNAL"
)
