package dto

import "net/http"

// Error codes returned by the HTTP surface.
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeInvalidJSON is used when the request body is not a JSON call
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeUnknownFunction is used when no connector function has the name
	ErrCodeUnknownFunction = "ERR_UNKNOWN_FUNCTION"
	// ErrCodeCallbackFailed is used when the envelope could not be delivered
	ErrCodeCallbackFailed = "ERR_CALLBACK_FAILED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnknownFunction: http.StatusNotFound,
	ErrCodeCallbackFailed:  http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
