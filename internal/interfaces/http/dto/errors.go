package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for unhandled faults. Its message never carries error details.
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeServiceBusy is used when a commit used up its retries on lock contention
	ErrCodeServiceBusy = "ERR_SERVICE_BUSY"
	// ErrCodeUpstream is used when the content backend behind a feature fails
	ErrCodeUpstream = "ERR_UPSTREAM"
)

// Validation error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeInvalidTier  = "ERR_INVALID_TIER"
)

// Authentication error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeUnknownFeature = "ERR_UNKNOWN_FEATURE"
	ErrCodeAlreadyExists  = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState   = "ERR_INVALID_STATE"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when a tier quota is used up
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Uniform messages for failures whose cause must not reach the client.
const (
	MessageInternal    = "An unexpected error occurred"
	MessageServiceBusy = "The service is busy, please try again"
	MessageUpstream    = "The feature could not be completed, please try again later"
	MessageRateLimited = "Usage limit reached for this feature"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeServiceBusy: http.StatusServiceUnavailable,
	ErrCodeUpstream:    http.StatusBadGateway,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeInvalidTier:  http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeUnknownFeature: http.StatusNotFound,
	ErrCodeAlreadyExists:  http.StatusConflict,
	ErrCodeInvalidState:   http.StatusUnprocessableEntity,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps shared.DomainError codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":        ErrCodeNotFound,
	"ALREADY_EXISTS":   ErrCodeAlreadyExists,
	"INVALID_INPUT":    ErrCodeInvalidInput,
	"INVALID_STATE":    ErrCodeInvalidState,
	"INVALID_ACCOUNT":  ErrCodeInvalidInput,
	"UNAUTHORIZED":     ErrCodeUnauthorized,
	"VALIDATION_ERROR": ErrCodeValidation,
	"UNKNOWN_FEATURE":  ErrCodeUnknownFeature,
	"INVALID_TIER":     ErrCodeInvalidTier,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Unknown codes fall back to ERR_INTERNAL so they never leak.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	if _, ok := ErrorCodeHTTPStatus[code]; ok {
		return code
	}
	return ErrCodeInternal
}
