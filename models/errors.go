package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeAuthentication = "AUTHENTICATION_FAILED"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodePanic          = "EXTRACTION_PANIC"
	ErrCodeTimeout        = "EXTRACTION_TIMEOUT"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeBusy           = "BUSY"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExtractError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(code, message string, err error) *ExtractError {
	return &ExtractError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ExtractError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ExtractError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var xe *ExtractError
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ErrCodeInternal
}
