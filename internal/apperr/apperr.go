// Package apperr defines the stable error taxonomy codes clients and
// dashboards depend on, and a typed error that carries one alongside a
// human message and an optional wrapped cause.
package apperr

import "fmt"

// Code is one of the stable taxonomy strings from the ingestion spec.
// Clients and dashboards match on these; never rename one in place.
type Code string

const (
	CodeEmptyPayload      Code = "empty_payload"
	CodePayloadTooLarge   Code = "payload_too_large"
	CodeParseError        Code = "parse_error"
	CodeUnknownMetricType Code = "unknown_metric_type"
	CodeValidationError   Code = "validation_error"
	CodeDuplicatePayload  Code = "duplicate_payload"

	CodeAuthMissingCredential Code = "auth_missing_credential"
	CodeAuthBadFormat         Code = "auth_bad_format"
	CodeAuthInvalidKey        Code = "auth_invalid_key"

	CodeRateLimited Code = "rate_limited"

	CodeStoreTransient         Code = "store_transient"
	CodeStorePermanent         Code = "store_permanent"
	CodeParameterLimitExceeded Code = "parameter_limit_exceeded"

	CodeCancelled     Code = "cancelled"
	CodeTimeout       Code = "timeout"
	CodeInternalError Code = "internal_error"
)

// Error is a taxonomy-coded error. It never carries internal paths, store
// schema names, or stack traces in Message — those belong in logs only.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a taxonomy error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds a taxonomy error around a lower-level cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, if any, else CodeInternalError.
func CodeOf(err error) Code {
	var ae *Error
	if ok := asError(err, &ae); ok {
		return ae.Code
	}
	return CodeInternalError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
