package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Codec Errors
	ErrorCodeDecoding          ErrorCode = "DECODING_ERROR"
	ErrorCodeSignatureMismatch ErrorCode = "SIGNATURE_MISMATCH"
	ErrorCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayRejected        ErrorCode = "GATEWAY_REJECTED"
	ErrorCodeGatewayInvalidResponse ErrorCode = "GATEWAY_INVALID_RESPONSE"
	ErrorCodeGatewayUnknownOutcome  ErrorCode = "GATEWAY_UNKNOWN_OUTCOME"
	ErrorCodeGatewayUnavailable     ErrorCode = "GATEWAY_UNAVAILABLE"

	// Trade reference required for close/query/cancel
	ErrorCodeMissingTradeReference ErrorCode = "MISSING_TRADE_REFERENCE"

	// Order Errors (ORDER_*)
	ErrorCodeOrderNotFound        ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeOrderAlreadyRefunded ErrorCode = "ORDER_ALREADY_REFUNDED"
	ErrorCodeOrderNotRefundable   ErrorCode = "ORDER_NOT_REFUNDABLE"
	ErrorCodeOrderNotCapturable   ErrorCode = "ORDER_NOT_CAPTURABLE"
	ErrorCodeOrderAmountMismatch  ErrorCode = "ORDER_AMOUNT_MISMATCH"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeStoreError    ErrorCode = "INTERNAL_STORE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodeMissingTradeReference
}

// IsUnknownOutcome reports whether the request may or may not have been applied
// by the gateway. Callers must resolve it with a query, never a blind resend.
func IsUnknownOutcome(err error) bool {
	return IsDomainError(err, ErrorCodeGatewayUnknownOutcome)
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return IsDomainError(err, ErrorCodeOrderNotFound)
}

// GatewayRejection carries the gateway's status and message exactly as received.
type GatewayRejection struct {
	Status  string
	Message string
}

func (r *GatewayRejection) Error() string {
	return fmt.Sprintf("gateway rejected request: status=%s message=%s", r.Status, r.Message)
}

// NewGatewayRejected builds a GATEWAY_REJECTED error preserving the vendor code and message.
func NewGatewayRejected(status, message string) *DomainError {
	return WrapError(ErrorCodeGatewayRejected, message, &GatewayRejection{Status: status, Message: message}).
		WithDetail("status", status)
}

// AsGatewayRejection extracts the raw gateway rejection from err.
func AsGatewayRejection(err error) (*GatewayRejection, bool) {
	var rej *GatewayRejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// HTTPStatus maps an error code to the HTTP status an operator API should return.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeValidationFailed, ErrorCodeValidationAmountInvalid, ErrorCodeValidationMissingField,
		ErrorCodeMissingTradeReference, ErrorCodeOrderAlreadyRefunded, ErrorCodeOrderNotRefundable,
		ErrorCodeOrderNotCapturable, ErrorCodeOrderAmountMismatch, ErrorCodeDecoding:
		return http.StatusBadRequest
	case ErrorCodeSignatureMismatch:
		return http.StatusUnauthorized
	case ErrorCodeOrderNotFound:
		return http.StatusNotFound
	case ErrorCodeGatewayRejected:
		return http.StatusUnprocessableEntity
	case ErrorCodeGatewayUnknownOutcome:
		return http.StatusAccepted
	case ErrorCodeGatewayInvalidResponse:
		return http.StatusBadGateway
	case ErrorCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrSignatureMismatch     = NewDomainError(ErrorCodeSignatureMismatch, "signature does not match payload")
	ErrMissingTradeReference = NewDomainError(ErrorCodeMissingTradeReference, "gateway trade number is required")

	ErrOrderNotFound        = NewDomainError(ErrorCodeOrderNotFound, "order not found")
	ErrOrderAlreadyRefunded = NewDomainError(ErrorCodeOrderAlreadyRefunded, "order has already been refunded")
	ErrOrderAmountMismatch  = NewDomainError(ErrorCodeOrderAmountMismatch, "refund amount does not match order amount")

	ErrGatewayUnavailable = NewDomainError(ErrorCodeGatewayUnavailable, "payment gateway unavailable")
)
