package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrValidation         ErrorType = "VALIDATION_ERROR"
	ErrProtocolMismatch   ErrorType = "PROTOCOL_MISMATCH"
	ErrSigning            ErrorType = "SIGNING_ERROR"
	ErrMissingCredentials ErrorType = "MISSING_CREDENTIALS"
	ErrAuthFailed         ErrorType = "AUTH_FAILED"
	ErrAuthRejected       ErrorType = "AUTH_REJECTED"
	ErrGeoBlocked         ErrorType = "GEO_BLOCKED"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrValidationRejected ErrorType = "VALIDATION_REJECTED"
	ErrServer             ErrorType = "SERVER_ERROR"
	ErrNetwork            ErrorType = "NETWORK_ERROR"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application.
// Every failure that crosses the tool boundary is one of these.
type AppError struct {
	Type         ErrorType `json:"code"`
	Message      string    `json:"message"`
	Suggestion   string    `json:"suggestion,omitempty"`
	ExchangeCode int64     `json:"exchange_code,omitempty"`
	HTTPStatus   int       `json:"-"`
	Cause        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewValidation(msg string) *AppError {
	return New(ErrValidation, msg, nil)
}

func NewProtocolMismatch(msg string) *AppError {
	return New(ErrProtocolMismatch, msg, nil)
}

func NewSigning(msg string, cause error) *AppError {
	return New(ErrSigning, msg, cause)
}

// Wrap converts any error into an AppError, passing AppErrors through
// untouched so classification survives layer boundaries.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err carries the given classification.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == t
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrValidation, ErrValidationRejected:
		return http.StatusBadRequest
	case ErrAuthFailed, ErrAuthRejected, ErrMissingCredentials:
		return http.StatusUnauthorized
	case ErrGeoBlocked:
		return http.StatusForbidden
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrNotFound:
		return http.StatusNotFound
	case ErrProtocolMismatch, ErrSigning:
		return http.StatusUnprocessableEntity
	case ErrServer, ErrNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrMissingCredentials:
		return "Provision the session key, wallet address and subaccount id before starting."
	case ErrAuthFailed:
		return "Check that the session key is registered for this wallet and subaccount."
	case ErrGeoBlocked:
		return "The exchange rejected the request for regional policy reasons."
	case ErrRateLimited:
		return "Reduce call frequency and try again later."
	case ErrProtocolMismatch:
		return "Update the protocol constants table to the exchange's published schema."
	case ErrValidationRejected:
		return "The exchange rejected the payload. Check nonce, expiry and field encoding."
	default:
		return ""
	}
}
