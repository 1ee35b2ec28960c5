package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes for the workflow engine taxonomy. Schema and broker errors are
// configuration problems and are never retryable; role, status and parameter
// errors are caller-correctable.
const (
	CodeSchemaError           = "SCHEMA_ERROR"
	CodeBrokerError           = "BROKER_ERROR"
	CodeInvalidRole           = "INVALID_ROLE"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodeInvalidParameterValue = "INVALID_PARAMETER_VALUE"
	CodeNotFound              = "NOT_FOUND"
	CodeDuplicate             = "DUPLICATE"
	CodeConflict              = "CONFLICT"
	CodeDuringContract        = "DURING_CONTRACT"
	CodeCancellationNGState   = "CANCELLATION_NG_STATE"
	CodeQuotaExceeded         = "QUOTA_EXCEEDED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// NewSchemaError flags a malformed ticket template document.
func NewSchemaError(message string, details map[string]any) error {
	return NewDomainError(CodeSchemaError, message, http.StatusInternalServerError, details)
}

// NewBrokerError flags malformed pattern data or an unresolvable hook handler.
func NewBrokerError(message string, details map[string]any) error {
	return NewDomainError(CodeBrokerError, message, http.StatusInternalServerError, details)
}

// NewInvalidRole rejects a transition the acting roles may not perform.
func NewInvalidRole(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidRole, message, http.StatusForbidden, details)
}

// NewInvalidStatus rejects a transition from a stale or impossible state.
// Retryable after the caller re-reads the current workflow row.
func NewInvalidStatus(message string, details map[string]any) error {
	e := NewDomainError(CodeInvalidStatus, message, http.StatusConflict, details)
	e.Retryable = true
	return e
}

// NewInvalidParameterValue rejects one submitted field value. The offending
// value, the parameter's display label and a readable reason travel in Details.
func NewInvalidParameterValue(value any, label, reason string) error {
	return NewDomainError(CodeInvalidParameterValue,
		fmt.Sprintf("invalid value for %s: %s", label, reason),
		http.StatusBadRequest,
		map[string]any{"value": fmt.Sprint(value), "parameter": label, "reason": reason})
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDuplicate reports an id collision on create.
func NewDuplicate(resource string, details map[string]any) error {
	e := NewDomainError(CodeDuplicate, fmt.Sprintf("%s already exists", resource), http.StatusConflict, details)
	e.Retryable = true
	return e
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	e := NewDomainError(CodeConflict, message, http.StatusConflict, details)
	e.Retryable = true
	return e
}

// NewDuringContract is the contract-uniqueness precondition failure.
func NewDuringContract(tenantID string) error {
	return NewDomainError(CodeDuringContract, "tenant already has an active contract",
		http.StatusConflict, map[string]any{"tenant_id": tenantID})
}

// NewCancellationNGState rejects cancellation of a contract that is not active.
func NewCancellationNGState(tenantID string) error {
	return NewDomainError(CodeCancellationNGState, "no cancellable contract for tenant",
		http.StatusConflict, map[string]any{"tenant_id": tenantID})
}

// NewQuotaExceeded reports a tenant resource quota overrun.
func NewQuotaExceeded(tenantID string, limit int64) error {
	return NewDomainError(CodeQuotaExceeded, "tenant quota exceeded",
		http.StatusConflict, map[string]any{"tenant_id": tenantID, "limit": limit})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
