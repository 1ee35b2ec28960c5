package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := NewInvalidRole("denied", nil)

	assert.True(t, HasCode(err, CodeInvalidRole))
	assert.False(t, HasCode(err, CodeInvalidStatus))
	assert.False(t, HasCode(errors.New("plain"), CodeInvalidRole))
	assert.False(t, HasCode(nil, CodeInvalidRole))

	wrapped := fmt.Errorf("context: %w", err)
	assert.True(t, HasCode(wrapped, CodeInvalidRole))
}

func TestRetryableFlags(t *testing.T) {
	retryable := []error{
		NewInvalidStatus("stale", nil),
		NewDuplicate("ticket", nil),
		NewConflict("conflict", nil),
	}
	for _, err := range retryable {
		assert.True(t, ToDomainError(err).Retryable, err.Error())
	}

	terminal := []error{
		NewInvalidRole("denied", nil),
		NewSchemaError("bad doc", nil),
		NewNotFound("ticket", nil),
	}
	for _, err := range terminal {
		assert.False(t, ToDomainError(err).Retryable, err.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{NewSchemaError("x", nil), http.StatusInternalServerError},
		{NewBrokerError("x", nil), http.StatusInternalServerError},
		{NewInvalidRole("x", nil), http.StatusForbidden},
		{NewInvalidStatus("x", nil), http.StatusConflict},
		{NewInvalidParameterValue("v", "field", "bad"), http.StatusBadRequest},
		{NewNotFound("ticket", nil), http.StatusNotFound},
		{NewDuringContract("tnt-1"), http.StatusConflict},
		{NewCancellationNGState("tnt-1"), http.StatusConflict},
		{NewQuotaExceeded("tnt-1", 5), http.StatusConflict},
		{NewUnauthorized("x"), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		domainErr := ToDomainError(tt.err)
		assert.Equal(t, tt.status, domainErr.HTTPStatus, domainErr.Code)
	}
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	domainErr := ToDomainError(pgx.ErrNoRows)
	require.NotNil(t, domainErr)
	assert.Equal(t, CodeNotFound, domainErr.Code)

	wrapped := fmt.Errorf("lookup: %w", pgx.ErrNoRows)
	assert.Equal(t, CodeNotFound, ToDomainError(wrapped).Code)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	cause := errors.New("boom")
	domainErr := ToDomainError(cause)
	require.NotNil(t, domainErr)
	assert.Equal(t, "INTERNAL_ERROR", domainErr.Code)
	assert.ErrorIs(t, domainErr, cause)

	assert.Nil(t, ToDomainError(nil))
}

func TestInvalidParameterValueDetails(t *testing.T) {
	domainErr := ToDomainError(NewInvalidParameterValue(42, "Quantity", "value is above the maximum of 10"))

	assert.Equal(t, "42", domainErr.Details["value"])
	assert.Equal(t, "Quantity", domainErr.Details["parameter"])
	assert.Contains(t, domainErr.Message, "Quantity")
}
