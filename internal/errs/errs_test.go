package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{"invalid amount", ErrInvalidAmount, ClassValidation},
		{"field wrapped", Field("amount", ErrInvalidAmount), ClassValidation},
		{"insufficient funds with balance", fmt.Errorf("%w: available R$10.00", ErrInsufficientFunds), ClassBusiness},
		{"duplicate number", ErrDuplicateNumber, ClassConflict},
		{"not found", ErrNotFound, ClassNotFound},
		{"asset not found", ErrAssetNotFound, ClassExternal},
		{"rate unavailable", ErrRateUnavailable, ClassExternal},
		{"credential", ErrInvalidCredential, ClassUnauthorized},
		{"unknown", errors.New("pq: duplicate key value"), ClassInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrMissingParameter, http.StatusBadRequest},
		{ErrAssetNotFound, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrDuplicateAccount, http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidCredential, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.status)
		}
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := fmt.Errorf("insert position: %w", errors.New("sqlite: constraint failed"))
	if got := PublicMessage(err); got != "internal error" {
		t.Errorf("PublicMessage() = %q", got)
	}

	err = Field("ticker", ErrMissingParameter)
	if got := PublicMessage(err); got != "ticker: missing parameter" {
		t.Errorf("PublicMessage() = %q", got)
	}
}
