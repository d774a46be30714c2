// Package errs holds the failure taxonomy shared by the ledger, the
// investment orchestrator and the account lifecycle.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Validation failures.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidTaxID     = errors.New("invalid tax id")
)

// Business rule failures.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoAccount            = errors.New("no account")
	ErrNoInvestorProfile    = errors.New("no investor profile")
	ErrNonZeroBalance       = errors.New("account balance is not zero")
	ErrActivePositionsExist = errors.New("active investment positions exist")
	ErrAccountInactive      = errors.New("account is inactive")
	ErrIdentityUnconfirmed  = errors.New("identity not confirmed")
	ErrIdentityInactive     = errors.New("identity is inactive")
)

// Uniqueness failures.
var (
	ErrDuplicateAccount  = errors.New("identity already has an account")
	ErrDuplicateNumber   = errors.New("account number already in use")
	ErrDuplicateProfile  = errors.New("identity already has an investor profile")
	ErrDuplicateIdentity = errors.New("tax id or email already registered")
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnauthorized      = errors.New("unauthorized")
)

// External dependency failures. These are reported to the caller as client
// errors and never retried by the service.
var (
	ErrAssetNotFound   = errors.New("asset not found")
	ErrRateUnavailable = errors.New("exchange rate unavailable")
)

// ErrInternal is what callers see for anything unexpected.
var ErrInternal = errors.New("internal error")

// Class groups errors by how they are reported.
type Class int

const (
	ClassInternal Class = iota
	ClassValidation
	ClassBusiness
	ClassConflict
	ClassNotFound
	ClassExternal
	ClassUnauthorized
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassBusiness:
		return "business_rule"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not_found"
	case ClassExternal:
		return "external"
	case ClassUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// FieldError attaches the offending input field to a validation error.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Field wraps err with the name of the field that caused it.
func Field(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// Classify returns the reporting class of err. Unknown errors, including
// store constraint violations, are internal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassInternal
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingParameter),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidTaxID):
		return ClassValidation
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrNoAccount),
		errors.Is(err, ErrNoInvestorProfile),
		errors.Is(err, ErrNonZeroBalance),
		errors.Is(err, ErrActivePositionsExist),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrIdentityUnconfirmed),
		errors.Is(err, ErrIdentityInactive):
		return ClassBusiness
	case errors.Is(err, ErrDuplicateAccount),
		errors.Is(err, ErrDuplicateNumber),
		errors.Is(err, ErrDuplicateProfile),
		errors.Is(err, ErrDuplicateIdentity):
		return ClassConflict
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrAssetNotFound), errors.Is(err, ErrRateUnavailable):
		return ClassExternal
	case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrUnauthorized):
		return ClassUnauthorized
	default:
		return ClassInternal
	}
}

// HTTPStatus maps err to the response status used by the API.
func HTTPStatus(err error) int {
	switch Classify(err) {
	case ClassValidation, ClassExternal:
		return http.StatusBadRequest
	case ClassBusiness:
		return http.StatusUnprocessableEntity
	case ClassConflict:
		return http.StatusConflict
	case ClassNotFound:
		return http.StatusNotFound
	case ClassUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to a caller.
func PublicMessage(err error) string {
	if Classify(err) == ClassInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}

// IsInternal reports whether err falls outside the domain taxonomy.
func IsInternal(err error) bool {
	return err != nil && Classify(err) == ClassInternal
}
