// Package domainerrors defines the ledger's error taxonomy. Every failure a
// caller can observe carries exactly one Code; services create or wrap errors
// with a code at the point where the rule is evaluated, and the transport
// layer maps codes to HTTP statuses without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are part of the public API: a failed
// invocation surfaces its code verbatim to the caller.
type Code string

const (
	// Authorization and lifecycle.
	CodeUnauthorized       Code = "unauthorized"
	CodeContractPaused     Code = "contract_paused"
	CodeReentrantCall      Code = "reentrant_call"
	CodeNotInitialized     Code = "not_initialized"
	CodeAlreadyInitialized Code = "already_initialized"

	// Arithmetic.
	CodeArithmeticOverflow  Code = "arithmetic_overflow"
	CodeArithmeticUnderflow Code = "arithmetic_underflow"

	// Balances, allowances, supply.
	CodeInsufficientSpendable Code = "insufficient_spendable"
	CodeInsufficientAllowance Code = "insufficient_allowance"
	CodeSupplyExceeded        Code = "supply_exceeded"

	// Compliance gating.
	CodeBlacklisted        Code = "blacklisted"
	CodeCountryNotAllowed  Code = "country_not_allowed"
	CodeRiskTooHigh        Code = "risk_too_high"
	CodeDailyLimitExceeded Code = "daily_limit_exceeded"

	// Vesting.
	CodeNothingToRelease Code = "nothing_to_release"
	CodeNotRevocable     Code = "not_revocable"
	CodeAlreadyRevoked   Code = "already_revoked"

	// Resource ceilings (schedule counts, storage keys).
	CodeLimitExceeded Code = "limit_exceeded"

	// Malformed input: non-positive amounts, bad KYC levels, invalid
	// vesting parameters. Not part of the rule-evaluation taxonomy proper.
	CodeInvalidArgument Code = "invalid_argument"

	// Infrastructure.
	CodeNotFound Code = "not_found"
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err already
// carries a domain code, that code is preserved so rule outcomes are not
// re-classified as they propagate.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		code = de.Code
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error, defaulting to CodeInternal for
// errors that did not originate in the domain.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// httpStatus maps each code to the status the transport layer returns.
var httpStatus = map[Code]int{
	CodeUnauthorized:          http.StatusForbidden,
	CodeContractPaused:        http.StatusConflict,
	CodeReentrantCall:         http.StatusConflict,
	CodeNotInitialized:        http.StatusConflict,
	CodeAlreadyInitialized:    http.StatusConflict,
	CodeArithmeticOverflow:    http.StatusUnprocessableEntity,
	CodeArithmeticUnderflow:   http.StatusUnprocessableEntity,
	CodeInsufficientSpendable: http.StatusUnprocessableEntity,
	CodeInsufficientAllowance: http.StatusUnprocessableEntity,
	CodeSupplyExceeded:        http.StatusUnprocessableEntity,
	CodeBlacklisted:           http.StatusForbidden,
	CodeCountryNotAllowed:     http.StatusForbidden,
	CodeRiskTooHigh:           http.StatusForbidden,
	CodeDailyLimitExceeded:    http.StatusTooManyRequests,
	CodeNothingToRelease:      http.StatusUnprocessableEntity,
	CodeNotRevocable:          http.StatusUnprocessableEntity,
	CodeAlreadyRevoked:        http.StatusConflict,
	CodeLimitExceeded:         http.StatusUnprocessableEntity,
	CodeInvalidArgument:       http.StatusBadRequest,
	CodeNotFound:              http.StatusNotFound,
	CodeInternal:              http.StatusInternalServerError,
}

// ToHTTPStatus returns the HTTP status for a code.
func ToHTTPStatus(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}
