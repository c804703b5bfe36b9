package domainerrors

import (
	"context"
	"errors"
	"net"
)

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in issuance or verification terms, not HTTP terms.
type Code string

const (
	CodeValidation Code = "validation"
	CodeEncoding   Code = "encoding"
	CodeWallet     Code = "wallet"
	CodeNetwork    Code = "network"
	CodeLedger     Code = "ledger"
	CodePending    Code = "pending"
	CodeConflict   Code = "reconciliation_conflict"

	// Off-chain record and transport codes
	CodeNotFound     Code = "not_found"
	CodeDuplicate    Code = "duplicate"
	CodeUnauthorized Code = "unauthorized"
	CodeInternal     Code = "internal_error"
)

// Reason refines a Code. Reasons are optional; an empty reason means "unspecified".
type Reason string

const (
	ReasonNone Reason = ""

	// Encoding and identifier limits
	ReasonAssetNameTooLong         Reason = "asset_name_too_long"
	ReasonSegmentTooLong           Reason = "segment_too_long"
	ReasonSegmentBoundaryViolation Reason = "segment_boundary_violation"
	ReasonNameTooLong              Reason = "name_too_long"

	// Wallet
	ReasonUserCancelled     Reason = "user_cancelled"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNoUTXO            Reason = "no_utxo"
	ReasonSignerUnavailable Reason = "signer_unavailable"

	// Ledger and network
	ReasonNotFound    Reason = "not_found"
	ReasonRejected    Reason = "rejected"
	ReasonTimeout     Reason = "timeout"
	ReasonUnavailable Reason = "unavailable"
	ReasonCancelled   Reason = "cancelled"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and client layers.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Reason != ReasonNone {
		return string(e.Code) + ": " + string(e.Reason)
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code, and by reason when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == ReasonNone || e.Reason == t.Reason
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Code == CodeNetwork
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewReason creates a domain error with a refining reason.
func NewReason(code Code, reason Reason, msg string) error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and reason are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Reason: existing.Reason, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// WrapReason wraps a foreign error under an explicit code and reason.
// Existing domain errors keep their classification.
func WrapReason(err error, code Code, reason Reason, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Reason: existing.Reason, Message: msg, Err: err}
	}
	return &Error{Code: code, Reason: reason, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// HasReason checks if an error is a domain error with the given code and reason.
func HasReason(err error, code Code, reason Reason) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code && e.Reason == reason
	}
	return false
}

// CodeOf returns the outermost domain code, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ReasonOf returns the outermost domain reason.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonNone
}

// IsRetryable reports whether err is a transient failure worth retrying by the caller.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Classify converts any error into a domain error. Domain errors pass through unchanged;
// timeouts and transport failures become network errors; everything else is internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeNetwork, Reason: ReasonTimeout, Message: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeValidation, Reason: ReasonCancelled, Message: "operation cancelled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Code: CodeNetwork, Reason: ReasonTimeout, Message: "network timeout", Err: err}
		}
		return &Error{Code: CodeNetwork, Reason: ReasonUnavailable, Message: "network failure", Err: err}
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Err: err}
}
