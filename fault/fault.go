// Package fault defines the structured error type shared by the registry
// contracts and the host runtime.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/Code rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// KindUnauthorized marks calls rejected because the caller is not the
	// account the operation demands (contract owner, linked account, token
	// owner or approved delegate).
	KindUnauthorized Kind = "Unauthorized"

	// KindNotFound marks references to registry entries that do not exist.
	KindNotFound Kind = "NotFound"

	// KindAlreadyExists marks duplicate inserts. Duplicates are always fatal;
	// no add operation is an upsert except account linking.
	KindAlreadyExists Kind = "AlreadyExists"

	// KindInsufficientDeposit marks payable calls whose attached deposit does
	// not cover the required storage cost.
	KindInsufficientDeposit Kind = "InsufficientDeposit"

	// KindInvalidArgument marks malformed input: bad account ids, empty
	// payloads, self-transfers, approval id mismatches.
	KindInvalidArgument Kind = "InvalidArgument"

	// KindRemoteFailed marks resolution callbacks observing a failed
	// cross-contract call.
	KindRemoteFailed Kind = "RemoteFailed"

	KindInternal Kind = "Internal"
)

// Error is the structured error type for contract execution.
//
// Code is a stable identifier (e.g., MB-REG-002, MB-DEP-004) that names the
// violated invariant. Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New constructs a structured error.
func New(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Newf constructs a structured error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause. A nil cause degrades to New.
func Wrap(kind Kind, code, msg string, cause error) error {
	if cause == nil {
		return New(kind, code, msg)
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// CodeOf returns the stable Code for a structured error, or "" if unknown.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
