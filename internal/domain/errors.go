package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions pipeline failures by how callers should react.
type ErrorKind string

const (
	// KindInput marks a malformed candidate: skip it, keep the batch.
	KindInput ErrorKind = "input"
	// KindConfig marks an unusable configuration: abort before work starts.
	KindConfig ErrorKind = "config"
	// KindStage marks a stage computation failure: degrade to neutral.
	KindStage ErrorKind = "stage"
	// KindTimeout marks a deadline hit: partial results are returned.
	KindTimeout ErrorKind = "timeout"
	// KindPersistence marks a storage failure: retry, then degrade.
	KindPersistence ErrorKind = "persistence"
	// KindOptimizer marks an optimization cycle failure: current
	// parameters stay untouched.
	KindOptimizer ErrorKind = "optimizer"
)

// Error is the typed failure every pipeline component reports. Code is a
// stable machine-readable identifier; Message is for humans and logs.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.err }

// Is matches two Errors by kind, so callers can branch on taxonomy with
// errors.Is(err, &Error{Kind: KindInput}).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	if other.Kind != "" && other.Kind != e.Kind {
		return false
	}
	if other.Code != "" && other.Code != e.Code {
		return false
	}
	return true
}

func newError(kind ErrorKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, err: cause}
}

// NewInputError reports a malformed candidate.
func NewInputError(code, msg string) *Error {
	return newError(KindInput, code, msg, nil)
}

// WrapInputError wraps a lower-level cause as a malformed-candidate failure.
func WrapInputError(code, msg string, cause error) *Error {
	return newError(KindInput, code, msg, cause)
}

// NewConfigError reports an unusable configuration.
func NewConfigError(code, msg string) *Error {
	return newError(KindConfig, code, msg, nil)
}

// WrapConfigError wraps a lower-level cause as a configuration failure.
func WrapConfigError(code, msg string, cause error) *Error {
	return newError(KindConfig, code, msg, cause)
}

// NewStageError reports a stage computation failure.
func NewStageError(code, msg string) *Error {
	return newError(KindStage, code, msg, nil)
}

// WrapStageError wraps a lower-level cause as a stage failure.
func WrapStageError(code, msg string, cause error) *Error {
	return newError(KindStage, code, msg, cause)
}

// NewTimeoutError reports a deadline hit.
func NewTimeoutError(code, msg string) *Error {
	return newError(KindTimeout, code, msg, nil)
}

// WrapPersistenceError wraps a storage failure.
func WrapPersistenceError(code, msg string, cause error) *Error {
	return newError(KindPersistence, code, msg, cause)
}

// NewOptimizerError reports an optimization cycle failure.
func NewOptimizerError(code, msg string) *Error {
	return newError(KindOptimizer, code, msg, nil)
}

// WrapOptimizerError wraps a lower-level cause as an optimizer failure.
func WrapOptimizerError(code, msg string, cause error) *Error {
	return newError(KindOptimizer, code, msg, cause)
}

// KindOf extracts the taxonomy kind from any error chain. Unclassified
// errors report KindStage, the safest degradation path.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStage
}

// CodeOf extracts the stable code from an error chain, or "unclassified".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "unclassified"
}
