// Package errors provides standardized error handling patterns for vmeflow
// components. It includes error classification, standard error variables, and
// helper functions for consistent error wrapping across the system.
package errors

import (
	"context"
	"errors"
	"strings"
)

// ErrorClass groups errors by how callers should react to them.
type ErrorClass int

const (
	// ErrorTransient marks temporary errors worth retrying.
	ErrorTransient ErrorClass = iota
	// ErrorInvalid marks errors caused by bad input or configuration.
	ErrorInvalid
	// ErrorFatal marks unrecoverable errors that should stop processing.
	ErrorFatal
)

var classNames = [...]string{
	ErrorTransient: "transient",
	ErrorInvalid:   "invalid",
	ErrorFatal:     "fatal",
}

func (ec ErrorClass) String() string {
	if ec >= 0 && int(ec) < len(classNames) {
		return classNames[ec]
	}
	return "unknown"
}

// ClassifiedError carries an error together with its class and the
// component and operation that produced it.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Sentinels that imply a class when no ClassifiedError is present in
// the chain.
var (
	transientSentinels = []error{
		ErrConnectionTimeout,
		ErrConnectionLost,
		ErrNoConnection,
		context.DeadlineExceeded,
		context.Canceled,
	}
	invalidSentinels = []error{
		ErrSemanticError,
		ErrFilterPattern,
		ErrSizeMismatch,
		ErrGraphMalformed,
		ErrInvalidFrame,
	}
	fatalSentinels = []error{
		ErrInvalidConfig,
		ErrMissingConfig,
		ErrArenaExhausted,
	}
)

// transientMarkers are message fragments from third-party errors that
// indicate a retryable condition.
var transientMarkers = []string{
	"timeout",
	"connection",
	"network",
	"temporary",
	"unavailable",
	"busy",
	"retry",
}

func isAny(err error, sentinels []error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// classOf extracts the class of the first ClassifiedError in the chain.
// An explicit class always beats sentinel and message heuristics.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	if isAny(err, transientSentinels) {
		return true
	}

	// Last resort for errors from libraries that expose no sentinels.
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsFatal reports whether err should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return isAny(err, fatalSentinels)
}

// IsInvalid reports whether err was caused by bad input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorInvalid
	}
	return isAny(err, invalidSentinels)
}

// Classify maps an error to its class. Unknown errors classify as
// transient so callers err on the side of retrying.
func Classify(err error) ErrorClass {
	switch {
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}
