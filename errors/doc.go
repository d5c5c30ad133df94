// Package errors provides standardized error handling patterns for vmeflow.
//
// # Overview
//
// Three error classes cover the system's failure modes: Transient (temporary,
// retryable - broken NATS connections, slow consumers), Invalid (bad input or
// configuration, non-retryable - malformed filter patterns, expression semantic
// errors, size mismatches at graph build time), and Fatal (unrecoverable -
// arena exhaustion, missing configuration).
//
// Per-event data anomalies - invalid parameters, histogram under/overflow -
// are explicitly NOT errors in vmeflow. They are modeled as data (the NaN
// invalid encoding and dedicated counters) and never travel through this
// package. Programming-contract violations in the analysis engine (mismatched
// graph wiring, unknown operator types) panic instead of returning errors;
// a malformed graph is a bug, not a runtime condition.
//
// # Error Wrapping Pattern
//
// All wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Feed", "Start", "nats connect")
//	errors.WrapInvalid(err, "Engine", "NewExpression", "begin script")
//	errors.WrapFatal(err, "Arena", "Alloc", "push parameter vector")
//
// Semanticf builds classified build-time semantic errors for the expression
// operator, mirroring the abort-construction contract: no partial graph is
// usable after a semantic error.
//
// # Integration with errors.Is/As
//
// All error types support standard library inspection:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("component=%s class=%s", ce.Component, ce.Class)
//	}
//
//	if errors.Is(err, errors.ErrSemanticError) {
//	    // surface the script error to the user
//	}
package errors
