package errors

import "fmt"

// Wrap adds context to an error following the standard pattern
// "component.method: action failed: %w". Wrapping nil returns nil.
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// wrapClass wraps err with context and attaches a class.
func wrapClass(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as retryable.
func WrapTransient(err error, component, method, action string) error {
	return wrapClass(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as unrecoverable.
func WrapFatal(err error, component, method, action string) error {
	return wrapClass(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as caused by bad input.
func WrapInvalid(err error, component, method, action string) error {
	return wrapClass(ErrorInvalid, err, component, method, action)
}

// Semanticf builds an ErrorInvalid classified error describing a build-time
// semantic error in an expression operator's output declaration. Graph
// construction aborts when one of these is returned.
func Semanticf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return &ClassifiedError{
		Class:     ErrorInvalid,
		Err:       fmt.Errorf("%w: %s", ErrSemanticError, msg),
		Message:   msg,
		Component: "engine",
		Operation: "build",
	}
}
