/**
 * Error Wrapping Utilities for TradeImport
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package errors

import (
	"errors"
	"fmt"
)

// Wrap prefixes err with message. A nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewSimple creates a plain error, typically the cause handed to New.
func NewSimple(message string) error {
	return errors.New(message)
}

// Errorf creates a formatted cause.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// WrapTyped wraps err as a typed error with no path.
func WrapTyped(errorType ErrorType, op string, err error) *Error {
	return New(errorType, op, "", err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsError finds the first *Error in err's chain.
func AsError(err error, target **Error) bool {
	if err == nil {
		return false
	}
	return errors.As(err, target)
}

// IsTemporary reports whether a chunk upload that failed with err is worth
// another attempt.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}

	var e *Error
	if AsError(err, &e) {
		return e.IsRetryable()
	}
	return GetErrorType(err) == ErrorTypeNetwork
}

// StatusCode returns the backend HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if AsError(err, &e) {
		return e.Code
	}
	return 0
}

// Message returns the text shown to users: the cause without the type
// and operation prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if AsError(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
