/**
 * Error Types for TradeImport
 *
 * Defines structured error types with metadata for the bulk import engine:
 * validation, parse, transport, server, storage and reload-loss failures.
 *
 * Author: TradeImport Team
 * Created: 2025-02-11
 */

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeValidation represents a rejected file (type or size)
	ErrorTypeValidation

	// ErrorTypeParse represents malformed source data or a read failure
	ErrorTypeParse

	// ErrorTypeNetwork represents transport failures (transient)
	ErrorTypeNetwork

	// ErrorTypeServer represents a failure signalled by the backend
	ErrorTypeServer

	// ErrorTypeStorage represents durable storage errors
	ErrorTypeStorage

	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration

	// ErrorTypeContext represents context cancellation or timeout
	ErrorTypeContext

	// ErrorTypeReloadLoss represents file bytes lost across a restart
	ErrorTypeReloadLoss
)

// Sentinel errors shared by the driver and the queue.
var (
	ErrPaused            = stderrors.New("upload paused")
	ErrCancelled         = stderrors.New("upload cancelled")
	ErrCircuitOpen       = stderrors.New("stopped due to repeated consecutive failures")
	ErrItemNotFound      = stderrors.New("queue item not found")
	ErrInvalidTransition = stderrors.New("invalid status transition")
)

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeValidation:
		return "Validation"
	case ErrorTypeParse:
		return "Parse"
	case ErrorTypeNetwork:
		return "Network"
	case ErrorTypeServer:
		return "Server"
	case ErrorTypeStorage:
		return "Storage"
	case ErrorTypeConfiguration:
		return "Configuration"
	case ErrorTypeContext:
		return "Context"
	case ErrorTypeReloadLoss:
		return "ReloadLoss"
	default:
		return "Unknown"
	}
}

// IsRetryable returns whether the error type is retryable
func (et ErrorType) IsRetryable() bool {
	switch et {
	case ErrorTypeNetwork, ErrorTypeServer:
		return true
	default:
		return false
	}
}

// Error represents a structured error with metadata
type Error struct {
	// Type categorizes the error
	Type ErrorType

	// Op represents the operation being performed
	Op string

	// Path represents the file name or endpoint
	Path string

	// Err is the underlying error
	Err error

	// Code is the HTTP status returned by the backend, if any
	Code int

	// Timestamp when the error occurred
	Timestamp time.Time
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s [%s] %v", e.Type, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether the error is retryable
func (e *Error) IsRetryable() bool {
	return e.Type.IsRetryable()
}

// New creates a new Error
func New(errorType ErrorType, op, path string, err error) *Error {
	return &Error{
		Type:      errorType,
		Op:        op,
		Path:      path,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithCode adds an error code
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// IsContextError checks if the error is due to context cancellation
func IsContextError(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

// GetErrorType attempts to determine the error type from a generic error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var e *Error
	if AsError(err, &e) {
		return e.Type
	}

	if IsContextError(err) {
		return ErrorTypeContext
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}
