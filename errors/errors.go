// Package errors provides the error classification used across the collector.
// It includes the error classes, standard error variables, and helper functions
// for consistent error wrapping and classification.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary transport errors handled by reconnecting
	ErrorTransient ErrorClass = iota
	// ErrorCorrupted represents a problem confined to a single data line
	ErrorCorrupted
	// ErrorUnrecoverable represents storage failures that must stop the process
	ErrorUnrecoverable
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorCorrupted:
		return "corrupted"
	case ErrorUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection and transport errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrDecode            = errors.New("data is not valid text")
	ErrLineTooLong       = errors.New("line too long")

	// Data line errors
	ErrTooFewValues = errors.New("line has less than three values")
	ErrInvalidDate  = errors.New("invalid date value")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf returns the class of the outermost ClassifiedError in the chain.
func classOf(err error) (ErrorClass, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	return 0, false
}

// IsTransient checks if an error is a transport problem that a reconnect may fix
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrLineTooLong) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsCorrupted checks if an error only affects the data line being processed
func IsCorrupted(err error) bool {
	if err == nil {
		return false
	}

	if class, ok := classOf(err); ok {
		return class == ErrorCorrupted
	}

	return errors.Is(err, ErrTooFewValues) ||
		errors.Is(err, ErrInvalidDate)
}

// IsUnrecoverable checks if an error must stop the collector
func IsUnrecoverable(err error) bool {
	if err == nil {
		return false
	}

	if class, ok := classOf(err); ok {
		return class == ErrorUnrecoverable
	}

	return errors.Is(err, ErrStorageUnavailable)
}

// Classify returns the error class for an error.
// Unknown errors are treated as unrecoverable so that nothing is silently dropped.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorTransient
	case IsCorrupted(err):
		return ErrorCorrupted
	case IsUnrecoverable(err):
		return ErrorUnrecoverable
	case IsTransient(err):
		return ErrorTransient
	default:
		return ErrorUnrecoverable
	}
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapCorrupted(), or WrapUnrecoverable() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapCorrupted wraps an error as corrupted data with context
func WrapCorrupted(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorCorrupted, wrappedErr, component, method, wrappedErr.Error())
}

// WrapUnrecoverable wraps an error as unrecoverable with context
func WrapUnrecoverable(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorUnrecoverable, wrappedErr, component, method, wrappedErr.Error())
}
