package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorCorrupted, "corrupted"},
		{ErrorUnrecoverable, "unrecoverable"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"decode failure", ErrDecode, true},
		{"line too long", fmt.Errorf("%w: no terminator within 64 bytes", ErrLineTooLong), true},
		{"no connection", fmt.Errorf("%w: dial tcp: connection refused", ErrNoConnection), true},
		{"eof", io.EOF, true},
		{"closed conn", fmt.Errorf("read: %w", net.ErrClosed), true},
		{"net timeout", timeoutErr{}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"too few values", ErrTooFewValues, false},
		{"storage unavailable", ErrStorageUnavailable, false},
		{"plain error", fmt.Errorf("connection refused by something"), false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified unrecoverable", &ClassifiedError{Class: ErrorUnrecoverable, Err: io.EOF}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsCorrupted(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"too few values", ErrTooFewValues, true},
		{"invalid date", fmt.Errorf("date '32-foo-16': %w", ErrInvalidDate), true},
		{"storage unavailable", ErrStorageUnavailable, false},
		{"word in message only", fmt.Errorf("corrupted sector"), false},
		{"classified corrupted", &ClassifiedError{Class: ErrorCorrupted, Err: fmt.Errorf("test")}, true},
		{"classified transient wrapping sentinel", &ClassifiedError{Class: ErrorTransient, Err: ErrTooFewValues}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsCorrupted(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsUnrecoverable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"too few values", ErrTooFewValues, false},
		{"connection lost", ErrConnectionLost, false},
		{"disk full in message only", fmt.Errorf("disk full"), false},
		{"classified unrecoverable", &ClassifiedError{Class: ErrorUnrecoverable, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsUnrecoverable(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"nil error", nil, ErrorTransient},
		{"transient", ErrConnectionLost, ErrorTransient},
		{"corrupted", ErrInvalidDate, ErrorCorrupted},
		{"unrecoverable", ErrStorageUnavailable, ErrorUnrecoverable},
		{"unknown", errors.New("something odd"), ErrorUnrecoverable},
		{"wrapped corrupted", WrapCorrupted(errors.New("bad"), "c", "m", "a"), ErrorCorrupted},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v", test.expected, result)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := errors.New("original error")

	wrapped := Wrap(original, "TestComponent", "TestMethod", "test action")
	expected := "TestComponent.TestMethod: test action failed: original error"
	if wrapped.Error() != expected {
		t.Errorf("expected %q, got %q", expected, wrapped.Error())
	}
	if !errors.Is(wrapped, original) {
		t.Error("wrapped error should unwrap to original")
	}

	if Wrap(nil, "c", "m", "a") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestClassifiedWrappers(t *testing.T) {
	original := errors.New("permission denied")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"corrupted", WrapCorrupted, ErrorCorrupted},
		{"unrecoverable", WrapUnrecoverable, ErrorUnrecoverable},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(original, "dailyfile", "Process", "append")

			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ClassifiedError, got %T", err)
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if ce.Component != "dailyfile" || ce.Operation != "Process" {
				t.Errorf("unexpected context %s.%s", ce.Component, ce.Operation)
			}
			if !strings.Contains(err.Error(), "permission denied") {
				t.Errorf("message should carry the underlying text, got %q", err.Error())
			}
			if !errors.Is(err, original) {
				t.Error("classified error should unwrap to original")
			}
			if test.wrap(nil, "c", "m", "a") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestClassifiedError_OuterClassWins(t *testing.T) {
	inner := WrapCorrupted(ErrInvalidDate, "dailyfile", "Filename", "parse day")
	outer := WrapUnrecoverable(inner, "collector", "OnData", "process")

	if !IsUnrecoverable(outer) {
		t.Error("outer classification should decide")
	}
	if IsCorrupted(outer) {
		t.Error("outer unrecoverable error should not report corrupted")
	}
}

func TestClassifiedError_MessageFallback(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorTransient, Err: ErrConnectionTimeout}
	if ce.Error() != ErrConnectionTimeout.Error() {
		t.Errorf("expected %q, got %q", ErrConnectionTimeout.Error(), ce.Error())
	}
}
