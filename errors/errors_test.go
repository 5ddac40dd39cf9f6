package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
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

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"unavailable", ErrUnavailable, true},
		{"rate limited", ErrRateLimited, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"circuit open", ErrCircuitOpen, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"invalid input", ErrInvalidInput, false},
		{"unknown ontology", ErrUnknownOntology, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"http 429 text", fmt.Errorf("too many requests"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
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

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid input", ErrInvalidInput, true},
		{"batch too large", ErrBatchTooLarge, true},
		{"invalid config", ErrInvalidConfig, true},
		{"unavailable", ErrUnavailable, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsInvalid(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"unknown ontology", ErrUnknownOntology, true},
		{"unknown adapter kind", ErrUnknownAdapterKind, true},
		{"missing config", ErrMissingConfig, true},
		{"no path", ErrNoPath, false},
		{"unavailable", ErrUnavailable, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsFatal(test.err); got != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, got, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(ErrUnknownOntology) != ErrorFatal {
		t.Error("unknown ontology should classify fatal")
	}
	if Classify(ErrInvalidInput) != ErrorInvalid {
		t.Error("invalid input should classify invalid")
	}
	if Classify(ErrUnavailable) != ErrorTransient {
		t.Error("unavailable should classify transient")
	}
	if Classify(fmt.Errorf("something novel")) != ErrorTransient {
		t.Error("unknown errors should default to transient")
	}
}

func TestWrapHelpers(t *testing.T) {
	base := errors.New("boom")

	wrapped := WrapTransient(base, "Executor", "runHop", "adapter call")
	if !IsTransient(wrapped) {
		t.Error("WrapTransient result should be transient")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if !strings.Contains(wrapped.Error(), "Executor.runHop: adapter call failed") {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}

	if WrapTransient(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
	if !IsInvalid(WrapInvalid(base, "a", "b", "c")) {
		t.Error("WrapInvalid result should be invalid")
	}
	if !IsFatal(WrapFatal(base, "a", "b", "c")) {
		t.Error("WrapFatal result should be fatal")
	}

	var ce *ClassifiedError
	if !errors.As(wrapped, &ce) {
		t.Fatal("expected ClassifiedError")
	}
	if ce.Component != "Executor" || ce.Operation != "runHop" {
		t.Errorf("unexpected context: %s.%s", ce.Component, ce.Operation)
	}
}
