package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKindMatchesWrappedError(t *testing.T) {
	base := New(KindNotFound, "MB-REG-001", "Municipality does not exist")
	wrapped := fmt.Errorf("add project: %w", base)

	if !IsKind(wrapped, KindNotFound) {
		t.Fatalf("IsKind(KindNotFound) = false, want true")
	}
	if IsKind(wrapped, KindAlreadyExists) {
		t.Fatalf("IsKind(KindAlreadyExists) = true, want false")
	}
	if got := CodeOf(wrapped); got != "MB-REG-001" {
		t.Fatalf("CodeOf = %q, want MB-REG-001", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindInternal, "MB-INT-001", "state write failed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As failed")
	}
	if e.Kind != KindInternal || e.Cause != cause {
		t.Fatalf("unexpected error contents: %+v", e)
	}
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(KindInvalidArgument, "MB-ARG-001", "bad input", nil)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As failed")
	}
	if e.Cause != nil {
		t.Fatalf("Cause = %v, want nil", e.Cause)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("CodeOf(plain) = %q, want empty", got)
	}
}
