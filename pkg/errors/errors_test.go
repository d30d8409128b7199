package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
	}{
		{code: CodeValidation},
		{code: CodeNotFound},
		{code: CodeConflict},
		{code: CodeStateConflict},
		{code: CodeInvariant},
		{code: CodeInternal, retryable: true},
		{code: CodeDependency, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.Description == "" {
			t.Fatalf("code %s missing description", tt.code)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta != MetadataFor(CodeInternal) {
		t.Fatalf("expected internal metadata, got %+v", meta)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	cause := stdErrors.New("socket closed")
	wrapped := Wrap(CodeDependency, cause, "list output prefix")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected wrapped error to unwrap to cause")
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: list output prefix: socket closed" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}

	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatalf("nil cause should produce bare error")
	}
}

func TestAsAndIsCode(t *testing.T) {
	typed := New(CodeInvariant, "no streams").WithDetails(map[string]any{"content_hash": "h"})
	chained := fmt.Errorf("create conversions: %w", typed)

	got := As(chained)
	if got == nil || got.Code() != CodeInvariant {
		t.Fatalf("expected invariant error from chain, got %v", got)
	}
	if !IsCode(chained, CodeInvariant) {
		t.Fatalf("expected IsCode to match")
	}
	if IsCode(stdErrors.New("plain"), CodeInvariant) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
	if !IsRetryable(stdErrors.New("timeout")) {
		t.Fatalf("untyped errors are retryable")
	}
	if IsRetryable(New(CodeInvariant, "bad")) {
		t.Fatalf("invariant violations are not retryable")
	}
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("x"), "gcs")) {
		t.Fatalf("dependency errors are retryable")
	}
}
