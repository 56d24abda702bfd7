package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := New(ErrCategoryPartition, CodeDecodeFailed, "bad shard")
	expected := "[PARTITION:DECODE_FAILED] bad shard"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryStorage, CodeDownloadFailed, "download failed", cause)
	expected := "[STORAGE:DOWNLOAD_FAILED] download failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryPartition, CodePartitionLoadFailed, "load", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(ErrCategoryExpression, CodeEvalFailed, "first")
	err2 := New(ErrCategoryExpression, CodeEvalFailed, "second")
	err3 := New(ErrCategoryExpression, CodeParseFailed, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("month 2024-05: %w", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("Is should see through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryPartition, CodePartitionLoadFailed, true},
		{ErrCategoryPartition, CodeDecodeFailed, false},
		{ErrCategoryExpression, CodeEvalFailed, false},
		{ErrCategoryExpression, CodeParseFailed, false},
		{ErrCategoryView, CodeViewNotFound, false},
		{ErrCategoryValidation, CodeInvalidLevel, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are never retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(ErrCategoryView, CodeViewNotFound, "missing"))
	if GetCategory(err) != ErrCategoryView {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryView)
	}
	if GetCode(err) != CodeViewNotFound {
		t.Errorf("got %q, want %q", GetCode(err), CodeViewNotFound)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" || GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("plain errors have no category or code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidRange, "start after end")
	detailed := err.WithDetails(map[string]interface{}{"start": "2024-05-02"})

	if detailed.Details["start"] != "2024-05-02" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	if v := NewValidationError(CodeInvalidRequest, "bad body"); v.Category != ErrCategoryValidation {
		t.Error("NewValidationError mismatch")
	}
	if s := NewStorageError(CodeDownloadFailed, "s3 down", cause); s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}
	if p := NewPartitionError(CodePartitionLoadFailed, "load", cause); !p.Retryable {
		t.Error("NewPartitionError should be retryable for load failures")
	}
	if x := NewExpressionError(CodeEvalFailed, "eval", cause); x.Category != ErrCategoryExpression {
		t.Error("NewExpressionError mismatch")
	}
	if w := NewViewError(CodeViewCorrupt, "corrupt", cause); w.Category != ErrCategoryView {
		t.Error("NewViewError mismatch")
	}
	if i := NewInternalError("unexpected", cause); i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
