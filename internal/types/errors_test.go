package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := NewAppError(ErrCodeValidationWeight, "weight must be positive", nil)
	if got, want := appErr.Error(), "validation_invalid_weight: weight must be positive"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := NewAppError(ErrCodeInternalDB, "failed to insert notification", errors.New("connection reset"))
	if got, want := wrapped.Error(), "internal_database_error: failed to insert notification: connection reset"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAppErrorChain(t *testing.T) {
	sentinel := errors.New("sentinel")
	appErr := NewAppError(ErrCodeUpstreamBus, "send failed", sentinel)
	wrapped := fmt.Errorf("dequeue: %w", appErr)

	if !errors.Is(wrapped, sentinel) {
		t.Error("errors.Is should find the sentinel through AppError")
	}
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find the AppError")
	}
	if target.Code != ErrCodeUpstreamBus {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeUpstreamBus)
	}
	if NewAppError(ErrCodeNotFoundBundle, "missing", nil).Unwrap() != nil {
		t.Error("Unwrap() should be nil without an underlying error")
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	orig := NewAppErrorWithDetails(ErrCodeValidationOrigin, "unrecognized origin", nil,
		map[string]any{"origin": "Weather", "field": "origin"})

	merged := orig.WithDetails(map[string]any{"origin": "weather", "hint": "see AllOrigins"})

	if merged == orig {
		t.Fatal("WithDetails must return a copy")
	}
	if merged.Details["origin"] != "weather" || merged.Details["field"] != "origin" || merged.Details["hint"] != "see AllOrigins" {
		t.Errorf("unexpected merged details: %v", merged.Details)
	}
	if orig.Details["origin"] != "Weather" {
		t.Errorf("original details mutated: %v", orig.Details)
	}
	if _, ok := orig.Details["hint"]; ok {
		t.Error("original details gained a key")
	}

	fromNil := NewAppError(ErrCodeInternalUnexpected, "boom", nil).WithDetails(map[string]any{"k": 1})
	if fromNil.Details["k"] != 1 {
		t.Errorf("details = %v", fromNil.Details)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeValidationRecipient, http.StatusBadRequest},
		{ErrCodeValidationOrigin, http.StatusBadRequest},
		{ErrCodeValidationWeight, http.StatusBadRequest},
		{ErrCodeValidationNotificationID, http.StatusBadRequest},
		{ErrCodeValidationBundleID, http.StatusBadRequest},
		{ErrCodeValidationPayload, http.StatusBadRequest},
		{ErrCodeProtocolMalformed, http.StatusBadRequest},
		{ErrCodeNotFoundBundle, http.StatusNotFound},
		{ErrCodeNotFoundNotification, http.StatusNotFound},
		{ErrCodeConflictIdempotency, http.StatusConflict},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalStorageConflict, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeUpstreamBus, http.StatusBadGateway},
		{ErrCodeUpstreamContent, http.StatusBadGateway},
		{ErrCodeUpstreamContentTimeout, http.StatusGatewayTimeout},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
			if got := NewAppError(tt.code, "x", nil).HTTPStatus(); got != tt.want {
				t.Errorf("AppError.HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorClassifiers(t *testing.T) {
	validation := fmt.Errorf("submit: %w", NewAppError(ErrCodeValidationWeight, "bad", nil))
	protocol := NewAppError(ErrCodeProtocolMalformed, "bad bytes", nil)
	notFound := fmt.Errorf("load: %w", NewAppError(ErrCodeNotFoundBundle, "gone", nil))
	plain := errors.New("plain")

	if !IsValidation(validation) || IsValidation(protocol) || IsValidation(plain) || IsValidation(nil) {
		t.Error("IsValidation misclassified")
	}
	if !IsProtocol(protocol) || IsProtocol(validation) {
		t.Error("IsProtocol misclassified")
	}
	if !IsNotFound(notFound) || IsNotFound(plain) {
		t.Error("IsNotFound misclassified")
	}
	if !HasCode(notFound, ErrCodeNotFoundBundle) || HasCode(notFound, ErrCodeNotFoundNotification) {
		t.Error("HasCode misclassified")
	}
}
