package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New("test error")
	if err == nil {
		t.Fatal("New() returned nil")
	}

	if err.Error() != "test error" {
		t.Errorf("Expected message 'test error', got: %s", err.Error())
	}

	if !strings.HasPrefix(err.Location(), "errors_test.go:") {
		t.Errorf("Expected location in errors_test.go, got: %s", err.Location())
	}
}

func TestWrap(t *testing.T) {
	baseErr := errors.New("base error")
	err := Wrap(baseErr, "wrapped")

	if !strings.Contains(err.Error(), "wrapped") || !strings.Contains(err.Error(), "base error") {
		t.Errorf("Expected both messages in error, got: %s", err.Error())
	}

	if errors.Unwrap(err) != baseErr {
		t.Errorf("Unwrap() returned wrong error: %v", errors.Unwrap(err))
	}

	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWithFieldDoesNotMutateOriginal(t *testing.T) {
	base := New("test error")
	withField := base.WithField("key", "value")

	if len(base.GetFields()) != 0 {
		t.Errorf("Original error fields were modified: %v", base.GetFields())
	}
	if withField.GetFields()["key"] != "value" {
		t.Errorf("Expected field['key'] = 'value', got: %v", withField.GetFields()["key"])
	}
}

func TestWithFieldsAndCode(t *testing.T) {
	err := New("test error").WithFields(map[string]interface{}{
		"key1": "value1",
		"key2": 123,
	}).WithCode("TEST_CODE")

	if len(err.GetFields()) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(err.GetFields()))
	}
	if err.GetCode() != "TEST_CODE" {
		t.Errorf("Expected code 'TEST_CODE', got: %s", err.GetCode())
	}
	if GetErrorCode(err) != "TEST_CODE" {
		t.Errorf("GetErrorCode() should return 'TEST_CODE', got: %s", GetErrorCode(err))
	}
}

func TestDomainConstructors(t *testing.T) {
	src := NewSourceUnavailable("https://example.invalid/tickets", errors.New("dial tcp: refused"))
	if !errors.Is(src, ErrSourceUnavailable) {
		t.Error("errors.Is() should match ErrSourceUnavailable")
	}
	if GetErrorFields(src)["source"] != "https://example.invalid/tickets" {
		t.Errorf("Expected source field, got: %v", GetErrorFields(src))
	}

	malformed := NewMalformedSource("unexpected token")
	if !IsErrorType(malformed, ErrMalformedSource) {
		t.Error("IsErrorType() should match ErrMalformedSource")
	}

	scoring := NewScoringFailed("Server error: 503", map[string]interface{}{"status": 503})
	if !errors.Is(scoring, ErrScoringFailed) {
		t.Error("errors.Is() should match ErrScoringFailed")
	}
	if !strings.Contains(scoring.Error(), "Server error: 503") {
		t.Errorf("Expected reason in message, got: %s", scoring.Error())
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"NotFound", ErrNotFound, http.StatusNotFound},
		{"InvalidInput", ErrInvalidInput, http.StatusBadRequest},
		{"Wrapped", Wrap(ErrNotFound, "wrapped"), http.StatusNotFound},
		{"Unknown", errors.New("unknown"), http.StatusInternalServerError},
		{"ScoringFailed", NewScoringFailed("timeout"), http.StatusBadGateway},
		{"EmptyText", ErrEmptyText, http.StatusBadRequest},
		{"InFlight", Wrap(ErrInFlight, "modal"), http.StatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status := HTTPStatusFromError(tc.err)
			if status != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, status)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		name           string
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "StructuredError",
			err:            New("test error").WithField("key", "value").WithCode("TEST_CODE"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"code": "TEST_CODE"`,
		},
		{
			name:           "StandardError",
			err:            ErrNotFound,
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"error": "resource not found"`,
		},
		{
			name:           "TicketNotFound",
			err:            NewNotFound("ticket not found", map[string]interface{}{"ticket_id": "042"}),
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"ticket_id": "042"`,
		},
		{
			name:           "NilError",
			err:            nil,
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error": "Unknown error"`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got: %d", tc.expectedStatus, rec.Code)
			}

			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got: %s", ct)
			}

			if body := rec.Body.String(); !strings.Contains(body, tc.expectedBody) {
				t.Errorf("Expected body to contain '%s', got: %s", tc.expectedBody, body)
			}
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	err := NewScoringFailed("Server error: 500")
	if got := GetErrorMessage(err); got != "Server error: 500" {
		t.Errorf("Expected context message, got: %s", got)
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if got := GetErrorMessage(wrapped); got != "Server error: 500" {
		t.Errorf("Expected message through wrapping, got: %s", got)
	}

	if got := GetErrorMessage(errors.New("plain")); got != "plain" {
		t.Errorf("Expected plain error text, got: %s", got)
	}

	if got := GetErrorMessage(nil); got != "" {
		t.Errorf("Expected empty message for nil, got: %s", got)
	}
}
