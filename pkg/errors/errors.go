package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrCanceled      = errors.New("operation canceled")

	// Feed and analysis errors
	ErrSourceUnavailable = errors.New("ticket source unavailable")
	ErrMalformedSource   = errors.New("malformed ticket source body")
	ErrScoringFailed     = errors.New("sentiment scoring failed")
	ErrEmptyText         = errors.New("text to analyze is empty")
	ErrInFlight          = errors.New("analysis already in progress")
	ErrNotConnected      = errors.New("message broker not connected")
	ErrRateLimited       = errors.New("rate limit exceeded")
)

// Error represents a structured error with its creation site and additional context
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

func newAt(skip int, original error, message string, fields []map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip + 1)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return newAt(1, errors.New(message), message, fields)
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return newAt(1, err, message, fields)
}

func (e *Error) clone(extra int) *Error {
	result := *e
	result.fields = make(map[string]interface{}, len(e.fields)+extra)
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return &result
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields adds multiple fields to the error context
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode adds an error code to the error
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" || e.message == e.original.Error() {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Message returns the context message without the wrapped error's text
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	if e.message == "" && e.original != nil {
		return e.original.Error()
	}
	return e.message
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrNotFound, message, fields)
	err.Code = "NOT_FOUND"
	return err
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrInvalidInput, message, fields)
	err.Code = "INVALID_INPUT"
	return err
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrInternalError, message, fields)
	err.Code = "INTERNAL_ERROR"
	return err
}

// NewSourceUnavailable reports a ticket source that could not be read
func NewSourceUnavailable(source string, cause error) *Error {
	err := newAt(1, ErrSourceUnavailable, fmt.Sprintf("ticket source unavailable: %v", cause),
		[]map[string]interface{}{{"source": source}})
	err.Code = "SOURCE_UNAVAILABLE"
	return err
}

// NewMalformedSource reports a ticket source body that matched neither accepted shape
func NewMalformedSource(details string) *Error {
	err := newAt(1, ErrMalformedSource, fmt.Sprintf("malformed ticket source body: %s", details), nil)
	err.Code = "MALFORMED_SOURCE"
	return err
}

// NewScoringFailed reports a failed request to the sentiment scoring endpoint
func NewScoringFailed(reason string, fields ...map[string]interface{}) *Error {
	err := newAt(1, ErrScoringFailed, reason, fields)
	err.Code = "SCORING_FAILED"
	return err
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetCode()
	}
	return ""
}

// GetErrorMessage returns the context message of a structured error, or the
// error text of any other error
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Message()
	}
	return err.Error()
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
