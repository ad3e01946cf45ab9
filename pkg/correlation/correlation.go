// Package correlation tags each HTTP request with an id that follows it
// through the logs.
package correlation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Header names carrying correlation ids
const (
	HTTPHeader          = "X-Correlation-ID"
	HTTPRequestIDHeader = "X-Request-ID"
)

type contextKey int

const (
	correlationIDKey contextKey = iota
	requestStartKey
)

// ID is a request correlation id
type ID string

// String returns the id as a string
func (id ID) String() string {
	return string(id)
}

// IsEmpty reports whether the id is unset
func (id ID) IsEmpty() bool {
	return id == ""
}

// New generates a random correlation id
func New() ID {
	return ID(uuid.New().String())
}

// FromString returns s as an id, or a new id when s is empty
func FromString(s string) ID {
	if s == "" {
		return New()
	}
	return ID(s)
}

// WithCorrelationID attaches id to ctx
func WithCorrelationID(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// FromContext returns the id attached to ctx, or an empty id
func FromContext(ctx context.Context) ID {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationIDKey).(ID); ok {
		return id
	}
	return ""
}

// WithRequestStart attaches the request start time to ctx
func WithRequestStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestStartKey, t)
}

// RequestStartFromContext returns the request start time attached to ctx
func RequestStartFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(requestStartKey).(time.Time)
	return t, ok
}

// LoggerFromContext returns an entry carrying the request's correlation id
func LoggerFromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if id := FromContext(ctx); !id.IsEmpty() {
		return logger.WithField("correlation_id", id.String())
	}
	return logrus.NewEntry(logger)
}
