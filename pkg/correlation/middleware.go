package correlation

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware assigns correlation ids and logs request completion
type HTTPMiddleware struct {
	logger      *logrus.Logger
	logRequests bool
}

// NewHTTPMiddleware creates the middleware. When logRequests is false ids are
// still assigned but nothing is logged.
func NewHTTPMiddleware(logger *logrus.Logger, logRequests bool) *HTTPMiddleware {
	return &HTTPMiddleware{
		logger:      logger,
		logRequests: logRequests,
	}
}

// Middleware wraps next with correlation id handling
func (m *HTTPMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := ID(r.Header.Get(HTTPHeader))
		if id.IsEmpty() {
			id = ID(r.Header.Get(HTTPRequestIDHeader))
		}
		if id.IsEmpty() {
			id = New()
		}

		ctx := WithCorrelationID(r.Context(), id)
		ctx = WithRequestStart(ctx, start)
		r = r.WithContext(ctx)

		w.Header().Set(HTTPHeader, id.String())

		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		if !m.logRequests || m.logger == nil {
			return
		}

		entry := m.logger.WithFields(logrus.Fields{
			"correlation_id": id.String(),
			"method":         r.Method,
			"path":           r.URL.Path,
			"status":         wrapper.statusCode,
			"duration_ms":    time.Since(start).Milliseconds(),
			"client_ip":      clientIP(r),
		})

		switch {
		case wrapper.statusCode >= 500:
			entry.Error("HTTP request completed with server error")
		case wrapper.statusCode >= 400:
			entry.Warn("HTTP request completed with client error")
		default:
			entry.Debug("HTTP request completed")
		}
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWrapper records the status code written by the handler
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *responseWrapper) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWrapper) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the middleware
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.written = true
	w.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
