package util

import (
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"

	"ticketfeed-server/pkg/correlation"
	"ticketfeed-server/pkg/errors"

	"github.com/sirupsen/logrus"
)

// PanicHandler provides centralized panic recovery and logging
type PanicHandler struct {
	logger *logrus.Logger
}

// NewPanicHandler creates a new panic handler
func NewPanicHandler(logger *logrus.Logger) *PanicHandler {
	return &PanicHandler{
		logger: logger,
	}
}

// Recover recovers from panics and logs them. It must be deferred directly.
func (ph *PanicHandler) Recover(component string) {
	if r := recover(); r != nil {
		ph.log(ph.logger.WithField("component", component), r)
	}
}

// SafeGo starts a goroutine with panic recovery
func (ph *PanicHandler) SafeGo(component string, fn func()) {
	go func() {
		defer ph.Recover(component)
		fn()
	}()
}

// Middleware turns a panicking request into a logged 500 response. A panic
// with http.ErrAbortHandler is re-raised so net/http can abort the connection.
func (ph *PanicHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			entry := correlation.LoggerFromContext(r.Context(), ph.logger).WithFields(logrus.Fields{
				"component": "http",
				"method":    r.Method,
				"path":      r.URL.Path,
			})
			ph.log(entry, rec)

			errors.WriteError(w, errors.NewInternalError("internal server error"))
		}()

		next.ServeHTTP(w, r)
	})
}

func (ph *PanicHandler) log(entry *logrus.Entry, value interface{}) {
	var caller string
	if pc, file, line, ok := runtime.Caller(3); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
		} else {
			caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	entry.WithFields(logrus.Fields{
		"panic_value": value,
		"caller":      caller,
		"stack_trace": string(debug.Stack()),
	}).Error("Panic recovered")
}
