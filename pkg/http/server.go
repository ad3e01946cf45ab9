package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/feed"
	"ticketfeed-server/pkg/messaging"
	"ticketfeed-server/pkg/metrics"
	"ticketfeed-server/pkg/render"
	"ticketfeed-server/pkg/util"
	"ticketfeed-server/pkg/version"

	"github.com/sirupsen/logrus"
)

// FeedSource produces the ticket feed for one render cycle
type FeedSource interface {
	Fetch(ctx context.Context) feed.Result
	Source() string
}

// CorrelationMiddleware interface for request correlation
type CorrelationMiddleware interface {
	Middleware(next http.Handler) http.Handler
}

// RateLimiter guards the analysis endpoints
type RateLimiter interface {
	Wrap(next http.HandlerFunc) http.HandlerFunc
}

// Dependencies are the components the server routes requests to
type Dependencies struct {
	Feed      FeedSource
	Presenter *render.Presenter
	Analyzers *analyzer.Panel
	Hub       *DashboardHub
	Publisher messaging.Publisher
	Limiter   RateLimiter
}

// Server serves the dashboard, its JSON API and the operational endpoints
type Server struct {
	config                *Config
	logger                *logrus.Logger
	httpServer            *http.Server
	mux                   *http.ServeMux
	startTime             time.Time
	deps                  Dependencies
	correlationMiddleware CorrelationMiddleware
}

// NewServer creates a new HTTP server instance
func NewServer(logger *logrus.Logger, config *Config, deps Dependencies) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Publisher == nil {
		deps.Publisher = messaging.NoopPublisher{}
	}

	server := &Server{
		config:    config,
		logger:    logger,
		startTime: time.Now(),
		deps:      deps,
	}

	mux := http.NewServeMux()
	server.mux = mux
	recovered := util.NewPanicHandler(logger).Middleware(mux)
	rootHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler := recovered
		if server.correlationMiddleware != nil {
			handler = server.correlationMiddleware.Middleware(handler)
		}
		handler.ServeHTTP(w, r)
	})

	addServerHeader := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", version.ServerHeader())
			next(w, r)
		}
	}

	// Dashboard
	mux.HandleFunc("GET /{$}", addServerHeader(server.dashboardHandler))
	mux.HandleFunc("POST /refresh", addServerHeader(server.refreshHandler))
	mux.HandleFunc("GET /api/dashboard", addServerHeader(server.refreshHandler))
	mux.HandleFunc("GET /api/tickets", addServerHeader(server.ticketsHandler))
	mux.HandleFunc("GET /api/tickets/{id}", addServerHeader(server.ticketHandler))

	limit := func(next http.HandlerFunc) http.HandlerFunc {
		if deps.Limiter == nil {
			return next
		}
		return deps.Limiter.Wrap(next)
	}

	// On-demand analysis
	mux.HandleFunc("POST /api/analyze", addServerHeader(limit(server.analyzeJSONHandler)))
	mux.HandleFunc("POST /analyze/{variant}", addServerHeader(limit(server.analyzeFragmentHandler)))
	mux.HandleFunc("GET /api/analyze/status", addServerHeader(server.analyzeStatusHandler))

	// Operational endpoints
	mux.HandleFunc("GET /health", addServerHeader(server.HealthHandler))
	mux.HandleFunc("GET /health/live", addServerHeader(server.LivenessHandler))
	mux.HandleFunc("GET /health/ready", addServerHeader(server.ReadinessHandler))
	mux.HandleFunc("GET /status", addServerHeader(server.statusHandler))

	if deps.Hub != nil {
		mux.HandleFunc("GET /ws/dashboard", deps.Hub.ServeWs)
	}

	if config.EnableMetrics && metrics.IsMetricsEnabled() {
		metrics.RegisterHandler(mux)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
	} else {
		logger.Info("Metrics endpoint disabled")
	}

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      rootHandler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server
}

// SetCorrelationMiddleware sets the correlation ID middleware for request tracking
func (s *Server) SetCorrelationMiddleware(middleware CorrelationMiddleware) {
	s.correlationMiddleware = middleware
	s.logger.Info("Correlation ID middleware configured")
}

// Handler returns the root handler, middleware included
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully
// within the configured shutdown timeout
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.WithFields(logrus.Fields{
			"port": s.config.Port,
			"tls":  s.config.TLSEnabled,
		}).Info("HTTP server listening")

		var err error
		if s.config.TLSEnabled {
			s.httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "HTTP server failed").WithField("port", s.config.Port)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

// statusHandler reports service information and the endpoint index
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"service":    "ticketfeed-server",
		"status":     "ok",
		"version":    version.Version,
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
		"started_at": s.startTime.Format(time.RFC3339),
		"endpoints": map[string]string{
			"dashboard":      "/ (GET)",
			"refresh":        "/refresh (POST)",
			"snapshot":       "/api/dashboard (GET)",
			"get_tickets":    "/api/tickets (GET)",
			"get_ticket":     "/api/tickets/{id} (GET)",
			"analyze":        "/api/analyze (POST)",
			"analyze_status": "/api/analyze/status (GET)",
			"subscribe":      "/ws/dashboard (WebSocket)",
			"health":         "/health (GET)",
		},
	}

	if s.deps.Feed != nil {
		status["ticket_source"] = s.deps.Feed.Source()
	}
	if s.deps.Hub != nil {
		status["dashboard_subscribers"] = s.deps.Hub.ClientCount()
	}
	if s.deps.Analyzers != nil {
		status["scoring_url"] = s.deps.Analyzers.Endpoint()
		status["analyses_in_flight"] = s.deps.Analyzers.InFlight()
	}
	if s.deps.Presenter != nil {
		if chart := s.deps.Presenter.Charts().Current(); chart != nil {
			status["chart_id"] = chart.ID
		}
	}

	writeJSON(w, http.StatusOK, status)
}

// ErrorResponse sends a standardized error response
func (s *Server) ErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, err)
	s.requestLogger(r).WithError(err).Warn("HTTP error response sent")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
