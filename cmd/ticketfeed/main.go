package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticketfeed-server/pkg/analyzer"
	"ticketfeed-server/pkg/config"
	"ticketfeed-server/pkg/correlation"
	"ticketfeed-server/pkg/feed"
	http_server "ticketfeed-server/pkg/http"
	"ticketfeed-server/pkg/messaging"
	"ticketfeed-server/pkg/metrics"
	"ticketfeed-server/pkg/ratelimit"
	"ticketfeed-server/pkg/render"
	"ticketfeed-server/pkg/version"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var logger = logrus.New()

func main() {
	// Basic JSON logging until the configuration is loaded
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	if err := run(); err != nil {
		logger.WithError(err).Fatal("Ticket feed server exited with error")
	}
	logger.Info("Ticket feed server stopped")
}

func run() error {
	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}
	if err := cfg.ApplyLogging(logger); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"version":       version.Version,
		"ticket_source": cfg.Source.Location,
		"scoring_url":   cfg.Scoring.URL,
		"http_port":     cfg.HTTP.Port,
		"amqp_enabled":  cfg.Messaging.Enabled,
	}).Info("Starting ticket feed server")

	metrics.SetMetricsEnabled(cfg.HTTP.EnableMetrics)
	if cfg.HTTP.EnableMetrics {
		metrics.Init(logger)
	}

	publisher := initPublisher(cfg)
	defer publisher.Close()

	fetcher := feed.NewFetcher(logger, cfg.Source.Location, nil)
	presenter := render.NewPresenter(cfg.Dashboard.Title, render.NewChartManager(logger))
	scorer := analyzer.NewClient(logger, cfg.Scoring.URL, nil)
	panel := analyzer.NewPanel(logger, scorer, messaging.NewAnalysisNotifier(logger, publisher))
	hub := http_server.NewDashboardHub(logger)

	limiter := ratelimit.NewHTTPMiddleware(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		BlockDuration:     cfg.RateLimit.BlockDuration,
		WhitelistedIPs:    cfg.RateLimit.WhitelistedIPs,
	}, logger)
	defer limiter.Stop()

	server := http_server.NewServer(logger, &http_server.Config{
		Port:            cfg.HTTP.Port,
		EnableMetrics:   cfg.HTTP.EnableMetrics,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		TLSEnabled:      cfg.HTTP.TLSEnabled,
		TLSCertFile:     cfg.HTTP.TLSCertFile,
		TLSKeyFile:      cfg.HTTP.TLSKeyFile,
	}, http_server.Dependencies{
		Feed:      fetcher,
		Presenter: presenter,
		Analyzers: panel,
		Hub:       hub,
		Publisher: publisher,
		Limiter:   limiter,
	})
	server.SetCorrelationMiddleware(correlation.NewHTTPMiddleware(logger, true))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	go func() {
		<-ctx.Done()
		logger.Info("Received shutdown signal, cleaning up...")
	}()

	return g.Wait()
}

// initPublisher connects the AMQP publisher when messaging is enabled. A
// failed initial connection is not fatal; events are dropped until restart.
func initPublisher(cfg *config.Config) messaging.Publisher {
	if !cfg.Messaging.Enabled {
		logger.Debug("AMQP publishing disabled")
		return messaging.NoopPublisher{}
	}

	client := messaging.NewAMQPClient(logger, messaging.AMQPConfig{
		URL:       cfg.Messaging.URL,
		QueueName: cfg.Messaging.QueueName,
	})
	if err := client.Connect(); err != nil {
		logger.WithError(err).Warn("Failed to connect to AMQP server, analysis events will not be published")
	}
	return client
}
