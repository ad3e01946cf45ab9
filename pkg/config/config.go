package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ticketfeed-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// DefaultScoringURL is the hosted sentiment scoring endpoint used when SCORING_URL is unset
const DefaultScoringURL = "https://ticket-sentiment-analyzer.onrender.com"

// Config represents the complete application configuration
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
	Source    SourceConfig    `json:"source"`
	Scoring   ScoringConfig   `json:"scoring"`
	Messaging MessagingConfig `json:"messaging"`
	Dashboard DashboardConfig `json:"dashboard"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port            int           `json:"port" env:"HTTP_PORT" default:"8080"`
	EnableMetrics   bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" default:"5s"`
	TLSEnabled      bool          `json:"tls_enabled" env:"HTTP_TLS_ENABLED" default:"false"`
	TLSCertFile     string        `json:"tls_cert_file" env:"HTTP_TLS_CERT_FILE"`
	TLSKeyFile      string        `json:"tls_key_file" env:"HTTP_TLS_KEY_FILE"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level
	Level string `json:"level" env:"LOG_LEVEL" default:"info"`

	// Log format (json or text)
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`

	// Log output file (empty = stdout)
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// SourceConfig points at the ticket feed: a local JSON file or an http(s) endpoint
type SourceConfig struct {
	Location string `json:"location" env:"TICKET_SOURCE" default:"tickets.json"`
}

// ScoringConfig points at the remote sentiment scoring endpoint
type ScoringConfig struct {
	URL string `json:"url" env:"SCORING_URL"`
}

// MessagingConfig controls publication of analysis events to AMQP
type MessagingConfig struct {
	Enabled   bool   `json:"enabled" env:"AMQP_ENABLED" default:"false"`
	URL       string `json:"url" env:"AMQP_URL"`
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"ticketfeed.analysis"`
}

// DashboardConfig holds presentation settings for the dashboard page
type DashboardConfig struct {
	Title string `json:"title" env:"DASHBOARD_TITLE" default:"Sentiment Watchdog"`
}

// RateLimitConfig bounds per-client analysis submissions
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" env:"ANALYZE_RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerSecond float64       `json:"requests_per_second" env:"ANALYZE_RATE_LIMIT_RPS" default:"1"`
	BurstSize         int           `json:"burst_size" env:"ANALYZE_RATE_LIMIT_BURST" default:"10"`
	BlockDuration     time.Duration `json:"block_duration" env:"ANALYZE_RATE_LIMIT_BLOCK_DURATION" default:"30s"`
	WhitelistedIPs    []string      `json:"whitelisted_ips" env:"ANALYZE_RATE_LIMIT_WHITELIST_IPS"`
}

// Load reads an optional .env file and builds the configuration from the environment
func Load(logger *logrus.Logger) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}

	if err := loadHTTPConfig(logger, &config.HTTP); err != nil {
		return nil, errors.Wrap(err, "failed to load HTTP configuration")
	}

	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	config.Source, config.Scoring = loadEndpoints()

	config.Messaging.Enabled = getEnvBool("AMQP_ENABLED", false)
	config.Messaging.URL = getEnv("AMQP_URL", "")
	config.Messaging.QueueName = getEnv("AMQP_QUEUE_NAME", "ticketfeed.analysis")

	config.Dashboard.Title = getEnv("DASHBOARD_TITLE", "Sentiment Watchdog")

	loadRateLimitConfig(logger, &config.RateLimit)

	if err := validateConfig(logger, config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// LoadClient reads an optional .env file and returns only the ticket source
// and scoring endpoint. Server settings are neither read nor validated.
func LoadClient(logger *logrus.Logger) (SourceConfig, ScoringConfig) {
	loadEnvFile(logger)
	return loadEndpoints()
}

func loadEndpoints() (SourceConfig, ScoringConfig) {
	return SourceConfig{Location: strings.TrimSpace(getEnv("TICKET_SOURCE", "tickets.json"))},
		ScoringConfig{URL: strings.TrimSpace(getEnv("SCORING_URL", DefaultScoringURL))}
}

func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	for _, envFile := range []string{".env", "../.env"} {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}

		absPath, _ := filepath.Abs(envFile)
		if loadErr := godotenv.Load(envFile); loadErr != nil {
			logger.WithError(loadErr).WithField("path", absPath).Warn("Failed to load .env file")
			continue
		}

		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        absPath,
		}).Info("Successfully loaded .env file")
		return
	}

	logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
}

func loadHTTPConfig(logger *logrus.Logger, config *HTTPConfig) error {
	httpPort, err := strconv.Atoi(getEnv("HTTP_PORT", "8080"))
	if err != nil || httpPort < 1 || httpPort > 65535 {
		logger.Warn("Invalid HTTP_PORT value, using default: 8080")
		config.Port = 8080
	} else {
		config.Port = httpPort
	}

	config.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)

	config.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second)
	config.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	config.IdleTimeout = getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	config.ShutdownTimeout = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second)

	config.TLSEnabled = getEnvBool("HTTP_TLS_ENABLED", false)
	config.TLSCertFile = getEnv("HTTP_TLS_CERT_FILE", "")
	config.TLSKeyFile = getEnv("HTTP_TLS_KEY_FILE", "")

	if config.TLSEnabled && (config.TLSCertFile == "" || config.TLSKeyFile == "") {
		return errors.New("HTTP_TLS_ENABLED requires HTTP_TLS_CERT_FILE and HTTP_TLS_KEY_FILE")
	}

	return nil
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")

	return nil
}

func loadRateLimitConfig(logger *logrus.Logger, config *RateLimitConfig) {
	config.Enabled = getEnvBool("ANALYZE_RATE_LIMIT_ENABLED", true)

	rps, err := strconv.ParseFloat(getEnv("ANALYZE_RATE_LIMIT_RPS", "1"), 64)
	if err != nil || rps <= 0 {
		logger.Warn("Invalid ANALYZE_RATE_LIMIT_RPS value, using default: 1")
		rps = 1
	}
	config.RequestsPerSecond = rps

	burst, err := strconv.Atoi(getEnv("ANALYZE_RATE_LIMIT_BURST", "10"))
	if err != nil || burst < 1 {
		logger.Warn("Invalid ANALYZE_RATE_LIMIT_BURST value, using default: 10")
		burst = 10
	}
	config.BurstSize = burst

	config.BlockDuration = getEnvDuration("ANALYZE_RATE_LIMIT_BLOCK_DURATION", 30*time.Second)

	config.WhitelistedIPs = nil
	for _, ip := range strings.Split(getEnv("ANALYZE_RATE_LIMIT_WHITELIST_IPS", ""), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			config.WhitelistedIPs = append(config.WhitelistedIPs, ip)
		}
	}
}

func validateConfig(logger *logrus.Logger, config *Config) error {
	if config.Source.Location == "" {
		return errors.New("TICKET_SOURCE must not be empty")
	}

	scoringURL, err := url.Parse(config.Scoring.URL)
	if err != nil || (scoringURL.Scheme != "http" && scoringURL.Scheme != "https") || scoringURL.Host == "" {
		return errors.New(fmt.Sprintf("invalid SCORING_URL %q: must be an absolute http(s) URL", config.Scoring.URL))
	}

	if config.Messaging.Enabled {
		if config.Messaging.URL == "" || config.Messaging.QueueName == "" {
			return errors.New("AMQP_ENABLED requires AMQP_URL and AMQP_QUEUE_NAME")
		}
	} else if config.Messaging.URL != "" {
		logger.Info("AMQP_URL is set but AMQP_ENABLED is false; analysis events will not be published")
	}

	return nil
}

// ApplyLogging applies the logging section to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		logger.SetOutput(os.Stdout)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
