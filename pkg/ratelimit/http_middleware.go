package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/metrics"

	"github.com/sirupsen/logrus"
)

// HTTPMiddleware applies the limiter to the handlers it wraps
type HTTPMiddleware struct {
	limiter         *Limiter
	config          *Config
	logger          *logrus.Logger
	whitelistedIPs  map[string]bool
	whitelistedNets []*net.IPNet
}

// NewHTTPMiddleware creates a new HTTP rate limiting middleware
func NewHTTPMiddleware(config *Config, logger *logrus.Logger) *HTTPMiddleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &HTTPMiddleware{
		limiter:        NewLimiter(config.RequestsPerSecond, config.BurstSize, logger),
		config:         config,
		logger:         logger,
		whitelistedIPs: make(map[string]bool),
	}

	for _, ip := range config.WhitelistedIPs {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if strings.Contains(ip, "/") {
			_, ipNet, err := net.ParseCIDR(ip)
			if err != nil {
				logger.WithError(err).Warnf("Invalid CIDR in rate limit whitelist: %s", ip)
				continue
			}
			m.whitelistedNets = append(m.whitelistedNets, ipNet)
		} else {
			m.whitelistedIPs[ip] = true
		}
	}

	logger.WithFields(logrus.Fields{
		"enabled":         config.Enabled,
		"rps":             config.RequestsPerSecond,
		"burst":           config.BurstSize,
		"whitelisted_ips": len(m.whitelistedIPs) + len(m.whitelistedNets),
	}).Info("Analysis rate limiting initialized")

	return m
}

// Wrap rate limits next. A disabled middleware returns next unchanged.
func (m *HTTPMiddleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	if !m.config.Enabled {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)
		path := r.URL.Path

		if m.isIPWhitelisted(clientIP) {
			next(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.BurstSize))

		if m.limiter.IsBlocked(clientIP) {
			metrics.RecordRateLimit(path, "blocked")
			m.refuse(w, clientIP, path)
			return
		}

		if !m.limiter.Allow(clientIP) {
			m.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"path":      path,
				"method":    r.Method,
			}).Warn("Rate limit exceeded")

			metrics.RecordRateLimit(path, "limited")
			m.limiter.Block(clientIP, m.config.BlockDuration)
			m.refuse(w, clientIP, path)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", m.limiter.Tokens(clientIP)))
		metrics.RecordRateLimit(path, "allowed")

		next(w, r)
	}
}

// Limiter returns the underlying limiter
func (m *HTTPMiddleware) Limiter() *Limiter {
	return m.limiter
}

// Stop releases the limiter's background cleanup
func (m *HTTPMiddleware) Stop() {
	m.limiter.Stop()
}

func (m *HTTPMiddleware) refuse(w http.ResponseWriter, clientIP, path string) {
	w.Header().Set("Retry-After", strconv.Itoa(int(m.config.BlockDuration.Seconds())))
	w.Header().Set("X-RateLimit-Remaining", "0")
	errors.WriteError(w, errors.Wrap(errors.ErrRateLimited, "too many analysis requests, retry later").
		WithFields(map[string]interface{}{"client_ip": clientIP, "path": path}))
}

// ClientIP extracts the client IP, preferring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (m *HTTPMiddleware) isIPWhitelisted(ip string) bool {
	if m.whitelistedIPs[ip] {
		return true
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	for _, ipNet := range m.whitelistedNets {
		if ipNet.Contains(parsedIP) {
			return true
		}
	}
	return false
}
