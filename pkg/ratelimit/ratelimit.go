// Package ratelimit throttles analysis submissions per client so a single
// browser cannot flood the remote scoring endpoint.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Limiter implements a token bucket rate limiter with per-key tracking
type Limiter struct {
	rate       float64 // tokens per second
	burst      int
	clients    map[string]*bucket
	mu         sync.Mutex
	logger     *logrus.Entry
	cleanupTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	blockUntil time.Time
}

// Config holds rate limiter configuration
type Config struct {
	// Enabled determines if rate limiting is active
	Enabled bool `json:"enabled" env:"ANALYZE_RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerSecond is the sustained rate of submissions allowed per client
	RequestsPerSecond float64 `json:"requests_per_second" env:"ANALYZE_RATE_LIMIT_RPS" default:"1"`

	// BurstSize is the maximum number of submissions allowed in a burst
	BurstSize int `json:"burst_size" env:"ANALYZE_RATE_LIMIT_BURST" default:"10"`

	// BlockDuration is how long a client is refused after exceeding the limit
	BlockDuration time.Duration `json:"block_duration" env:"ANALYZE_RATE_LIMIT_BLOCK_DURATION" default:"30s"`

	// WhitelistedIPs bypass rate limiting; entries may be CIDR ranges
	WhitelistedIPs []string `json:"whitelisted_ips" env:"ANALYZE_RATE_LIMIT_WHITELIST_IPS"`
}

// DefaultConfig returns the limits applied to analysis endpoints
func DefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		RequestsPerSecond: 1,
		BurstSize:         10,
		BlockDuration:     30 * time.Second,
	}
}

// NewLimiter creates a limiter and starts its cleanup loop; call Stop to end it
func NewLimiter(rate float64, burst int, logger *logrus.Logger) *Limiter {
	l := &Limiter{
		rate:       rate,
		burst:      burst,
		clients:    make(map[string]*bucket),
		logger:     logger.WithField("component", "rate_limiter"),
		cleanupTTL: 10 * time.Minute,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go l.cleanup()

	return l
}

// Allow spends one token for key, reporting false when none is left or the
// key is blocked
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refill(key, now)

	if now.Before(b.blockUntil) {
		return false
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Block refuses key for duration and empties its bucket
func (l *Limiter) Block(key string, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.refill(key, now)
	b.tokens = 0
	b.blockUntil = now.Add(duration)

	l.logger.WithFields(logrus.Fields{
		"key":         key,
		"block_until": b.blockUntil,
	}).Warn("Client blocked due to rate limit violation")
}

// IsBlocked checks if a client is currently blocked
func (l *Limiter) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.clients[key]
	return exists && l.now().Before(b.blockUntil)
}

// Tokens returns the current token count for key
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.refill(key, l.now()).tokens
}

// ClientCount returns the number of tracked clients
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// refill returns key's bucket topped up for the time elapsed since its last
// update. Callers hold l.mu.
func (l *Limiter) refill(key string, now time.Time) *bucket {
	b, exists := l.clients[key]
	if !exists {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.clients[key] = b
		return b
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now
	return b
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cleanupTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

// evictStale drops clients that are idle and not blocked
func (l *Limiter) evictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.clients {
		if now.Sub(b.lastUpdate) > l.cleanupTTL && !now.Before(b.blockUntil) {
			delete(l.clients, key)
		}
	}
}
