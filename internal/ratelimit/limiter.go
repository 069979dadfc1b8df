// Package ratelimit enforces a per-user fixed-window message budget
// backed by the ephemeral store's native key expiry.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/ephemeral"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/relayerr"
)

// Config configures the fixed-window limiter.
type Config struct {
	// MaxPerWindow is the number of messages a user may send per window.
	MaxPerWindow int64 `yaml:"max_per_window"`
	// Window is the length of the counting window.
	Window time.Duration `yaml:"window"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default rate limit configuration.
func DefaultConfig() Config {
	return Config{
		MaxPerWindow: 100,
		Window:       60 * time.Second,
		Enabled:      true,
	}
}

// Limiter counts inbound messages per user in the ephemeral store.
// The window starts on the first increment: when a counter key is
// created its TTL is set once, and every later increment rides the
// same expiry until the store drops the key.
type Limiter struct {
	store   ephemeral.Store
	config  Config
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLimiter creates a limiter over the given ephemeral store.
func NewLimiter(store ephemeral.Store, config Config, metrics *observability.Metrics, logger *slog.Logger) *Limiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = DefaultConfig().MaxPerWindow
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, config: config, metrics: metrics, logger: logger}
}

// CheckAndIncrement counts one message for userID and returns an error
// when the user's budget for the current window is exhausted. The
// rejection is non-retryable; the client must wait for the window to
// roll over. A store outage fails open so a degraded counter backend
// does not take messaging down with it.
func (l *Limiter) CheckAndIncrement(ctx context.Context, userID string) error {
	if !l.config.Enabled {
		return nil
	}

	key := counterKey(userID)
	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, allowing message",
			"user_id", userID, "error", err)
		return nil
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, l.config.Window); err != nil {
			l.logger.Warn("failed to set rate limit window", "user_id", userID, "error", err)
		}
	}
	if count > l.config.MaxPerWindow {
		if l.metrics != nil {
			l.metrics.RateLimited.Inc()
		}
		return relayerr.E(relayerr.CodeRateLimitExceeded,
			"rate limit exceeded, slow down")
	}
	return nil
}

func counterKey(userID string) string {
	return fmt.Sprintf("rate_limit:%s", userID)
}
