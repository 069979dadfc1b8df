// Package liveness probes live connections and evicts the ones that
// stopped responding. Probes and evictions run on independent cadences:
// a frequent transport-level ping keeps activity timestamps honest, and
// a slower sweep closes connections idle beyond the timeout.
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/registry"
)

// Close code sent when a connection is evicted for idleness.
const closeGoingAway = 1001

// Config configures probe and eviction cadence.
type Config struct {
	// PingInterval is how often a transport ping is sent to every
	// live connection.
	PingInterval time.Duration `yaml:"ping_interval"`
	// IdleTimeout is how long a connection may go without activity
	// before the sweep closes it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default liveness configuration.
func DefaultConfig() Config {
	return Config{
		PingInterval:  30 * time.Second,
		IdleTimeout:   5 * time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Monitor pings live connections and closes idle ones. Closing the
// transport is the whole eviction: the connection's session loop
// observes the closed socket and runs the same deregistration path as
// any other disconnect, including the presence-offline transition.
type Monitor struct {
	registry *registry.Registry
	config   Config
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewMonitor creates a liveness monitor over the given registry.
func NewMonitor(reg *registry.Registry, config Config, metrics *observability.Metrics, logger *slog.Logger) *Monitor {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultConfig().PingInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry: reg,
		config:   config,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run probes and sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	pings := time.NewTicker(m.config.PingInterval)
	defer pings.Stop()
	sweeps := time.NewTicker(m.config.SweepInterval)
	defer sweeps.Stop()

	m.logger.Info("liveness monitor started",
		"ping_interval", m.config.PingInterval,
		"idle_timeout", m.config.IdleTimeout)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return
		case <-pings.C:
			m.PingAll()
		case <-sweeps.C:
			m.SweepIdle()
		}
	}
}

// PingAll sends a transport ping to every live connection. A failed
// write means the socket is already dead, so the connection is closed
// immediately rather than waiting for the idle sweep.
func (m *Monitor) PingAll() {
	for _, conn := range m.registry.Snapshot() {
		if err := conn.Sender.Ping(); err != nil {
			m.logger.Debug("ping failed, closing connection",
				"connection_id", conn.ID, "user_id", conn.UserID, "error", err)
			m.evict(conn, "ping failed")
		}
	}
}

// SweepIdle closes every connection whose last activity is older than
// the idle timeout.
func (m *Monitor) SweepIdle() {
	cutoff := m.now().Add(-m.config.IdleTimeout)
	for _, conn := range m.registry.Snapshot() {
		if conn.LastActivity().Before(cutoff) {
			m.logger.Info("evicting idle connection",
				"connection_id", conn.ID, "user_id", conn.UserID,
				"idle_for", m.now().Sub(conn.LastActivity()))
			m.evict(conn, "idle timeout")
		}
	}
}

func (m *Monitor) evict(conn *registry.Conn, reason string) {
	if err := conn.Sender.Close(closeGoingAway, reason); err != nil {
		m.logger.Debug("close after eviction failed",
			"connection_id", conn.ID, "error", err)
	}
	if m.metrics != nil {
		m.metrics.LivenessEvictions.Inc()
	}
}
