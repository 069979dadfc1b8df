// Package presence maintains durable online/offline state and announces
// transitions to the users who share a conversation with the
// transitioning user.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/storage"
)

// Manager handles presence transitions. Callers report whether a
// connect was the user's first connection or a disconnect their last;
// only those calls persist and broadcast, so transitions fire at most
// once per actual state change rather than once per connection.
type Manager struct {
	store     storage.PresenceStore
	members   *membership.Resolver
	broadcast *fanout.Broadcaster
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager builds a presence manager.
func NewManager(store storage.PresenceStore, members *membership.Resolver, broadcast *fanout.Broadcaster, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		members:   members,
		broadcast: broadcast,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// OnConnect records a new connection. When first is true the user just
// came online: the transition is persisted and broadcast.
func (m *Manager) OnConnect(ctx context.Context, userID, connectionID string, first bool) {
	if !first {
		return
	}
	now := m.now()
	if err := m.store.SetOnline(ctx, userID, connectionID, now); err != nil {
		m.logger.Error("persist online status failed", "user_id", userID, "error", err)
	}
	if m.metrics != nil {
		m.metrics.PresenceTransitions.WithLabelValues("online").Inc()
	}
	m.announce(ctx, userID, true, now)
}

// OnDisconnect records a closed connection. When last is true the user
// just went offline: the transition is persisted and broadcast.
func (m *Manager) OnDisconnect(ctx context.Context, userID string, last bool) {
	if !last {
		return
	}
	now := m.now()
	if err := m.store.SetOffline(ctx, userID, now); err != nil {
		m.logger.Error("persist offline status failed", "user_id", userID, "error", err)
	}
	if m.metrics != nil {
		m.metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	}
	m.announce(ctx, userID, false, now)
}

// announce broadcasts the transition to every user sharing at least one
// active conversation with userID.
func (m *Manager) announce(ctx context.Context, userID string, isOnline bool, now time.Time) {
	peers, err := m.members.PeersOf(ctx, userID)
	if err != nil {
		m.logger.Error("resolve presence peers failed", "user_id", userID, "error", err)
		return
	}
	event := protocol.NewUserOnline(userID, isOnline, now)
	for _, peer := range peers {
		m.broadcast.ToUser(peer, event)
	}
}

// Reconcile clears presence rows left stale by a crash while
// connections were live. Run once at startup before accepting
// connections.
func (m *Manager) Reconcile(ctx context.Context) error {
	n, err := m.store.ResetAll(ctx, m.now())
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Info("reset stale presence rows", "count", n)
	}
	return nil
}
