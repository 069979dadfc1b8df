// Package fanout delivers serialized events to the live connections of
// resolved target sets. Delivery is best-effort and unordered across
// recipients: events for offline users are dropped, not queued, and no
// acknowledgment is collected.
package fanout

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/registry"
)

// Broadcaster pushes events to users and conversations.
type Broadcaster struct {
	registry *registry.Registry
	members  *membership.Resolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New builds a broadcaster. A nil logger falls back to slog.Default().
func New(reg *registry.Registry, members *membership.Resolver, metrics *observability.Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: reg,
		members:  members,
		metrics:  metrics,
		logger:   logger,
	}
}

// ToUser writes the event to every live connection of the user. A user
// with no live connections is silently skipped.
func (b *Broadcaster) ToUser(userID string, event protocol.Event) {
	conns := b.registry.ConnectionsFor(userID)
	if len(conns) == 0 {
		return
	}

	data, err := event.Marshal()
	if err != nil {
		b.logger.Error("encode event failed", "event", event.Type, "error", err)
		return
	}

	for _, conn := range conns {
		if err := conn.Sender.Send(data); err != nil {
			b.logger.Warn("event delivery failed",
				"event", event.Type, "user_id", userID, "connection_id", conn.ID, "error", err)
			if b.metrics != nil {
				b.metrics.FanoutDeliveries.WithLabelValues(event.Type, "dropped").Inc()
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.FanoutDeliveries.WithLabelValues(event.Type, "sent").Inc()
		}
	}
}

// ToConversation resolves the conversation's active participants and
// delivers the event to each, except excludeUserID when non-empty.
func (b *Broadcaster) ToConversation(ctx context.Context, conversationID string, event protocol.Event, excludeUserID string) error {
	participants, err := b.members.ActiveParticipants(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if excludeUserID != "" && p.UserID == excludeUserID {
			continue
		}
		b.ToUser(p.UserID, event)
	}
	return nil
}
