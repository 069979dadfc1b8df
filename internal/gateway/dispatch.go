package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/ingest"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/ratelimit"
	"github.com/haasonsaas/relay/internal/registry"
	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/internal/typing"
	"github.com/haasonsaas/relay/pkg/models"
)

// Dispatcher routes one decoded inbound frame to the right service.
// Every failure along the way is classified and reported as an error
// event to the originating connection only; the connection stays open.
type Dispatcher struct {
	limiter   *ratelimit.Limiter
	ingest    *ingest.Service
	typing    *typing.Service
	members   *membership.Resolver
	registry  *registry.Registry
	broadcast *fanout.Broadcaster
	stores    storage.StoreSet
	metrics   *observability.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
}

// DispatcherDeps are the services the dispatcher routes to.
type DispatcherDeps struct {
	Limiter   *ratelimit.Limiter
	Ingest    *ingest.Service
	Typing    *typing.Service
	Members   *membership.Resolver
	Registry  *registry.Registry
	Broadcast *fanout.Broadcaster
	Stores    storage.StoreSet
	Metrics   *observability.Metrics
	Tracer    trace.Tracer
	Logger    *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		limiter:   deps.Limiter,
		ingest:    deps.Ingest,
		typing:    deps.Typing,
		members:   deps.Members,
		registry:  deps.Registry,
		broadcast: deps.Broadcast,
		stores:    deps.Stores,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		logger:    logger,
		now:       time.Now,
	}
}

// Dispatch handles one raw inbound frame from a connection. The rate
// limit applies before anything else, decoding included, so a flooding
// client cannot buy extra work with malformed frames.
func (d *Dispatcher) Dispatch(ctx context.Context, conn *registry.Conn, raw []byte) {
	if err := d.limiter.CheckAndIncrement(ctx, conn.UserID); err != nil {
		d.reportError(conn, "rate_limit", err)
		return
	}

	in, err := protocol.DecodeInbound(raw)
	if err != nil {
		d.reportError(conn, "decode", err)
		return
	}
	kind := in.Kind()
	if d.metrics != nil {
		d.metrics.MessagesTotal.WithLabelValues(kind, "inbound").Inc()
	}
	if err := in.Validate(); err != nil {
		d.reportError(conn, kind, err)
		return
	}

	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.Start(ctx, "dispatch",
			trace.WithAttributes(attribute.String("relay.message_type", kind)))
		defer span.End()
	}

	start := d.now()
	err = d.handle(ctx, conn, in)
	if d.metrics != nil {
		d.metrics.HandlerDuration.WithLabelValues(kind).Observe(d.now().Sub(start).Seconds())
	}
	if err != nil {
		d.reportError(conn, kind, err)
	}
}

// handle is the exhaustive switch over the closed inbound union.
func (d *Dispatcher) handle(ctx context.Context, conn *registry.Conn, in protocol.Inbound) error {
	switch msg := in.(type) {
	case protocol.Ping:
		return d.send(conn, protocol.NewPong(d.now()))
	case protocol.JoinRoom:
		return d.handleJoinRoom(ctx, conn, msg)
	case protocol.LeaveRoom:
		return d.handleLeaveRoom(ctx, conn, msg)
	case protocol.SendMessage:
		return d.handleSendMessage(ctx, conn, msg)
	case protocol.TypingStart:
		return d.typing.Start(ctx, conn.UserID, conn.UserName, msg.ConversationID)
	case protocol.TypingStop:
		return d.typing.Stop(ctx, conn.UserID, conn.UserName, msg.ConversationID)
	case protocol.MarkRead:
		return d.handleMarkRead(ctx, conn, msg)
	case protocol.GetConversationStatus:
		return d.handleConversationStatus(ctx, conn, msg)
	default:
		return relayerr.E(relayerr.CodeUnknownMessageType, "unknown message type: "+in.Kind())
	}
}

func (d *Dispatcher) handleJoinRoom(ctx context.Context, conn *registry.Conn, msg protocol.JoinRoom) error {
	if err := d.members.Authorize(ctx, conn.UserID, msg.ConversationID); err != nil {
		return err
	}
	statuses, err := d.participantStatuses(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := d.send(conn, protocol.NewRoomJoined(msg.ConversationID, statuses)); err != nil {
		return err
	}
	announce := protocol.NewUserJoinedRoom(msg.ConversationID, conn.UserID, d.now())
	return d.broadcast.ToConversation(ctx, msg.ConversationID, announce, conn.UserID)
}

func (d *Dispatcher) handleLeaveRoom(ctx context.Context, conn *registry.Conn, msg protocol.LeaveRoom) error {
	announce := protocol.NewUserLeftRoom(msg.ConversationID, conn.UserID, d.now())
	if err := d.broadcast.ToConversation(ctx, msg.ConversationID, announce, conn.UserID); err != nil {
		d.logger.Warn("leave announcement failed",
			"conversation_id", msg.ConversationID, "user_id", conn.UserID, "error", err)
	}
	return d.send(conn, protocol.NewRoomLeft(msg.ConversationID))
}

func (d *Dispatcher) handleSendMessage(ctx context.Context, conn *registry.Conn, msg protocol.SendMessage) error {
	created, err := d.ingest.Send(ctx, conn.UserID, msg.ConversationID, msg.Content, msg.MessageType)
	if err != nil {
		return err
	}
	return d.send(conn, protocol.NewMessageSent(created))
}

func (d *Dispatcher) handleMarkRead(ctx context.Context, conn *registry.Conn, msg protocol.MarkRead) error {
	if err := d.ingest.MarkRead(ctx, conn.UserID, msg.ConversationID, msg.MessageID); err != nil {
		return err
	}
	return d.send(conn, protocol.NewMessagesMarkedRead(msg.ConversationID, msg.MessageID, d.now()))
}

func (d *Dispatcher) handleConversationStatus(ctx context.Context, conn *registry.Conn, msg protocol.GetConversationStatus) error {
	if err := d.members.Authorize(ctx, conn.UserID, msg.ConversationID); err != nil {
		return err
	}
	statuses, err := d.participantStatuses(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	indicators, err := d.typing.ActiveIndicators(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	return d.send(conn, protocol.NewConversationStatus(msg.ConversationID, statuses, indicators, d.now()))
}

// participantStatuses resolves the active participants of a
// conversation enriched with live presence. Online state comes from the
// registry; last-seen falls back to the durable presence row for users
// without live connections.
func (d *Dispatcher) participantStatuses(ctx context.Context, conversationID string) ([]models.ParticipantStatus, error) {
	participants, err := d.members.ActiveParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	statuses := make([]models.ParticipantStatus, 0, len(participants))
	for _, p := range participants {
		status := models.ParticipantStatus{
			UserID:   p.UserID,
			IsOnline: d.registry.IsOnline(p.UserID),
		}
		if user, err := d.stores.Users.Get(ctx, p.UserID); err == nil {
			status.UserName = user.Name
			status.UserEmail = user.Email
		} else if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("failed to resolve participant user",
				"user_id", p.UserID, "error", err)
		}
		if rec, err := d.stores.Presence.Get(ctx, p.UserID); err == nil {
			lastSeen := rec.LastSeen
			status.LastSeen = &lastSeen
		} else if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("failed to resolve participant presence",
				"user_id", p.UserID, "error", err)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (d *Dispatcher) send(conn *registry.Conn, event protocol.Event) error {
	data, err := event.Marshal()
	if err != nil {
		return relayerr.Dependency("encode event", err)
	}
	if d.metrics != nil {
		d.metrics.MessagesTotal.WithLabelValues(event.Type, "outbound").Inc()
	}
	if err := conn.Sender.Send(data); err != nil {
		return relayerr.Dependency("write event", err)
	}
	return nil
}

// reportError classifies a failure and reports it to the connection.
func (d *Dispatcher) reportError(conn *registry.Conn, kind string, err error) {
	relayErr := relayerr.From(err)
	if d.metrics != nil {
		d.metrics.ErrorsTotal.WithLabelValues(string(relayErr.Code)).Inc()
	}
	d.logger.Warn("message handling failed",
		"connection_id", conn.ID, "user_id", conn.UserID,
		"message_type", kind, "code", relayErr.Code, "error", err)

	data, marshalErr := protocol.NewError(relayErr).Marshal()
	if marshalErr != nil {
		return
	}
	if sendErr := conn.Sender.Send(data); sendErr != nil {
		d.logger.Debug("failed to write error event",
			"connection_id", conn.ID, "error", sendErr)
	}
}
