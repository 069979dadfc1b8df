// Package ingest validates and persists inbound chat messages and hands
// them to fanout. Persistence strictly precedes broadcast: if the
// message row cannot be written, no participant hears about it.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/pkg/models"
)

// Service turns validated send requests into persisted, delivered
// messages.
type Service struct {
	messages      storage.MessageStore
	conversations storage.ConversationStore
	users         storage.UserStore
	members       *membership.Resolver
	broadcast     *fanout.Broadcaster
	metrics       *observability.Metrics
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

// NewService creates the message ingestion service.
func NewService(stores storage.StoreSet, members *membership.Resolver, broadcast *fanout.Broadcaster, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		messages:      stores.Messages,
		conversations: stores.Conversations,
		users:         stores.Users,
		members:       members,
		broadcast:     broadcast,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// Send validates, persists, and delivers one message. On success the
// returned message backs the sender's message_sent confirmation; every
// other active participant receives message_received. The sender never
// receives their own message_received.
func (s *Service) Send(ctx context.Context, senderID, conversationID, content string, msgType models.MessageType) (*models.Message, error) {
	if conversationID == "" || content == "" {
		return nil, relayerr.E(relayerr.CodeMissingField,
			"conversationId and content are required")
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return nil, relayerr.E(relayerr.CodeContentTooLong,
			"message content exceeds maximum length")
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if err := s.members.Authorize(ctx, senderID, conversationID); err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     s.senderName(ctx, senderID),
		Content:        content,
		Type:           msgType,
		Status:         models.MessageStatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, relayerr.Dependency("persist message", err)
	}

	// Activity bump and delivery are best-effort once the row exists;
	// the sender still gets their confirmation.
	if err := s.conversations.TouchUpdatedAt(ctx, conversationID, now); err != nil {
		s.logger.Warn("failed to bump conversation activity",
			"conversation_id", conversationID, "error", err)
	}

	event := protocol.NewMessageReceived(msg, s.conversationSummary(ctx, conversationID))
	if err := s.broadcast.ToConversation(ctx, conversationID, event, senderID); err != nil {
		s.logger.Warn("message fanout failed",
			"message_id", msg.ID, "conversation_id", conversationID, "error", err)
	}
	return msg, nil
}

// MarkRead records that readerID caught up in the conversation and
// notifies the other participants with a read receipt. A mark_read
// without a message ID is a conversation-level catch-up: the receipt
// still goes out, with no messageId attached. When a message ID is
// given its status transitions sent -> read at most once; only that
// transition broadcasts message_status_updated, so a repeat mark_read
// re-sends the receipt but never the status change.
func (s *Service) MarkRead(ctx context.Context, readerID, conversationID, messageID string) error {
	if conversationID == "" {
		return relayerr.E(relayerr.CodeMissingField, "conversationId is required")
	}
	if err := s.members.Authorize(ctx, readerID, conversationID); err != nil {
		return err
	}

	now := s.now()
	if err := s.members.TouchLastRead(ctx, readerID, conversationID, now); err != nil {
		return err
	}

	receipt := protocol.NewMessageReadReceipt(conversationID, readerID, messageID, now)
	if err := s.broadcast.ToConversation(ctx, conversationID, receipt, readerID); err != nil {
		s.logger.Warn("read receipt fanout failed",
			"message_id", messageID, "conversation_id", conversationID, "error", err)
	}
	if messageID == "" {
		return nil
	}

	transitioned, err := s.messages.MarkRead(ctx, messageID, conversationID, readerID, now)
	if err != nil {
		return relayerr.Dependency("mark message read", err)
	}
	if !transitioned {
		return nil
	}

	status := protocol.NewMessageStatusUpdated(messageID, conversationID, models.MessageStatusRead, now)
	if err := s.broadcast.ToConversation(ctx, conversationID, status, ""); err != nil {
		s.logger.Warn("status update fanout failed",
			"message_id", messageID, "conversation_id", conversationID, "error", err)
	}
	return nil
}

// senderName resolves the sender's display name. An unknown user is not
// a reason to drop the message.
func (s *Service) senderName(ctx context.Context, senderID string) string {
	user, err := s.users.Get(ctx, senderID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to resolve sender name", "user_id", senderID, "error", err)
		}
		return ""
	}
	return user.Name
}

func (s *Service) conversationSummary(ctx context.Context, conversationID string) protocol.WireConversation {
	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to load conversation summary",
				"conversation_id", conversationID, "error", err)
		}
		return protocol.WireConversation{ID: conversationID}
	}
	return protocol.WireConversation{ID: conv.ID, Type: conv.Type, Name: conv.Name}
}
