// Package typing manages the short-lived "user is composing" flags and
// their broadcasts. Indicators live in the ephemeral store under a
// 10-second TTL; a periodic sweep emits a compensating stop for any
// indicator that expired without an explicit typing_stop.
package typing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/relay/internal/ephemeral"
	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/pkg/models"
)

// Config configures indicator lifetime and sweep cadence.
type Config struct {
	// TTL is how long an indicator stays valid without a refresh.
	TTL time.Duration `yaml:"ttl"`
	// SweepInterval is how often expired indicators are reconciled.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns the default typing configuration.
func DefaultConfig() Config {
	return Config{
		TTL:           10 * time.Second,
		SweepInterval: 30 * time.Second,
	}
}

// Service writes typing flags and fans out start/stop events.
type Service struct {
	store     ephemeral.Store
	members   *membership.Resolver
	broadcast *fanout.Broadcaster
	config    Config
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates the typing indicator service.
func NewService(store ephemeral.Store, members *membership.Resolver, broadcast *fanout.Broadcaster, config Config, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		members:   members,
		broadcast: broadcast,
		config:    config,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Start records that userID is composing in conversationID and tells
// the other participants. The flag is written before the broadcast so a
// reader who reacts to the event observes a live indicator.
func (s *Service) Start(ctx context.Context, userID, userName, conversationID string) error {
	if err := s.members.Authorize(ctx, userID, conversationID); err != nil {
		return err
	}

	now := s.now()
	ind := models.TypingIndicator{
		UserID:         userID,
		UserName:       userName,
		ConversationID: conversationID,
		Timestamp:      now,
	}
	// The stored key outlives the logical TTL by one sweep interval so
	// the sweeper can still observe it and emit the compensating stop.
	// Staleness is always judged against the indicator's timestamp.
	if err := s.store.SetJSON(ctx, indicatorKey(conversationID, userID), ind, s.config.TTL+s.config.SweepInterval); err != nil {
		return relayerr.Dependency("typing start", err)
	}

	return s.broadcast.ToConversation(ctx, conversationID, protocol.NewUserTyping(ind, true, now), userID)
}

// Stop clears userID's indicator and tells the other participants.
// Stopping an indicator that already expired or never existed is fine;
// the deletion is idempotent and the stop event is still sent.
func (s *Service) Stop(ctx context.Context, userID, userName, conversationID string) error {
	if err := s.members.Authorize(ctx, userID, conversationID); err != nil {
		return err
	}

	if err := s.store.Del(ctx, indicatorKey(conversationID, userID)); err != nil {
		return relayerr.Dependency("typing stop", err)
	}

	now := s.now()
	ind := models.TypingIndicator{
		UserID:         userID,
		UserName:       userName,
		ConversationID: conversationID,
		Timestamp:      now,
	}
	return s.broadcast.ToConversation(ctx, conversationID, protocol.NewUserTyping(ind, false, now), userID)
}

// ActiveIndicators lists who is currently composing in a conversation.
// Entries past their TTL are skipped even if the store has not dropped
// them yet.
func (s *Service) ActiveIndicators(ctx context.Context, conversationID string) ([]models.TypingIndicator, error) {
	keys, err := s.store.Keys(ctx, indicatorKey(conversationID, "*"))
	if err != nil {
		return nil, relayerr.Dependency("typing lookup", err)
	}

	now := s.now()
	indicators := make([]models.TypingIndicator, 0, len(keys))
	for _, key := range keys {
		var ind models.TypingIndicator
		ok, err := s.store.GetJSON(ctx, key, &ind)
		if err != nil {
			return nil, relayerr.Dependency("typing lookup", err)
		}
		if !ok || ind.Expired(now, s.config.TTL) {
			continue
		}
		indicators = append(indicators, ind)
	}
	return indicators, nil
}

// RunSweeper reconciles expired indicators until ctx is cancelled.
// An expired key produces one compensating isTyping=false broadcast
// per sweep pass: the key is deleted in the same pass, so the next
// sweep no longer sees it. An explicit stop_typing racing the pass can
// add one more stop for the same indicator; stops are idempotent for
// clients, so the duplicate is harmless while a missed stop would
// strand the indicator on screen.
func (s *Service) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	s.logger.Info("typing sweeper started", "interval", s.config.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("typing sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reconciliation pass over all typing keys.
func (s *Service) Sweep(ctx context.Context) {
	keys, err := s.store.Keys(ctx, "typing:*")
	if err != nil {
		s.logger.Warn("typing sweep failed to list keys", "error", err)
		return
	}

	now := s.now()
	for _, key := range keys {
		conversationID, userID, ok := parseIndicatorKey(key)
		if !ok {
			s.logger.Warn("typing sweep skipping malformed key", "key", key)
			continue
		}

		var ind models.TypingIndicator
		found, err := s.store.GetJSON(ctx, key, &ind)
		if err != nil {
			s.logger.Warn("typing sweep failed to load indicator", "key", key, "error", err)
			continue
		}
		if found && !ind.Expired(now, s.config.TTL) {
			continue
		}
		if !found {
			// The key vanished between Keys and GetJSON: either the
			// store expired it (no stop was ever sent, the broadcast
			// is owed) or an explicit stop_typing raced us (its stop
			// already went out and this one is a harmless duplicate).
			// A stop without a user name is fine; clients key typing
			// state on userId.
			ind = models.TypingIndicator{
				UserID:         userID,
				ConversationID: conversationID,
			}
		}

		if err := s.store.Del(ctx, key); err != nil {
			s.logger.Warn("typing sweep failed to delete key", "key", key, "error", err)
			continue
		}
		if err := s.broadcast.ToConversation(ctx, conversationID, protocol.NewUserTyping(ind, false, now), userID); err != nil {
			s.logger.Warn("typing sweep broadcast failed",
				"conversation_id", conversationID, "user_id", userID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.TypingSweeps.Inc()
		}
		s.logger.Debug("swept expired typing indicator",
			"conversation_id", conversationID, "user_id", userID)
	}
}

func indicatorKey(conversationID, userID string) string {
	return fmt.Sprintf("typing:%s:%s", conversationID, userID)
}

// parseIndicatorKey splits "typing:<conversationID>:<userID>". IDs are
// UUIDs and never contain colons.
func parseIndicatorKey(key string) (conversationID, userID string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
