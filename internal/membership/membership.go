// Package membership resolves conversation membership from the durable
// store and gates every conversation-scoped action on it.
package membership

import (
	"context"
	"time"

	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/pkg/models"
)

// Resolver answers membership questions for conversations.
type Resolver struct {
	participants storage.ParticipantStore
}

// NewResolver builds a resolver over the participant store.
func NewResolver(participants storage.ParticipantStore) *Resolver {
	return &Resolver{participants: participants}
}

// ActiveParticipants returns the active members of a conversation.
func (r *Resolver) ActiveParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	participants, err := r.participants.ActiveParticipants(ctx, conversationID)
	if err != nil {
		return nil, relayerr.Dependency("resolve participants", err)
	}
	return participants, nil
}

// Authorize fails unless the user is an active participant of the
// conversation. Called before every conversation-scoped action; on
// failure no side effects may occur.
func (r *Resolver) Authorize(ctx context.Context, userID, conversationID string) error {
	ok, err := r.participants.IsParticipant(ctx, userID, conversationID)
	if err != nil {
		return relayerr.Dependency("check participant", err)
	}
	if !ok {
		return relayerr.E(relayerr.CodeUnauthorized, "user not authorized for this conversation")
	}
	return nil
}

// TouchLastRead records that the user caught up on a conversation.
func (r *Resolver) TouchLastRead(ctx context.Context, userID, conversationID string, t time.Time) error {
	if err := r.participants.TouchLastRead(ctx, userID, conversationID, t); err != nil {
		return relayerr.Dependency("update last read", err)
	}
	return nil
}

// PeersOf returns the users who share at least one active conversation
// with the given user, excluding the user themselves. Used to scope
// presence broadcasts.
func (r *Resolver) PeersOf(ctx context.Context, userID string) ([]string, error) {
	conversations, err := r.participants.ConversationsOf(ctx, userID)
	if err != nil {
		return nil, relayerr.Dependency("resolve conversations", err)
	}

	seen := make(map[string]struct{})
	var peers []string
	for _, convID := range conversations {
		participants, err := r.participants.ActiveParticipants(ctx, convID)
		if err != nil {
			return nil, relayerr.Dependency("resolve participants", err)
		}
		for _, p := range participants {
			if p.UserID == userID {
				continue
			}
			if _, ok := seen[p.UserID]; ok {
				continue
			}
			seen[p.UserID] = struct{}{}
			peers = append(peers, p.UserID)
		}
	}
	return peers, nil
}
