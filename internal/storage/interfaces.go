// Package storage defines the durable store surface the relay depends
// on: conversations, participants, messages, and presence rows. The
// relay only performs simple CRUD-style calls here; ownership of the
// schema lives with the surrounding application.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

var ErrNotFound = errors.New("not found")

// ParticipantStore reads conversation membership and writes read
// timestamps.
type ParticipantStore interface {
	// ActiveParticipants returns the active members of a conversation.
	ActiveParticipants(ctx context.Context, conversationID string) ([]models.Participant, error)
	// IsParticipant reports whether the user is an active member.
	IsParticipant(ctx context.Context, userID, conversationID string) (bool, error)
	// ConversationsOf returns the IDs of conversations the user is an
	// active member of.
	ConversationsOf(ctx context.Context, userID string) ([]string, error)
	// TouchLastRead updates the participant's lastReadAt timestamp.
	TouchLastRead(ctx context.Context, userID, conversationID string, t time.Time) error
}

// MessageStore persists chat messages.
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, id string) (*models.Message, error)
	// MarkRead transitions a message from sent to read. The update only
	// applies when the message belongs to the conversation, was not sent
	// by the reader, and is still in the sent state; the returned bool
	// reports whether a transition happened.
	MarkRead(ctx context.Context, messageID, conversationID, readerID string, t time.Time) (bool, error)
}

// ConversationStore reads conversation metadata and bumps activity.
type ConversationStore interface {
	Get(ctx context.Context, id string) (*models.Conversation, error)
	TouchUpdatedAt(ctx context.Context, id string, t time.Time) error
}

// PresenceStore persists online/offline transitions.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID, connectionID string, t time.Time) error
	SetOffline(ctx context.Context, userID string, t time.Time) error
	Get(ctx context.Context, userID string) (*models.PresenceRecord, error)
	// ResetAll marks every user offline. Run at startup to clear rows
	// left stale by a crash while connections were live.
	ResetAll(ctx context.Context, t time.Time) (int64, error)
}

// UserStore resolves user display information.
type UserStore interface {
	Get(ctx context.Context, id string) (*models.User, error)
}

// StoreSet groups the durable store dependencies.
type StoreSet struct {
	Participants  ParticipantStore
	Messages      MessageStore
	Conversations ConversationStore
	Presence      PresenceStore
	Users         UserStore

	closer func() error
}

// Close releases any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
