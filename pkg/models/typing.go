package models

import "time"

// TypingIndicator is the short-lived flag stored in the ephemeral store
// while a user is composing a message.
type TypingIndicator struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName,omitempty"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Expired reports whether the indicator is older than ttl at the given
// instant.
func (t TypingIndicator) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.Timestamp) > ttl
}
