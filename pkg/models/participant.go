package models

import "time"

// Participant is a user's membership row in a conversation. Only active
// participants are authorized to act on the conversation or receive its
// fanout.
type Participant struct {
	ConversationID string     `json:"conversationId"`
	UserID         string     `json:"userId"`
	IsActive       bool       `json:"isActive"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
}
