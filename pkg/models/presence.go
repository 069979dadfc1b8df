package models

import "time"

// PresenceRecord is the durable online/offline state for a user. It is
// written only on first-connection and last-connection transitions, never
// per connection.
type PresenceRecord struct {
	UserID       string    `json:"userId"`
	IsOnline     bool      `json:"isOnline"`
	LastSeen     time.Time `json:"lastSeen"`
	ConnectionID string    `json:"connectionId,omitempty"`
}

// ParticipantStatus is a participant enriched with presence, returned in
// room_joined and conversation_status events.
type ParticipantStatus struct {
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName,omitempty"`
	UserEmail string     `json:"userEmail,omitempty"`
	IsOnline  bool       `json:"isOnline"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
}
