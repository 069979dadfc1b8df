// Package protocol defines the wire envelope exchanged over a relay
// connection: a closed set of inbound request types and the outbound
// event frames fanned out to clients.
//
// Inbound frames are flat JSON objects carrying a "type" discriminator.
// Decoding produces one concrete struct per type, so dispatch is an
// exhaustive switch over a closed union rather than a map of loosely
// typed payloads.
package protocol

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/pkg/models"
)

// Inbound is a decoded client request.
type Inbound interface {
	// Kind returns the wire type discriminator.
	Kind() string
	// Validate checks required fields and bounds.
	Validate() error
}

// Ping requests a pong.
type Ping struct{}

// JoinRoom subscribes the sender to a conversation's room events.
type JoinRoom struct {
	ConversationID string `json:"conversationId"`
}

// LeaveRoom announces the sender is leaving a conversation's room.
type LeaveRoom struct {
	ConversationID string `json:"conversationId"`
}

// SendMessage submits a chat message for ingestion.
type SendMessage struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	MessageType    models.MessageType `json:"messageType,omitempty"`
}

// TypingStart signals the sender began composing a message.
type TypingStart struct {
	ConversationID string `json:"conversationId"`
}

// TypingStop signals the sender stopped composing.
type TypingStop struct {
	ConversationID string `json:"conversationId"`
}

// MarkRead records a read receipt. MessageID is optional; when present
// that message's status transitions sent -> read.
type MarkRead struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
}

// GetConversationStatus asks for participant presence and active typing
// indicators of a conversation.
type GetConversationStatus struct {
	ConversationID string `json:"conversationId"`
}

func (Ping) Kind() string                  { return "ping" }
func (JoinRoom) Kind() string              { return "join_room" }
func (LeaveRoom) Kind() string             { return "leave_room" }
func (SendMessage) Kind() string           { return "send_message" }
func (TypingStart) Kind() string           { return "typing_start" }
func (TypingStop) Kind() string            { return "typing_stop" }
func (MarkRead) Kind() string              { return "mark_read" }
func (GetConversationStatus) Kind() string { return "get_conversation_status" }

func (Ping) Validate() error { return nil }

func (m JoinRoom) Validate() error  { return requireConversation(m.ConversationID, m.Kind()) }
func (m LeaveRoom) Validate() error { return requireConversation(m.ConversationID, m.Kind()) }

func (m SendMessage) Validate() error {
	if m.ConversationID == "" || m.Content == "" {
		return relayerr.E(relayerr.CodeMissingField,
			"conversationId and content are required for send_message")
	}
	// The limit is in characters, not bytes; multibyte content must
	// not burn through it three times as fast.
	if utf8.RuneCountInString(m.Content) > models.MaxContentLength {
		return relayerr.E(relayerr.CodeContentTooLong,
			fmt.Sprintf("message content too long (max %d characters)", models.MaxContentLength))
	}
	return nil
}

func (m TypingStart) Validate() error { return requireConversation(m.ConversationID, m.Kind()) }
func (m TypingStop) Validate() error  { return requireConversation(m.ConversationID, m.Kind()) }
func (m MarkRead) Validate() error    { return requireConversation(m.ConversationID, m.Kind()) }
func (m GetConversationStatus) Validate() error {
	return requireConversation(m.ConversationID, m.Kind())
}

func requireConversation(id, kind string) error {
	if id == "" {
		return relayerr.E(relayerr.CodeMissingField,
			"conversationId is required for "+kind)
	}
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeInbound parses a raw client frame into its concrete request
// type. Unknown discriminators and malformed JSON come back as
// classified errors; field validation is left to Validate.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInvalidJSON, "invalid JSON format", err)
	}
	if env.Type == "" {
		return nil, relayerr.E(relayerr.CodeInvalidJSON, "message must have a valid type field")
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case "ping":
		msg = Ping{}
	case "join_room":
		msg, err = decodeAs[JoinRoom](data)
	case "leave_room":
		msg, err = decodeAs[LeaveRoom](data)
	case "send_message":
		msg, err = decodeAs[SendMessage](data)
	case "typing_start":
		msg, err = decodeAs[TypingStart](data)
	case "typing_stop":
		msg, err = decodeAs[TypingStop](data)
	case "mark_read":
		msg, err = decodeAs[MarkRead](data)
	case "get_conversation_status":
		msg, err = decodeAs[GetConversationStatus](data)
	default:
		return nil, relayerr.E(relayerr.CodeUnknownMessageType,
			fmt.Sprintf("unknown message type: %s", env.Type))
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, relayerr.Wrap(relayerr.CodeInvalidJSON, "invalid JSON format", err)
	}
	return msg, nil
}
