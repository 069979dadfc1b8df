package protocol

import (
	"encoding/json"
	"time"

	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/pkg/models"
)

// Event is an outbound frame. Regular events serialize as
// {"type": ..., "data": {...}}; error events are flat
// {"type":"error","message":...,"code":...,"retryable":...}.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Code      string `json:"code,omitempty"`
	Retryable *bool  `json:"retryable,omitempty"`
}

// Marshal serializes the event for a transport write.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// PongData carries the pong timestamp in epoch milliseconds.
type PongData struct {
	Timestamp int64 `json:"timestamp"`
}

// ConnectionEstablishedData confirms a successful connect.
type ConnectionEstablishedData struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

// RoomJoinedData confirms a join and lists participant presence.
type RoomJoinedData struct {
	ConversationID string                     `json:"conversationId"`
	Participants   []models.ParticipantStatus `json:"participants"`
}

// RoomMemberData announces another user joining or leaving a room.
type RoomMemberData struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Timestamp      time.Time `json:"timestamp"`
}

// RoomLeftData confirms the sender left a room.
type RoomLeftData struct {
	ConversationID string `json:"conversationId"`
}

// MessageReceivedData delivers a new message to participants.
type MessageReceivedData struct {
	Message      WireMessage      `json:"message"`
	Conversation WireConversation `json:"conversation"`
}

// WireMessage is the message shape sent to clients.
type WireMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// WireConversation is the conversation summary attached to a delivery.
type WireConversation struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// MessageSentData confirms ingestion to the sender.
type MessageSentData struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// UserTypingData signals typing state changes.
type UserTypingData struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName,omitempty"`
	ConversationID string    `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      time.Time `json:"timestamp"`
}

// UserOnlineData signals presence transitions.
type UserOnlineData struct {
	UserID    string    `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp time.Time `json:"timestamp"`
}

// MarkedReadData confirms a mark_read to the reader.
type MarkedReadData struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReadReceiptData notifies participants that a user read messages.
type ReadReceiptData struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	MessageID      string    `json:"messageId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationStatusData answers a get_conversation_status request.
type ConversationStatusData struct {
	ConversationID   string                     `json:"conversationId"`
	Participants     []models.ParticipantStatus `json:"participants"`
	TypingIndicators []models.TypingIndicator   `json:"typingIndicators"`
	Timestamp        time.Time                  `json:"timestamp"`
}

// MessageStatusData broadcasts a message status transition.
type MessageStatusData struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewPong(now time.Time) Event {
	return Event{Type: "pong", Data: PongData{Timestamp: now.UnixMilli()}}
}

func NewConnectionEstablished(connID, userID string, now time.Time) Event {
	return Event{Type: "connection_established", Data: ConnectionEstablishedData{
		ConnectionID: connID, UserID: userID, Timestamp: now,
	}}
}

func NewRoomJoined(convID string, participants []models.ParticipantStatus) Event {
	return Event{Type: "room_joined", Data: RoomJoinedData{
		ConversationID: convID, Participants: participants,
	}}
}

func NewUserJoinedRoom(convID, userID string, now time.Time) Event {
	return Event{Type: "user_joined_room", Data: RoomMemberData{
		ConversationID: convID, UserID: userID, Timestamp: now,
	}}
}

func NewRoomLeft(convID string) Event {
	return Event{Type: "room_left", Data: RoomLeftData{ConversationID: convID}}
}

func NewUserLeftRoom(convID, userID string, now time.Time) Event {
	return Event{Type: "user_left_room", Data: RoomMemberData{
		ConversationID: convID, UserID: userID, Timestamp: now,
	}}
}

func NewMessageReceived(msg *models.Message, conv WireConversation) Event {
	return Event{Type: "message_received", Data: MessageReceivedData{
		Message: WireMessage{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			SenderName:     msg.SenderName,
			Content:        msg.Content,
			Type:           string(msg.Type),
			Status:         string(msg.Status),
			Timestamp:      msg.CreatedAt,
			CreatedAt:      msg.CreatedAt,
			UpdatedAt:      msg.UpdatedAt,
		},
		Conversation: conv,
	}}
}

func NewMessageSent(msg *models.Message) Event {
	return Event{Type: "message_sent", Data: MessageSentData{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Status:         string(msg.Status),
		Timestamp:      msg.CreatedAt,
	}}
}

func NewUserTyping(ind models.TypingIndicator, isTyping bool, now time.Time) Event {
	return Event{Type: "user_typing", Data: UserTypingData{
		UserID:         ind.UserID,
		UserName:       ind.UserName,
		ConversationID: ind.ConversationID,
		IsTyping:       isTyping,
		Timestamp:      now,
	}}
}

func NewUserOnline(userID string, isOnline bool, now time.Time) Event {
	return Event{Type: "user_online", Data: UserOnlineData{
		UserID: userID, IsOnline: isOnline, Timestamp: now,
	}}
}

func NewMessagesMarkedRead(convID, messageID string, now time.Time) Event {
	return Event{Type: "messages_marked_read", Data: MarkedReadData{
		ConversationID: convID, MessageID: messageID, Timestamp: now,
	}}
}

func NewMessageReadReceipt(convID, userID, messageID string, now time.Time) Event {
	return Event{Type: "message_read_receipt", Data: ReadReceiptData{
		ConversationID: convID, UserID: userID, MessageID: messageID, Timestamp: now,
	}}
}

func NewConversationStatus(convID string, participants []models.ParticipantStatus, typing []models.TypingIndicator, now time.Time) Event {
	if typing == nil {
		typing = []models.TypingIndicator{}
	}
	return Event{Type: "conversation_status", Data: ConversationStatusData{
		ConversationID:   convID,
		Participants:     participants,
		TypingIndicators: typing,
		Timestamp:        now,
	}}
}

func NewMessageStatusUpdated(messageID, convID string, status models.MessageStatus, now time.Time) Event {
	return Event{Type: "message_status_updated", Data: MessageStatusData{
		MessageID:      messageID,
		ConversationID: convID,
		Status:         string(status),
		Timestamp:      now,
	}}
}

// NewError maps a classified failure onto the flat error frame.
func NewError(err *relayerr.Error) Event {
	retryable := err.Retryable()
	return Event{
		Type:      "error",
		Message:   err.Message,
		Code:      string(err.Code),
		Retryable: &retryable,
	}
}
