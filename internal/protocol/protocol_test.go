package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/pkg/models"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"ping", `{"type":"ping"}`, "ping"},
		{"join", `{"type":"join_room","conversationId":"c1"}`, "join_room"},
		{"leave", `{"type":"leave_room","conversationId":"c1"}`, "leave_room"},
		{"send", `{"type":"send_message","conversationId":"c1","content":"hi"}`, "send_message"},
		{"typing start", `{"type":"typing_start","conversationId":"c1"}`, "typing_start"},
		{"typing stop", `{"type":"typing_stop","conversationId":"c1"}`, "typing_stop"},
		{"mark read", `{"type":"mark_read","conversationId":"c1","messageId":"m1"}`, "mark_read"},
		{"status", `{"type":"get_conversation_status","conversationId":"c1"}`, "get_conversation_status"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if msg.Kind() != tc.want {
				t.Errorf("Kind() = %q, want %q", msg.Kind(), tc.want)
			}
			if err := msg.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"type":"subscribe"}`))
	var relayErr *relayerr.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerr.CodeUnknownMessageType {
		t.Fatalf("err = %v, want UNKNOWN_MESSAGE_TYPE", err)
	}
}

func TestDecodeInbound_InvalidJSON(t *testing.T) {
	for _, raw := range []string{`not json`, `{"type":}`, `{}`} {
		_, err := DecodeInbound([]byte(raw))
		var relayErr *relayerr.Error
		if !errors.As(err, &relayErr) || relayErr.Code != relayerr.CodeInvalidJSON {
			t.Errorf("DecodeInbound(%q) err = %v, want INVALID_JSON", raw, err)
		}
	}
}

func TestSendMessage_Validate(t *testing.T) {
	if err := (SendMessage{ConversationID: "c1"}).Validate(); err == nil {
		t.Error("missing content should fail validation")
	}
	if err := (SendMessage{Content: "hi"}).Validate(); err == nil {
		t.Error("missing conversationId should fail validation")
	}

	long := SendMessage{ConversationID: "c1", Content: strings.Repeat("a", models.MaxContentLength+1)}
	err := long.Validate()
	var relayErr *relayerr.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerr.CodeContentTooLong {
		t.Fatalf("err = %v, want CONTENT_TOO_LONG", err)
	}

	max := SendMessage{ConversationID: "c1", Content: strings.Repeat("a", models.MaxContentLength)}
	if err := max.Validate(); err != nil {
		t.Errorf("content at the limit should pass: %v", err)
	}

	// The limit counts characters, not bytes: a maximum-length CJK
	// message is three bytes per rune and must still pass.
	cjk := SendMessage{ConversationID: "c1", Content: strings.Repeat("消", models.MaxContentLength)}
	if err := cjk.Validate(); err != nil {
		t.Errorf("multibyte content at the limit should pass: %v", err)
	}
	overCJK := SendMessage{ConversationID: "c1", Content: strings.Repeat("消", models.MaxContentLength+1)}
	if !errors.As(overCJK.Validate(), &relayErr) || relayErr.Code != relayerr.CodeContentTooLong {
		t.Error("multibyte content over the limit should fail")
	}
}

func TestJoinRoom_ValidateMissingConversation(t *testing.T) {
	err := (JoinRoom{}).Validate()
	var relayErr *relayerr.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerr.CodeMissingField {
		t.Fatalf("err = %v, want MISSING_REQUIRED_FIELD", err)
	}
}

func TestEventMarshal_DataEnvelope(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw, err := NewUserOnline("u1", true, now).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			UserID   string `json:"userId"`
			IsOnline bool   `json:"isOnline"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != "user_online" || decoded.Data.UserID != "u1" || !decoded.Data.IsOnline {
		t.Errorf("unexpected frame: %s", raw)
	}
}

func TestEventMarshal_ErrorIsFlat(t *testing.T) {
	raw, err := NewError(relayerr.E(relayerr.CodeRateLimitExceeded, "rate limit exceeded")).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != "error" || decoded["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("unexpected frame: %s", raw)
	}
	if retryable, ok := decoded["retryable"].(bool); !ok || retryable {
		t.Errorf("retryable = %v, want false", decoded["retryable"])
	}
	if _, ok := decoded["data"]; ok {
		t.Error("error frames should not carry a data envelope")
	}
}
