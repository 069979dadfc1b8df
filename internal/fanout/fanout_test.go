package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/protocol"
	"github.com/haasonsaas/relay/internal/registry"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/pkg/models"
)

type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *captureSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("write failed")
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSender) Ping() error             { return nil }
func (s *captureSender) Close(int, string) error { return nil }

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func testEvent() protocol.Event {
	return protocol.NewUserOnline("u9", true, time.Now())
}

func setup(t *testing.T) (*registry.Registry, *Broadcaster) {
	t.Helper()
	stores, seed := storage.NewMemoryStores()
	for _, uid := range []string{"u1", "u2", "u3"} {
		seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: uid, IsActive: true})
	}
	reg := registry.New()
	return reg, New(reg, membership.NewResolver(stores.Participants), nil, nil)
}

func TestToUser_AllConnections(t *testing.T) {
	reg, b := setup(t)
	s1, s2 := &captureSender{}, &captureSender{}
	reg.Add(&registry.Conn{ID: "c-1", UserID: "u1", Sender: s1})
	reg.Add(&registry.Conn{ID: "c-2", UserID: "u1", Sender: s2})

	b.ToUser("u1", testEvent())

	if s1.count() != 1 || s2.count() != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", s1.count(), s2.count())
	}

	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(s1.frames[0], &frame); err != nil || frame.Type != "user_online" {
		t.Errorf("frame = %s, err = %v", s1.frames[0], err)
	}
}

func TestToUser_OfflineIsSilent(t *testing.T) {
	_, b := setup(t)
	// Must not panic or error; the event is simply dropped.
	b.ToUser("nobody", testEvent())
}

func TestToUser_SendFailureDoesNotStopOthers(t *testing.T) {
	reg, b := setup(t)
	bad, good := &captureSender{fail: true}, &captureSender{}
	reg.Add(&registry.Conn{ID: "c-1", UserID: "u1", Sender: bad})
	reg.Add(&registry.Conn{ID: "c-2", UserID: "u1", Sender: good})

	b.ToUser("u1", testEvent())

	if good.count() != 1 {
		t.Errorf("healthy connection should still receive the event, got %d", good.count())
	}
}

func TestToConversation_ExcludesSender(t *testing.T) {
	reg, b := setup(t)
	senders := map[string]*captureSender{}
	for _, uid := range []string{"u1", "u2", "u3"} {
		s := &captureSender{}
		senders[uid] = s
		reg.Add(&registry.Conn{ID: "conn-" + uid, UserID: uid, Sender: s})
	}

	if err := b.ToConversation(context.Background(), "c1", testEvent(), "u1"); err != nil {
		t.Fatalf("ToConversation: %v", err)
	}

	if senders["u1"].count() != 0 {
		t.Error("excluded user must not receive the event")
	}
	if senders["u2"].count() != 1 || senders["u3"].count() != 1 {
		t.Errorf("deliveries = %d, %d; want 1, 1", senders["u2"].count(), senders["u3"].count())
	}
}

func TestToConversation_NoExclusion(t *testing.T) {
	reg, b := setup(t)
	s := &captureSender{}
	reg.Add(&registry.Conn{ID: "conn-u2", UserID: "u2", Sender: s})

	if err := b.ToConversation(context.Background(), "c1", testEvent(), ""); err != nil {
		t.Fatalf("ToConversation: %v", err)
	}
	if s.count() != 1 {
		t.Errorf("deliveries = %d, want 1", s.count())
	}
}
