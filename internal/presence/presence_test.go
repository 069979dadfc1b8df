package presence

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/haasonsaas/relay/internal/fanout"
	"github.com/haasonsaas/relay/internal/membership"
	"github.com/haasonsaas/relay/internal/registry"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/pkg/models"
)

type captureSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, data)
	return nil
}

func (s *captureSender) Ping() error             { return nil }
func (s *captureSender) Close(int, string) error { return nil }

func (s *captureSender) events(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, frame := range s.frames {
		var decoded map[string]any
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, decoded)
	}
	return out
}

type fixture struct {
	manager *Manager
	reg     *registry.Registry
	stores  storage.StoreSet
	peer    *captureSender
}

// newFixture wires u1 and u2 into a shared conversation, with u2
// holding a live connection that captures broadcasts.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores, seed := storage.NewMemoryStores()
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u1", IsActive: true})
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u2", IsActive: true})

	reg := registry.New()
	peer := &captureSender{}
	reg.Add(&registry.Conn{ID: "conn-u2", UserID: "u2", Sender: peer})

	members := membership.NewResolver(stores.Participants)
	broadcast := fanout.New(reg, members, nil, nil)
	return &fixture{
		manager: NewManager(stores.Presence, members, broadcast, nil, nil),
		reg:     reg,
		stores:  stores,
		peer:    peer,
	}
}

func TestOnConnect_FirstConnectionOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.manager.OnConnect(ctx, "u1", "conn-1", true)
	f.manager.OnConnect(ctx, "u1", "conn-2", false)

	rec, err := f.stores.Presence.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Presence.Get: %v", err)
	}
	if !rec.IsOnline || rec.ConnectionID != "conn-1" {
		t.Errorf("record = %+v", rec)
	}

	events := f.peer.events(t)
	if len(events) != 1 {
		t.Fatalf("peer received %d events, want exactly 1", len(events))
	}
	data := events[0]["data"].(map[string]any)
	if events[0]["type"] != "user_online" || data["userId"] != "u1" || data["isOnline"] != true {
		t.Errorf("event = %v", events[0])
	}
}

func TestOnDisconnect_LastConnectionOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.manager.OnConnect(ctx, "u1", "conn-1", true)

	// Closing one of two connections is not a transition.
	f.manager.OnDisconnect(ctx, "u1", false)
	if rec, _ := f.stores.Presence.Get(ctx, "u1"); !rec.IsOnline {
		t.Error("u1 should remain online until the last connection closes")
	}

	f.manager.OnDisconnect(ctx, "u1", true)
	rec, _ := f.stores.Presence.Get(ctx, "u1")
	if rec.IsOnline {
		t.Error("u1 should be offline")
	}

	events := f.peer.events(t)
	if len(events) != 2 {
		t.Fatalf("peer received %d events, want 2 (online then offline)", len(events))
	}
	data := events[1]["data"].(map[string]any)
	if data["isOnline"] != false {
		t.Errorf("second event = %v", events[1])
	}
}

func TestAnnounce_DoesNotEchoToSelf(t *testing.T) {
	f := newFixture(t)
	self := &captureSender{}
	f.reg.Add(&registry.Conn{ID: "conn-u1", UserID: "u1", Sender: self})

	f.manager.OnConnect(context.Background(), "u1", "conn-u1", true)

	if len(self.events(t)) != 0 {
		t.Error("transitioning user must not receive their own user_online event")
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.manager.OnConnect(ctx, "u1", "conn-1", true)

	if err := f.manager.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	rec, _ := f.stores.Presence.Get(ctx, "u1")
	if rec.IsOnline {
		t.Error("stale online row should be cleared")
	}
}
