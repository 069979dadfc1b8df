package storage

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

func seedConversation(seed *MemorySeed, convID string, userIDs ...string) {
	seed.AddConversation(models.Conversation{ID: convID, Type: "group"})
	for _, uid := range userIDs {
		seed.AddParticipant(models.Participant{ConversationID: convID, UserID: uid, IsActive: true})
	}
}

func TestMemoryParticipants(t *testing.T) {
	stores, seed := NewMemoryStores()
	ctx := context.Background()
	seedConversation(seed, "c1", "u1", "u2")
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u3", IsActive: false})
	seedConversation(seed, "c2", "u1")

	active, err := stores.Participants.ActiveParticipants(ctx, "c1")
	if err != nil {
		t.Fatalf("ActiveParticipants: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active participants = %d, want 2 (inactive rows excluded)", len(active))
	}

	if ok, _ := stores.Participants.IsParticipant(ctx, "u1", "c1"); !ok {
		t.Error("u1 should be a participant of c1")
	}
	if ok, _ := stores.Participants.IsParticipant(ctx, "u3", "c1"); ok {
		t.Error("inactive u3 should not count as a participant")
	}

	convs, err := stores.Participants.ConversationsOf(ctx, "u1")
	if err != nil {
		t.Fatalf("ConversationsOf: %v", err)
	}
	if len(convs) != 2 || convs[0] != "c1" || convs[1] != "c2" {
		t.Errorf("ConversationsOf(u1) = %v", convs)
	}

	now := time.Now()
	if err := stores.Participants.TouchLastRead(ctx, "u1", "c1", now); err != nil {
		t.Fatalf("TouchLastRead: %v", err)
	}
	active, _ = stores.Participants.ActiveParticipants(ctx, "c1")
	for _, p := range active {
		if p.UserID == "u1" && (p.LastReadAt == nil || !p.LastReadAt.Equal(now)) {
			t.Errorf("lastReadAt = %v, want %v", p.LastReadAt, now)
		}
	}
}

func TestMemoryMessages_MarkReadExactlyOnce(t *testing.T) {
	stores, _ := NewMemoryStores()
	ctx := context.Background()
	now := time.Now()

	msg := &models.Message{
		ID: "m1", ConversationID: "c1", SenderID: "u1",
		Content: "hi", Type: models.MessageTypeText,
		Status: models.MessageStatusSent, CreatedAt: now, UpdatedAt: now,
	}
	if err := stores.Messages.Create(ctx, msg); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The sender cannot mark its own message read.
	if changed, _ := stores.Messages.MarkRead(ctx, "m1", "c1", "u1", now); changed {
		t.Error("sender marking own message should not transition status")
	}

	changed, err := stores.Messages.MarkRead(ctx, "m1", "c1", "u2", now)
	if err != nil || !changed {
		t.Fatalf("MarkRead = %v, %v; want true, nil", changed, err)
	}

	// Second read is a no-op: the transition happens exactly once.
	if changed, _ := stores.Messages.MarkRead(ctx, "m1", "c1", "u3", now); changed {
		t.Error("second MarkRead should report no transition")
	}

	got, err := stores.Messages.Get(ctx, "m1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.MessageStatusRead {
		t.Errorf("status = %s, want read", got.Status)
	}
}

func TestMemoryMessages_MarkReadWrongConversation(t *testing.T) {
	stores, _ := NewMemoryStores()
	ctx := context.Background()
	now := time.Now()
	_ = stores.Messages.Create(ctx, &models.Message{
		ID: "m1", ConversationID: "c1", SenderID: "u1", Status: models.MessageStatusSent,
	})

	if changed, _ := stores.Messages.MarkRead(ctx, "m1", "other", "u2", now); changed {
		t.Error("MarkRead against the wrong conversation should not transition")
	}
}

func TestMemoryPresence(t *testing.T) {
	stores, _ := NewMemoryStores()
	ctx := context.Background()
	now := time.Now()

	if err := stores.Presence.SetOnline(ctx, "u1", "conn-1", now); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	rec, err := stores.Presence.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.IsOnline || rec.ConnectionID != "conn-1" {
		t.Errorf("record = %+v", rec)
	}

	if err := stores.Presence.SetOffline(ctx, "u1", now.Add(time.Minute)); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	rec, _ = stores.Presence.Get(ctx, "u1")
	if rec.IsOnline {
		t.Error("u1 should be offline")
	}
}

func TestMemoryPresence_ResetAll(t *testing.T) {
	stores, _ := NewMemoryStores()
	ctx := context.Background()
	now := time.Now()
	_ = stores.Presence.SetOnline(ctx, "u1", "c1", now)
	_ = stores.Presence.SetOnline(ctx, "u2", "c2", now)
	_ = stores.Presence.SetOffline(ctx, "u3", now)

	n, err := stores.Presence.ResetAll(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if n != 2 {
		t.Errorf("ResetAll cleared %d rows, want 2", n)
	}
	for _, uid := range []string{"u1", "u2", "u3"} {
		rec, _ := stores.Presence.Get(ctx, uid)
		if rec.IsOnline {
			t.Errorf("%s should be offline after reset", uid)
		}
	}
}

func TestMemoryNotFound(t *testing.T) {
	stores, _ := NewMemoryStores()
	ctx := context.Background()

	if _, err := stores.Messages.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Messages.Get err = %v, want ErrNotFound", err)
	}
	if _, err := stores.Users.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Users.Get err = %v, want ErrNotFound", err)
	}
	if _, err := stores.Conversations.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Conversations.Get err = %v, want ErrNotFound", err)
	}
	if _, err := stores.Presence.Get(ctx, "missing"); err != ErrNotFound {
		t.Errorf("Presence.Get err = %v, want ErrNotFound", err)
	}
}
