package membership

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/haasonsaas/relay/internal/relayerr"
	"github.com/haasonsaas/relay/internal/storage"
	"github.com/haasonsaas/relay/pkg/models"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	stores, seed := storage.NewMemoryStores()
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u1", IsActive: true})
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u2", IsActive: true})
	seed.AddParticipant(models.Participant{ConversationID: "c1", UserID: "u5", IsActive: false})
	seed.AddParticipant(models.Participant{ConversationID: "c2", UserID: "u1", IsActive: true})
	seed.AddParticipant(models.Participant{ConversationID: "c2", UserID: "u3", IsActive: true})
	return NewResolver(stores.Participants)
}

func TestAuthorize(t *testing.T) {
	r := newTestResolver(t)
	ctx := context.Background()

	if err := r.Authorize(ctx, "u1", "c1"); err != nil {
		t.Errorf("active participant should be authorized: %v", err)
	}

	err := r.Authorize(ctx, "u3", "c1")
	var relayErr *relayerr.Error
	if !errors.As(err, &relayErr) || relayErr.Code != relayerr.CodeUnauthorized {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
	if relayErr.Retryable() {
		t.Error("authorization failures must not be retryable")
	}

	// Inactive membership rows do not authorize.
	if err := r.Authorize(ctx, "u5", "c1"); err == nil {
		t.Error("inactive participant should not be authorized")
	}
}

func TestPeersOf(t *testing.T) {
	r := newTestResolver(t)

	peers, err := r.PeersOf(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PeersOf: %v", err)
	}
	sort.Strings(peers)
	if len(peers) != 2 || peers[0] != "u2" || peers[1] != "u3" {
		t.Errorf("PeersOf(u1) = %v, want [u2 u3]", peers)
	}

	peers, err = r.PeersOf(context.Background(), "u4")
	if err != nil {
		t.Fatalf("PeersOf: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("PeersOf(u4) = %v, want none", peers)
	}
}

func TestActiveParticipantsExcludesInactive(t *testing.T) {
	r := newTestResolver(t)

	participants, err := r.ActiveParticipants(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ActiveParticipants: %v", err)
	}
	for _, p := range participants {
		if p.UserID == "u5" {
			t.Error("inactive u5 should be excluded")
		}
	}
	if len(participants) != 2 {
		t.Errorf("participants = %d, want 2", len(participants))
	}
}
