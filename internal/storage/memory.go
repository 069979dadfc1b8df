package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// NewMemoryStores returns an in-memory store set plus a seeder for
// populating fixture rows. Used in tests and in the zero-dependency
// development mode.
func NewMemoryStores() (StoreSet, *MemorySeed) {
	m := &memoryBackend{
		participants:  make(map[string][]*models.Participant),
		messages:      make(map[string]*models.Message),
		conversations: make(map[string]*models.Conversation),
		presence:      make(map[string]*models.PresenceRecord),
		users:         make(map[string]*models.User),
	}
	stores := StoreSet{
		Participants:  (*memoryParticipantStore)(m),
		Messages:      (*memoryMessageStore)(m),
		Conversations: (*memoryConversationStore)(m),
		Presence:      (*memoryPresenceStore)(m),
		Users:         (*memoryUserStore)(m),
	}
	return stores, &MemorySeed{b: m}
}

// MemorySeed writes fixture rows directly into the memory backend.
type MemorySeed struct {
	b *memoryBackend
}

// AddUser seeds a user row.
func (s *MemorySeed) AddUser(user models.User) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	stored := user
	s.b.users[user.ID] = &stored
}

// AddConversation seeds a conversation row.
func (s *MemorySeed) AddConversation(conv models.Conversation) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	stored := conv
	s.b.conversations[conv.ID] = &stored
}

// AddParticipant seeds a membership row.
func (s *MemorySeed) AddParticipant(p models.Participant) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, existing := range s.b.participants[p.ConversationID] {
		if existing.UserID == p.UserID {
			existing.IsActive = p.IsActive
			return
		}
	}
	row := p
	s.b.participants[p.ConversationID] = append(s.b.participants[p.ConversationID], &row)
}

type memoryBackend struct {
	mu            sync.RWMutex
	participants  map[string][]*models.Participant // conversationID -> members
	messages      map[string]*models.Message
	conversations map[string]*models.Conversation
	presence      map[string]*models.PresenceRecord
	users         map[string]*models.User
}

type memoryParticipantStore memoryBackend

func (s *memoryParticipantStore) backend() *memoryBackend { return (*memoryBackend)(s) }

func (s *memoryParticipantStore) ActiveParticipants(_ context.Context, conversationID string) ([]models.Participant, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Participant
	for _, p := range b.participants[conversationID] {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memoryParticipantStore) IsParticipant(_ context.Context, userID, conversationID string) (bool, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.participants[conversationID] {
		if p.UserID == userID && p.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryParticipantStore) ConversationsOf(_ context.Context, userID string) ([]string, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	var ids []string
	for convID, members := range b.participants {
		for _, p := range members {
			if p.UserID == userID && p.IsActive {
				ids = append(ids, convID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryParticipantStore) TouchLastRead(_ context.Context, userID, conversationID string, t time.Time) error {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.participants[conversationID] {
		if p.UserID == userID {
			ts := t
			p.LastReadAt = &ts
			return nil
		}
	}
	return nil
}

type memoryMessageStore memoryBackend

func (s *memoryMessageStore) backend() *memoryBackend { return (*memoryBackend)(s) }

func (s *memoryMessageStore) Create(_ context.Context, msg *models.Message) error {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	stored := *msg
	b.messages[msg.ID] = &stored
	return nil
}

func (s *memoryMessageStore) Get(_ context.Context, id string) (*models.Message, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	msg, ok := b.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *msg
	return &out, nil
}

func (s *memoryMessageStore) MarkRead(_ context.Context, messageID, conversationID, readerID string, t time.Time) (bool, error) {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[messageID]
	if !ok || msg.ConversationID != conversationID || msg.SenderID == readerID {
		return false, nil
	}
	if msg.Status != models.MessageStatusSent {
		return false, nil
	}
	msg.Status = models.MessageStatusRead
	msg.UpdatedAt = t
	return true, nil
}

type memoryConversationStore memoryBackend

func (s *memoryConversationStore) backend() *memoryBackend { return (*memoryBackend)(s) }

func (s *memoryConversationStore) Get(_ context.Context, id string) (*models.Conversation, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	conv, ok := b.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *conv
	return &out, nil
}

func (s *memoryConversationStore) TouchUpdatedAt(_ context.Context, id string, t time.Time) error {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	if conv, ok := b.conversations[id]; ok {
		conv.UpdatedAt = t
	}
	return nil
}

type memoryPresenceStore memoryBackend

func (s *memoryPresenceStore) backend() *memoryBackend { return (*memoryBackend)(s) }

func (s *memoryPresenceStore) SetOnline(_ context.Context, userID, connectionID string, t time.Time) error {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presence[userID] = &models.PresenceRecord{
		UserID: userID, IsOnline: true, LastSeen: t, ConnectionID: connectionID,
	}
	return nil
}

func (s *memoryPresenceStore) SetOffline(_ context.Context, userID string, t time.Time) error {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presence[userID] = &models.PresenceRecord{UserID: userID, IsOnline: false, LastSeen: t}
	return nil
}

func (s *memoryPresenceStore) Get(_ context.Context, userID string) (*models.PresenceRecord, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.presence[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *memoryPresenceStore) ResetAll(_ context.Context, t time.Time) (int64, error) {
	b := s.backend()
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int64
	for _, rec := range b.presence {
		if rec.IsOnline {
			rec.IsOnline = false
			rec.LastSeen = t
			rec.ConnectionID = ""
			n++
		}
	}
	return n, nil
}

type memoryUserStore memoryBackend

func (s *memoryUserStore) backend() *memoryBackend { return (*memoryBackend)(s) }

func (s *memoryUserStore) Get(_ context.Context, id string) (*models.User, error) {
	b := s.backend()
	b.mu.RLock()
	defer b.mu.RUnlock()
	user, ok := b.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}
