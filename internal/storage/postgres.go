package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/haasonsaas/relay/pkg/models"
)

// PostgresConfig tunes the database connection pool.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns pool settings suitable for a single
// relay process.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStores opens a Postgres-backed store set from a DSN.
func NewPostgresStores(dsn string, config *PostgresConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	return StoreSet{
		Participants:  &pgParticipantStore{db: db},
		Messages:      &pgMessageStore{db: db},
		Conversations: &pgConversationStore{db: db},
		Presence:      &pgPresenceStore{db: db},
		Users:         &pgUserStore{db: db},
		closer:        db.Close,
	}, nil
}

type pgParticipantStore struct {
	db *sql.DB
}

func (s *pgParticipantStore) ActiveParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id, user_id, is_active, last_read_at
		 FROM conversation_participants
		 WHERE conversation_id = $1 AND is_active`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var lastRead sql.NullTime
		if err := rows.Scan(&p.ConversationID, &p.UserID, &p.IsActive, &lastRead); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if lastRead.Valid {
			t := lastRead.Time
			p.LastReadAt = &t
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *pgParticipantStore) IsParticipant(ctx context.Context, userID, conversationID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM conversation_participants
		   WHERE conversation_id = $1 AND user_id = $2 AND is_active
		 )`,
		conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query participant: %w", err)
	}
	return exists, nil
}

func (s *pgParticipantStore) ConversationsOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conversation_id FROM conversation_participants
		 WHERE user_id = $1 AND is_active`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pgParticipantStore) TouchLastRead(ctx context.Context, userID, conversationID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversation_participants SET last_read_at = $3
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID, t)
	if err != nil {
		return fmt.Errorf("touch last read: %w", err)
	}
	return nil
}

type pgMessageStore struct {
	db *sql.DB
}

func (s *pgMessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("message with id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content,
		string(msg.Type), string(msg.Status), msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *pgMessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, sender_id, content, type, status, created_at, updated_at
		 FROM messages WHERE id = $1`,
		id).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
		&msg.Type, &msg.Status, &msg.CreatedAt, &msg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &msg, nil
}

func (s *pgMessageStore) MarkRead(ctx context.Context, messageID, conversationID, readerID string, t time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'read', updated_at = $4
		 WHERE id = $1 AND conversation_id = $2 AND sender_id <> $3 AND status = 'sent'`,
		messageID, conversationID, readerID, t)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark read rows: %w", err)
	}
	return affected > 0, nil
}

type pgConversationStore struct {
	db *sql.DB
}

func (s *pgConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	var convType, name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, type, name, created_at, updated_at FROM conversations WHERE id = $1`,
		id).Scan(&conv.ID, &convType, &name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	conv.Type = convType.String
	conv.Name = name.String
	return &conv, nil
}

func (s *pgConversationStore) TouchUpdatedAt(ctx context.Context, id string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, t)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

type pgPresenceStore struct {
	db *sql.DB
}

func (s *pgPresenceStore) SetOnline(ctx context.Context, userID, connectionID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_presence (user_id, is_online, last_seen, connection_id)
		 VALUES ($1, TRUE, $2, $3)
		 ON CONFLICT (user_id)
		 DO UPDATE SET is_online = TRUE, last_seen = $2, connection_id = $3`,
		userID, t, connectionID)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

func (s *pgPresenceStore) SetOffline(ctx context.Context, userID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_presence (user_id, is_online, last_seen, connection_id)
		 VALUES ($1, FALSE, $2, NULL)
		 ON CONFLICT (user_id)
		 DO UPDATE SET is_online = FALSE, last_seen = $2, connection_id = NULL`,
		userID, t)
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

func (s *pgPresenceStore) Get(ctx context.Context, userID string) (*models.PresenceRecord, error) {
	var rec models.PresenceRecord
	var connID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, is_online, last_seen, connection_id FROM user_presence WHERE user_id = $1`,
		userID).Scan(&rec.UserID, &rec.IsOnline, &rec.LastSeen, &connID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	rec.ConnectionID = connID.String
	return &rec, nil
}

func (s *pgPresenceStore) ResetAll(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_presence SET is_online = FALSE, last_seen = $1, connection_id = NULL
		 WHERE is_online`, t)
	if err != nil {
		return 0, fmt.Errorf("reset presence: %w", err)
	}
	return res.RowsAffected()
}

type pgUserStore struct {
	db *sql.DB
}

func (s *pgUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	var name, email sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at FROM users WHERE id = $1`,
		id).Scan(&user.ID, &name, &email, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Name = name.String
	user.Email = email.String
	return &user, nil
}
