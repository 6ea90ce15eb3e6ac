package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inkconnect/inkconnect-server/internal/store"
)

// schema is applied on open. Statements are idempotent so repeated starts
// against the same file are safe.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar_url    TEXT NOT NULL DEFAULT '',
	bio           TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	is_artist     BOOLEAN NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	user1_id        TEXT NOT NULL,
	user2_id        TEXT NOT NULL,
	last_message_at DATETIME NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user1_id) REFERENCES users(id),
	FOREIGN KEY (user2_id) REFERENCES users(id),
	CHECK (user1_id < user2_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_pair
	ON conversations(user1_id, user2_id);
CREATE INDEX IF NOT EXISTS idx_conversations_last_message
	ON conversations(last_message_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id       TEXT NOT NULL,
	receiver_id     TEXT NOT NULL,
	content         TEXT NOT NULL,
	message_type    TEXT NOT NULL DEFAULT 'text',
	is_read         BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id),
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (receiver_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_messages_unread
	ON messages(receiver_id, is_read);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after
// the schema is applied. Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *store.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, avatar_url, bio, location, is_artist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.AvatarURL, u.Bio, u.Location, u.IsArtist, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, location, is_artist, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, location, is_artist, created_at
		FROM users
		WHERE email = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.AvatarURL,
		&u.Bio,
		&u.Location,
		&u.IsArtist,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ==== ConversationStore implementation ====

// CreateConversation inserts a conversation with a normalized pair.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *store.Conversation) error {
	query := `
		INSERT INTO conversations (id, user1_id, user2_id, last_message_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query, c.ID, c.User1ID, c.User2ID, c.LastMessageAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversationByID retrieves a conversation by ID.
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id string) (*store.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_at, created_at
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// GetConversationByPair retrieves the conversation for a normalized user pair.
func (s *SQLiteStore) GetConversationByPair(ctx context.Context, user1ID, user2ID string) (*store.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_at, created_at
		FROM conversations
		WHERE user1_id = ? AND user2_id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, user1ID, user2ID))
}

// ListConversations lists conversations for a user ordered by recency.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, last_message_at, created_at
		FROM conversations
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY last_message_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*store.Conversation
	for rows.Next() {
		var c store.Conversation
		if err := rows.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.LastMessageAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// TouchConversation updates last_message_at.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch conversation rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return &c, nil
}

// ==== MessageStore implementation ====

// InsertMessage persists a message.
func (s *SQLiteStore) InsertMessage(ctx context.Context, m *store.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, content, message_type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, m.MessageType, m.IsRead, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessageByID retrieves a message by ID.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_read, created_at
		FROM messages
		WHERE id = ?
	`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, id))
}

// ListMessages retrieves one page of messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_read, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.MessageType, &m.IsRead, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// CountMessages returns the total message count for a conversation.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`
	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// LatestMessage returns the newest message of a conversation.
func (s *SQLiteStore) LatestMessage(ctx context.Context, conversationID string) (*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, receiver_id, content, message_type, is_read, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return s.scanMessage(s.db.QueryRowContext(ctx, query, conversationID))
}

// CountUnread counts unread messages addressed to userID in a conversation.
func (s *SQLiteStore) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0
	`
	var count int
	if err := s.db.QueryRowContext(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

// CountUnreadTotal counts unread messages addressed to userID everywhere.
func (s *SQLiteStore) CountUnreadTotal(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = 0`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread total: %w", err)
	}
	return count, nil
}

// MarkMessagesRead flips is_read for unread messages addressed to userID.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, conversationID, userID string) (int, error) {
	query := `
		UPDATE messages SET is_read = 1
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark messages read rows affected: %w", err)
	}
	return int(affected), nil
}

// DeleteMessage permanently removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanMessage(row *sql.Row) (*store.Message, error) {
	var m store.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
		&m.Content, &m.MessageType, &m.IsRead, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return &m, nil
}
