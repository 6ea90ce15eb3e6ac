package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// User represents a marketplace account (client or artist).
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	AvatarURL    string
	Bio          string
	Location     string
	IsArtist     bool
	CreatedAt    time.Time
}

// Conversation is the persistent thread between exactly two users.
// User1ID is always the lexicographically smaller of the pair, so an
// unordered user pair maps to exactly one row.
type Conversation struct {
	ID            string
	User1ID       string
	User2ID       string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	MessageType    string
	IsRead         bool
	CreatedAt      time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, u *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation inserts a conversation. The caller must pass the
	// pair already normalized (user1 < user2).
	CreateConversation(ctx context.Context, c *Conversation) error

	// GetConversationByID retrieves a conversation by ID.
	GetConversationByID(ctx context.Context, id string) (*Conversation, error)

	// GetConversationByPair retrieves the conversation for a normalized
	// user pair (user1 < user2).
	GetConversationByPair(ctx context.Context, user1ID, user2ID string) (*Conversation, error)

	// ListConversations lists conversations the user participates in,
	// ordered by last_message_at descending.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// TouchConversation updates last_message_at.
	TouchConversation(ctx context.Context, id string, at time.Time) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message.
	InsertMessage(ctx context.Context, m *Message) error

	// GetMessageByID retrieves a message by ID.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// ListMessages retrieves one page of a conversation's messages in
	// reverse chronological order (newest first).
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)

	// CountMessages returns the total number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// LatestMessage returns the newest message of a conversation, or
	// ErrNotFound for an empty conversation.
	LatestMessage(ctx context.Context, conversationID string) (*Message, error)

	// CountUnread counts unread messages addressed to userID in one conversation.
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)

	// CountUnreadTotal counts unread messages addressed to userID across
	// all conversations.
	CountUnreadTotal(ctx context.Context, userID string) (int, error)

	// MarkMessagesRead flips is_read for all unread messages addressed to
	// userID in the conversation and returns the number of rows changed.
	MarkMessagesRead(ctx context.Context, conversationID, userID string) (int, error)

	// DeleteMessage permanently removes a message.
	DeleteMessage(ctx context.Context, id string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
