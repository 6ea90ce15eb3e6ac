package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkconnect/inkconnect-server/internal/store"
)

// Common errors for messaging operations.
var (
	ErrInvalidParticipants = errors.New("sender and receiver must be two distinct users")
	ErrInvalidContent      = errors.New("message content is required")
	ErrAccessDenied        = errors.New("access denied")
	ErrNotFound            = errors.New("not found")
)

// DefaultPageSize is the message page size when the caller passes none.
const DefaultPageSize = 50

// Service provides conversation and message business logic. It has no
// transport awareness; both REST handlers and the realtime gateway call
// through it.
type Service struct {
	store store.Store
}

// New creates a new messaging service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// SendMessageInput carries everything needed to create a message.
type SendMessageInput struct {
	SenderID    string
	ReceiverID  string
	Content     string
	MessageType string
}

// GetOrCreateConversation resolves the conversation for an unordered user
// pair, creating it when absent. The returned info carries both
// participant summaries and the most recent message, if any.
func (s *Service) GetOrCreateConversation(ctx context.Context, userA, userB string) (*ConversationInfo, error) {
	if userA == userB || userA == "" || userB == "" {
		return nil, ErrInvalidParticipants
	}

	first, second := normalizePair(userA, userB)

	conv, err := s.store.GetConversationByPair(ctx, first, second)
	if errors.Is(err, store.ErrNotFound) {
		now := time.Now().UTC()
		conv = &store.Conversation{
			ID:            uuid.NewString(),
			User1ID:       first,
			User2ID:       second,
			LastMessageAt: now,
			CreatedAt:     now,
		}
		if createErr := s.store.CreateConversation(ctx, conv); createErr != nil {
			// A concurrent first message can win the insert between the
			// lookup and here; the unique pair index rejects ours. The
			// existing row is the conversation we wanted.
			existing, lookupErr := s.store.GetConversationByPair(ctx, first, second)
			if lookupErr != nil {
				return nil, fmt.Errorf("create conversation: %w", createErr)
			}
			conv = existing
		}
	} else if err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	return s.conversationInfo(ctx, conv)
}

// GetConversation retrieves a conversation by ID.
func (s *Service) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversationByID(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by recency,
// each annotated with the other participant, the latest message, and the
// user's unread count in that conversation.
func (s *Service) ListConversations(ctx context.Context, userID string) ([]*ConversationView, error) {
	conversations, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	views := make([]*ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		view, viewErr := s.conversationView(ctx, conv, userID)
		if viewErr != nil {
			return nil, viewErr
		}
		views = append(views, view)
	}
	return views, nil
}

// ConversationForUser builds the user's view of a single conversation.
// Used by the realtime gateway to emit conversation_updated events with a
// recomputed unread count.
func (s *Service) ConversationForUser(ctx context.Context, conversationID, userID string) (*ConversationView, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrAccessDenied
	}
	return s.conversationView(ctx, conv, userID)
}

// ListMessages returns one page of a conversation's messages in
// chronological order, paginated over reverse-chronological storage.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID string, page, limit int) (*MessagePage, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrAccessDenied
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	offset := (page - 1) * limit

	messages, err := s.store.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	total, err := s.store.CountMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	views := make([]*MessageView, 0, len(messages))
	// Storage is newest-first; reverse so clients render oldest-first.
	for i := len(messages) - 1; i >= 0; i-- {
		view, viewErr := s.messageView(ctx, messages[i])
		if viewErr != nil {
			return nil, viewErr
		}
		views = append(views, view)
	}

	totalPages := (total + limit - 1) / limit
	return &MessagePage{
		ConversationID: conversationID,
		Messages:       views,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    offset+len(messages) < total,
		},
	}, nil
}

// SendMessage is the single write path for new messages. It resolves (or
// creates) the conversation, inserts the message unread, and bumps the
// conversation's last_message_at to the insertion time.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*MessageView, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, ErrInvalidContent
	}
	if in.SenderID == in.ReceiverID || in.SenderID == "" || in.ReceiverID == "" {
		return nil, ErrInvalidParticipants
	}

	info, err := s.GetOrCreateConversation(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	messageType := in.MessageType
	if messageType == "" {
		messageType = "text"
	}

	now := time.Now().UTC()
	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: info.ID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		Content:        in.Content,
		MessageType:    messageType,
		IsRead:         false,
		CreatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, info.ID, now); err != nil {
		return nil, fmt.Errorf("bump conversation: %w", err)
	}

	return s.messageView(ctx, msg)
}

// MarkRead flips is_read for all unread messages addressed to userID in
// the conversation and returns the count changed. Idempotent.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(userID) {
		return 0, ErrAccessDenied
	}

	count, err := s.store.MarkMessagesRead(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return count, nil
}

// UnreadCount returns the user's total unread message count.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.store.CountUnreadTotal(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return count, nil
}

// DeleteMessage permanently removes a message. Only the sender may delete.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string) error {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg.SenderID != userID {
		return ErrAccessDenied
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *Service) conversationInfo(ctx context.Context, conv *store.Conversation) (*ConversationInfo, error) {
	user1, err := s.userSummary(ctx, conv.User1ID)
	if err != nil {
		return nil, err
	}
	user2, err := s.userSummary(ctx, conv.User2ID)
	if err != nil {
		return nil, err
	}

	last, err := s.latestMessageView(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	return &ConversationInfo{
		ID:            conv.ID,
		User1:         user1,
		User2:         user2,
		LastMessage:   last,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}, nil
}

func (s *Service) conversationView(ctx context.Context, conv *store.Conversation, userID string) (*ConversationView, error) {
	other, err := s.userSummary(ctx, conv.OtherParticipant(userID))
	if err != nil {
		return nil, err
	}

	last, err := s.latestMessageView(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	unread, err := s.store.CountUnread(ctx, conv.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}

	return &ConversationView{
		ID:            conv.ID,
		OtherUser:     other,
		LastMessage:   last,
		UnreadCount:   unread,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}, nil
}

func (s *Service) latestMessageView(ctx context.Context, conversationID string) (*MessageView, error) {
	msg, err := s.store.LatestMessage(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest message: %w", err)
	}
	return s.messageView(ctx, msg)
}

func (s *Service) messageView(ctx context.Context, msg *store.Message) (*MessageView, error) {
	sender, err := s.userSummary(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.userSummary(ctx, msg.ReceiverID)
	if err != nil {
		return nil, err
	}

	return &MessageView{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
		Sender:         sender,
		Receiver:       receiver,
	}, nil
}

func (s *Service) userSummary(ctx context.Context, userID string) (*UserSummary, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &UserSummary{
		ID:        user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		IsArtist:  user.IsArtist,
	}, nil
}

// normalizePair orders an unordered user pair so the smaller ID comes first.
func normalizePair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
