package messaging

import "time"

// UserSummary is the participant shape embedded in conversation and
// message payloads.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsArtist  bool   `json:"isArtist"`
}

// MessageView is a message enriched with sender and receiver summaries.
type MessageView struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	ReceiverID     string       `json:"receiverId"`
	Content        string       `json:"content"`
	MessageType    string       `json:"messageType"`
	IsRead         bool         `json:"isRead"`
	CreatedAt      time.Time    `json:"createdAt"`
	Sender         *UserSummary `json:"sender,omitempty"`
	Receiver       *UserSummary `json:"receiver,omitempty"`
}

// ConversationInfo carries both participant summaries. Returned when a
// conversation is resolved without a viewer perspective.
type ConversationInfo struct {
	ID            string       `json:"id"`
	User1         *UserSummary `json:"user1"`
	User2         *UserSummary `json:"user2"`
	LastMessage   *MessageView `json:"lastMessage,omitempty"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// ConversationView is one user's view of a conversation: the other
// participant, the latest message, and this user's unread count.
type ConversationView struct {
	ID            string       `json:"id"`
	OtherUser     *UserSummary `json:"otherUser"`
	LastMessage   *MessageView `json:"lastMessage,omitempty"`
	UnreadCount   int          `json:"unreadCount"`
	LastMessageAt time.Time    `json:"lastMessageAt"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// Pagination describes one page of a reverse-chronological listing.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// MessagePage is one chronological page of conversation messages.
type MessagePage struct {
	ConversationID string         `json:"conversationId"`
	Messages       []*MessageView `json:"messages"`
	Pagination     Pagination     `json:"pagination"`
}
