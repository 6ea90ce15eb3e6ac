package proto

import (
	"encoding/json"

	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
)

// Inbound is the envelope for frames coming from the client. Both
// transport adapters decode their wire framing into this shape.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client→server event names.
const (
	InboundTypeAuthenticate      = "authenticate"
	InboundTypeJoinConversation  = "join_conversation"
	InboundTypeLeaveConversation = "leave_conversation"
	InboundTypeTypingStart       = "typing_start"
	InboundTypeTypingStop        = "typing_stop"
	InboundTypeSendMessage       = "send_message"
	InboundTypeMarkRead          = "mark_messages_read"
	InboundTypeGetMessages       = "get_messages"
	InboundTypeGetConversations  = "get_conversations"
	InboundTypePing              = "ping"
)

// Server→client event names.
const (
	OutboundTypeAuthenticated       = "authenticated"
	OutboundTypeAuthError           = "authentication_error"
	OutboundTypeUserTyping          = "user_typing"
	OutboundTypeUserStoppedTyping   = "user_stopped_typing"
	OutboundTypeNewMessage          = "new_message"
	OutboundTypeMessageSent         = "message_sent"
	OutboundTypeMessagesRead        = "messages_read"
	OutboundTypeMessagesMarkedRead  = "messages_marked_read"
	OutboundTypeConversationUpdate  = "conversation_updated"
	OutboundTypeMessagesLoaded      = "messages_loaded"
	OutboundTypeConversationsLoaded = "conversations_loaded"
	OutboundTypeError               = "error"
	OutboundTypePong                = "pong"
)

// AuthenticateData carries the credential for the authenticate handshake.
type AuthenticateData struct {
	Token string `json:"token"`
}

// ConversationRef names a conversation in join/leave/typing/mark-read events.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessageData carries a new message. Either ReceiverID or
// ConversationID must be set; with only a conversation the receiver is
// resolved as its other participant.
type SendMessageData struct {
	ConversationID string `json:"conversationId,omitempty"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Content        string `json:"content"`
	MessageType    string `json:"messageType,omitempty"`
}

// GetMessagesData requests one page of conversation history.
type GetMessagesData struct {
	ConversationID string `json:"conversationId"`
	Page           int    `json:"page,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// AuthenticatedData acknowledges a successful handshake.
type AuthenticatedData struct {
	UserID string `json:"userId"`
}

// ErrorData carries a human-readable failure scoped to one session.
type ErrorData struct {
	Message string `json:"message"`
}

// TypingData is the ephemeral typing notification fanned out to the
// other members of a conversation room.
type TypingData struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

// MessageSentData acknowledges a persisted message to its sender.
type MessageSentData struct {
	Message *messaging.MessageView `json:"message"`
	Success bool                   `json:"success"`
}

// MessagesReadData is broadcast to a conversation room when a participant
// marks messages read.
type MessagesReadData struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	MarkedCount    int    `json:"markedCount"`
}

// MessagesMarkedReadData acknowledges a mark-read request to its caller.
type MessagesMarkedReadData struct {
	ConversationID string `json:"conversationId"`
	MarkedCount    int    `json:"markedCount"`
	Success        bool   `json:"success"`
}

// MessagesLoadedData delivers one page of history to the requesting session.
type MessagesLoadedData struct {
	ConversationID string                   `json:"conversationId"`
	Messages       []*messaging.MessageView `json:"messages"`
	Pagination     messaging.Pagination     `json:"pagination"`
	Success        bool                     `json:"success"`
}

// ConversationsLoadedData delivers the caller's conversation list.
type ConversationsLoadedData struct {
	Conversations []*messaging.ConversationView `json:"conversations"`
	Success       bool                          `json:"success"`
}
