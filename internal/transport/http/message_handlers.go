package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/realtime"
	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
)

// MessageHandlers provides the REST surface over the messaging service.
// Each handler is a thin wrapper around the same operations the realtime
// gateway dispatches to; writes additionally notify the gateway so live
// sessions observe them.
type MessageHandlers struct {
	svc     *messaging.Service
	gateway *realtime.Gateway
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messaging.Service, gw *realtime.Gateway, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		svc:     svc,
		gateway: gw,
		log:     logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID  string `json:"receiverId" binding:"required"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"messageType,omitempty"`
}

// ListConversations returns the caller's conversations.
// GET /api/messages/conversations
func (h *MessageHandlers) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	conversations, err := h.svc.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// StartConversation resolves or creates the conversation with another user.
// POST /api/messages/conversations/:userId
func (h *MessageHandlers) StartConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	otherID := c.Param("userId")

	info, err := h.svc.GetOrCreateConversation(c.Request.Context(), userID, otherID)
	if err != nil {
		if errors.Is(err, messaging.ErrInvalidParticipants) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start conversation with yourself"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Str("other_id", otherID).Msg("failed to start conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// ListMessages returns one page of a conversation's history.
// GET /api/messages/conversations/:conversationId/messages
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	conversationID := c.Param("conversationId")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.svc.ListMessages(c.Request.Context(), conversationID, userID, page, limit)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		case errors.Is(err, messaging.ErrAccessDenied):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})
		default:
			h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to list messages")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// SendMessage persists a new message and notifies live sessions.
// POST /api/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "receiver ID and content are required"})
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), messaging.SendMessageInput{
		SenderID:    userID,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		MessageType: req.MessageType,
	})
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrInvalidParticipants):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot send message to yourself"})
		case errors.Is(err, messaging.ErrInvalidContent):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "content is required"})
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to send message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.gateway.NotifyMessageSent(c.Request.Context(), msg)

	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks all of the caller's unread messages in a conversation.
// PUT /api/messages/conversations/:conversationId/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	conversationID := c.Param("conversationId")

	count, err := h.svc.MarkRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		case errors.Is(err, messaging.ErrAccessDenied):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})
		default:
			h.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to mark messages read")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.gateway.NotifyMessagesRead(conversationID, userID, count)

	c.JSON(http.StatusOK, gin.H{
		"message":     "messages marked as read",
		"markedCount": count,
	})
}

// UnreadCount returns the caller's total unread message count.
// GET /api/messages/unread-count
func (h *MessageHandlers) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	count, err := h.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to fetch unread count")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

// DeleteMessage removes a message the caller sent.
// DELETE /api/messages/:messageId
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	messageID := c.Param("messageId")

	if err := h.svc.DeleteMessage(c.Request.Context(), messageID, userID); err != nil {
		switch {
		case errors.Is(err, messaging.ErrNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
		case errors.Is(err, messaging.ErrAccessDenied):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the sender can delete a message"})
		default:
			h.log.Error().Err(err).Str("message_id", messageID).Msg("failed to delete message")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "message deleted successfully"})
}
