package realtime

import (
	"context"

	"github.com/inkconnect/inkconnect-server/internal/proto"
	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
)

// NotifyMessageSent fans out a message that was persisted outside the
// realtime dispatch path (the REST send endpoint): new_message to the
// conversation room and conversation_updated to both participants'
// personal rooms.
func (g *Gateway) NotifyMessageSent(ctx context.Context, msg *messaging.MessageView) {
	if msg == nil {
		return
	}
	g.broadcastToRoom(msg.ConversationID, proto.OutboundTypeNewMessage, msg, nil)
	g.emitConversationUpdate(ctx, msg.ConversationID, msg.SenderID)
	g.emitConversationUpdate(ctx, msg.ConversationID, msg.ReceiverID)
}

// NotifyMessagesRead broadcasts a read-receipt produced outside the
// realtime dispatch path (the REST mark-read endpoint).
func (g *Gateway) NotifyMessagesRead(conversationID, userID string, count int) {
	if count <= 0 {
		return
	}
	g.broadcastToRoom(conversationID, proto.OutboundTypeMessagesRead, proto.MessagesReadData{
		ConversationID: conversationID,
		UserID:         userID,
		MarkedCount:    count,
	}, nil)
}
