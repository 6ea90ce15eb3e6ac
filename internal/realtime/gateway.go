package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/proto"
	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
	"github.com/inkconnect/inkconnect-server/internal/store"
)

// Messenger is the slice of the messaging service the gateway depends on.
type Messenger interface {
	SendMessage(ctx context.Context, in messaging.SendMessageInput) (*messaging.MessageView, error)
	MarkRead(ctx context.Context, conversationID, userID string) (int, error)
	ListMessages(ctx context.Context, conversationID, userID string, page, limit int) (*messaging.MessagePage, error)
	ListConversations(ctx context.Context, userID string) ([]*messaging.ConversationView, error)
	ConversationForUser(ctx context.Context, conversationID, userID string) (*messaging.ConversationView, error)
	GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error)
}

// TokenVerifier turns a credential into a verified user identity.
type TokenVerifier interface {
	VerifyIdentity(token string) (string, error)
}

type handlerFunc func(ctx context.Context, s *Session, data json.RawMessage)

// Gateway owns the runtime state of every live connection: who is
// authenticated, which conversation rooms each session joined, and the
// fan-out of messaging results to all affected participants. Both
// transport adapters dispatch through it; it cannot tell them apart.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	presence map[string]map[*Session]struct{} // user id -> active sessions
	rooms    map[string]map[*Session]struct{} // conversation id -> subscribed sessions

	svc      Messenger
	verifier TokenVerifier
	log      *zerolog.Logger

	handlers map[string]handlerFunc
}

// NewGateway constructs a gateway over the messaging service and identity
// verifier.
func NewGateway(svc Messenger, verifier TokenVerifier, logger *zerolog.Logger) *Gateway {
	g := &Gateway{
		sessions: make(map[string]*Session),
		presence: make(map[string]map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		svc:      svc,
		verifier: verifier,
		log:      logger,
	}

	g.handlers = map[string]handlerFunc{
		proto.InboundTypeAuthenticate:      g.handleAuthenticate,
		proto.InboundTypeJoinConversation:  g.handleJoin,
		proto.InboundTypeLeaveConversation: g.handleLeave,
		proto.InboundTypeTypingStart:       g.handleTypingStart,
		proto.InboundTypeTypingStop:        g.handleTypingStop,
		proto.InboundTypeSendMessage:       g.handleSendMessage,
		proto.InboundTypeMarkRead:          g.handleMarkRead,
		proto.InboundTypeGetMessages:       g.handleGetMessages,
		proto.InboundTypeGetConversations:  g.handleGetConversations,
		proto.InboundTypePing:              g.handlePing,
	}

	return g
}

// Connect registers a new unauthenticated session for a transport connection.
func (g *Gateway) Connect(kind Transport, conn Conn) *Session {
	s := newSession(kind, conn)

	g.mu.Lock()
	g.sessions[s.ID] = s
	g.mu.Unlock()

	g.log.Debug().Str("session_id", s.ID).Str("transport", string(kind)).Msg("session connected")
	return s
}

// Disconnect removes a session from the presence registry and every room
// it joined. Safe to call more than once.
func (g *Gateway) Disconnect(s *Session) {
	g.mu.Lock()
	if s.state == StateClosed {
		g.mu.Unlock()
		return
	}
	s.state = StateClosed

	delete(g.sessions, s.ID)
	if s.userID != "" {
		if set, ok := g.presence[s.userID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(g.presence, s.userID)
			}
		}
	}
	for room := range s.rooms {
		g.removeFromRoomLocked(room, s)
	}
	s.rooms = make(map[string]struct{})
	userID := s.userID
	g.mu.Unlock()

	g.log.Debug().Str("session_id", s.ID).Str("user_id", userID).Msg("session disconnected")
}

// Dispatch routes one decoded event from a transport adapter to its
// handler. Unknown event names produce a scoped error event.
func (g *Gateway) Dispatch(ctx context.Context, s *Session, in proto.Inbound) {
	handler, ok := g.handlers[in.Type]
	if !ok {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Unknown event: " + in.Type})
		return
	}
	handler(ctx, s, in.Data)
}

// IsUserOnline reports whether the user has at least one active session.
func (g *Gateway) IsUserOnline(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.presence[userID]) > 0
}

// OnlineCount returns the number of users with at least one active session.
func (g *Gateway) OnlineCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.presence)
}

// Close force-closes every session and clears all runtime state.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
		s.state = StateClosed
	}
	g.sessions = make(map[string]*Session)
	g.presence = make(map[string]map[*Session]struct{})
	g.rooms = make(map[string]map[*Session]struct{})
	g.mu.Unlock()

	for _, s := range sessions {
		s.conn.Close("server shutting down")
	}
}

// ==== event handlers ====

func (g *Gateway) handleAuthenticate(_ context.Context, s *Session, data json.RawMessage) {
	// authenticate is only a Connected -> Authenticated transition. A
	// repeat on a live session must not re-bind the identity: the presence
	// entry under the old user would outlive the session.
	g.mu.RLock()
	state := s.state
	g.mu.RUnlock()
	if state == StateAuthenticated {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Already authenticated"})
		return
	}
	if state == StateClosed {
		return
	}

	var payload proto.AuthenticateData
	if err := json.Unmarshal(data, &payload); err != nil || payload.Token == "" {
		g.rejectAuth(s)
		return
	}

	userID, err := g.verifier.VerifyIdentity(payload.Token)
	if err != nil {
		g.log.Warn().Str("session_id", s.ID).Err(err).Msg("authentication failed")
		g.rejectAuth(s)
		return
	}

	g.mu.Lock()
	if s.state != StateConnected {
		g.mu.Unlock()
		return
	}
	s.userID = userID
	s.state = StateAuthenticated
	set, ok := g.presence[userID]
	if !ok {
		set = make(map[*Session]struct{})
		g.presence[userID] = set
	}
	set[s] = struct{}{}
	g.mu.Unlock()

	g.log.Info().Str("session_id", s.ID).Str("user_id", userID).Str("transport", string(s.transport)).Msg("session authenticated")
	s.send(proto.OutboundTypeAuthenticated, proto.AuthenticatedData{UserID: userID})
}

// rejectAuth is the one connection-fatal failure: an unauthenticated
// session must not linger against the broadcast surface.
func (g *Gateway) rejectAuth(s *Session) {
	s.send(proto.OutboundTypeAuthError, proto.ErrorData{Message: "Invalid token"})
	g.Disconnect(s)
	s.conn.Close("authentication failed")
}

func (g *Gateway) handleJoin(_ context.Context, s *Session, data json.RawMessage) {
	conversationID := decodeConversationRef(data)
	if conversationID == "" {
		return
	}

	g.mu.Lock()
	// No identity to attach membership to; ignore silently.
	if s.state != StateAuthenticated {
		g.mu.Unlock()
		return
	}
	s.rooms[conversationID] = struct{}{}
	members, ok := g.rooms[conversationID]
	if !ok {
		members = make(map[*Session]struct{})
		g.rooms[conversationID] = members
	}
	members[s] = struct{}{}
	userID := s.userID
	g.mu.Unlock()

	g.log.Debug().Str("user_id", userID).Str("conversation_id", conversationID).Msg("joined conversation room")
}

func (g *Gateway) handleLeave(_ context.Context, s *Session, data json.RawMessage) {
	conversationID := decodeConversationRef(data)
	if conversationID == "" {
		return
	}

	g.mu.Lock()
	if s.state != StateAuthenticated {
		g.mu.Unlock()
		return
	}
	delete(s.rooms, conversationID)
	g.removeFromRoomLocked(conversationID, s)
	userID := s.userID
	g.mu.Unlock()

	g.log.Debug().Str("user_id", userID).Str("conversation_id", conversationID).Msg("left conversation room")
}

func (g *Gateway) handleTypingStart(_ context.Context, s *Session, data json.RawMessage) {
	g.broadcastTyping(s, data, proto.OutboundTypeUserTyping)
}

func (g *Gateway) handleTypingStop(_ context.Context, s *Session, data json.RawMessage) {
	g.broadcastTyping(s, data, proto.OutboundTypeUserStoppedTyping)
}

// broadcastTyping sends an ephemeral notification to the other members of
// the conversation room. Never persisted.
func (g *Gateway) broadcastTyping(s *Session, data json.RawMessage, event string) {
	conversationID := decodeConversationRef(data)
	if conversationID == "" {
		return
	}

	userID, authed := g.sessionUser(s)
	if !authed {
		return
	}

	g.broadcastToRoom(conversationID, event, proto.TypingData{
		UserID:         userID,
		ConversationID: conversationID,
	}, s)
}

func (g *Gateway) handleSendMessage(ctx context.Context, s *Session, data json.RawMessage) {
	userID, authed := g.sessionUser(s)
	if !authed {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "User not authenticated"})
		return
	}

	var payload proto.SendMessageData
	if err := json.Unmarshal(data, &payload); err != nil {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Invalid send_message payload"})
		return
	}

	receiverID := payload.ReceiverID
	if receiverID == "" && payload.ConversationID != "" {
		conv, err := g.svc.GetConversation(ctx, payload.ConversationID)
		if err != nil {
			s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Conversation not found"})
			return
		}
		receiverID = conv.OtherParticipant(userID)
	}
	if receiverID == "" {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Receiver ID or conversation ID is required"})
		return
	}

	msg, err := g.svc.SendMessage(ctx, messaging.SendMessageInput{
		SenderID:    userID,
		ReceiverID:  receiverID,
		Content:     payload.Content,
		MessageType: payload.MessageType,
	})
	if err != nil {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: sendMessageError(err)})
		return
	}

	// Everyone subscribed to the conversation room sees the message live,
	// regardless of transport.
	g.broadcastToRoom(msg.ConversationID, proto.OutboundTypeNewMessage, msg, nil)

	// Conversation-list updates go to each participant's personal room
	// with their recomputed unread count.
	g.emitConversationUpdate(ctx, msg.ConversationID, userID)
	g.emitConversationUpdate(ctx, msg.ConversationID, receiverID)

	s.send(proto.OutboundTypeMessageSent, proto.MessageSentData{Message: msg, Success: true})
}

func (g *Gateway) handleMarkRead(ctx context.Context, s *Session, data json.RawMessage) {
	userID, authed := g.sessionUser(s)
	if !authed {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "User not authenticated"})
		return
	}

	conversationID := decodeConversationRef(data)
	if conversationID == "" {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Conversation ID is required"})
		return
	}

	count, err := g.svc.MarkRead(ctx, conversationID, userID)
	if err != nil {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: markReadError(err)})
		return
	}

	if count > 0 {
		g.broadcastToRoom(conversationID, proto.OutboundTypeMessagesRead, proto.MessagesReadData{
			ConversationID: conversationID,
			UserID:         userID,
			MarkedCount:    count,
		}, nil)
	}

	s.send(proto.OutboundTypeMessagesMarkedRead, proto.MessagesMarkedReadData{
		ConversationID: conversationID,
		MarkedCount:    count,
		Success:        true,
	})
}

func (g *Gateway) handleGetMessages(ctx context.Context, s *Session, data json.RawMessage) {
	userID, authed := g.sessionUser(s)
	if !authed {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "User not authenticated"})
		return
	}

	var payload proto.GetMessagesData
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == "" {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Conversation ID is required"})
		return
	}

	page, err := g.svc.ListMessages(ctx, payload.ConversationID, userID, payload.Page, payload.Limit)
	if err != nil {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Failed to load messages"})
		return
	}

	s.send(proto.OutboundTypeMessagesLoaded, proto.MessagesLoadedData{
		ConversationID: payload.ConversationID,
		Messages:       page.Messages,
		Pagination:     page.Pagination,
		Success:        true,
	})
}

func (g *Gateway) handleGetConversations(ctx context.Context, s *Session, _ json.RawMessage) {
	userID, authed := g.sessionUser(s)
	if !authed {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "User not authenticated"})
		return
	}

	conversations, err := g.svc.ListConversations(ctx, userID)
	if err != nil {
		s.send(proto.OutboundTypeError, proto.ErrorData{Message: "Failed to load conversations"})
		return
	}

	s.send(proto.OutboundTypeConversationsLoaded, proto.ConversationsLoadedData{
		Conversations: conversations,
		Success:       true,
	})
}

func (g *Gateway) handlePing(_ context.Context, s *Session, _ json.RawMessage) {
	s.send(proto.OutboundTypePong, nil)
}

// ==== fan-out ====

// broadcastToRoom delivers one event to every session subscribed to the
// conversation room, across both transports, optionally excluding one.
func (g *Gateway) broadcastToRoom(conversationID, event string, data any, except *Session) {
	g.mu.RLock()
	members := make([]*Session, 0, len(g.rooms[conversationID]))
	for s := range g.rooms[conversationID] {
		if s != except {
			members = append(members, s)
		}
	}
	g.mu.RUnlock()

	for _, s := range members {
		s.send(event, data)
	}
}

// sendToUser delivers one event to every active session of a user — the
// implicit personal room every authenticated session subscribes to.
func (g *Gateway) sendToUser(userID, event string, data any) {
	g.mu.RLock()
	targets := make([]*Session, 0, len(g.presence[userID]))
	for s := range g.presence[userID] {
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	for _, s := range targets {
		s.send(event, data)
	}
}

// emitConversationUpdate recomputes the participant's view of the
// conversation (true unread count, not a fixed increment) and delivers it
// to their personal room.
func (g *Gateway) emitConversationUpdate(ctx context.Context, conversationID, userID string) {
	if !g.IsUserOnline(userID) {
		return
	}

	view, err := g.svc.ConversationForUser(ctx, conversationID, userID)
	if err != nil {
		g.log.Warn().Err(err).Str("conversation_id", conversationID).Str("user_id", userID).
			Msg("failed to build conversation update")
		return
	}
	g.sendToUser(userID, proto.OutboundTypeConversationUpdate, view)
}

// ==== helpers ====

func (g *Gateway) sessionUser(s *Session) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s.state != StateAuthenticated {
		return "", false
	}
	return s.userID, true
}

func (g *Gateway) removeFromRoomLocked(conversationID string, s *Session) {
	members, ok := g.rooms[conversationID]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(g.rooms, conversationID)
	}
}

// decodeConversationRef accepts both {"conversationId": "..."} and a bare
// string, matching what mobile clients historically sent.
func decodeConversationRef(data json.RawMessage) string {
	var ref proto.ConversationRef
	if err := json.Unmarshal(data, &ref); err == nil && ref.ConversationID != "" {
		return ref.ConversationID
	}
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain
	}
	return ""
}

func sendMessageError(err error) string {
	switch {
	case errors.Is(err, messaging.ErrInvalidContent):
		return "Content is required"
	case errors.Is(err, messaging.ErrInvalidParticipants):
		return "Cannot send message to yourself"
	case errors.Is(err, messaging.ErrNotFound):
		return "Conversation not found"
	default:
		return "Failed to send message"
	}
}

func markReadError(err error) string {
	switch {
	case errors.Is(err, messaging.ErrAccessDenied):
		return "Access denied"
	case errors.Is(err, messaging.ErrNotFound):
		return "Conversation not found"
	default:
		return "Failed to mark messages as read"
	}
}
