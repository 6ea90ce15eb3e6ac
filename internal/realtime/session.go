package realtime

import (
	"github.com/google/uuid"
)

// Transport identifies which adapter flavor carries a session.
type Transport string

const (
	// TransportChannel is the room-capable envelope transport (/ws/channel).
	TransportChannel Transport = "channel"
	// TransportStream is the raw bidirectional socket transport (/ws/stream).
	TransportStream Transport = "stream"
)

// Conn is the capability contract both transport adapters implement. Send
// must not block indefinitely; adapters enqueue to a bounded buffer and
// drop or disconnect slow consumers.
type Conn interface {
	// Send delivers one event frame to the client.
	Send(event string, data any) error
	// Close terminates the underlying connection.
	Close(reason string)
}

// State is a session's position in the connection lifecycle.
type State int

const (
	// StateConnected means the transport link is up but no identity is attached.
	StateConnected State = iota
	// StateAuthenticated means the session is bound to a verified user.
	StateAuthenticated
	// StateClosed is terminal; the session is unreachable afterward.
	StateClosed
)

// Session binds one live connection to its runtime state: verified user,
// transport kind, and joined conversation rooms. All mutable fields are
// guarded by the owning gateway's lock.
type Session struct {
	ID        string
	transport Transport
	conn      Conn

	state  State
	userID string
	rooms  map[string]struct{}
}

func newSession(kind Transport, conn Conn) *Session {
	return &Session{
		ID:        uuid.NewString(),
		transport: kind,
		conn:      conn,
		state:     StateConnected,
		rooms:     make(map[string]struct{}),
	}
}

// send delivers an event frame, ignoring transport write failures: a dead
// connection is detected and unregistered by its own read loop.
func (s *Session) send(event string, data any) {
	_ = s.conn.Send(event, data)
}
