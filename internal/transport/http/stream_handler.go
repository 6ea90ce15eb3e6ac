package http

import (
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/proto"
	"github.com/inkconnect/inkconnect-server/internal/realtime"
)

const (
	// streamWriteWait bounds a single frame write.
	streamWriteWait = 10 * time.Second
	// streamProbeInterval is the liveness probe period. A connection that
	// misses one probe response is forcibly terminated.
	streamProbeInterval = 30 * time.Second
	// streamPingPeriod keeps pings inside the probe window.
	streamPingPeriod = (streamProbeInterval * 9) / 10
	// streamMaxFrameSize bounds inbound frames.
	streamMaxFrameSize = 64 * 1024
	// streamSendBuffer bounds the per-connection outbox; a full buffer
	// means a slow consumer and the connection is dropped.
	streamSendBuffer = 128
)

var errClosed = errors.New("connection closed")

// StreamHandler is the raw bidirectional socket adapter (/ws/stream). The
// wire protocol has no room or heartbeat primitive of its own, so the
// adapter carries its own ping/pong liveness probing and relies on the
// gateway's registries for room delivery.
type StreamHandler struct {
	gateway  *realtime.Gateway
	limit    int
	log      *zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler builds the stream transport handler. eventLimit is the
// per-connection inbound events per minute; zero disables limiting.
func NewStreamHandler(gw *realtime.Gateway, eventLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &StreamHandler{
		gateway: gw,
		limit:   eventLimit,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*stdhttp.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("stream upgrade error")
		return
	}

	adapter := newStreamConn(ws)
	session := h.gateway.Connect(realtime.TransportStream, adapter)

	go adapter.writePump()
	h.readPump(r, adapter, session)

	h.gateway.Disconnect(session)
	adapter.Close("connection closed")
}

func (h *StreamHandler) readPump(r *stdhttp.Request, adapter *streamConn, session *realtime.Session) {
	ws := adapter.ws
	ws.SetReadLimit(streamMaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(streamProbeInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(streamProbeInterval))
	})

	limiter := newRateLimiter(h.limit)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	ctx := r.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn().Err(err).Str("session_id", session.ID).Msg("stream connection closed with error")
			}
			return
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			_ = adapter.Send(proto.OutboundTypeError, proto.ErrorData{Message: "Invalid frame"})
			continue
		}

		if !limiter.allow() {
			_ = adapter.Send(proto.OutboundTypeError, proto.ErrorData{Message: "Rate limit exceeded"})
			continue
		}

		h.gateway.Dispatch(ctx, session, inbound)
	}
}

// streamConn adapts a gorilla websocket to the gateway's Conn contract.
// Outbound writes are coordinated through a buffered channel so fan-out
// never blocks on a single connection.
type streamConn struct {
	ws       *websocket.Conn
	send     chan []byte
	closed   chan struct{}
	once     sync.Once
	sockOnce sync.Once
	reason   string
}

func newStreamConn(ws *websocket.Conn) *streamConn {
	return &streamConn{
		ws:     ws,
		send:   make(chan []byte, streamSendBuffer),
		closed: make(chan struct{}),
	}
}

// Send enqueues an event frame for delivery. If the client is slow and the
// buffer is full, the connection is closed to keep backpressure bounded.
func (c *streamConn) Send(event string, data any) error {
	payload, err := json.Marshal(proto.Outbound{Type: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return errClosed
	case c.send <- payload:
		return nil
	default:
		c.Close("send buffer full")
		return errClosed
	}
}

// Close signals the write pump to drain pending frames and close the
// socket. The pump owns the socket; closing it here would discard frames
// already enqueued, the auth rejection among them.
func (c *streamConn) Close(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.closed)
	})
}

func (c *streamConn) writePump() {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			c.drain()
			c.shutdown()
			return
		case payload := <-c.send:
			if err := c.writeMessage(payload); err != nil {
				c.Close("write failed")
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				c.Close("ping failed")
				c.shutdown()
				return
			}
		}
	}
}

// drain flushes frames enqueued before Close.
func (c *streamConn) drain() {
	for {
		select {
		case payload := <-c.send:
			if err := c.writeMessage(payload); err != nil {
				return
			}
		default:
			return
		}
	}
}

// shutdown writes the close control frame and tears down the socket.
func (c *streamConn) shutdown() {
	c.sockOnce.Do(func() {
		deadline := time.Now().Add(streamWriteWait)
		_ = c.ws.SetWriteDeadline(deadline)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *streamConn) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *streamConn) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
