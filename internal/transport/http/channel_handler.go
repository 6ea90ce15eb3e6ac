package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/proto"
	"github.com/inkconnect/inkconnect-server/internal/realtime"
)

// channelSendBuffer bounds the per-connection outbox. Events beyond it are
// dropped rather than stalling fan-out on a slow consumer.
const channelSendBuffer = 32

// ChannelHandler is the room-capable transport adapter (/ws/channel). It
// upgrades HTTP connections and bridges envelope frames to the gateway
// dispatch; keepalive is native to the websocket library.
type ChannelHandler struct {
	gateway *realtime.Gateway
	limit   int
	log     *zerolog.Logger
}

// NewChannelHandler builds the channel transport handler. eventLimit is
// the per-connection inbound events per minute; zero disables limiting.
func NewChannelHandler(gw *realtime.Gateway, eventLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &ChannelHandler{gateway: gw, limit: eventLimit, log: logger}
}

func (h *ChannelHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("channel accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	adapter := newChannelConn(conn)
	session := h.gateway.Connect(realtime.TransportChannel, adapter)
	defer h.gateway.Disconnect(session)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()
	go func() {
		errCh <- adapter.writeLoop(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("session_id", session.ID).Msg("channel connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *ChannelHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *realtime.Session) error {
	limiter := newRateLimiter(h.limit)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type: proto.OutboundTypeError,
				Data: proto.ErrorData{Message: "Rate limit exceeded"},
			}); err != nil {
				return err
			}
			continue
		}

		h.gateway.Dispatch(ctx, session, inbound)
	}
}

// channelConn adapts the coder/websocket connection to the gateway's Conn
// contract via a bounded outbox and a single write loop.
type channelConn struct {
	conn   *websocket.Conn
	out    chan proto.Outbound
	closed chan struct{}
	once   sync.Once
	reason string
}

func newChannelConn(conn *websocket.Conn) *channelConn {
	return &channelConn{
		conn:   conn,
		out:    make(chan proto.Outbound, channelSendBuffer),
		closed: make(chan struct{}),
	}
}

// Send enqueues an event frame for delivery. Frames are dropped when the
// outbox is full.
func (c *channelConn) Send(event string, data any) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}

	select {
	case c.out <- proto.Outbound{Type: event, Data: data}:
		return nil
	default:
		// Drop if slow consumer.
		return nil
	}
}

// Close signals the write loop to drain pending frames and close the
// connection. The write loop owns the socket; closing it here would race
// an in-flight write.
func (c *channelConn) Close(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.closed)
	})
}

func (c *channelConn) writeLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.out:
			if err := wsjson.Write(ctx, c.conn, frame); err != nil {
				return err
			}
		case <-c.closed:
			// Frames enqueued before Close still go out, the auth
			// rejection among them.
			c.drain(ctx)
			_ = c.conn.Close(websocket.StatusNormalClosure, c.reason)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *channelConn) drain(ctx context.Context) {
	for {
		select {
		case frame := <-c.out:
			if err := wsjson.Write(ctx, c.conn, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
