// Command ws_chat is an interactive terminal client: authenticate with a
// token, join a conversation, and exchange messages from stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/inkconnect/inkconnect-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws/channel", "WebSocket address")
	token := flag.String("token", "", "JWT token (required)")
	conversation := flag.String("conversation", "", "conversation ID to join")
	receiver := flag.String("to", "", "receiver user ID (used when no conversation exists yet)")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}
	if *conversation == "" && *receiver == "" {
		return errors.New("either -conversation or -to is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(eventType string, data any) {
		var raw json.RawMessage
		if data != nil {
			payload, marshalErr := json.Marshal(data)
			if marshalErr != nil {
				log.Printf("marshal %s: %v", eventType, marshalErr)
				return
			}
			raw = payload
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Type: eventType, Data: raw}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.InboundTypeAuthenticate, proto.AuthenticateData{Token: *token})
	if *conversation != "" {
		send(proto.InboundTypeJoinConversation, proto.ConversationRef{ConversationID: *conversation})
	}

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, send, *conversation, *receiver)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundTypeAuthenticated:
			fmt.Println("* authenticated")
		case proto.OutboundTypeAuthError:
			fmt.Printf("* authentication failed: %s\n", eventMessage(outbound.Data))
			return
		case proto.OutboundTypeNewMessage:
			printMessage(outbound.Data)
		case proto.OutboundTypeMessageSent:
			// our own send ack; the message was already echoed locally
		case proto.OutboundTypeUserTyping:
			fmt.Println("* other user is typing...")
		case proto.OutboundTypeUserStoppedTyping:
			// quiet
		case proto.OutboundTypeMessagesRead:
			fmt.Println("* messages read by other user")
		case proto.OutboundTypeError:
			fmt.Printf("* error: %s\n", eventMessage(outbound.Data))
		}
	}
}

func writeLoop(ctx context.Context, send func(string, any), conversation, receiver string) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		send(proto.InboundTypeSendMessage, proto.SendMessageData{
			ConversationID: conversation,
			ReceiverID:     receiver,
			Content:        text,
		})
		fmt.Printf("you: %s\n", text)
	}
}

func printMessage(data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("marshal message data: %v", err)
		return
	}
	var msg struct {
		SenderID string `json:"senderId"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("unmarshal message: %v", err)
		return
	}
	fmt.Printf("%s: %s\n", msg.SenderID, msg.Content)
}

func eventMessage(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return "unknown"
	}
	var evt proto.ErrorData
	if err := json.Unmarshal(raw, &evt); err != nil {
		return "unknown"
	}
	return evt.Message
}
