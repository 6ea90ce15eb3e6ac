// Command ws_smoke performs a quick end-to-end check against a running
// server: log in over REST, open a websocket, authenticate, and exchange
// a ping/pong.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/inkconnect/inkconnect-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	api := flag.String("api", "http://localhost:8080", "REST API base URL")
	addr := flag.String("addr", "ws://localhost:8080/ws/channel", "WebSocket address")
	email := flag.String("email", "smoke@example.com", "login email")
	password := flag.String("password", "password123", "login password")
	token := flag.String("token", "", "JWT token (skips REST login when set)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	jwt := *token
	if jwt == "" {
		var err error
		jwt, err = login(ctx, *api, *email, *password)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Println("logged in")
	}

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if err := send(ctx, conn, proto.InboundTypeAuthenticate, proto.AuthenticateData{Token: jwt}); err != nil {
		return err
	}

	var authAck proto.Outbound
	if err := wsjson.Read(ctx, conn, &authAck); err != nil {
		return fmt.Errorf("read auth ack: %w", err)
	}
	if authAck.Type != proto.OutboundTypeAuthenticated {
		return fmt.Errorf("expected %q, got %q", proto.OutboundTypeAuthenticated, authAck.Type)
	}
	fmt.Println("authenticated")

	if err := send(ctx, conn, proto.InboundTypePing, nil); err != nil {
		return err
	}

	var pong proto.Outbound
	if err := wsjson.Read(ctx, conn, &pong); err != nil {
		return fmt.Errorf("read pong: %w", err)
	}
	if pong.Type != proto.OutboundTypePong {
		return fmt.Errorf("expected %q, got %q", proto.OutboundTypePong, pong.Type)
	}
	fmt.Println("pong received, smoke test passed")

	return nil
}

func send(ctx context.Context, conn *websocket.Conn, eventType string, data any) error {
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", eventType, err)
		}
		raw = payload
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: eventType, Data: raw}); err != nil {
		return fmt.Errorf("send %s: %w", eventType, err)
	}
	return nil
}

func login(ctx context.Context, api, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}
