package http

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkconnect/inkconnect-server/internal/auth"
	"github.com/inkconnect/inkconnect-server/internal/config"
	"github.com/inkconnect/inkconnect-server/internal/realtime"
	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
	"github.com/inkconnect/inkconnect-server/internal/store/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "inkconnect",
		Audience: "inkconnect-clients",
		TTL:      time.Hour,
	})
	svc := messaging.New(st)
	gw := realtime.NewGateway(svc, authService, &logger)
	t.Cleanup(gw.Close)

	cfg := config.Default()
	server := NewServer(gw, authService, svc, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// registerUser creates an account through the public API and returns its
// ID and token.
func registerUser(t *testing.T, ts *httptest.Server, name string) (string, string) {
	t.Helper()

	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/auth/register", "", map[string]any{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret123",
	})
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: unexpected status %d: %s", name, resp.StatusCode, readBody(t, resp.Body))
	}

	var out AuthResponse
	decodeBody(t, resp.Body, &out)
	return out.User.ID, out.Token
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := stdhttp.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func readBody(t *testing.T, r io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func decodeBody(t *testing.T, r io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}
