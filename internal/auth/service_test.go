package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkconnect/inkconnect-server/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewService(st, &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "inkconnect",
		Audience: "inkconnect-clients",
		TTL:      time.Hour,
	})
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, RegisterInput{
		Name:     "Alice",
		Email:    "Alice@Example.com",
		Password: "secret123",
		IsArtist: true,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.ID == "" || token == "" {
		t.Fatal("expected user ID and token")
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected lowercased email, got %q", user.Email)
	}
	if !user.IsArtist {
		t.Error("expected artist flag to persist")
	}

	// Login with a differently-cased email resolves the same account.
	loggedIn, loginToken, err := svc.Login(ctx, "ALICE@example.com", "secret123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Errorf("expected same user, got %q and %q", user.ID, loggedIn.ID)
	}
	if loginToken == "" {
		t.Error("expected login token")
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"short name", RegisterInput{Name: "A", Email: "a@example.com", Password: "secret123"}, ErrInvalidName},
		{"bad email", RegisterInput{Name: "Alice", Email: "not-an-email", Password: "secret123"}, ErrInvalidEmail},
		{"short password", RegisterInput{Name: "Alice", Email: "a@example.com", Password: "12345"}, ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Register(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	in := RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret123"}
	if _, _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, _, err := svc.Register(ctx, in); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestVerifyIdentity(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, RegisterInput{Name: "Alice", Email: "alice@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	userID, err := svc.VerifyIdentity(token)
	if err != nil {
		t.Fatalf("VerifyIdentity failed: %v", err)
	}
	if userID != user.ID {
		t.Errorf("expected %q, got %q", user.ID, userID)
	}

	if _, err := svc.VerifyIdentity("garbage.token.here"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for garbage token, got %v", err)
	}

	// A token signed with a different secret must be rejected.
	otherToken, err := GenerateToken(&JWTConfig{
		Secret:   []byte("other-secret"),
		Issuer:   "inkconnect",
		Audience: "inkconnect-clients",
		TTL:      time.Hour,
	}, user.ID, user.Email, false)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := svc.VerifyIdentity(otherToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for mis-signed token, got %v", err)
	}
}

func TestValidateTokenClaims(t *testing.T) {
	cfg := &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "inkconnect",
		Audience: "inkconnect-clients",
		TTL:      time.Hour,
	}

	token, err := GenerateToken(cfg, "u1", "alice@example.com", true)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "alice@example.com" || !claims.IsArtist {
		t.Errorf("unexpected claims: %+v", claims)
	}

	// Expired tokens are rejected.
	expired := &JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: -time.Minute}
	expiredToken, err := GenerateToken(expired, "u1", "alice@example.com", false)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := ValidateToken(cfg, expiredToken); err == nil {
		t.Error("expected expired token to fail validation")
	}
}
