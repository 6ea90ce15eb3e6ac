package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inkconnect/inkconnect-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *SQLiteStore, id, name string) *store.User {
	t.Helper()
	u := &store.User{
		ID:           id,
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u
}

func seedConversation(t *testing.T, s *SQLiteStore, id, user1, user2 string) *store.Conversation {
	t.Helper()
	now := time.Now().UTC()
	c := &store.Conversation{
		ID:            id,
		User1ID:       user1,
		User2ID:       user2,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.CreateConversation(context.Background(), c); err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return c
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "u1", "alice")

	byID, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Name != "alice" {
		t.Errorf("expected name alice, got %q", byID.Name)
	}

	byEmail, err := s.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "u1" {
		t.Errorf("expected id u1, got %q", byEmail.ID)
	}

	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestConversationPairLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a", "alice")
	seedUser(t, s, "b", "bob")
	seedConversation(t, s, "c1", "a", "b")

	conv, err := s.GetConversationByPair(ctx, "a", "b")
	if err != nil {
		t.Fatalf("GetConversationByPair failed: %v", err)
	}
	if conv.ID != "c1" {
		t.Errorf("expected conversation c1, got %q", conv.ID)
	}

	if _, err := s.GetConversationByPair(ctx, "a", "z"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing pair, got %v", err)
	}

	// The pair is unique; a second insert for the same pair must fail.
	err = s.CreateConversation(ctx, &store.Conversation{
		ID:            "c2",
		User1ID:       "a",
		User2ID:       "b",
		LastMessageAt: time.Now().UTC(),
	})
	if err == nil {
		t.Error("expected duplicate pair insert to fail")
	}
}

func TestListConversationsOrderedByRecency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a", "alice")
	seedUser(t, s, "b", "bob")
	seedUser(t, s, "c", "carol")

	base := time.Now().UTC()
	older := seedConversation(t, s, "c1", "a", "b")
	newer := seedConversation(t, s, "c2", "a", "c")

	if err := s.TouchConversation(ctx, older.ID, base.Add(-time.Hour)); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}
	if err := s.TouchConversation(ctx, newer.ID, base); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}

	conversations, err := s.ListConversations(ctx, "a")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].ID != "c2" || conversations[1].ID != "c1" {
		t.Errorf("expected order [c2 c1], got [%s %s]", conversations[0].ID, conversations[1].ID)
	}

	// Bob sees only his conversation.
	bobConversations, err := s.ListConversations(ctx, "b")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(bobConversations) != 1 || bobConversations[0].ID != "c1" {
		t.Errorf("expected bob to see only c1, got %v", bobConversations)
	}
}

func TestTouchConversationMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.TouchConversation(context.Background(), "nope", time.Now().UTC())
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func seedMessage(t *testing.T, s *SQLiteStore, id, conversationID, sender, receiver, content string, at time.Time) {
	t.Helper()
	err := s.InsertMessage(context.Background(), &store.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        content,
		MessageType:    "text",
		CreatedAt:      at,
	})
	if err != nil {
		t.Fatalf("failed to insert message %s: %v", id, err)
	}
}

func TestMessagePaginationNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a", "alice")
	seedUser(t, s, "b", "bob")
	seedConversation(t, s, "c1", "a", "b")

	base := time.Now().UTC()
	for i, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		seedMessage(t, s, id, "c1", "a", "b", "msg "+id, base.Add(time.Duration(i)*time.Second))
	}

	page, err := s.ListMessages(ctx, "c1", 2, 0)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m5" || page[1].ID != "m4" {
		t.Fatalf("expected first page [m5 m4], got %v", messageIDs(page))
	}

	lastPage, err := s.ListMessages(ctx, "c1", 2, 4)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(lastPage) != 1 || lastPage[0].ID != "m1" {
		t.Fatalf("expected last page [m1], got %v", messageIDs(lastPage))
	}

	total, err := s.CountMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected 5 messages, got %d", total)
	}

	latest, err := s.LatestMessage(ctx, "c1")
	if err != nil {
		t.Fatalf("LatestMessage failed: %v", err)
	}
	if latest.ID != "m5" {
		t.Errorf("expected latest m5, got %q", latest.ID)
	}
}

func TestUnreadCountingAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a", "alice")
	seedUser(t, s, "b", "bob")
	seedConversation(t, s, "c1", "a", "b")

	base := time.Now().UTC()
	seedMessage(t, s, "m1", "c1", "a", "b", "hi", base)
	seedMessage(t, s, "m2", "c1", "a", "b", "there", base.Add(time.Second))
	seedMessage(t, s, "m3", "c1", "b", "a", "hello", base.Add(2*time.Second))

	unreadB, err := s.CountUnread(ctx, "c1", "b")
	if err != nil {
		t.Fatalf("CountUnread failed: %v", err)
	}
	if unreadB != 2 {
		t.Errorf("expected 2 unread for b, got %d", unreadB)
	}

	totalA, err := s.CountUnreadTotal(ctx, "a")
	if err != nil {
		t.Fatalf("CountUnreadTotal failed: %v", err)
	}
	if totalA != 1 {
		t.Errorf("expected 1 unread total for a, got %d", totalA)
	}

	marked, err := s.MarkMessagesRead(ctx, "c1", "b")
	if err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	if marked != 2 {
		t.Errorf("expected 2 marked, got %d", marked)
	}

	// Second call is a no-op.
	marked, err = s.MarkMessagesRead(ctx, "c1", "b")
	if err != nil {
		t.Fatalf("MarkMessagesRead failed: %v", err)
	}
	if marked != 0 {
		t.Errorf("expected 0 marked on repeat, got %d", marked)
	}

	msg, err := s.GetMessageByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if !msg.IsRead {
		t.Error("expected m1 to be read")
	}
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedUser(t, s, "a", "alice")
	seedUser(t, s, "b", "bob")
	seedConversation(t, s, "c1", "a", "b")
	seedMessage(t, s, "m1", "c1", "a", "b", "hi", time.Now().UTC())

	if err := s.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	if _, err := s.GetMessageByID(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteMessage(ctx, "m1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func messageIDs(messages []*store.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}
