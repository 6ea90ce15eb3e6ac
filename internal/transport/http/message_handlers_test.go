package http

import (
	stdhttp "net/http"
	"testing"

	"github.com/inkconnect/inkconnect-server/internal/service/messaging"
)

func TestSendMessageAndListConversations(t *testing.T) {
	ts := startTestServer(t)

	_, aliceToken := registerUser(t, ts, "alice")
	bobID, bobToken := registerUser(t, ts, "bob")

	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
		"receiverId": bobID,
		"content":    "hello bob",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("send: unexpected status %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var msg messaging.MessageView
	decodeBody(t, resp.Body, &msg)
	if msg.Content != "hello bob" || msg.IsRead {
		t.Errorf("unexpected message %+v", msg)
	}

	// Bob's conversation list shows the thread with one unread message.
	listResp := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/conversations", bobToken, nil)
	defer listResp.Body.Close()
	if listResp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("list: unexpected status %d", listResp.StatusCode)
	}

	var conversations []messaging.ConversationView
	decodeBody(t, listResp.Body, &conversations)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	if conversations[0].UnreadCount != 1 {
		t.Errorf("expected 1 unread, got %d", conversations[0].UnreadCount)
	}
	if conversations[0].OtherUser == nil || conversations[0].OtherUser.Name != "alice" {
		t.Errorf("unexpected other user %+v", conversations[0].OtherUser)
	}
}

func TestSendMessageValidationErrors(t *testing.T) {
	ts := startTestServer(t)

	aliceID, aliceToken := registerUser(t, ts, "alice")

	// Missing content fails binding.
	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
		"receiverId": aliceID,
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusBadRequest {
		t.Errorf("expected 400 for missing content, got %d", resp.StatusCode)
	}

	// Sending to yourself is rejected.
	resp = doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
		"receiverId": aliceID,
		"content":    "hi me",
	})
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusBadRequest {
		t.Errorf("expected 400 for self send, got %d", resp.StatusCode)
	}
}

func TestStartConversation(t *testing.T) {
	ts := startTestServer(t)

	aliceID, aliceToken := registerUser(t, ts, "alice")
	bobID, bobToken := registerUser(t, ts, "bob")

	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages/conversations/"+bobID, aliceToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("start: unexpected status %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var info messaging.ConversationInfo
	decodeBody(t, resp.Body, &info)
	if info.ID == "" {
		t.Fatal("expected conversation ID")
	}

	// Starting it from the other side resolves the same conversation.
	again := doJSON(t, ts, stdhttp.MethodPost, "/api/messages/conversations/"+aliceID, bobToken, nil)
	defer again.Body.Close()
	var second messaging.ConversationInfo
	decodeBody(t, again.Body, &second)
	if second.ID != info.ID {
		t.Errorf("expected same conversation, got %q and %q", info.ID, second.ID)
	}

	// Starting a conversation with yourself is rejected.
	self := doJSON(t, ts, stdhttp.MethodPost, "/api/messages/conversations/"+aliceID, aliceToken, nil)
	defer self.Body.Close()
	if self.StatusCode != stdhttp.StatusBadRequest {
		t.Errorf("expected 400 for self conversation, got %d", self.StatusCode)
	}
}

func TestListMessagesPaginationAndAccess(t *testing.T) {
	ts := startTestServer(t)

	_, aliceToken := registerUser(t, ts, "alice")
	bobID, _ := registerUser(t, ts, "bob")
	_, carolToken := registerUser(t, ts, "carol")

	var conversationID string
	for _, content := range []string{"m1", "m2", "m3"} {
		resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
			"receiverId": bobID,
			"content":    content,
		})
		var msg messaging.MessageView
		decodeBody(t, resp.Body, &msg)
		resp.Body.Close()
		conversationID = msg.ConversationID
	}

	resp := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/conversations/"+conversationID+"/messages?page=1&limit=2", aliceToken, nil)
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("list messages: unexpected status %d", resp.StatusCode)
	}

	var page messaging.MessagePage
	decodeBody(t, resp.Body, &page)
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	// Chronological order within the page, newest page first.
	if page.Messages[0].Content != "m2" || page.Messages[1].Content != "m3" {
		t.Errorf("expected [m2 m3], got [%s %s]", page.Messages[0].Content, page.Messages[1].Content)
	}
	if !page.Pagination.HasMore {
		t.Error("expected hasMore")
	}

	// An outsider gets 403, a missing conversation 404.
	forbidden := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/conversations/"+conversationID+"/messages", carolToken, nil)
	defer forbidden.Body.Close()
	if forbidden.StatusCode != stdhttp.StatusForbidden {
		t.Errorf("expected 403 for outsider, got %d", forbidden.StatusCode)
	}

	missing := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/conversations/nope/messages", aliceToken, nil)
	defer missing.Body.Close()
	if missing.StatusCode != stdhttp.StatusNotFound {
		t.Errorf("expected 404 for missing conversation, got %d", missing.StatusCode)
	}
}

func TestMarkReadAndUnreadCount(t *testing.T) {
	ts := startTestServer(t)

	_, aliceToken := registerUser(t, ts, "alice")
	bobID, bobToken := registerUser(t, ts, "bob")

	var conversationID string
	for _, content := range []string{"one", "two"} {
		resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
			"receiverId": bobID,
			"content":    content,
		})
		var msg messaging.MessageView
		decodeBody(t, resp.Body, &msg)
		resp.Body.Close()
		conversationID = msg.ConversationID
	}

	countResp := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/unread-count", bobToken, nil)
	defer countResp.Body.Close()
	var count struct {
		UnreadCount int `json:"unreadCount"`
	}
	decodeBody(t, countResp.Body, &count)
	if count.UnreadCount != 2 {
		t.Errorf("expected 2 unread, got %d", count.UnreadCount)
	}

	markResp := doJSON(t, ts, stdhttp.MethodPut, "/api/messages/conversations/"+conversationID+"/read", bobToken, nil)
	defer markResp.Body.Close()
	if markResp.StatusCode != stdhttp.StatusOK {
		t.Fatalf("mark read: unexpected status %d", markResp.StatusCode)
	}
	var marked struct {
		MarkedCount int `json:"markedCount"`
	}
	decodeBody(t, markResp.Body, &marked)
	if marked.MarkedCount != 2 {
		t.Errorf("expected 2 marked, got %d", marked.MarkedCount)
	}

	afterResp := doJSON(t, ts, stdhttp.MethodGet, "/api/messages/unread-count", bobToken, nil)
	defer afterResp.Body.Close()
	decodeBody(t, afterResp.Body, &count)
	if count.UnreadCount != 0 {
		t.Errorf("expected 0 unread after mark, got %d", count.UnreadCount)
	}
}

func TestDeleteMessageEndpoint(t *testing.T) {
	ts := startTestServer(t)

	_, aliceToken := registerUser(t, ts, "alice")
	bobID, bobToken := registerUser(t, ts, "bob")

	resp := doJSON(t, ts, stdhttp.MethodPost, "/api/messages", aliceToken, map[string]any{
		"receiverId": bobID,
		"content":    "delete me",
	})
	var msg messaging.MessageView
	decodeBody(t, resp.Body, &msg)
	resp.Body.Close()

	// The receiver cannot delete someone else's message.
	forbidden := doJSON(t, ts, stdhttp.MethodDelete, "/api/messages/"+msg.ID, bobToken, nil)
	defer forbidden.Body.Close()
	if forbidden.StatusCode != stdhttp.StatusForbidden {
		t.Errorf("expected 403, got %d", forbidden.StatusCode)
	}

	deleted := doJSON(t, ts, stdhttp.MethodDelete, "/api/messages/"+msg.ID, aliceToken, nil)
	defer deleted.Body.Close()
	if deleted.StatusCode != stdhttp.StatusOK {
		t.Errorf("expected 200, got %d", deleted.StatusCode)
	}

	missing := doJSON(t, ts, stdhttp.MethodDelete, "/api/messages/"+msg.ID, aliceToken, nil)
	defer missing.Body.Close()
	if missing.StatusCode != stdhttp.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", missing.StatusCode)
	}
}
