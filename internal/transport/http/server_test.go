package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/auth"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/config"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/core"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/proto"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/messages"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/presence"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/readstate"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store/sqlite"
)

type testEnv struct {
	ts  *httptest.Server
	hub *core.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "tare-chat",
		Audience: "tare-chat",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)
	messageService := messages.New(st)
	readService := readstate.New(st)
	typingTracker := presence.NewTracker(presence.DefaultTTL)

	hub := core.NewHub(st, messageService, readService, typingTracker, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	cfg := config.Default()
	server := NewServer(hub, Services{
		Auth:     authService,
		Messages: messageService,
		Reads:    readService,
		Typing:   typingTracker,
	}, st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub}
}

// do performs a JSON request and returns the status code and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, raw
}

func (e *testEnv) register(t *testing.T, name string) string {
	t.Helper()

	status, raw := e.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Name:     name,
		Password: "secret123",
	})
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: expected 201, got %d: %s", name, status, raw)
	}

	var resp AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode auth response: %v", err)
	}
	return resp.Token
}

func (e *testEnv) userID(t *testing.T, token string) int64 {
	t.Helper()

	status, raw := e.do(t, stdhttp.MethodGet, "/api/users/me", token, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", status, raw)
	}

	var resp UserResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode user response: %v", err)
	}
	return resp.ID
}

func (e *testEnv) createConversation(t *testing.T, token string, participants ...int64) int64 {
	t.Helper()

	status, raw := e.do(t, stdhttp.MethodPost, "/api/conversations", token, CreateConversationRequest{
		Participants: participants,
		IsGroup:      len(participants) > 2,
	})
	if status != stdhttp.StatusCreated {
		t.Fatalf("create conversation: expected 201, got %d: %s", status, raw)
	}

	var resp ConversationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode conversation response: %v", err)
	}
	return resp.ID
}

func (e *testEnv) sendMessage(t *testing.T, token string, conversationID int64, content string) proto.MessageView {
	t.Helper()

	path := fmt.Sprintf("/api/conversations/%d/messages", conversationID)
	status, raw := e.do(t, stdhttp.MethodPost, path, token, SendMessageRequest{Content: content})
	if status != stdhttp.StatusCreated {
		t.Fatalf("send message: expected 201, got %d: %s", status, raw)
	}

	var view proto.MessageView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode message view: %v", err)
	}
	return view
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "alice")

	// Duplicate name is rejected.
	status, _ := env.do(t, stdhttp.MethodPost, "/api/register", "", RegisterRequest{
		Name:     "alice",
		Password: "secret123",
	})
	if status != stdhttp.StatusConflict {
		t.Errorf("duplicate register: expected 409, got %d", status)
	}

	status, _ = env.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{
		Name:     "alice",
		Password: "wrong-password",
	})
	if status != stdhttp.StatusUnauthorized {
		t.Errorf("bad password login: expected 401, got %d", status)
	}

	status, raw := env.do(t, stdhttp.MethodPost, "/api/login", "", LoginRequest{
		Name:     "alice",
		Password: "secret123",
	})
	if status != stdhttp.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", status, raw)
	}
	var resp AuthResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Token == "" {
		t.Fatalf("expected token in login response, got %s", raw)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, stdhttp.MethodGet, "/api/conversations", "", nil)
	if status != stdhttp.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", status)
	}

	status, _ = env.do(t, stdhttp.MethodGet, "/api/conversations", "garbage", nil)
	if status != stdhttp.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", status)
	}
}

func TestMessageFlow(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	sent := env.sendMessage(t, aliceToken, convID, "hello bob")

	// Bob sees the message in order.
	path := fmt.Sprintf("/api/conversations/%d/messages", convID)
	status, raw := env.do(t, stdhttp.MethodGet, path, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("list messages: expected 200, got %d: %s", status, raw)
	}
	var views []proto.MessageView
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(views) != 1 || views[0].ID != sent.ID || views[0].Content != "hello bob" {
		t.Fatalf("expected the sent message, got %+v", views)
	}

	// The send credited bob with one unread.
	convPath := fmt.Sprintf("/api/conversations/%d", convID)
	status, raw = env.do(t, stdhttp.MethodGet, convPath, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("get conversation: expected 200, got %d: %s", status, raw)
	}
	var conv ConversationResponse
	if err := json.Unmarshal(raw, &conv); err != nil {
		t.Fatalf("failed to decode conversation: %v", err)
	}
	if conv.Unread != 1 {
		t.Errorf("expected unread 1 for bob, got %d", conv.Unread)
	}

	// Read confirmation clears it.
	status, _ = env.do(t, stdhttp.MethodPost, convPath+"/read", bobToken, nil)
	if status != stdhttp.StatusNoContent {
		t.Fatalf("mark read: expected 204, got %d", status)
	}
	status, raw = env.do(t, stdhttp.MethodGet, convPath, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("get conversation: expected 200, got %d", status)
	}
	if err := json.Unmarshal(raw, &conv); err != nil {
		t.Fatalf("failed to decode conversation: %v", err)
	}
	if conv.Unread != 0 {
		t.Errorf("expected unread 0 after read, got %d", conv.Unread)
	}
}

func TestReadEndpointsRequireMembership(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)
	carolToken := env.register(t, "carol")

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	env.sendMessage(t, aliceToken, convID, "private")

	msgsPath := fmt.Sprintf("/api/conversations/%d/messages", convID)
	typingPath := fmt.Sprintf("/api/conversations/%d/typing", convID)

	// An authenticated outsider is rejected, not served history.
	status, _ := env.do(t, stdhttp.MethodGet, msgsPath, carolToken, nil)
	if status != stdhttp.StatusForbidden {
		t.Errorf("outsider list messages: expected 403, got %d", status)
	}
	status, _ = env.do(t, stdhttp.MethodGet, typingPath, carolToken, nil)
	if status != stdhttp.StatusForbidden {
		t.Errorf("outsider get typing: expected 403, got %d", status)
	}

	// Unknown conversations read as not found for everyone.
	status, _ = env.do(t, stdhttp.MethodGet, "/api/conversations/999/messages", carolToken, nil)
	if status != stdhttp.StatusNotFound {
		t.Errorf("unknown conversation: expected 404, got %d", status)
	}

	// Participants still get through.
	status, _ = env.do(t, stdhttp.MethodGet, msgsPath, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Errorf("member list messages: expected 200, got %d", status)
	}
}

func TestCreateConversationRejectsDuplicateOnly(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	aliceID := env.userID(t, aliceToken)

	status, _ := env.do(t, stdhttp.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		Participants: []int64{aliceID, aliceID},
	})
	if status != stdhttp.StatusBadRequest {
		t.Errorf("duplicated single participant: expected 400, got %d", status)
	}
}

func TestCreateConversationRequiresCaller(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	bobID := env.userID(t, bobToken)
	carolToken := env.register(t, "carol")
	carolID := env.userID(t, carolToken)

	status, _ := env.do(t, stdhttp.MethodPost, "/api/conversations", aliceToken, CreateConversationRequest{
		Participants: []int64{bobID, carolID},
	})
	if status != stdhttp.StatusBadRequest {
		t.Errorf("expected 400 when caller is missing, got %d", status)
	}
}

func TestDeleteMasksContentForOthers(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	sent := env.sendMessage(t, aliceToken, convID, "regret this")

	// Bob cannot delete alice's message.
	msgPath := fmt.Sprintf("/api/messages/%d", sent.ID)
	status, _ := env.do(t, stdhttp.MethodDelete, msgPath, bobToken, nil)
	if status != stdhttp.StatusForbidden {
		t.Fatalf("delete by non-owner: expected 403, got %d", status)
	}

	// Alice deletes; as the sender she still sees the content.
	status, raw := env.do(t, stdhttp.MethodDelete, msgPath, aliceToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("delete by owner: expected 200, got %d: %s", status, raw)
	}
	var view proto.MessageView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode message view: %v", err)
	}
	if !view.IsDeleted || view.Content != "regret this" {
		t.Errorf("owner view: expected deleted with content, got %+v", view)
	}

	// Bob still sees the row, in place, but without content.
	path := fmt.Sprintf("/api/conversations/%d/messages", convID)
	status, raw = env.do(t, stdhttp.MethodGet, path, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("list messages: expected 200, got %d", status)
	}
	var views []proto.MessageView
	if err := json.Unmarshal(raw, &views); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("deleted message must keep its row, got %d messages", len(views))
	}
	if !views[0].IsDeleted || views[0].Content != "" {
		t.Errorf("bob view: expected masked deleted message, got %+v", views[0])
	}
}

func TestEditDeniedAndNotFound(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	sent := env.sendMessage(t, aliceToken, convID, "original")

	msgPath := fmt.Sprintf("/api/messages/%d", sent.ID)
	status, _ := env.do(t, stdhttp.MethodPatch, msgPath, bobToken, EditMessageRequest{Content: "hacked"})
	if status != stdhttp.StatusForbidden {
		t.Errorf("edit by non-owner: expected 403, got %d", status)
	}

	status, _ = env.do(t, stdhttp.MethodPatch, "/api/messages/999", aliceToken, EditMessageRequest{Content: "x"})
	if status != stdhttp.StatusNotFound {
		t.Errorf("edit unknown message: expected 404, got %d", status)
	}

	status, raw := env.do(t, stdhttp.MethodPatch, msgPath, aliceToken, EditMessageRequest{Content: "fixed"})
	if status != stdhttp.StatusOK {
		t.Fatalf("edit by owner: expected 200, got %d: %s", status, raw)
	}
	var view proto.MessageView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode message view: %v", err)
	}
	if view.Content != "fixed" {
		t.Errorf("expected edited content, got %q", view.Content)
	}
}

func TestReactionToggleEndpoint(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	sent := env.sendMessage(t, aliceToken, convID, "react to me")

	path := fmt.Sprintf("/api/messages/%d/reactions", sent.ID)
	status, raw := env.do(t, stdhttp.MethodPost, path, bobToken, ReactionRequest{Emoji: "👍"})
	if status != stdhttp.StatusOK {
		t.Fatalf("toggle reaction: expected 200, got %d: %s", status, raw)
	}
	var view proto.MessageView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode message view: %v", err)
	}
	if users := view.Reactions["👍"]; len(users) != 1 || users[0] != bobID {
		t.Fatalf("expected [bob] under 👍, got %v", users)
	}

	// Second toggle removes it.
	status, raw = env.do(t, stdhttp.MethodPost, path, bobToken, ReactionRequest{Emoji: "👍"})
	if status != stdhttp.StatusOK {
		t.Fatalf("second toggle: expected 200, got %d", status)
	}
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("failed to decode message view: %v", err)
	}
	if users := view.Reactions["👍"]; len(users) != 0 {
		t.Errorf("expected empty 👍 bucket after double toggle, got %v", users)
	}
}

func TestTypingEndpoints(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)

	convID := env.createConversation(t, aliceToken, aliceID, bobID)
	typingPath := fmt.Sprintf("/api/conversations/%d/typing", convID)

	status, _ := env.do(t, stdhttp.MethodPost, typingPath, aliceToken, TypingRequest{Typing: true})
	if status != stdhttp.StatusNoContent {
		t.Fatalf("set typing: expected 204, got %d", status)
	}

	status, raw := env.do(t, stdhttp.MethodGet, typingPath, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("get typing: expected 200, got %d", status)
	}
	var resp TypingResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode typing response: %v", err)
	}
	if len(resp.Typists) != 1 || resp.Typists[0] != aliceID {
		t.Errorf("expected typists [alice], got %v", resp.Typists)
	}

	status, _ = env.do(t, stdhttp.MethodPost, typingPath, aliceToken, TypingRequest{Typing: false})
	if status != stdhttp.StatusNoContent {
		t.Fatalf("clear typing: expected 204, got %d", status)
	}
	status, raw = env.do(t, stdhttp.MethodGet, typingPath, bobToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("get typing: expected 200, got %d", status)
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode typing response: %v", err)
	}
	if len(resp.Typists) != 0 {
		t.Errorf("expected no typists after clear, got %v", resp.Typists)
	}
}

func TestSidebarOrdering(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.register(t, "alice")
	bobToken := env.register(t, "bob")
	aliceID := env.userID(t, aliceToken)
	bobID := env.userID(t, bobToken)
	carolToken := env.register(t, "carol")
	carolID := env.userID(t, carolToken)

	firstConv := env.createConversation(t, aliceToken, aliceID, bobID)
	secondConv := env.createConversation(t, aliceToken, aliceID, carolID)

	time.Sleep(2 * time.Millisecond)
	env.sendMessage(t, bobToken, firstConv, "ping")

	status, raw := env.do(t, stdhttp.MethodGet, "/api/conversations", aliceToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("list conversations: expected 200, got %d: %s", status, raw)
	}
	var sums []ConversationResponse
	if err := json.Unmarshal(raw, &sums); err != nil {
		t.Fatalf("failed to decode conversations: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(sums))
	}
	if sums[0].ID != firstConv || sums[1].ID != secondConv {
		t.Errorf("expected order [%d %d], got [%d %d]", firstConv, secondConv, sums[0].ID, sums[1].ID)
	}
	if sums[0].Unread != 1 {
		t.Errorf("expected unread 1 on the active conversation, got %d", sums[0].Unread)
	}
	if sums[0].LastMessage == nil || sums[0].LastMessage.Content != "ping" {
		t.Errorf("expected last message preview, got %+v", sums[0].LastMessage)
	}
}
