package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
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

func seedUsers(t *testing.T, s *SQLiteStore, names ...string) []int64 {
	t.Helper()

	ctx := context.Background()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		u, err := s.CreateUser(ctx, name, "hash")
		if err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

func seedConversation(t *testing.T, s *SQLiteStore, participants ...int64) int64 {
	t.Helper()

	conv, err := s.CreateConversation(context.Background(), nil, len(participants) > 2, participants)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	return conv.ID
}

func TestSendMessageUpdatesAggregate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := ids[0], ids[1], ids[2]
	convID := seedConversation(t, s, alice, bob, carol)

	msg, err := s.SendMessage(ctx, convID, alice, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	conv, err := s.GetConversationByID(ctx, convID)
	if err != nil {
		t.Fatalf("GetConversationByID failed: %v", err)
	}
	if conv.LastMessageID == nil || *conv.LastMessageID != msg.ID {
		t.Errorf("expected last_message_id %d, got %v", msg.ID, conv.LastMessageID)
	}

	// Sender gets no unread credit; everyone else gets exactly one.
	for _, tc := range []struct {
		userID int64
		want   int
	}{
		{alice, 0},
		{bob, 1},
		{carol, 1},
	} {
		count, err := s.GetUnreadCount(ctx, tc.userID, convID)
		if err != nil {
			t.Fatalf("GetUnreadCount failed: %v", err)
		}
		if count != tc.want {
			t.Errorf("user %d: expected unread %d, got %d", tc.userID, tc.want, count)
		}
	}
}

func TestSendMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SendMessage(context.Background(), 999, 1, "hi", nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnreadMonotonicity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := s.SendMessage(ctx, convID, alice, "msg", nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	count, err := s.GetUnreadCount(ctx, bob, convID)
	if err != nil {
		t.Fatalf("GetUnreadCount failed: %v", err)
	}
	if count != n {
		t.Errorf("expected unread %d after %d sends, got %d", n, n, count)
	}

	if err := s.ResetUnread(ctx, bob, convID); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}
	count, err = s.GetUnreadCount(ctx, bob, convID)
	if err != nil {
		t.Fatalf("GetUnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected unread 0 after reset, got %d", count)
	}
}

func TestListMessagesOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	contents := []string{"one", "two", "three", "four"}
	for i, content := range contents {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		if _, err := s.SendMessage(ctx, convID, sender, content, nil); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, convID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(msgs))
	}
	for i, msg := range msgs {
		if msg.Content != contents[i] {
			t.Errorf("position %d: expected %q, got %q", i, contents[i], msg.Content)
		}
		if i > 0 {
			prev := msgs[i-1]
			if msg.Timestamp.Before(prev.Timestamp) {
				t.Errorf("timestamps not non-decreasing at position %d", i)
			}
			// Equal timestamps fall back to insertion order.
			if !msg.Timestamp.After(prev.Timestamp) && msg.ID < prev.ID {
				t.Errorf("insertion order not preserved at position %d", i)
			}
		}
	}
}

func TestSoftDeleteRetainsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	first, err := s.SendMessage(ctx, convID, alice, "first", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if _, err := s.SendMessage(ctx, convID, alice, "second", nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if err := s.MarkMessageDeleted(ctx, first.ID); err != nil {
		t.Fatalf("MarkMessageDeleted failed: %v", err)
	}

	msgs, err := s.ListMessages(ctx, convID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after soft delete, got %d", len(msgs))
	}
	if msgs[0].ID != first.ID || !msgs[0].IsDeleted {
		t.Errorf("expected first message flagged deleted in place, got %+v", msgs[0])
	}
	if msgs[0].Content != "first" {
		t.Errorf("deleted message content must be retained, got %q", msgs[0].Content)
	}
}

func TestMarkDeletedUnknownMessage(t *testing.T) {
	s := newTestStore(t)

	err := s.MarkMessageDeleted(context.Background(), 42)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestToggleReactionIdempotence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	msg, err := s.SendMessage(ctx, convID, alice, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	added, err := s.ToggleReaction(ctx, msg.ID, alice, "👍")
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if !added {
		t.Error("first toggle should add")
	}

	got, err := s.GetMessageByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if users := got.Reactions["👍"]; len(users) != 1 || users[0] != alice {
		t.Errorf("expected [alice] under 👍, got %v", users)
	}

	added, err = s.ToggleReaction(ctx, msg.ID, alice, "👍")
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if added {
		t.Error("second toggle should remove")
	}

	got, err = s.GetMessageByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if users := got.Reactions["👍"]; len(users) != 0 {
		t.Errorf("expected empty 👍 bucket after double toggle, got %v", users)
	}
}

func TestToggleReactionIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	msg, err := s.SendMessage(ctx, convID, alice, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	for _, toggle := range []struct {
		userID int64
		emoji  string
	}{
		{alice, "👍"},
		{bob, "👍"},
		{alice, "🎉"},
	} {
		if _, err := s.ToggleReaction(ctx, msg.ID, toggle.userID, toggle.emoji); err != nil {
			t.Fatalf("ToggleReaction failed: %v", err)
		}
	}

	// Removing bob's 👍 must leave alice's 👍 and 🎉 untouched.
	if _, err := s.ToggleReaction(ctx, msg.ID, bob, "👍"); err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}

	got, err := s.GetMessageByID(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetMessageByID failed: %v", err)
	}
	if users := got.Reactions["👍"]; len(users) != 1 || users[0] != alice {
		t.Errorf("expected [alice] under 👍, got %v", users)
	}
	if users := got.Reactions["🎉"]; len(users) != 1 || users[0] != alice {
		t.Errorf("expected [alice] under 🎉, got %v", users)
	}
}

func TestToggleReactionUnknownMessage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ToggleReaction(context.Background(), 42, 1, "👍")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecountUnreadAfterWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]
	convID := seedConversation(t, s, alice, bob)

	var msgIDs []int64
	for i := 0; i < 4; i++ {
		msg, err := s.SendMessage(ctx, convID, alice, "msg", nil)
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		msgIDs = append(msgIDs, msg.ID)
	}

	// Bob saw the second message; the last two stay unread.
	if err := s.RecountUnreadAfter(ctx, bob, convID, msgIDs[1]); err != nil {
		t.Fatalf("RecountUnreadAfter failed: %v", err)
	}

	count, err := s.GetUnreadCount(ctx, bob, convID)
	if err != nil {
		t.Fatalf("GetUnreadCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected unread 2 after watermark, got %d", count)
	}
}

func TestListConversationsSidebar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := ids[0], ids[1], ids[2]
	firstConv := seedConversation(t, s, alice, bob)
	secondConv := seedConversation(t, s, alice, carol)

	// Millisecond timestamps drive the sidebar order; make sure the send
	// lands strictly after both conversations were created.
	time.Sleep(2 * time.Millisecond)
	if _, err := s.SendMessage(ctx, firstConv, bob, "hello alice", nil); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sums, err := s.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(sums))
	}

	// The conversation with the newer message sorts first.
	if sums[0].ID != firstConv {
		t.Errorf("expected conversation %d first, got %d", firstConv, sums[0].ID)
	}
	if sums[0].Unread != 1 {
		t.Errorf("expected unread 1, got %d", sums[0].Unread)
	}
	if sums[0].LastMessage == nil || sums[0].LastMessage.Content != "hello alice" {
		t.Errorf("expected last message preview, got %+v", sums[0].LastMessage)
	}
	if sums[1].ID != secondConv || sums[1].LastMessage != nil {
		t.Errorf("expected empty conversation %d second, got %+v", secondConv, sums[1])
	}
}

func TestCreateConversationRequiresTwoParticipants(t *testing.T) {
	s := newTestStore(t)

	ids := seedUsers(t, s, "alice")
	_, err := s.CreateConversation(context.Background(), nil, false, ids)
	if err == nil {
		t.Fatal("expected error for single-participant conversation")
	}
}

func TestCreateConversationDedupesParticipants(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice", "bob")
	alice, bob := ids[0], ids[1]

	// Repeated ids collapse instead of tripping the participant key.
	conv, err := s.CreateConversation(ctx, nil, false, []int64{alice, bob, bob, alice})
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Errorf("expected 2 participants, got %v", conv.Participants)
	}

	// All duplicates of one user is still a single-participant conversation.
	if _, err := s.CreateConversation(ctx, nil, false, []int64{alice, alice}); err == nil {
		t.Error("expected error for duplicated single participant")
	}
}

func TestReadScenario(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "a", "b")
	a, b := ids[0], ids[1]
	convID := seedConversation(t, s, a, b)

	first, err := s.SendMessage(ctx, convID, a, "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	count, _ := s.GetUnreadCount(ctx, b, convID)
	if count != 1 {
		t.Fatalf("expected b unread 1, got %d", count)
	}

	conv, _ := s.GetConversationByID(ctx, convID)
	if conv.LastMessageID == nil || *conv.LastMessageID != first.ID {
		t.Fatalf("expected last message %d, got %v", first.ID, conv.LastMessageID)
	}

	if err := s.ResetUnread(ctx, b, convID); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}
	count, _ = s.GetUnreadCount(ctx, b, convID)
	if count != 0 {
		t.Fatalf("expected b unread 0 after reset, got %d", count)
	}

	second, err := s.SendMessage(ctx, convID, a, "there", &first.ID)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if second.ReplyTo == nil || *second.ReplyTo != first.ID {
		t.Fatalf("expected reply_to %d, got %v", first.ID, second.ReplyTo)
	}

	count, _ = s.GetUnreadCount(ctx, b, convID)
	if count != 1 {
		t.Fatalf("expected b unread 1 again, got %d", count)
	}
}

func TestNewWithSetupSeedsFixtures(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`INSERT INTO users (name, password_hash) VALUES ('seeded', 'hash')`)
		return err
	})
	if err != nil {
		t.Fatalf("NewWithSetup failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	u, err := s.GetUserByName(context.Background(), "seeded")
	if err != nil {
		t.Fatalf("GetUserByName failed: %v", err)
	}
	if u.Name != "seeded" {
		t.Errorf("expected seeded user, got %+v", u)
	}
}

func TestPresence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := seedUsers(t, s, "alice")
	alice := ids[0]

	if err := s.SetPresence(ctx, alice, true); err != nil {
		t.Fatalf("SetPresence failed: %v", err)
	}
	u, err := s.GetUserByID(ctx, alice)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if !u.IsOnline {
		t.Error("expected user online")
	}

	if err := s.SetPresence(ctx, 999, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}
