package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file, ":memory:" for tests.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed fixture rows.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// mapBusy converts driver-level busy/locked errors into store.ErrConflict so
// services can retry without knowing the driver.
func mapBusy(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%v: %w", err, store.ErrConflict)
	}
	return err
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (name, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUser(ctx, `WHERE id = ?`, id)
}

// GetUserByName retrieves a user by name.
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*store.User, error) {
	return s.getUser(ctx, `WHERE name = ?`, name)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*store.User, error) {
	query := `
		SELECT id, name, password_hash, avatar_url, is_online, last_seen_at, created_at
		FROM users ` + where

	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.IsOnline,
		&user.LastSeenAt,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SetPresence updates the online flag and stamps last_seen_at.
func (s *SQLiteStore) SetPresence(ctx context.Context, userID int64, online bool) error {
	query := `
		UPDATE users
		SET is_online = ?, last_seen_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, online, userID)
	if err != nil {
		return fmt.Errorf("update presence: %w", mapBusy(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return nil
}

// ==== ConversationStore implementation ====

// CreateConversation creates a conversation with the given participants.
func (s *SQLiteStore) CreateConversation(ctx context.Context, name *string, isGroup bool, participants []int64) (*store.Conversation, error) {
	participants = dedupeIDs(participants)
	if len(participants) < 2 {
		return nil, fmt.Errorf("conversation needs at least 2 distinct participants, got %d", len(participants))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", mapBusy(err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (name, is_group, updated_at)
		VALUES (?, ?, ?)
	`, nullableString(name), isGroup, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", mapBusy(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id)
			VALUES (?, ?)
		`, id, userID); err != nil {
			return nil, fmt.Errorf("insert participant %d: %w", userID, mapBusy(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", mapBusy(err))
	}

	return s.GetConversationByID(ctx, id)
}

// GetConversationByID retrieves a conversation with its participants.
func (s *SQLiteStore) GetConversationByID(ctx context.Context, id int64) (*store.Conversation, error) {
	query := `
		SELECT id, name, is_group, last_message_id, updated_at, created_at
		FROM conversations
		WHERE id = ?
	`
	var (
		conv      store.Conversation
		name      sql.NullString
		lastMsg   sql.NullInt64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&name,
		&conv.IsGroup,
		&lastMsg,
		&updatedAt,
		&conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	if name.Valid {
		conv.Name = &name.String
	}
	if lastMsg.Valid {
		conv.LastMessageID = &lastMsg.Int64
	}
	conv.UpdatedAt = time.UnixMilli(updatedAt)

	conv.Participants, err = s.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}

	return &conv, nil
}

// ListParticipants lists participant user ids of a conversation.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListConversations lists a user's conversations ordered by updated_at
// descending, with the caller's unread count and last message preview.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID int64) ([]*store.ConversationSummary, error) {
	query := `
		SELECT
			c.id, c.name, c.is_group, c.last_message_id, c.updated_at, c.created_at,
			COALESCE(u.count, 0),
			m.id, m.sender_id, m.content, m.reply_to, m.timestamp, m.is_deleted
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = ?
		LEFT JOIN unread_counters u ON u.conversation_id = c.id AND u.user_id = ?
		LEFT JOIN messages m ON m.id = c.last_message_id
		ORDER BY c.updated_at DESC, c.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*store.ConversationSummary
	for rows.Next() {
		var (
			sum       store.ConversationSummary
			name      sql.NullString
			lastMsgID sql.NullInt64
			updatedAt int64

			mID        sql.NullInt64
			mSender    sql.NullInt64
			mContent   sql.NullString
			mReplyTo   sql.NullInt64
			mTimestamp sql.NullInt64
			mDeleted   sql.NullBool
		)
		if err := rows.Scan(
			&sum.ID, &name, &sum.IsGroup, &lastMsgID, &updatedAt, &sum.CreatedAt,
			&sum.Unread,
			&mID, &mSender, &mContent, &mReplyTo, &mTimestamp, &mDeleted,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		if name.Valid {
			sum.Name = &name.String
		}
		if lastMsgID.Valid {
			sum.LastMessageID = &lastMsgID.Int64
		}
		sum.UpdatedAt = time.UnixMilli(updatedAt)

		if mID.Valid {
			msg := &store.Message{
				ID:             mID.Int64,
				ConversationID: sum.ID,
				SenderID:       mSender.Int64,
				Content:        mContent.String,
				Timestamp:      time.UnixMilli(mTimestamp.Int64),
				IsDeleted:      mDeleted.Bool,
				Reactions:      map[string][]int64{},
			}
			if mReplyTo.Valid {
				msg.ReplyTo = &mReplyTo.Int64
			}
			sum.LastMessage = msg
		}

		out = append(out, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for _, sum := range out {
		sum.Participants, err = s.ListParticipants(ctx, sum.ID)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

// ==== MessageStore implementation ====

// SendMessage inserts a message and maintains the conversation aggregate in
// one transaction: last message pointer, updated_at, and one unread counter
// increment per participant other than the sender. A failure anywhere rolls
// the whole operation back.
func (s *SQLiteStore) SendMessage(ctx context.Context, conversationID, senderID int64, content string, replyTo *int64) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", mapBusy(err))
	}
	defer tx.Rollback()

	participants, err := txParticipants(ctx, tx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, store.ErrNotFound)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, reply_to, timestamp, is_deleted)
		VALUES (?, ?, ?, ?, ?, 0)
	`, conversationID, senderID, content, nullableInt64(replyTo), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", mapBusy(err))
	}

	messageID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_message_id = ?, updated_at = ?
		WHERE id = ?
	`, messageID, now.UnixMilli(), conversationID); err != nil {
		return nil, fmt.Errorf("update conversation pointer: %w", mapBusy(err))
	}

	for _, participantID := range participants {
		if participantID == senderID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unread_counters (user_id, conversation_id, count)
			VALUES (?, ?, 1)
			ON CONFLICT (user_id, conversation_id) DO UPDATE SET count = count + 1
		`, participantID, conversationID); err != nil {
			return nil, fmt.Errorf("bump unread for participant %d: %w", participantID, mapBusy(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", mapBusy(err))
	}

	msg := &store.Message{
		ID:             messageID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		ReplyTo:        replyTo,
		Timestamp:      time.UnixMilli(now.UnixMilli()),
		Reactions:      map[string][]int64{},
	}
	return msg, nil
}

func txParticipants(ctx context.Context, tx *sql.Tx, conversationID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", mapBusy(err))
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMessageByID retrieves a single message with its reactions.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, content, reply_to, timestamp, is_deleted
		FROM messages
		WHERE id = ?
	`
	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT emoji, user_id FROM reactions WHERE message_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			emoji  string
			userID int64
		)
		if err := rows.Scan(&emoji, &userID); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		msg.Reactions[emoji] = append(msg.Reactions[emoji], userID)
	}
	return msg, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var (
		msg       store.Message
		replyTo   sql.NullInt64
		timestamp int64
	)
	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&replyTo,
		&timestamp,
		&msg.IsDeleted,
	); err != nil {
		return nil, err
	}
	if replyTo.Valid {
		msg.ReplyTo = &replyTo.Int64
	}
	msg.Timestamp = time.UnixMilli(timestamp)
	msg.Reactions = map[string][]int64{}
	return &msg, nil
}

// ListMessages returns all messages of a conversation ascending by timestamp,
// insertion order breaking ties. Soft-deleted rows are included; masking is
// the presentation layer's concern.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, content, reply_to, timestamp, is_deleted
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var (
		out  []*store.Message
		byID = map[int64]*store.Message{}
	)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
		byID[msg.ID] = msg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	rrows, err := s.db.QueryContext(ctx, `
		SELECT r.message_id, r.emoji, r.user_id
		FROM reactions r
		JOIN messages m ON m.id = r.message_id
		WHERE m.conversation_id = ?
		ORDER BY r.id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rrows.Close()

	for rrows.Next() {
		var (
			messageID int64
			emoji     string
			userID    int64
		)
		if err := rrows.Scan(&messageID, &emoji, &userID); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.Reactions[emoji] = append(msg.Reactions[emoji], userID)
		}
	}
	return out, rrows.Err()
}

// MarkMessageDeleted flags a message as deleted. Content is retained.
func (s *SQLiteStore) MarkMessageDeleted(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", mapBusy(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// UpdateMessageContent replaces the content of a message in place. Timestamp
// and reply_to are untouched.
func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ? WHERE id = ?
	`, content, id)
	if err != nil {
		return fmt.Errorf("update content: %w", mapBusy(err))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// ToggleReaction flips the user's membership in the emoji bucket. The delete
// and insert target a single (message, user, emoji) row, so toggles by other
// users are never overwritten.
func (s *SQLiteStore) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", mapBusy(err))
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, messageID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("message %d: %w", messageID, store.ErrNotFound)
		}
		return false, fmt.Errorf("query message: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?
	`, messageID, userID, emoji)
	if err != nil {
		return false, fmt.Errorf("delete reaction: %w", mapBusy(err))
	}

	removed, _ := result.RowsAffected()
	added := removed == 0
	if added {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reactions (message_id, user_id, emoji) VALUES (?, ?, ?)
		`, messageID, userID, emoji); err != nil {
			return false, fmt.Errorf("insert reaction: %w", mapBusy(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", mapBusy(err))
	}
	return added, nil
}

// ==== UnreadStore implementation ====

// GetUnreadCount returns the counter value, 0 if no row exists.
func (s *SQLiteStore) GetUnreadCount(ctx context.Context, userID, conversationID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM unread_counters WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query unread: %w", err)
	}
	return count, nil
}

// ResetUnread clears the user's counter for the conversation. Deleting the
// row and resetting to zero are externally equivalent; the row is deleted.
func (s *SQLiteStore) ResetUnread(ctx context.Context, userID, conversationID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM unread_counters WHERE user_id = ? AND conversation_id = ?
	`, userID, conversationID); err != nil {
		return fmt.Errorf("reset unread: %w", mapBusy(err))
	}
	return nil
}

// RecountUnreadAfter rebuilds the counter from message history: messages from
// other senders strictly newer than lastSeenMessageID remain unread.
func (s *SQLiteStore) RecountUnreadAfter(ctx context.Context, userID, conversationID, lastSeenMessageID int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO unread_counters (user_id, conversation_id, count)
		VALUES (?, ?, (
			SELECT COUNT(*) FROM messages
			WHERE conversation_id = ? AND sender_id != ? AND id > ?
		))
		ON CONFLICT (user_id, conversation_id) DO UPDATE SET count = excluded.count
	`, userID, conversationID, conversationID, userID, lastSeenMessageID); err != nil {
		return fmt.Errorf("recount unread: %w", mapBusy(err))
	}
	return nil
}

// dedupeIDs drops repeated ids, preserving first-seen order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
