package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// Common errors for message operations. The caller can always tell a denied
// mutation from one that had nothing to act on.
var (
	// ErrNotFound is returned when the referenced conversation or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDenied is returned when the requester is not the message owner.
	ErrDenied = errors.New("denied")
	// ErrInvalid is returned for empty content or an empty emoji.
	ErrInvalid = errors.New("invalid")
	// ErrConflict is returned when a concurrent-update race persists after one retry.
	ErrConflict = errors.New("conflict")
)

// Service provides message business logic: send, soft-delete, edit, reaction
// toggling, and ordered listing. Ownership is enforced here; the caller
// identity is trusted as already verified.
type Service struct {
	store store.Store
}

// New creates a new message service.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// Send inserts a message into a conversation. The conversation aggregate
// (last message pointer, unread counters) is updated atomically with the
// insert; a partially applied send never becomes visible.
func (s *Service) Send(ctx context.Context, conversationID, senderID int64, content string, replyTo *int64) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty content: %w", ErrInvalid)
	}

	var msg *store.Message
	err := s.retryOnConflict(func() error {
		var err error
		msg, err = s.store.SendMessage(ctx, conversationID, senderID, content, replyTo)
		return err
	})
	if err != nil {
		return nil, mapStoreErr("send message", err)
	}
	return msg, nil
}

// Delete soft-deletes a message. Only the sender may delete; everyone else
// gets ErrDenied. The updated message is returned with content intact, the
// presentation layer masks it for other viewers.
func (s *Service) Delete(ctx context.Context, messageID, requesterID int64) (*store.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, mapStoreErr("load message", err)
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("requester %d is not the sender: %w", requesterID, ErrDenied)
	}

	err = s.retryOnConflict(func() error {
		return s.store.MarkMessageDeleted(ctx, messageID)
	})
	if err != nil {
		return nil, mapStoreErr("mark deleted", err)
	}

	msg.IsDeleted = true
	return msg, nil
}

// Edit replaces the content of a message. Same ownership rule as Delete;
// timestamp and reply reference are untouched.
func (s *Service) Edit(ctx context.Context, messageID, requesterID int64, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return fmt.Errorf("empty content: %w", ErrInvalid)
	}

	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return mapStoreErr("load message", err)
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("requester %d is not the sender: %w", requesterID, ErrDenied)
	}

	err = s.retryOnConflict(func() error {
		return s.store.UpdateMessageContent(ctx, messageID, newContent)
	})
	if err != nil {
		return mapStoreErr("update content", err)
	}
	return nil
}

// ToggleReaction flips the user's membership in the emoji bucket of a
// message: present removes, absent adds. Deleted messages still accept
// reactions; only the content is hidden from other viewers.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if emoji == "" {
		return fmt.Errorf("empty emoji: %w", ErrInvalid)
	}

	err := s.retryOnConflict(func() error {
		_, err := s.store.ToggleReaction(ctx, messageID, userID, emoji)
		return err
	})
	if err != nil {
		return mapStoreErr("toggle reaction", err)
	}
	return nil
}

// Get returns a single message with its reactions.
func (s *Service) Get(ctx context.Context, messageID int64) (*store.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, mapStoreErr("get message", err)
	}
	return msg, nil
}

// List returns all messages of a conversation in ascending timestamp order,
// soft-deleted rows included. This is the query live subscribers re-resolve
// after every mutation.
func (s *Service) List(ctx context.Context, conversationID int64) ([]*store.Message, error) {
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, mapStoreErr("list messages", err)
	}
	return msgs, nil
}

// retryOnConflict runs fn, retrying exactly once if the store reports a
// concurrent-update race. A second conflict surfaces to the caller.
func (s *Service) retryOnConflict(fn func() error) error {
	err := fn()
	if errors.Is(err, store.ErrConflict) {
		err = fn()
	}
	return err
}

func mapStoreErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
