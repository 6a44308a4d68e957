package core

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/messages"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/presence"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/service/readstate"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// Hub coordinates live-query delivery: clients subscribe to conversations,
// and after every mutation the hub re-resolves the affected queries and
// pushes the results to all subscribers. Commands are processed on a single
// goroutine, so each push reflects a consistent post-mutation state.
type Hub struct {
	store    store.Store
	messages *messages.Service
	reads    *readstate.Service
	typing   *presence.Tracker
	log      zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbox      chan clientCommand

	// invalidations from mutations that bypass the command path (REST).
	invalidate       chan int64
	invalidateTyping chan int64

	feeds map[int64]*Feed
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// NewHub creates a hub over the given services. logger may be nil.
func NewHub(st store.Store, msgs *messages.Service, reads *readstate.Service, typing *presence.Tracker, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:            st,
		messages:         msgs,
		reads:            reads,
		typing:           typing,
		log:              *logger,
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		inbox:            make(chan clientCommand, 64),
		invalidate:       make(chan int64, 16),
		invalidateTyping: make(chan int64, 16),
		feeds:            make(map[int64]*Feed),
	}
}

// Invalidate re-resolves and pushes a conversation's message list and unread
// counts to subscribers. Called after mutations that did not come through a
// client command, e.g. the REST API.
func (h *Hub) Invalidate(conversationID int64) {
	select {
	case h.invalidate <- conversationID:
	default:
		// Hub not running or backlogged; subscribers catch up on next push.
	}
}

// InvalidateTyping pushes the current typing set to subscribers.
func (h *Hub) InvalidateTyping(conversationID int64) {
	select {
	case h.invalidateTyping <- conversationID:
	default:
	}
}

// RegisterClient attaches a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient detaches a client and drops its subscriptions.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			go h.pump(ctx, c)
		case c := <-h.unregister:
			h.dropClient(c)
		case cc := <-h.inbox:
			h.handle(ctx, cc.client, cc.cmd)
		case conversationID := <-h.invalidate:
			h.broadcastMessages(ctx, conversationID)
			h.broadcastUnread(ctx, conversationID)
		case conversationID := <-h.invalidateTyping:
			if feed, ok := h.feeds[conversationID]; ok {
				feed.Broadcast(&Event{
					Kind:           EventTyping,
					ConversationID: conversationID,
					Typists:        h.typing.Typists(conversationID),
				})
			}
		}
	}
}

// pump forwards one client's commands into the hub's single inbox.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case h.inbox <- clientCommand{client: c, cmd: cmd}:
			}
		}
	}
}

func (h *Hub) dropClient(c *Client) {
	for conversationID := range c.Subscriptions {
		if feed, ok := h.feeds[conversationID]; ok {
			feed.RemoveClient(c)
			if feed.Empty() {
				delete(h.feeds, conversationID)
			}
		}
	}
	c.Subscriptions = make(map[int64]struct{})
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandSubscribe:
		h.handleSubscribe(ctx, c, cmd.ConversationID)
	case CommandUnsubscribe:
		h.handleUnsubscribe(c, cmd.ConversationID)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd)
	case CommandEditMessage:
		h.handleEdit(ctx, c, cmd)
	case CommandDeleteMessage:
		h.handleDelete(ctx, c, cmd)
	case CommandToggleReaction:
		h.handleToggleReaction(ctx, c, cmd)
	case CommandSetTyping:
		h.handleSetTyping(c, cmd)
	case CommandMarkRead:
		h.handleMarkRead(ctx, c, cmd)
	default:
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, conversationID int64) {
	participants, err := h.store.ListParticipants(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("list participants")
		h.sendError(c, coreError(ErrCodeInternal, "internal error"))
		return
	}
	if len(participants) == 0 {
		h.sendError(c, coreError(ErrCodeNotFound, "conversation not found"))
		return
	}
	member := false
	for _, id := range participants {
		if id == c.UserID {
			member = true
			break
		}
	}
	if !member {
		h.sendError(c, coreError(ErrCodeDenied, "not a participant"))
		return
	}

	feed, ok := h.feeds[conversationID]
	if !ok {
		feed = NewFeed(conversationID)
		h.feeds[conversationID] = feed
	}
	feed.AddClient(c)
	c.Subscriptions[conversationID] = struct{}{}

	// Initial resolution of the subscribed queries.
	h.pushMessagesTo(ctx, c, conversationID)
	h.pushUnreadTo(ctx, c, conversationID)
	h.sendEvent(c, &Event{
		Kind:           EventTyping,
		ConversationID: conversationID,
		Typists:        h.typing.Typists(conversationID),
	})
}

func (h *Hub) handleUnsubscribe(c *Client, conversationID int64) {
	if feed, ok := h.feeds[conversationID]; ok {
		feed.RemoveClient(c)
		if feed.Empty() {
			delete(h.feeds, conversationID)
		}
	}
	delete(c.Subscriptions, conversationID)
}

func (h *Hub) handleSend(ctx context.Context, c *Client, cmd *Command) {
	_, err := h.messages.Send(ctx, cmd.ConversationID, c.UserID, cmd.Content, cmd.ReplyTo)
	if err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	h.broadcastMessages(ctx, cmd.ConversationID)
	h.broadcastUnread(ctx, cmd.ConversationID)
}

// Edit, delete, and react address a message, not a conversation: the push
// target is derived from the message row so a stale or missing conversation
// hint can never detach the broadcast from the real subscribers.

func (h *Hub) handleEdit(ctx context.Context, c *Client, cmd *Command) {
	if err := h.messages.Edit(ctx, cmd.MessageID, c.UserID, cmd.Content); err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	msg, err := h.messages.Get(ctx, cmd.MessageID)
	if err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	h.broadcastMessages(ctx, msg.ConversationID)
}

func (h *Hub) handleDelete(ctx context.Context, c *Client, cmd *Command) {
	msg, err := h.messages.Delete(ctx, cmd.MessageID, c.UserID)
	if err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	h.broadcastMessages(ctx, msg.ConversationID)
}

func (h *Hub) handleToggleReaction(ctx context.Context, c *Client, cmd *Command) {
	if err := h.messages.ToggleReaction(ctx, cmd.MessageID, c.UserID, cmd.Emoji); err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	msg, err := h.messages.Get(ctx, cmd.MessageID)
	if err != nil {
		h.sendError(c, errorFor(err))
		return
	}
	h.broadcastMessages(ctx, msg.ConversationID)
}

func (h *Hub) handleSetTyping(c *Client, cmd *Command) {
	h.typing.SetTyping(cmd.ConversationID, c.UserID, cmd.Typing)
	if feed, ok := h.feeds[cmd.ConversationID]; ok {
		feed.Broadcast(&Event{
			Kind:           EventTyping,
			ConversationID: cmd.ConversationID,
			Typists:        h.typing.Typists(cmd.ConversationID),
		})
	}
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) {
	var err error
	if cmd.LastSeen > 0 {
		err = h.reads.MarkReadThrough(ctx, cmd.ConversationID, c.UserID, cmd.LastSeen)
	} else {
		err = h.reads.MarkRead(ctx, cmd.ConversationID, c.UserID)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", cmd.ConversationID).Msg("mark read")
		h.sendError(c, errorFor(err))
		return
	}
	h.pushUnreadTo(ctx, c, cmd.ConversationID)
}

// broadcastMessages re-resolves the conversation's message list and pushes it
// to every subscriber.
func (h *Hub) broadcastMessages(ctx context.Context, conversationID int64) {
	feed, ok := h.feeds[conversationID]
	if !ok {
		return
	}
	msgs, err := h.messages.List(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("re-resolve messages")
		return
	}
	feed.Broadcast(&Event{
		Kind:           EventMessages,
		ConversationID: conversationID,
		Messages:       msgs,
	})
}

// broadcastUnread pushes each subscriber's own unread count. The payload is
// per-viewer, so every subscriber gets an individual event.
func (h *Hub) broadcastUnread(ctx context.Context, conversationID int64) {
	feed, ok := h.feeds[conversationID]
	if !ok {
		return
	}
	feed.Each(func(c *Client) {
		h.pushUnreadTo(ctx, c, conversationID)
	})
}

func (h *Hub) pushMessagesTo(ctx context.Context, c *Client, conversationID int64) {
	msgs, err := h.messages.List(ctx, conversationID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("resolve messages")
		h.sendError(c, coreError(ErrCodeInternal, "internal error"))
		return
	}
	h.sendEvent(c, &Event{
		Kind:           EventMessages,
		ConversationID: conversationID,
		Messages:       msgs,
	})
}

func (h *Hub) pushUnreadTo(ctx context.Context, c *Client, conversationID int64) {
	count, err := h.reads.Unread(ctx, conversationID, c.UserID)
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("resolve unread")
		return
	}
	h.sendEvent(c, &Event{
		Kind:           EventUnread,
		ConversationID: conversationID,
		Unread:         count,
	})
}

func (h *Hub) sendEvent(c *Client, event *Event) {
	select {
	case c.Events <- event:
	default:
		// Drop if slow consumer.
	}
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	h.sendEvent(c, &Event{Kind: EventError, Error: cerr})
}
