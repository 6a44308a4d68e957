package http

import (
	"encoding/json"

	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/core"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/proto"
	"github.com/lakshmi-srujana-sanaka/tare-chat/internal/store"
)

// messageView renders a message for a particular viewer. Deleted messages
// keep their row and ordering but expose no content to anyone except the
// sender.
func messageView(m *store.Message, viewerID int64) proto.MessageView {
	view := proto.MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ReplyTo:        m.ReplyTo,
		TS:             m.Timestamp.UnixMilli(),
		IsDeleted:      m.IsDeleted,
		Reactions:      m.Reactions,
	}
	if m.IsDeleted && m.SenderID != viewerID {
		view.Content = ""
	}
	if view.Reactions == nil {
		view.Reactions = map[string][]int64{}
	}
	return view
}

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeSubscribe, proto.InboundTypeUnsubscribe:
		var sub proto.SubscribeData
		if err := json.Unmarshal(inbound.Data, &sub); err != nil {
			return nil, nil, err
		}
		if sub.ConversationID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation_id is required"}, nil
		}
		kind := core.CommandSubscribe
		if inbound.Type == proto.InboundTypeUnsubscribe {
			kind = core.CommandUnsubscribe
		}
		return &core.Command{
			Kind:           kind,
			ConversationID: sub.ConversationID,
		}, nil, nil
	case proto.InboundTypeSend:
		var send proto.SendData
		if err := json.Unmarshal(inbound.Data, &send); err != nil {
			return nil, nil, err
		}
		if send.ConversationID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation_id is required"}, nil
		}
		return &core.Command{
			Kind:           core.CommandSendMessage,
			ConversationID: send.ConversationID,
			Content:        send.Content,
			ReplyTo:        send.ReplyTo,
		}, nil, nil
	case proto.InboundTypeEdit:
		var edit proto.EditData
		if err := json.Unmarshal(inbound.Data, &edit); err != nil {
			return nil, nil, err
		}
		if edit.MessageID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		// The conversation is derived from the message row downstream;
		// the client's hint is not trusted.
		return &core.Command{
			Kind:      core.CommandEditMessage,
			MessageID: edit.MessageID,
			Content:   edit.Content,
		}, nil, nil
	case proto.InboundTypeDelete:
		var del proto.DeleteData
		if err := json.Unmarshal(inbound.Data, &del); err != nil {
			return nil, nil, err
		}
		if del.MessageID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id is required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandDeleteMessage,
			MessageID: del.MessageID,
		}, nil, nil
	case proto.InboundTypeReact:
		var react proto.ReactData
		if err := json.Unmarshal(inbound.Data, &react); err != nil {
			return nil, nil, err
		}
		if react.MessageID <= 0 || react.Emoji == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "message_id and emoji are required"}, nil
		}
		return &core.Command{
			Kind:      core.CommandToggleReaction,
			MessageID: react.MessageID,
			Emoji:     react.Emoji,
		}, nil, nil
	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.ConversationID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation_id is required"}, nil
		}
		return &core.Command{
			Kind:           core.CommandSetTyping,
			ConversationID: typing.ConversationID,
			Typing:         typing.Typing,
		}, nil, nil
	case proto.InboundTypeRead:
		var read proto.ReadData
		if err := json.Unmarshal(inbound.Data, &read); err != nil {
			return nil, nil, err
		}
		if read.ConversationID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation_id is required"}, nil
		}
		return &core.Command{
			Kind:           core.CommandMarkRead,
			ConversationID: read.ConversationID,
			LastSeen:       read.LastSeen,
		}, nil, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func outboundFromEvent(event *core.Event, viewerID int64) proto.Outbound {
	switch event.Kind {
	case core.EventMessages:
		views := make([]proto.MessageView, 0, len(event.Messages))
		for _, m := range event.Messages {
			views = append(views, messageView(m, viewerID))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessages,
			Data: proto.EventMessages{
				ConversationID: event.ConversationID,
				Messages:       views,
			},
		}
	case core.EventUnread:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameUnread,
			Data: proto.EventUnread{
				ConversationID: event.ConversationID,
				Unread:         event.Unread,
			},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameTyping,
			Data: proto.EventTyping{
				ConversationID: event.ConversationID,
				Typists:        event.Typists,
			},
		}
	case core.EventError:
		out := proto.Outbound{Type: proto.OutboundTypeError}
		if event.Error != nil {
			out.Error = &proto.Error{Code: event.Error.Code, Msg: event.Error.Message}
		}
		return out
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown event"}}
	}
}
