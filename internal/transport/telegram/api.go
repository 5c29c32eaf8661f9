package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"

	"telegram-bridge/internal/transport"
)

func (h *Handle) Dialogs(ctx context.Context, limit int) ([]transport.Dialog, error) {
	raw, err := h.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      limit,
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	var (
		dialogs  []tg.DialogClass
		messages []tg.MessageClass
		chats    []tg.ChatClass
		users    []tg.UserClass
	)

	switch d := raw.(type) {
	case *tg.MessagesDialogs:
		dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
	case *tg.MessagesDialogsSlice:
		dialogs, messages, chats, users = d.Dialogs, d.Messages, d.Chats, d.Users
	default:
		return nil, fmt.Errorf("telegram: unexpected dialogs %T", raw)
	}

	ent := newEntities(chats, users)
	topMessages := make(map[int]tg.MessageClass, len(messages))
	for _, m := range messages {
		topMessages[m.GetID()] = m
	}

	result := make([]transport.Dialog, 0, len(dialogs))
	for _, dc := range dialogs {
		d, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}

		chat := ent.chatForPeer(d.Peer)
		out := transport.Dialog{
			Chat:        chat,
			Username:    ent.usernameForPeer(d.Peer),
			UnreadCount: d.UnreadCount,
		}

		if top, ok := topMessages[d.TopMessage]; ok {
			if msg := ent.convertMessage(top); msg != nil {
				out.LastMessage = msg
			}
		}

		result = append(result, out)
	}

	return result, nil
}

func (h *Handle) History(ctx context.Context, chatID string, limit, offsetID int) ([]transport.Message, error) {
	peer, err := h.inputPeer(ctx, chatID)
	if err != nil {
		return nil, err
	}

	raw, err := h.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		Limit:    limit,
		OffsetID: offsetID,
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	var (
		messages []tg.MessageClass
		chats    []tg.ChatClass
		users    []tg.UserClass
	)

	switch m := raw.(type) {
	case *tg.MessagesMessages:
		messages, chats, users = m.Messages, m.Chats, m.Users
	case *tg.MessagesMessagesSlice:
		messages, chats, users = m.Messages, m.Chats, m.Users
	case *tg.MessagesChannelMessages:
		messages, chats, users = m.Messages, m.Chats, m.Users
	default:
		return nil, fmt.Errorf("telegram: unexpected history %T", raw)
	}

	ent := newEntities(chats, users)

	result := make([]transport.Message, 0, len(messages))
	for _, mc := range messages {
		if msg := ent.convertMessage(mc); msg != nil {
			result = append(result, *msg)
		}
	}

	return result, nil
}

func (h *Handle) SendMessage(ctx context.Context, chatID, text string) (*transport.Message, error) {
	peer, err := h.inputPeer(ctx, chatID)
	if err != nil {
		return nil, err
	}

	sender := message.NewSender(h.api)
	updates, err := sender.To(peer).Text(ctx, text)
	if err != nil {
		return nil, wrapErr(err)
	}

	msg := &transport.Message{
		Text:     text,
		Date:     time.Now().UTC(),
		Outgoing: true,
	}
	if id, ok := sentMessageID(updates); ok {
		msg.ID = id
	}

	return msg, nil
}

func (h *Handle) ResolvePhone(ctx context.Context, phone string) (*transport.User, error) {
	resolved, err := h.api.ContactsResolvePhone(ctx, phone)
	if err != nil {
		return nil, wrapErr(err)
	}

	for _, uc := range resolved.Users {
		if u, ok := uc.(*tg.User); ok {
			return convertUser(u), nil
		}
	}

	return nil, fmt.Errorf("telegram: phone %s did not resolve to a user", phone)
}

func (h *Handle) ImportContact(ctx context.Context, phone, firstName, lastName string) (*transport.User, error) {
	imported, err := h.api.ContactsImportContacts(ctx, []tg.InputPhoneContact{{
		ClientID:  time.Now().UnixNano(),
		Phone:     phone,
		FirstName: firstName,
		LastName:  lastName,
	}})
	if err != nil {
		return nil, wrapErr(err)
	}

	for _, uc := range imported.Users {
		if u, ok := uc.(*tg.User); ok {
			return convertUser(u), nil
		}
	}

	return nil, fmt.Errorf("telegram: contact %s was not imported", phone)
}

// inputPeer resolves a chat reference. Usernames and phone numbers go
// through the resolver; numeric ids are matched against the dialog
// list, which is the only place their access hashes are available.
func (h *Handle) inputPeer(ctx context.Context, chatID string) (tg.InputPeerClass, error) {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return h.peerFromDialogs(ctx, id)
	}

	username := chatID
	if username != "" && username[0] == '@' {
		username = username[1:]
	}

	resolved, err := h.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, wrapErr(err)
	}

	ent := newEntities(resolved.Chats, resolved.Users)
	peer := ent.inputPeerFor(resolved.Peer)
	if peer == nil {
		return nil, fmt.Errorf("telegram: cannot resolve %q", chatID)
	}

	return peer, nil
}

func (h *Handle) peerFromDialogs(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	raw, err := h.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return nil, wrapErr(err)
	}

	var (
		chats []tg.ChatClass
		users []tg.UserClass
	)
	switch d := raw.(type) {
	case *tg.MessagesDialogs:
		chats, users = d.Chats, d.Users
	case *tg.MessagesDialogsSlice:
		chats, users = d.Chats, d.Users
	default:
		return nil, fmt.Errorf("telegram: unexpected dialogs %T", raw)
	}

	ent := newEntities(chats, users)
	if peer := ent.inputPeerByID(id); peer != nil {
		return peer, nil
	}

	return nil, fmt.Errorf("telegram: chat %d not found in dialogs", id)
}

// sentMessageID digs the assigned message id out of the updates
// returned by a send.
func sentMessageID(updates tg.UpdatesClass) (int, bool) {
	extract := func(list []tg.UpdateClass) (int, bool) {
		for _, u := range list {
			switch upd := u.(type) {
			case *tg.UpdateMessageID:
				return upd.ID, true
			case *tg.UpdateNewMessage:
				return upd.Message.GetID(), true
			case *tg.UpdateNewChannelMessage:
				return upd.Message.GetID(), true
			}
		}
		return 0, false
	}

	switch u := updates.(type) {
	case *tg.Updates:
		return extract(u.Updates)
	case *tg.UpdatesCombined:
		return extract(u.Updates)
	case *tg.UpdateShortSentMessage:
		return u.ID, true
	}

	return 0, false
}
