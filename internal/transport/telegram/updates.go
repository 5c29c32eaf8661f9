package telegram

import (
	"context"
	"time"

	"github.com/gotd/td/tg"

	"telegram-bridge/internal/transport"
)

func (h *Handle) onNewMessage(_ context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
	h.mu.Lock()
	handler := h.handler
	started := h.started
	h.mu.Unlock()

	if handler == nil || !started {
		return nil
	}

	ent := entities{users: e.Users, chats: e.Chats, channels: e.Channels}
	msg := ent.convertMessage(update.Message)
	if msg == nil {
		return nil
	}

	handler(*msg)
	return nil
}

// entities indexes the users/chats attached to an API response so
// peers can be turned into ids, titles and access hashes.
type entities struct {
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func newEntities(chats []tg.ChatClass, users []tg.UserClass) entities {
	ent := entities{
		users:    make(map[int64]*tg.User),
		chats:    make(map[int64]*tg.Chat),
		channels: make(map[int64]*tg.Channel),
	}

	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			ent.users[u.ID] = u
		}
	}
	for _, cc := range chats {
		switch c := cc.(type) {
		case *tg.Chat:
			ent.chats[c.ID] = c
		case *tg.Channel:
			ent.channels[c.ID] = c
		}
	}

	return ent
}

func (e entities) convertMessage(mc tg.MessageClass) *transport.Message {
	switch m := mc.(type) {
	case *tg.Message:
		out := &transport.Message{
			ID:       m.ID,
			ChatID:   peerID(m.PeerID),
			Text:     m.Message,
			Date:     time.Unix(int64(m.Date), 0).UTC(),
			Outgoing: m.Out,
		}
		if m.FromID != nil {
			if p, ok := m.FromID.(*tg.PeerUser); ok {
				if u, found := e.users[p.UserID]; found {
					out.From = convertUser(u)
				} else {
					out.From = &transport.User{ID: p.UserID}
				}
			}
		}
		return out

	case *tg.MessageService:
		return &transport.Message{
			ID:      m.ID,
			ChatID:  peerID(m.PeerID),
			Date:    time.Unix(int64(m.Date), 0).UTC(),
			Service: true,
		}
	}

	return nil
}

func (e entities) chatForPeer(peer tg.PeerClass) transport.Chat {
	switch p := peer.(type) {
	case *tg.PeerUser:
		chat := transport.Chat{ID: p.UserID, Type: "private"}
		if u, ok := e.users[p.UserID]; ok {
			chat.Title = displayName(u)
		}
		return chat
	case *tg.PeerChat:
		chat := transport.Chat{ID: p.ChatID, Type: "group"}
		if c, ok := e.chats[p.ChatID]; ok {
			chat.Title = c.Title
		}
		return chat
	case *tg.PeerChannel:
		chat := transport.Chat{ID: p.ChannelID, Type: "channel"}
		if c, ok := e.channels[p.ChannelID]; ok {
			chat.Title = c.Title
		}
		return chat
	}
	return transport.Chat{}
}

func (e entities) usernameForPeer(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		if u, ok := e.users[p.UserID]; ok {
			return u.Username
		}
	case *tg.PeerChannel:
		if c, ok := e.channels[p.ChannelID]; ok {
			return c.Username
		}
	}
	return ""
}

func (e entities) inputPeerFor(peer tg.PeerClass) tg.InputPeerClass {
	switch p := peer.(type) {
	case *tg.PeerUser:
		if u, ok := e.users[p.UserID]; ok {
			return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		if c, ok := e.channels[p.ChannelID]; ok {
			return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
		}
	}
	return nil
}

func (e entities) inputPeerByID(id int64) tg.InputPeerClass {
	if u, ok := e.users[id]; ok {
		return &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
	}
	if _, ok := e.chats[id]; ok {
		return &tg.InputPeerChat{ChatID: id}
	}
	if c, ok := e.channels[id]; ok {
		return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
	}
	return nil
}

func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	}
	return 0
}

func convertUser(u *tg.User) *transport.User {
	return &transport.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
		Premium:   u.Premium,
	}
}

func displayName(u *tg.User) string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
