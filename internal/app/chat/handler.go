package chat

import (
	"fmt"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// messageEvent is the parsed form of a message.new webhook payload.
type messageEvent struct {
	ChannelID   domain.ChannelID
	CharacterID domain.CharacterID
	SenderID    string
	MessageID   domain.MessageID
	Text        string
	Mode        domain.ChatMode
	ReplyLength string
	Locale      string
}

// parseMessageEvent extracts the fields a turn needs from the raw webhook
// payload. The channel id may arrive directly or packed as "type:id" in cid.
func parseMessageEvent(data map[string]any, botPrefix string) (*messageEvent, error) {
	channelID := str(data, "channel_id")
	if channelID == "" {
		if cid := str(data, "cid"); cid != "" {
			if _, id, ok := strings.Cut(cid, ":"); ok {
				channelID = id
			}
		}
	}
	if channelID == "" {
		return nil, fmt.Errorf("event carries no channel id")
	}

	msg, _ := data["message"].(map[string]any)
	if msg == nil {
		return nil, fmt.Errorf("event carries no message")
	}
	text := str(msg, "text")
	if text == "" {
		return nil, fmt.Errorf("event message is empty")
	}

	sender := ""
	if user, ok := msg["user"].(map[string]any); ok {
		sender = str(user, "id")
	}
	if sender == "" {
		sender = str(data, "user_id")
	}
	if sender == "" {
		return nil, fmt.Errorf("event carries no sender")
	}

	characterID := characterFromMembers(data, botPrefix)
	if characterID == "" && strings.HasPrefix(sender, botPrefix) {
		characterID = strings.TrimPrefix(sender, botPrefix)
	}
	if characterID == "" {
		return nil, fmt.Errorf("channel %s has no character member", channelID)
	}

	return &messageEvent{
		ChannelID:   domain.ChannelID(channelID),
		CharacterID: domain.CharacterID(characterID),
		SenderID:    sender,
		MessageID:   domain.MessageID(str(msg, "id")),
		Text:        text,
		Mode:        domain.ChatMode(firstStr(msg, "chatMode", "chat_mode")),
		ReplyLength: firstStr(msg, "responseLength", "reply_length"),
		Locale:      str(msg, "locale"),
	}, nil
}

// firstStr returns the first non-empty string among the given keys. The chat
// service sends camelCase field names; the snake aliases cover older senders.
func firstStr(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := str(m, key); s != "" {
			return s
		}
	}
	return ""
}

// characterFromMembers finds the AI participant among the channel members.
func characterFromMembers(data map[string]any, botPrefix string) string {
	members, _ := data["members"].([]any)
	for _, item := range members {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := str(m, "user_id")
		if id == "" {
			if user, ok := m["user"].(map[string]any); ok {
				id = str(user, "id")
			}
		}
		if strings.HasPrefix(id, botPrefix) {
			return strings.TrimPrefix(id, botPrefix)
		}
	}
	return ""
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
