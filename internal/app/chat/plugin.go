package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/app/usagelog"
	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

// Plugin is the webhook handler for the chat service: it reacts to new
// messages, channel creation and character creation.
type Plugin struct {
	orchestrator *Orchestrator
	fetcher      *contextfetch.Fetcher
	cache        *cache.SessionCache
	store        domain.DocumentStore
	transport    domain.ChatTransport
	usage        *usagelog.Service
	botPrefix    string
}

func NewPlugin(o *Orchestrator, fetcher *contextfetch.Fetcher, c *cache.SessionCache, store domain.DocumentStore, transport domain.ChatTransport, usage *usagelog.Service, botPrefix string) *Plugin {
	if botPrefix == "" {
		botPrefix = "ai-"
	}
	return &Plugin{
		orchestrator: o,
		fetcher:      fetcher,
		cache:        c,
		store:        store,
		transport:    transport,
		usage:        usage,
		botPrefix:    botPrefix,
	}
}

func (p *Plugin) Name() string { return "stream_chat" }

func (p *Plugin) Handle(ctx context.Context, eventType string, data map[string]any) (any, error) {
	switch eventType {
	case "message.new":
		return p.handleMessage(ctx, data)
	case "channel.created":
		return p.handleChannelCreated(ctx, data)
	case "create_character":
		return p.handleCreateCharacter(ctx, data)
	default:
		return nil, nil
	}
}

func (p *Plugin) handleMessage(ctx context.Context, data map[string]any) (any, error) {
	ev, err := parseMessageEvent(data, p.botPrefix)
	if err != nil {
		return nil, err
	}
	ctx = observability.WithChannelID(ctx, string(ev.ChannelID))
	log := observability.LoggerFromContext(ctx)

	// Our own replies come back through the webhook too. The echo is the
	// single settling path: it closes the pending exchange in the window,
	// covers narration sent by other services, and never triggers a turn.
	if strings.HasPrefix(ev.SenderID, p.botPrefix) {
		if userID := userFromMembers(data, p.botPrefix); userID != "" {
			p.fetcher.RecordAssistantTurn(domain.UserID(userID), ev.ChannelID, ev.Text)
		}
		return map[string]any{"skipped": "ai message"}, nil
	}

	userID := domain.UserID(ev.SenderID)
	if ev.MessageID != "" && !p.cache.MarkProcessed(userID, ev.ChannelID, ev.MessageID) {
		log.Info("duplicate delivery ignored",
			"channel_id", ev.ChannelID, "message_id", ev.MessageID)
		return map[string]any{"skipped": "duplicate"}, nil
	}

	sender := p.botPrefix + string(ev.CharacterID)
	if err := p.transport.SendEvent(ctx, string(ev.ChannelID), "typing.start", sender); err != nil {
		log.Warn("typing start failed", "channel_id", ev.ChannelID, "error", err)
	}

	result := p.orchestrator.GenerateResponse(ctx, TurnInput{
		UserID:      userID,
		ChannelID:   ev.ChannelID,
		CharacterID: ev.CharacterID,
		MessageID:   ev.MessageID,
		Text:        ev.Text,
		Mode:        ev.Mode,
		ReplyLength: ev.ReplyLength,
		Locale:      ev.Locale,
	})

	if err := p.transport.SendMessage(ctx, string(ev.ChannelID), sender, result.Text, result.Data); err != nil {
		return nil, fmt.Errorf("delivering reply to channel %s: %w", ev.ChannelID, err)
	}

	p.usage.Record(ctx, userID, ev.ChannelID, ev.MessageID, result.Usage, ev.Mode)
	return map[string]any{"message": result.Text}, nil
}

func (p *Plugin) handleChannelCreated(ctx context.Context, data map[string]any) (any, error) {
	channelID := channelFromEvent(data)
	if channelID == "" {
		return nil, fmt.Errorf("channel.created event carries no channel id")
	}
	characterID := characterFromMembers(data, p.botPrefix)
	if characterID == "" {
		return nil, fmt.Errorf("channel %s has no character member", channelID)
	}
	locale := str(data, "locale")

	err := CreateChannel(ctx, p.fetcher, p.store,
		domain.ChannelID(channelID), domain.CharacterID(characterID), locale)
	if err != nil {
		return nil, err
	}
	return map[string]any{"channel_id": channelID}, nil
}

func (p *Plugin) handleCreateCharacter(ctx context.Context, data map[string]any) (any, error) {
	id := str(data, "character_id")
	if id == "" {
		id = str(data, "id")
	}
	if id == "" {
		return nil, fmt.Errorf("create_character event carries no id")
	}
	name := str(data, "name")
	if name == "" {
		name = id
	}
	image := str(data, "image")

	botID := p.botPrefix + id
	if err := p.transport.UpsertBotUser(ctx, botID, name, image); err != nil {
		return nil, fmt.Errorf("creating chat identity for character %s: %w", id, err)
	}
	return map[string]any{"user_id": botID}, nil
}

// userFromMembers finds the human participant among the channel members.
func userFromMembers(data map[string]any, botPrefix string) string {
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
		if id != "" && !strings.HasPrefix(id, botPrefix) {
			return id
		}
	}
	return ""
}
