// Package levels announces tier changes: when a channel reaches a new tier,
// the character opens the scene with a short narration.
package levels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

// Plugin handles level.notify events. Narration never moves the
// progression state; it only announces it.
type Plugin struct {
	fetcher      *contextfetch.Fetcher
	llm          domain.InferenceClient
	transport    domain.ChatTransport
	botPrefix    string
	pollInterval time.Duration
	pollCeiling  time.Duration
}

func NewPlugin(fetcher *contextfetch.Fetcher, llm domain.InferenceClient, transport domain.ChatTransport, botPrefix string, pollInterval, pollCeiling time.Duration) *Plugin {
	if botPrefix == "" {
		botPrefix = "ai-"
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if pollCeiling <= 0 {
		pollCeiling = 3 * time.Minute
	}
	return &Plugin{
		fetcher:      fetcher,
		llm:          llm,
		transport:    transport,
		botPrefix:    botPrefix,
		pollInterval: pollInterval,
		pollCeiling:  pollCeiling,
	}
}

func (p *Plugin) Name() string { return "level" }

func (p *Plugin) Handle(ctx context.Context, eventType string, data map[string]any) (any, error) {
	if eventType != "level.notify" {
		return nil, nil
	}
	channelID, _ := data["channel_id"].(string)
	if channelID == "" {
		return nil, fmt.Errorf("level.notify event carries no channel id")
	}
	ctx = observability.WithChannelID(ctx, channelID)
	log := observability.LoggerFromContext(ctx)
	characterID := p.characterFromChannel(channelID)
	if characterID == "" {
		return nil, fmt.Errorf("channel %s encodes no character id", channelID)
	}
	tier := tierFromEvent(data)
	if tier < 1 {
		return nil, fmt.Errorf("level.notify event carries no level")
	}
	locale, _ := data["locale"].(string)

	sender := p.botPrefix + characterID
	if err := p.transport.SendEvent(ctx, channelID, "typing.start", sender); err != nil {
		log.Warn("typing start failed", "channel_id", channelID, "error", err)
	}

	character := p.fetcher.Character(ctx, domain.CharacterID(characterID), locale)
	if character.Empty() {
		return nil, fmt.Errorf("character %s is unavailable", characterID)
	}

	scene := character.Ladder.Tier(tier)
	requestID, err := p.llm.Submit(ctx, domain.InferenceRequest{
		Messages:       narrationPrompt(character, scene),
		Temperature:    0.9,
		TopP:           0.95,
		ResponseFormat: "story",
	})
	if err != nil {
		return nil, fmt.Errorf("submitting narration for channel %s: %w", channelID, err)
	}

	res := domain.AwaitResult(ctx, p.llm, requestID, p.pollCeiling, p.pollInterval)
	if res.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("narration for channel %s ended with status %s: %s",
			channelID, res.Status, res.Message)
	}

	text := narrationText(res)
	if text == "" {
		return nil, fmt.Errorf("narration for channel %s came back empty", channelID)
	}

	if err := p.transport.SendMessage(ctx, channelID, sender, text, nil); err != nil {
		return nil, fmt.Errorf("delivering narration to channel %s: %w", channelID, err)
	}
	return map[string]any{"message": text}, nil
}

// characterFromChannel recovers the character id embedded in the channel id.
func (p *Plugin) characterFromChannel(channelID string) string {
	idx := strings.Index(channelID, p.botPrefix)
	if idx < 0 {
		return ""
	}
	return channelID[idx+len(p.botPrefix):]
}

func tierFromEvent(data map[string]any) int {
	switch v := data["level"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func narrationPrompt(character *domain.Character, scene domain.Level) []domain.Turn {
	p := character.Prompt

	var b strings.Builder
	if p.General != "" {
		b.WriteString(p.General)
		b.WriteString("\n\n")
	}
	if p.BasicIdentity != "" {
		b.WriteString(p.BasicIdentity)
		b.WriteString("\n\n")
	}
	if scene.ScenePrompt != "" {
		b.WriteString("# Scene\n")
		b.WriteString(scene.ScenePrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("The relationship just reached a new stage")
	if scene.Title != "" {
		fmt.Fprintf(&b, ": %q", scene.Title)
	}
	b.WriteString(". Open the scene in character with a short narration that draws the user in. Do not mention levels or stages directly.")

	return []domain.Turn{
		{Role: domain.RoleSystem, Content: b.String()},
		{Role: domain.RoleUser, Content: "..."},
	}
}

func narrationText(res *domain.InferenceResult) string {
	if raw, ok := res.Output["dialogues"].([]any); ok {
		var parts []string
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if msg, _ := m["message"].(string); msg != "" {
				if mood, _ := m["action_mood"].(string); mood != "" {
					parts = append(parts, fmt.Sprintf("(*%s*)%s", mood, msg))
				} else {
					parts = append(parts, msg)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return res.Message
}
