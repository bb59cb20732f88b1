package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/app/progression"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

// CreateChannel persists the initial state for a fresh channel: an empty
// persona and a meta block seeded from the bottom of the character's ladder.
func CreateChannel(ctx context.Context, fetcher *contextfetch.Fetcher, store domain.DocumentStore, channelID domain.ChannelID, characterID domain.CharacterID, locale string) error {
	character := fetcher.Character(ctx, characterID, locale)

	idx, cur := progression.TierFor(character.Ladder, 0)
	_, next := progression.NextTierFor(character.Ladder, 0)
	if idx < 1 {
		idx = 1
	}

	meta := domain.ChannelMeta{
		TotalIntimacy:      0,
		Intimacy:           0,
		IntimacyPercentage: progression.PercentToNext(character.Ladder, 0),
		CurrentLevel:       cur.Title,
		NextLevel:          next.Title,
		LockLevel:          idx,
	}

	doc := map[string]any{
		"character_id": string(characterID),
		"user_persona": map[string]any{},
		"meta_data":    meta.Document(),
		"created_at":   store.ServerTimestamp(),
	}
	if err := fetcher.CreateChannelState(ctx, channelID, doc); err != nil {
		return fmt.Errorf("seeding channel %s: %w", channelID, err)
	}
	return nil
}

// channelFromEvent pulls the channel id out of a channel-scoped event.
func channelFromEvent(data map[string]any) string {
	if id := str(data, "channel_id"); id != "" {
		return id
	}
	if channel, ok := data["channel"].(map[string]any); ok {
		if id := str(channel, "id"); id != "" {
			return id
		}
	}
	if cid := str(data, "cid"); cid != "" {
		if _, id, ok := strings.Cut(cid, ":"); ok {
			return id
		}
	}
	return ""
}
