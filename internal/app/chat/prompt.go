package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/app/progression"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

// buildPrimaryPrompt assembles the turn's message list: one system turn
// from the character sheet and the channel state, then the history, then
// the in-flight user message.
func buildPrimaryPrompt(character *domain.Character, state *domain.ChannelState, history []domain.Turn, current string, cfg ModeConfig, replyLength string, lockedTier int) []domain.Turn {
	p := character.Prompt

	var b strings.Builder
	section := func(label, text string) {
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if label != "" {
			b.WriteString(label)
			b.WriteString("\n")
		}
		b.WriteString(text)
	}

	section("", p.General)
	section("", p.GeneralNSFW)
	section("# Identity", p.BasicIdentity)
	section("# Appearance", p.Appearance)
	section("", p.AppearanceNSFW)
	section("# Mantra", p.Mantra)
	section("# Likes and dislikes", p.LikesDislikes)
	section("# Family background", p.FamilyBackground)
	section("# Important roles", p.ImportantRoles)
	section("# Specialty", p.Specialty)
	section("", p.Others)

	// The scene follows the unlocked tier; tone and relationship follow the
	// raw total, which may sit above the lock.
	scene := character.Ladder.Tier(lockedTier)
	section("# Scene", scene.ScenePrompt)
	_, reached := progression.TierFor(character.Ladder, state.Meta.TotalIntimacy)
	section("# Tone", reached.ToneStyle)
	section("# Relationship", reached.Relationship)

	if len(state.UserPersona) > 0 {
		persona, err := json.Marshal(state.UserPersona)
		if err == nil {
			section("# About the user", string(persona))
		}
	}

	if format := p.OutputFormat[cfg.Shape]; format != "" {
		section("# Output format", format)
	}
	if replyLength != "" {
		if hint := p.ReplyLength[replyLength]; hint != "" {
			section("# Reply length", hint)
		}
	}

	turns := make([]domain.Turn, 0, len(history)+2)
	turns = append(turns, domain.Turn{Role: domain.RoleSystem, Content: b.String()})
	turns = append(turns, history...)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: current})
	return turns
}

// buildScoringPrompt asks for an intimacy delta for the exchange. Only the
// last assistant turn and the in-flight message go in; the full history
// would drown the rule.
func buildScoringPrompt(character *domain.Character, history []domain.Turn, current string) []domain.Turn {
	rule := character.Prompt.IntimacyRule
	if rule == "" {
		rule = "Score how much this message deepens the relationship."
	}

	system := fmt.Sprintf(`%s

Rate the user's message with an integer between -5 and 5. Zero is not
allowed: every message moves the relationship, however slightly. Respond
with JSON: {"intimacy": <integer>}`, rule)

	turns := []domain.Turn{{Role: domain.RoleSystem, Content: system}}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			turns = append(turns, history[i])
			break
		}
	}
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: current})
	return turns
}
