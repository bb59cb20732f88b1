// Package chat orchestrates one conversational turn: context assembly,
// inference, progression and delivery.
package chat

import (
	"fmt"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// Response shapes the inference service can be asked for.
const (
	ShapeStory    = "story"
	ShapeText     = "text"
	ShapeIntimacy = "intimacy"
)

// apologyText goes out when a turn fails in a way no shape can express.
const apologyText = "I'm so sorry, I got distracted for a second. Could you say that again?"

// ModeConfig describes how one chat mode behaves.
type ModeConfig struct {
	Model          string // empty uses the backend default
	Shape          string
	SkipScoring    bool // no intimacy scoring call for this mode
	NonProgressing bool // scoring happens but the state never moves
}

var modeTable = map[domain.ChatMode]ModeConfig{
	domain.ModeStory:       {Shape: ShapeStory},
	domain.ModeText:        {Shape: ShapeText},
	domain.ModeStimulation: {Model: "grok-3", Shape: ShapeStory, SkipScoring: true},
	domain.ModeLevel:       {Shape: ShapeStory, NonProgressing: true},
}

// ResolveMode maps a mode onto its configuration; unknown modes fall back
// to story.
func ResolveMode(mode domain.ChatMode) ModeConfig {
	if cfg, ok := modeTable[mode]; ok {
		return cfg
	}
	return modeTable[domain.ModeStory]
}

// renderResult turns a completed inference into outgoing text plus
// shape-specific extras. Unrecognized payloads fall back to the apology.
func renderResult(res *domain.InferenceResult) (string, map[string]any) {
	switch res.ResponseFormat {
	case ShapeStory:
		if text := renderDialogues(res.Output); text != "" {
			return text, nil
		}
	case ShapeText:
		if res.Message != "" {
			return res.Message, nil
		}
	case "sticker":
		if res.Message != "" {
			ref, _ := res.Output["sticker"].(string)
			var data map[string]any
			if ref != "" {
				data = map[string]any{"sticker": ref}
			}
			return res.Message, data
		}
	}
	if res.Message != "" && res.Status == domain.StatusCompleted {
		return res.Message, nil
	}
	return apologyText, nil
}

// renderDialogues concatenates a dialogues payload into "(*mood*)message"
// lines.
func renderDialogues(output map[string]any) string {
	raw, _ := output["dialogues"].([]any)
	var b strings.Builder
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := m["message"].(string)
		if msg == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		if mood, _ := m["action_mood"].(string); mood != "" {
			fmt.Fprintf(&b, "(*%s*)", mood)
		}
		b.WriteString(msg)
	}
	return b.String()
}
