// Package usagelog records token spend per turn, both under the channel's
// message and under the user's audit trail.
package usagelog

import (
	"context"
	"fmt"

	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

type Service struct {
	store domain.DocumentStore
}

// New builds the service. A nil store disables recording, which local runs
// use.
func New(store domain.DocumentStore) *Service {
	return &Service{store: store}
}

// Record writes the spend entry for one turn. Failures are logged, never
// returned: accounting must not break the conversation.
func (s *Service) Record(ctx context.Context, userID domain.UserID, channelID domain.ChannelID, messageID domain.MessageID, usage domain.Usage, mode domain.ChatMode) {
	if s.store == nil || messageID == "" {
		return
	}
	log := observability.LoggerFromContext(ctx)

	entry := map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"model":             usage.Model,
		"chat_mode":         string(mode),
		"created_at":        s.store.ServerTimestamp(),
	}

	channelPath := fmt.Sprintf("channels/%s/messages", channelID)
	if err := s.store.SetDocument(ctx, channelPath, string(messageID), entry, true); err != nil {
		log.Error("channel spend log write failed",
			"channel_id", channelID, "message_id", messageID, "error", err)
	}

	userPath := fmt.Sprintf("users/%s/spend_logs", userID)
	if err := s.store.SetDocument(ctx, userPath, string(messageID), entry, true); err != nil {
		log.Error("user spend log write failed",
			"user_id", userID, "message_id", messageID, "error", err)
	}
}
