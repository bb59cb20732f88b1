package levels_test

import (
	"context"
	"testing"
	"time"

	chatadapter "github.com/sugarworks/sugar-agent/internal/adapters/chat"
	"github.com/sugarworks/sugar-agent/internal/adapters/llm"
	"github.com/sugarworks/sugar-agent/internal/adapters/storage/memory"
	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/app/levels"
	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

func newPlugin(t *testing.T) (*levels.Plugin, *chatadapter.MemoryTransport, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	transport := chatadapter.NewMemoryTransport()
	fetcher := contextfetch.New(cache.New(cache.Options{}), store, transport, "ai-", 10)

	doc := map[string]any{
		"default_locale": "en",
		"i18n": map[string]any{
			"en": map[string]any{
				"system_prompt": map[string]any{"generalPrompt": "You are Luna."},
				"levels": []any{
					map[string]any{"intimacy": float64(0), "title": "Stranger", "scenePrompt": "A chance meeting."},
					map[string]any{"intimacy": float64(100), "title": "Friend", "scenePrompt": "A warm evening."},
				},
			},
		},
	}
	if err := store.SetDocument(context.Background(), "Characters", "luna", doc, false); err != nil {
		t.Fatalf("seeding character: %v", err)
	}

	p := levels.NewPlugin(fetcher, llm.NewMockClient(), transport, "ai-", 5*time.Millisecond, 100*time.Millisecond)
	return p, transport, store
}

func TestLevelNotifySendsNarration(t *testing.T) {
	p, transport, store := newPlugin(t)

	event := map[string]any{
		"channel_id": "user1-ai-luna",
		"level":      float64(2),
		"locale":     "en",
	}
	out, err := p.Handle(context.Background(), "level.notify", event)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a result payload")
	}

	sent := transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one narration, got %d", len(sent))
	}
	if sent[0].SenderID != "ai-luna" || sent[0].Text == "" {
		t.Fatalf("unexpected narration: %+v", sent[0])
	}

	events := transport.Events()
	if len(events) == 0 || events[0].Type != "typing.start" {
		t.Fatalf("expected a typing indicator before the narration, got %+v", events)
	}

	// Narration never moves the progression state.
	if _, err := store.GetDocument(context.Background(), "channels", "user1-ai-luna"); err != domain.ErrNotFound {
		t.Fatalf("expected no channel write, got %v", err)
	}
}

func TestLevelNotifyIgnoresOtherEvents(t *testing.T) {
	p, transport, _ := newPlugin(t)

	out, err := p.Handle(context.Background(), "message.new", map[string]any{})
	if err != nil || out != nil {
		t.Fatalf("expected a silent skip, got %v / %v", out, err)
	}
	if len(transport.Sent()) != 0 {
		t.Fatalf("expected nothing sent")
	}
}

func TestLevelNotifyRejectsMalformedEvents(t *testing.T) {
	p, _, _ := newPlugin(t)

	if _, err := p.Handle(context.Background(), "level.notify", map[string]any{"level": float64(2)}); err == nil {
		t.Fatalf("expected an error without a channel id")
	}
	if _, err := p.Handle(context.Background(), "level.notify", map[string]any{"channel_id": "user1-ai-luna"}); err == nil {
		t.Fatalf("expected an error without a level")
	}
	if _, err := p.Handle(context.Background(), "level.notify", map[string]any{"channel_id": "plain", "level": float64(1)}); err == nil {
		t.Fatalf("expected an error when the channel encodes no character")
	}
}
