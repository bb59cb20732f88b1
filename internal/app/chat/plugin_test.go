package chat_test

import (
	"context"
	"testing"

	"github.com/sugarworks/sugar-agent/internal/adapters/llm"
	"github.com/sugarworks/sugar-agent/internal/app/chat"
	"github.com/sugarworks/sugar-agent/internal/app/usagelog"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

func newPlugin(t *testing.T) (*chat.Plugin, *fixture) {
	t.Helper()
	f := newFixture(t, llm.NewMockClient())
	usage := usagelog.New(f.store)
	p := chat.NewPlugin(f.orchestrator, f.fetcher, f.cache, f.store, f.transport, usage, "ai-")
	return p, f
}

func messageEvent(messageID, sender string) map[string]any {
	return map[string]any{
		"type":       "message.new",
		"channel_id": "chan-1",
		"members": []any{
			map[string]any{"user_id": "user-1"},
			map[string]any{"user_id": "ai-luna"},
		},
		"message": map[string]any{
			"id":   messageID,
			"text": "hi there",
			"user": map[string]any{"id": sender},
		},
	}
}

func TestMessageEventDeliversAReply(t *testing.T) {
	p, f := newPlugin(t)

	out, err := p.Handle(context.Background(), "message.new", messageEvent("m1", "user-1"))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if out == nil {
		t.Fatalf("expected a result payload")
	}

	sent := f.transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one delivered message, got %d", len(sent))
	}
	if sent[0].SenderID != "ai-luna" || sent[0].Text == "" {
		t.Fatalf("unexpected delivery: %+v", sent[0])
	}

	// Spend recorded under the channel's message and the user's trail.
	if _, err := f.store.GetDocument(context.Background(), "channels/chan-1/messages", "m1"); err != nil {
		t.Fatalf("expected a channel spend log: %v", err)
	}
	if _, err := f.store.GetDocument(context.Background(), "users/user-1/spend_logs", "m1"); err != nil {
		t.Fatalf("expected a user spend log: %v", err)
	}
}

func TestChatModeFieldSelectsTheMode(t *testing.T) {
	p, f := newPlugin(t)

	event := messageEvent("m1", "user-1")
	msg := event["message"].(map[string]any)
	msg["chatMode"] = "text"
	msg["responseLength"] = "short"

	if _, err := p.Handle(context.Background(), "message.new", event); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	sent := f.transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sent))
	}
	// The mock answers text-shaped turns with a plain single message.
	if sent[0].Text != "Hey, I was just thinking about you." {
		t.Fatalf("expected the text-mode reply, got %q", sent[0].Text)
	}
}

func TestReplySettlesExactlyOnceViaEcho(t *testing.T) {
	p, f := newPlugin(t)

	if _, err := p.Handle(context.Background(), "message.new", messageEvent("m1", "user-1")); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	sent := f.transport.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(sent))
	}

	// The chat service echoes the delivered reply back through the webhook.
	echo := messageEvent("m2", "ai-luna")
	echo["message"].(map[string]any)["text"] = sent[0].Text
	if _, err := p.Handle(context.Background(), "message.new", echo); err != nil {
		t.Fatalf("echo failed: %v", err)
	}

	w := f.cache.Window("user-1", "chan-1")
	if w == nil {
		t.Fatalf("expected a live window")
	}
	history, current := w.Snapshot()
	if current != "" {
		t.Fatalf("expected the exchange closed, got pending %q", current)
	}
	if len(history) != 2 {
		t.Fatalf("expected exactly the user turn and the reply, got %+v", history)
	}
	replies := 0
	for _, turn := range history {
		if turn.Role == domain.RoleAssistant && turn.Content == sent[0].Text {
			replies++
		}
	}
	if replies != 1 {
		t.Fatalf("expected the reply recorded once, found %d copies", replies)
	}
}

func TestDuplicateDeliveryIsAnsweredOnce(t *testing.T) {
	p, f := newPlugin(t)

	if _, err := p.Handle(context.Background(), "message.new", messageEvent("m1", "user-1")); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if _, err := p.Handle(context.Background(), "message.new", messageEvent("m1", "user-1")); err != nil {
		t.Fatalf("second delivery failed: %v", err)
	}

	if sent := f.transport.Sent(); len(sent) != 1 {
		t.Fatalf("expected one reply for a duplicated webhook, got %d", len(sent))
	}
}

func TestDistinctMessagesBothGetReplies(t *testing.T) {
	p, f := newPlugin(t)

	p.Handle(context.Background(), "message.new", messageEvent("m1", "user-1"))
	p.Handle(context.Background(), "message.new", messageEvent("m2", "user-1"))

	if sent := f.transport.Sent(); len(sent) != 2 {
		t.Fatalf("expected two replies, got %d", len(sent))
	}
}

func TestOwnEchoSettlesWithoutATurn(t *testing.T) {
	p, f := newPlugin(t)

	if _, err := p.Handle(context.Background(), "message.new", messageEvent("m9", "ai-luna")); err != nil {
		t.Fatalf("echo handling failed: %v", err)
	}

	if sent := f.transport.Sent(); len(sent) != 0 {
		t.Fatalf("an echo must not trigger a reply, got %d", len(sent))
	}

	w := f.cache.Window("user-1", "chan-1")
	if w == nil {
		t.Fatalf("expected the echo settled into the window")
	}
	history, _ := w.Snapshot()
	if len(history) == 0 {
		t.Fatalf("expected the echoed turn in the history")
	}
}

func TestChannelCreatedSeedsState(t *testing.T) {
	p, f := newPlugin(t)

	event := map[string]any{
		"type":       "channel.created",
		"channel_id": "chan-7",
		"locale":     "en",
		"members": []any{
			map[string]any{"user_id": "user-1"},
			map[string]any{"user_id": "ai-luna"},
		},
	}
	if _, err := p.Handle(context.Background(), "channel.created", event); err != nil {
		t.Fatalf("channel.created failed: %v", err)
	}

	doc, err := f.store.GetDocument(context.Background(), "channels", "chan-7")
	if err != nil {
		t.Fatalf("expected a seeded channel document: %v", err)
	}
	meta, _ := doc["meta_data"].(map[string]any)
	if meta["current_level"] != "Stranger" || meta["lock_level"] != 1 {
		t.Fatalf("unexpected initial meta: %+v", meta)
	}
}

func TestCreateCharacterUpsertsBotIdentity(t *testing.T) {
	p, f := newPlugin(t)

	event := map[string]any{
		"type":         "create_character",
		"character_id": "luna",
		"name":         "Luna",
	}
	if _, err := p.Handle(context.Background(), "create_character", event); err != nil {
		t.Fatalf("create_character failed: %v", err)
	}

	if name := f.transport.Bots()["ai-luna"]; name != "Luna" {
		t.Fatalf("expected the prefixed bot identity, got %q", name)
	}
}
