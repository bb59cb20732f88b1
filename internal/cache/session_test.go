package cache_test

import (
	"testing"
	"time"

	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

func TestWindowKeepsOnlyRecentTurns(t *testing.T) {
	c := cache.New(cache.Options{WindowLimit: 3})

	w := c.EnsureWindow("user-1", "chan-1")
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		w.Append(domain.Turn{Role: domain.RoleUser, Content: text})
	}

	history, _ := w.Snapshot()
	if len(history) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(history))
	}
	if history[0].Content != "three" || history[2].Content != "five" {
		t.Fatalf("expected oldest-first trim, got %+v", history)
	}
}

func TestWindowCurrentMessageStaysOutOfHistory(t *testing.T) {
	c := cache.New(cache.Options{})

	w := c.EnsureWindow("user-1", "chan-1")
	w.SetHistory([]domain.Turn{{Role: domain.RoleAssistant, Content: "hi"}})
	w.SetCurrent("hello there")

	history, current := w.Snapshot()
	if len(history) != 1 {
		t.Fatalf("expected 1 settled turn, got %d", len(history))
	}
	if current != "hello there" {
		t.Fatalf("expected in-flight message, got %q", current)
	}
}

func TestSessionEvictionAtCapacity(t *testing.T) {
	c := cache.New(cache.Options{SessionSize: 2})

	c.EnsureWindow("u1", "c1")
	c.EnsureWindow("u2", "c2")
	c.EnsureWindow("u3", "c3")

	if c.HasWindow("u1", "c1") {
		t.Fatalf("expected the oldest window to be evicted")
	}
	if !c.HasWindow("u2", "c2") || !c.HasWindow("u3", "c3") {
		t.Fatalf("expected the two newest windows to survive")
	}
}

func TestExpiredEntryBehavesLikeAMiss(t *testing.T) {
	c := cache.New(cache.Options{SessionTTL: 30 * time.Millisecond})

	c.EnsureWindow("u1", "c1")
	time.Sleep(100 * time.Millisecond)

	if c.Window("u1", "c1") != nil {
		t.Fatalf("expected the expired window to read as absent")
	}
}

func TestMarkProcessedWinsOnlyOnce(t *testing.T) {
	c := cache.New(cache.Options{})

	if !c.MarkProcessed("u1", "c1", "m1") {
		t.Fatalf("first delivery should win")
	}
	if c.MarkProcessed("u1", "c1", "m1") {
		t.Fatalf("second delivery should lose")
	}
	if !c.MarkProcessed("u1", "c1", "m2") {
		t.Fatalf("a different message should win")
	}
}

func TestMarkProcessedForgetsAfterTTL(t *testing.T) {
	c := cache.New(cache.Options{DedupTTL: 30 * time.Millisecond})

	c.MarkProcessed("u1", "c1", "m1")
	time.Sleep(100 * time.Millisecond)

	if !c.MarkProcessed("u1", "c1", "m1") {
		t.Fatalf("a lapsed dedup entry should allow reprocessing")
	}
}

func TestSettleReplyClosesTheExchangeOnce(t *testing.T) {
	c := cache.New(cache.Options{})

	w := c.EnsureWindow("u1", "c1")
	w.SetCurrent("hello")
	w.SettleReply("hi yourself")

	history, current := w.Snapshot()
	if current != "" {
		t.Fatalf("expected the pending message consumed, got %q", current)
	}
	if len(history) != 2 || history[0].Content != "hello" || history[1].Content != "hi yourself" {
		t.Fatalf("expected the pair settled in order, got %+v", history)
	}

	// A reply with nothing pending settles alone (narration case).
	w.SettleReply("and another thing")
	history, _ = w.Snapshot()
	if len(history) != 3 || history[2].Role != domain.RoleAssistant {
		t.Fatalf("expected a lone assistant turn appended, got %+v", history)
	}
}

func TestPerEntryRemovalPerTier(t *testing.T) {
	c := cache.New(cache.Options{})

	c.EnsureWindow("u1", "c1")
	c.ClearWindow("u1", "c1")
	if c.HasWindow("u1", "c1") {
		t.Fatalf("expected the window removed")
	}

	c.PutChannelState("c1", domain.NewChannelState())
	c.RemoveChannelState("c1")
	if c.ChannelState("c1") != nil {
		t.Fatalf("expected the channel state removed")
	}

	c.PutCharacter("luna:en", &domain.Character{ID: "luna", Locale: "en"})
	c.PutCharacter("luna:fr", &domain.Character{ID: "luna", Locale: "fr"})
	c.PutCharacter("mira:en", &domain.Character{ID: "mira", Locale: "en"})
	c.RemoveCharacter("luna")
	if c.Character("luna:en") != nil || c.Character("luna:fr") != nil {
		t.Fatalf("expected every locale variant of the character removed")
	}
	if c.Character("mira:en") == nil {
		t.Fatalf("expected other characters untouched")
	}

	c.MarkProcessed("u1", "c1", "m1")
	c.ForgetProcessed("u1", "c1", "m1")
	if !c.MarkProcessed("u1", "c1", "m1") {
		t.Fatalf("expected the forgotten message to be processable again")
	}
}

func TestPurgeEmptiesEveryTier(t *testing.T) {
	c := cache.New(cache.Options{})

	c.EnsureWindow("u1", "c1")
	c.PutChannelState("c1", domain.NewChannelState())
	c.PutCharacter("char-1:en", &domain.Character{ID: "char-1", Locale: "en"})
	c.MarkProcessed("u1", "c1", "m1")

	c.Purge()

	for _, s := range c.Report() {
		if s.Len != 0 {
			t.Fatalf("expected %s to be empty after purge, got %d", s.Name, s.Len)
		}
	}
}

func TestReportCoversAllTiers(t *testing.T) {
	c := cache.New(cache.Options{SessionSize: 10})
	c.EnsureWindow("u1", "c1")

	stats := c.Report()
	if len(stats) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(stats))
	}
	if stats[0].Name != "messages" || stats[0].Len != 1 || stats[0].Capacity != 10 {
		t.Fatalf("unexpected messages tier stats: %+v", stats[0])
	}
}
