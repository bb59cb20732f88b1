package progression_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sugarworks/sugar-agent/internal/adapters/storage/memory"
	"github.com/sugarworks/sugar-agent/internal/app/progression"
	"github.com/sugarworks/sugar-agent/internal/domain"
)

func ladder() domain.Ladder {
	return domain.Ladder{
		{Intimacy: 0, Title: "Stranger"},
		{Intimacy: 100, Title: "Friend", HasCard: true},
		{Intimacy: 300, Title: "Partner", HasCard: true},
	}
}

func TestTierForPicksHighestReachedThreshold(t *testing.T) {
	cases := []struct {
		total int
		idx   int
		title string
	}{
		{0, 1, "Stranger"},
		{99, 1, "Stranger"},
		{100, 2, "Friend"},
		{299, 2, "Friend"},
		{300, 3, "Partner"},
		{9999, 3, "Partner"},
	}
	for _, tc := range cases {
		idx, lvl := progression.TierFor(ladder(), tc.total)
		if idx != tc.idx || lvl.Title != tc.title {
			t.Fatalf("total %d: expected (%d, %s), got (%d, %s)",
				tc.total, tc.idx, tc.title, idx, lvl.Title)
		}
	}
}

func TestTierForBelowEveryThreshold(t *testing.T) {
	l := domain.Ladder{{Intimacy: 50, Title: "First"}}
	idx, lvl := progression.TierFor(l, 10)
	if idx != 0 || lvl.Title != "" {
		t.Fatalf("expected the below-ladder sentinel, got (%d, %s)", idx, lvl.Title)
	}
}

func TestTierForEqualThresholdsResolveToLaterEntry(t *testing.T) {
	l := domain.Ladder{
		{Intimacy: 0, Title: "A"},
		{Intimacy: 100, Title: "B"},
		{Intimacy: 100, Title: "C"},
	}
	idx, lvl := progression.TierFor(l, 100)
	if idx != 3 || lvl.Title != "C" {
		t.Fatalf("expected the later of two equal tiers, got (%d, %s)", idx, lvl.Title)
	}
}

func TestNextTierForTopsOutAtTheHighestTier(t *testing.T) {
	_, next := progression.NextTierFor(ladder(), 500)
	if next.Title != "Partner" {
		t.Fatalf("expected the top tier as next, got %s", next.Title)
	}
}

func TestPercentToNext(t *testing.T) {
	l := ladder()
	cases := []struct {
		total int
		want  int
	}{
		{0, 0},
		{50, 50},
		{100, 0},
		{200, 50},
		{300, 100},
		{500, 100},
	}
	for _, tc := range cases {
		if got := progression.PercentToNext(l, tc.total); got != tc.want {
			t.Fatalf("total %d: expected %d%%, got %d%%", tc.total, tc.want, got)
		}
	}
}

func TestPercentToNextEmptyLadder(t *testing.T) {
	if got := progression.PercentToNext(nil, 42); got != 100 {
		t.Fatalf("expected 100%% on an empty ladder, got %d%%", got)
	}
}

func TestApplyDeltaAdvancesAndUnlocksCard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := progression.NewEngine(store)

	state := domain.NewChannelState()
	state.Meta.TotalIntimacy = 90

	meta := engine.ApplyDelta(ctx, "user-1", "char-1", state, ladder(), 15)

	if meta.TotalIntimacy != 105 || meta.Intimacy != 15 {
		t.Fatalf("unexpected totals: %+v", meta)
	}
	if meta.CurrentLevel != "Friend" || meta.LockLevel != 2 {
		t.Fatalf("expected the second tier unlocked, got %+v", meta)
	}

	doc, err := store.GetDocument(ctx, "user_card_collections", "user-1")
	if err != nil {
		t.Fatalf("expected a card collection document: %v", err)
	}
	cards, _ := doc["collectedCardIds"].([]any)
	if len(cards) != 1 || cards[0] != "char-1-card-2" {
		t.Fatalf("expected exactly the tier-2 card, got %v", cards)
	}
}

func TestApplyDeltaConcurrentUnlockYieldsOneCard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := progression.NewEngine(store)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := domain.NewChannelState()
			state.Meta.TotalIntimacy = 95
			engine.ApplyDelta(ctx, "user-1", "char-1", state, ladder(), 10)
		}()
	}
	wg.Wait()

	doc, err := store.GetDocument(ctx, "user_card_collections", "user-1")
	if err != nil {
		t.Fatalf("expected a card collection document: %v", err)
	}
	cards, _ := doc["collectedCardIds"].([]any)
	if len(cards) != 1 {
		t.Fatalf("expected one card despite concurrent unlocks, got %v", cards)
	}
}

func TestApplyDeltaNegativeNeverLowersLock(t *testing.T) {
	ctx := context.Background()
	engine := progression.NewEngine(memory.NewStore())

	state := domain.NewChannelState()
	state.Meta.TotalIntimacy = 150
	state.Meta.LockLevel = 2

	meta := engine.ApplyDelta(ctx, "user-1", "char-1", state, ladder(), -60)

	if meta.TotalIntimacy != 90 {
		t.Fatalf("expected 90, got %d", meta.TotalIntimacy)
	}
	if meta.CurrentLevel != "Stranger" {
		t.Fatalf("expected the title to fall back, got %s", meta.CurrentLevel)
	}
	if meta.LockLevel != 2 {
		t.Fatalf("expected the lock to hold at 2, got %d", meta.LockLevel)
	}
}
