// Package progression maps accumulated intimacy onto a character's tier
// ladder and records tier unlocks, including the one-time card artifact a
// tier may grant.
package progression

import (
	"context"
	"fmt"
	"math"

	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

const cardCollection = "user_card_collections"
const cardField = "collectedCardIds"

// TierFor returns the 1-based index and level of the highest tier whose
// threshold does not exceed total. Equal thresholds resolve to the later
// entry. A total below every threshold yields index 0 and a zero Level.
func TierFor(ladder domain.Ladder, total int) (int, domain.Level) {
	idx := 0
	for i, lvl := range ladder {
		if lvl.Intimacy <= total {
			idx = i + 1
		}
	}
	if idx == 0 {
		return 0, domain.Level{}
	}
	return idx, ladder[idx-1]
}

// NextTierFor returns the first tier whose threshold exceeds total, or the
// highest tier when none does.
func NextTierFor(ladder domain.Ladder, total int) (int, domain.Level) {
	for i, lvl := range ladder {
		if lvl.Intimacy > total {
			return i + 1, lvl
		}
	}
	if n := len(ladder); n > 0 {
		return n, ladder[n-1]
	}
	return 0, domain.Level{}
}

// PercentToNext reports progress from the current tier's threshold toward
// the next one, clamped to [0,100]. At or past the top of the ladder it
// reports 100.
func PercentToNext(ladder domain.Ladder, total int) int {
	if len(ladder) == 0 {
		return 100
	}
	_, cur := TierFor(ladder, total)
	_, next := NextTierFor(ladder, total)
	if next.Intimacy <= cur.Intimacy {
		return 100
	}
	pct := float64(total-cur.Intimacy) / float64(next.Intimacy-cur.Intimacy) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(math.Round(pct))
}

// Engine applies intimacy deltas and persists unlock artifacts.
type Engine struct {
	store domain.DocumentStore
}

func NewEngine(store domain.DocumentStore) *Engine {
	return &Engine{store: store}
}

// ApplyDelta adds delta to the channel's total and recomputes the derived
// meta block. When the new tier index exceeds the lock level and the tier
// grants a card, the card id is recorded with set semantics: crossing the
// same boundary twice, even concurrently, yields one artifact. A failed
// card write is logged and does not block the meta update.
func (e *Engine) ApplyDelta(ctx context.Context, userID domain.UserID, characterID domain.CharacterID, state *domain.ChannelState, ladder domain.Ladder, delta int) domain.ChannelMeta {
	log := observability.LoggerFromContext(ctx)

	meta := state.Meta
	meta.Intimacy = delta
	meta.TotalIntimacy += delta

	idx, cur := TierFor(ladder, meta.TotalIntimacy)
	_, next := NextTierFor(ladder, meta.TotalIntimacy)
	meta.CurrentLevel = cur.Title
	meta.NextLevel = next.Title
	meta.IntimacyPercentage = PercentToNext(ladder, meta.TotalIntimacy)

	if idx > meta.LockLevel {
		if cur.HasCard {
			cardID := fmt.Sprintf("%s-card-%d", characterID, idx)
			if err := e.store.AppendUnique(ctx, cardCollection, string(userID), cardField, cardID); err != nil {
				log.Error("card unlock write failed",
					"user_id", userID, "card_id", cardID, "error", err)
			} else {
				log.Info("card unlocked", "user_id", userID, "card_id", cardID)
			}
		}
		meta.LockLevel = idx
	}

	state.Meta = meta
	return meta
}
