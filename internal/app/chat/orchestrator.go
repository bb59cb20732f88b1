package chat

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sugarworks/sugar-agent/internal/app/contextfetch"
	"github.com/sugarworks/sugar-agent/internal/app/progression"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

// TurnInput is one user message to answer.
type TurnInput struct {
	UserID      domain.UserID
	ChannelID   domain.ChannelID
	CharacterID domain.CharacterID
	MessageID   domain.MessageID
	Text        string
	Mode        domain.ChatMode
	ReplyLength string
	Locale      string
}

// TurnResult is the reply for one turn. Text is never empty: failures
// degrade to an apology rather than silence.
type TurnResult struct {
	Text  string
	Data  map[string]any // shape extras, e.g. a sticker reference
	Usage domain.Usage
}

// Options tune the orchestrator's timing.
type Options struct {
	PollInterval   time.Duration
	PollCeiling    time.Duration
	TypingInterval time.Duration
	BotPrefix      string
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.PollCeiling <= 0 {
		o.PollCeiling = 3 * time.Minute
	}
	if o.TypingInterval <= 0 {
		o.TypingInterval = 5 * time.Second
	}
	if o.BotPrefix == "" {
		o.BotPrefix = "ai-"
	}
	return o
}

// Orchestrator runs one turn end to end: context, inference, scoring,
// progression, and the conversational window bookkeeping.
type Orchestrator struct {
	fetcher   *contextfetch.Fetcher
	engine    *progression.Engine
	llm       domain.InferenceClient
	transport domain.ChatTransport
	opts      Options
}

func NewOrchestrator(fetcher *contextfetch.Fetcher, engine *progression.Engine, llm domain.InferenceClient, transport domain.ChatTransport, opts Options) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		engine:    engine,
		llm:       llm,
		transport: transport,
		opts:      opts.withDefaults(),
	}
}

// GenerateResponse answers one user message. It never returns an error and
// never panics out: anything unrecoverable becomes the apology text, because
// the user already sees a typing indicator and must get an answer.
func (o *Orchestrator) GenerateResponse(ctx context.Context, in TurnInput) (result TurnResult) {
	log := observability.LoggerFromContext(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("turn panicked", "channel_id", in.ChannelID, "panic", rec)
			result = TurnResult{Text: apologyText}
		}
	}()

	cfg := ResolveMode(in.Mode)

	character := o.fetcher.Character(ctx, in.CharacterID, in.Locale)
	if character.Empty() {
		log.Warn("character unavailable", "character_id", in.CharacterID)
	}

	state, err := o.fetcher.ChannelState(ctx, in.ChannelID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("channel state load failed, using defaults",
				"channel_id", in.ChannelID, "error", err)
		}
		state = domain.NewChannelState()
	}

	// Snapshot before the user turn settles so the prompt carries the
	// in-flight message exactly once.
	history, current := o.fetcher.Messages(ctx, in.UserID, in.ChannelID, in.Text)
	if current == "" {
		current = in.Text
	}

	primaryID, err := o.llm.Submit(ctx, domain.InferenceRequest{
		Model:          cfg.Model,
		Messages:       buildPrimaryPrompt(character, state, history, current, cfg, in.ReplyLength, state.Meta.LockLevel),
		Temperature:    0.9,
		TopP:           0.95,
		ResponseFormat: cfg.Shape,
	})
	if err != nil {
		log.Error("inference submit failed", "channel_id", in.ChannelID, "error", err)
		return TurnResult{Text: apologyText}
	}

	scoringID := ""
	if !cfg.SkipScoring && !cfg.NonProgressing {
		scoringID, err = o.llm.Submit(ctx, domain.InferenceRequest{
			Messages:       buildScoringPrompt(character, history, current),
			Temperature:    0.2,
			TopP:           0.9,
			ResponseFormat: ShapeIntimacy,
		})
		if err != nil {
			log.Warn("scoring submit failed, falling back to a weighted delta",
				"channel_id", in.ChannelID, "error", err)
			scoringID = ""
		}
	}

	typingCtx, stopTyping := context.WithCancel(ctx)
	go o.maintainTyping(typingCtx, in.ChannelID, in.CharacterID)

	var primary, scoring *domain.InferenceResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		primary = domain.AwaitResult(gctx, o.llm, primaryID, o.opts.PollCeiling, o.opts.PollInterval)
		return nil
	})
	if scoringID != "" {
		g.Go(func() error {
			scoring = domain.AwaitResult(gctx, o.llm, scoringID, o.opts.PollCeiling, o.opts.PollInterval)
			return nil
		})
	}
	_ = g.Wait()
	stopTyping()

	if primary.Status != domain.StatusCompleted {
		log.Error("inference did not complete",
			"channel_id", in.ChannelID, "status", primary.Status, "detail", primary.Message)
	}

	// The reply settles into the window when the chat service echoes it
	// back, never here; settling in both places would double every turn.
	text, data := renderResult(primary)

	usage := primary.Usage
	if scoring != nil {
		usage = usage.Add(scoring.Usage)
	}

	if !cfg.NonProgressing && primary.Status == domain.StatusCompleted {
		switch {
		case cfg.SkipScoring:
			// Scoring-exempt modes progress on a synthesized bump.
			o.applyProgress(ctx, in, character, weightedDelta())
		default:
			if delta, ok := scoredDelta(scoring); ok {
				o.applyProgress(ctx, in, character, delta)
			} else {
				// A failed or timed-out scoring call must not fabricate
				// progress; the state simply does not move this turn.
				log.Warn("scoring unavailable, progression skipped",
					"channel_id", in.ChannelID)
			}
		}
	}

	return TurnResult{Text: text, Data: data, Usage: usage}
}

// applyProgress re-reads the channel state so concurrent turns do not clobber
// each other's totals, applies the delta and persists the meta block.
func (o *Orchestrator) applyProgress(ctx context.Context, in TurnInput, character *domain.Character, delta int) {
	log := observability.LoggerFromContext(ctx)

	state, err := o.fetcher.ChannelState(ctx, in.ChannelID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("channel state reload failed, progression skipped",
				"channel_id", in.ChannelID, "error", err)
			return
		}
		state = domain.NewChannelState()
	}

	meta := o.engine.ApplyDelta(ctx, in.UserID, in.CharacterID, state, character.Ladder, delta)
	err = o.fetcher.UpdateChannelState(ctx, in.ChannelID, map[string]any{
		"meta_data": meta.Document(),
	})
	if err != nil {
		log.Error("channel state update failed", "channel_id", in.ChannelID, "error", err)
	}
}

// scoredDelta reads the delta from a completed scoring call. Anything else
// — a failed or timed-out call, or a zero the prompt forbids — yields no
// delta at all.
func scoredDelta(scoring *domain.InferenceResult) (int, bool) {
	if scoring == nil || scoring.Status != domain.StatusCompleted {
		return 0, false
	}
	d := intimacyFromOutput(scoring.Output)
	if d == 0 {
		return 0, false
	}
	return clampDelta(d), true
}

func intimacyFromOutput(output map[string]any) int {
	switch v := output["intimacy"].(type) {
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

func clampDelta(d int) int {
	if d > 5 {
		return 5
	}
	if d < -5 {
		return -5
	}
	return d
}

// weightedDelta draws a positive bump: 1 half the time, 5 rarely.
func weightedDelta() int {
	switch n := rand.IntN(100); {
	case n < 50:
		return 1
	case n < 80:
		return 2
	case n < 95:
		return 3
	default:
		return 5
	}
}

// maintainTyping keeps the typing indicator alive while inference runs.
func (o *Orchestrator) maintainTyping(ctx context.Context, channelID domain.ChannelID, characterID domain.CharacterID) {
	sender := o.opts.BotPrefix + string(characterID)
	ticker := time.NewTicker(o.opts.TypingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.transport.SendEvent(ctx, string(channelID), "typing.start", sender); err != nil {
				observability.LoggerFromContext(ctx).Warn("typing refresh failed",
					"channel_id", channelID, "error", err)
			}
		}
	}
}
