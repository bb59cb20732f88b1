// Package contextfetch loads the context a turn needs — character sheet,
// conversation window, channel state — through the session cache, falling
// back to the document store or the chat transport on a miss.
package contextfetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

const charactersCollection = "Characters"
const channelsCollection = "channels"

// metaFields are the progression keys a channel document must carry.
var metaFields = []string{
	"intimacy",
	"total_intimacy",
	"intimacy_percentage",
	"current_level",
	"next_level",
	"lock_level",
}

type Fetcher struct {
	cache     *cache.SessionCache
	store     domain.DocumentStore
	transport domain.ChatTransport
	botPrefix string
	history   int
}

func New(c *cache.SessionCache, store domain.DocumentStore, transport domain.ChatTransport, botPrefix string, historyLimit int) *Fetcher {
	if historyLimit <= 0 {
		historyLimit = 30
	}
	return &Fetcher{
		cache:     c,
		store:     store,
		transport: transport,
		botPrefix: botPrefix,
		history:   historyLimit,
	}
}

// Character returns the locale-resolved sheet for the character. A document
// that is missing or has no matching locale yields an empty Character, never
// an error: an unavailable persona degrades the turn, it does not fail it.
func (f *Fetcher) Character(ctx context.Context, id domain.CharacterID, locale string) *domain.Character {
	log := observability.LoggerFromContext(ctx)
	key := string(id) + ":" + locale
	if c := f.cache.Character(key); c != nil {
		return c
	}

	doc, err := f.store.GetDocument(ctx, charactersCollection, string(id))
	if err != nil {
		empty := &domain.Character{ID: id}
		if errors.Is(err, domain.ErrNotFound) {
			f.cache.PutCharacter(key, empty)
			return empty
		}
		// A transient store fault degrades this turn only. Caching the empty
		// sentinel would keep the character unavailable for its whole TTL.
		log.Warn("character load failed", "character_id", id, "error", err)
		return empty
	}

	resolved := resolveLocale(doc, locale)
	if resolved == "" {
		log.Warn("character has no usable locale", "character_id", id, "locale", locale)
		empty := &domain.Character{ID: id}
		f.cache.PutCharacter(key, empty)
		return empty
	}

	character := &domain.Character{
		ID:     id,
		Locale: resolved,
		Prompt: parsePrompt(localeBlock(doc, resolved, "system_prompt")),
		Ladder: parseLadder(localeLevels(doc, resolved)),
	}
	f.cache.PutCharacter(key, character)
	return character
}

// resolveLocale picks the requested locale when the document's i18n block
// carries it, otherwise the document's default_locale, otherwise nothing.
func resolveLocale(doc map[string]any, requested string) string {
	i18n, _ := doc["i18n"].(map[string]any)
	if _, ok := i18n[requested]; ok && requested != "" {
		return requested
	}
	if def, _ := doc["default_locale"].(string); def != "" {
		if _, ok := i18n[def]; ok {
			return def
		}
	}
	return ""
}

func localeBlock(doc map[string]any, locale, section string) map[string]any {
	i18n, _ := doc["i18n"].(map[string]any)
	loc, _ := i18n[locale].(map[string]any)
	block, _ := loc[section].(map[string]any)
	return block
}

func localeLevels(doc map[string]any, locale string) []any {
	i18n, _ := doc["i18n"].(map[string]any)
	loc, _ := i18n[locale].(map[string]any)
	levels, _ := loc["levels"].([]any)
	return levels
}

func parsePrompt(block map[string]any) domain.PromptTemplate {
	str := func(key string) string {
		s, _ := block[key].(string)
		return s
	}
	strMap := func(key string) map[string]string {
		raw, _ := block[key].(map[string]any)
		if len(raw) == 0 {
			return nil
		}
		out := make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return domain.PromptTemplate{
		General:          str("generalPrompt"),
		GeneralNSFW:      str("generalPromptNSFW"),
		BasicIdentity:    str("basicIdentity"),
		Appearance:       str("appearance"),
		AppearanceNSFW:   str("appearanceNSFW"),
		Mantra:           str("mantra"),
		LikesDislikes:    str("likeDislike"),
		FamilyBackground: str("familyBackground"),
		ImportantRoles:   str("importantRole"),
		Specialty:        str("uniqueSpecialty"),
		IntimacyRule:     str("intimacyRule"),
		Others:           str("others"),
		OutputFormat:     strMap("outputFormat"),
		ReplyLength:      strMap("replyWord"),
	}
}

func parseLadder(raw []any) domain.Ladder {
	ladder := make(domain.Ladder, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		scene, _ := m["scenePrompt"].(string)
		tone, _ := m["toneStyle"].(string)
		rel, _ := m["relationship"].(string)
		hasCard, _ := m["hasCard"].(bool)
		ladder = append(ladder, domain.Level{
			Intimacy:     asInt(m["intimacy"]),
			Title:        title,
			ScenePrompt:  scene,
			ToneStyle:    tone,
			Relationship: rel,
			HasCard:      hasCard,
		})
	}
	sort.SliceStable(ladder, func(i, j int) bool { return ladder[i].Intimacy < ladder[j].Intimacy })
	return ladder
}

// asInt tolerates the numeric types a document decoder may produce.
func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// Messages returns the conversation snapshot for the turn: settled history
// plus the in-flight user message. On a cache miss the window is rebuilt from
// the chat transport, which excludes the message currently being delivered.
func (f *Fetcher) Messages(ctx context.Context, userID domain.UserID, channelID domain.ChannelID, text string) ([]domain.Turn, string) {
	log := observability.LoggerFromContext(ctx)

	if f.cache.HasWindow(userID, channelID) {
		w := f.cache.EnsureWindow(userID, channelID)
		w.SetCurrent(text)
		return w.Snapshot()
	}

	w := f.cache.EnsureWindow(userID, channelID)
	raw, err := f.transport.ChannelMessages(ctx, string(channelID), f.history)
	if err != nil {
		log.Warn("history load failed, starting with an empty window",
			"channel_id", channelID, "error", err)
		raw = nil
	}
	turns := make([]domain.Turn, 0, len(raw))
	for _, m := range raw {
		if m.Text == "" {
			continue
		}
		r := domain.RoleUser
		if strings.HasPrefix(m.UserID, f.botPrefix) {
			r = domain.RoleAssistant
		}
		turns = append(turns, domain.Turn{Role: r, Content: m.Text})
	}
	w.SetHistory(turns)
	w.SetCurrent(text)
	return w.Snapshot()
}

// RecordAssistantTurn settles an assistant reply into the window along with
// the in-flight user message it answered. Called only when the chat service
// echoes the delivered message back, which is the single settling path.
func (f *Fetcher) RecordAssistantTurn(userID domain.UserID, channelID domain.ChannelID, reply string) {
	f.cache.EnsureWindow(userID, channelID).SettleReply(reply)
}

// ChannelState returns a mutable copy of the channel's state. A store miss
// propagates domain.ErrNotFound so callers can distinguish "new channel"
// from a transient failure.
func (f *Fetcher) ChannelState(ctx context.Context, channelID domain.ChannelID) (*domain.ChannelState, error) {
	if s := f.cache.ChannelState(channelID); s != nil {
		return s.Clone(), nil
	}

	doc, err := f.store.GetDocument(ctx, channelsCollection, string(channelID))
	if err != nil {
		return nil, err
	}

	state := stateFromDocument(doc)
	f.cache.PutChannelState(channelID, state)
	return state.Clone(), nil
}

func stateFromDocument(doc map[string]any) *domain.ChannelState {
	state := domain.NewChannelState()
	if persona, ok := doc["user_persona"].(map[string]any); ok {
		state.UserPersona = persona
	}
	meta, _ := doc["meta_data"].(map[string]any)
	state.Meta = domain.ChannelMeta{
		Intimacy:           asInt(meta["intimacy"]),
		TotalIntimacy:      asInt(meta["total_intimacy"]),
		IntimacyPercentage: asInt(meta["intimacy_percentage"]),
		CurrentLevel:       asString(meta["current_level"]),
		NextLevel:          asString(meta["next_level"]),
		LockLevel:          asInt(meta["lock_level"]),
	}
	if state.Meta.LockLevel < 1 {
		state.Meta.LockLevel = 1
	}
	return state
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// CreateChannelState persists a brand-new channel document. The meta block
// must be complete; nothing is written when it is not.
func (f *Fetcher) CreateChannelState(ctx context.Context, channelID domain.ChannelID, doc map[string]any) error {
	meta, ok := doc["meta_data"].(map[string]any)
	if !ok {
		return fmt.Errorf("channel %s: document is missing meta_data", channelID)
	}
	for _, field := range metaFields {
		if _, ok := meta[field]; !ok {
			return fmt.Errorf("channel %s: meta_data is missing %q", channelID, field)
		}
	}

	if err := f.store.SetDocument(ctx, channelsCollection, string(channelID), doc, false); err != nil {
		return fmt.Errorf("creating channel %s: %w", channelID, err)
	}
	f.cache.PutChannelState(channelID, stateFromDocument(doc))
	return nil
}

// UpdateChannelState merges partial into both the cache and the persisted
// document. Top-level fields in partial replace their counterparts; fields
// absent from partial are left untouched in the store.
func (f *Fetcher) UpdateChannelState(ctx context.Context, channelID domain.ChannelID, partial map[string]any) error {
	if cached := f.cache.ChannelState(channelID); cached != nil {
		merged := cached.Clone()
		if persona, ok := partial["user_persona"].(map[string]any); ok {
			merged.UserPersona = persona
		}
		if meta, ok := partial["meta_data"].(map[string]any); ok {
			doc := merged.Meta.Document()
			for k, v := range meta {
				doc[k] = v
			}
			merged.Meta = domain.ChannelMeta{
				Intimacy:           asInt(doc["intimacy"]),
				TotalIntimacy:      asInt(doc["total_intimacy"]),
				IntimacyPercentage: asInt(doc["intimacy_percentage"]),
				CurrentLevel:       asString(doc["current_level"]),
				NextLevel:          asString(doc["next_level"]),
				LockLevel:          asInt(doc["lock_level"]),
			}
		}
		f.cache.PutChannelState(channelID, merged)
	}

	// Read-merge-write keeps sibling fields inside merged maps intact; a
	// blind merge would clobber nested fields absent from partial.
	existing, err := f.store.GetDocument(ctx, channelsCollection, string(channelID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("reading channel %s: %w", channelID, err)
		}
		existing = map[string]any{}
	}
	for k, v := range partial {
		if nested, ok := v.(map[string]any); ok {
			if cur, ok := existing[k].(map[string]any); ok {
				for nk, nv := range nested {
					cur[nk] = nv
				}
				continue
			}
		}
		existing[k] = v
	}

	if err := f.store.SetDocument(ctx, channelsCollection, string(channelID), existing, false); err != nil {
		return fmt.Errorf("updating channel %s: %w", channelID, err)
	}
	return nil
}
