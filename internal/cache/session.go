package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// MessageWindow holds the recent conversation for one user/channel pair.
// The window keeps at most `limit` settled turns plus the message the
// user just sent, which stays outside the history until the assistant's
// answer lands.
type MessageWindow struct {
	mu      sync.Mutex
	limit   int
	history []domain.Turn
	current string
}

// Append adds a settled turn and trims the window to its limit.
func (w *MessageWindow) Append(turn domain.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, turn)
	if n := len(w.history); n > w.limit {
		w.history = w.history[n-w.limit:]
	}
}

// SetHistory replaces the settled turns wholesale, keeping the newest
// turns when the input exceeds the window limit.
func (w *MessageWindow) SetHistory(turns []domain.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := len(turns); n > w.limit {
		turns = turns[n-w.limit:]
	}
	w.history = append([]domain.Turn(nil), turns...)
}

// SettleReply closes the exchange: the pending in-flight user message (if
// any) and the reply settle into the history in one step, so the pair can
// never be recorded twice.
func (w *MessageWindow) SettleReply(reply string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current != "" {
		w.history = append(w.history, domain.Turn{Role: domain.RoleUser, Content: w.current})
		w.current = ""
	}
	w.history = append(w.history, domain.Turn{Role: domain.RoleAssistant, Content: reply})
	if n := len(w.history); n > w.limit {
		w.history = w.history[n-w.limit:]
	}
}

// SetCurrent records the in-flight user message.
func (w *MessageWindow) SetCurrent(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = text
}

// Snapshot returns a copy of the settled turns and the in-flight message.
func (w *MessageWindow) Snapshot() ([]domain.Turn, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.Turn(nil), w.history...), w.current
}

// Stats describes one cache for the periodic report and the status endpoint.
type Stats struct {
	Name        string        `json:"name"`
	Len         int           `json:"len"`
	Capacity    int           `json:"capacity"`
	TTL         time.Duration `json:"ttl"`
	PercentFull float64       `json:"percent_full"`
}

// Options sizes the four caches. Zero values fall back to the
// production defaults.
type Options struct {
	SessionSize   int
	SessionTTL    time.Duration
	CharacterSize int
	CharacterTTL  time.Duration
	DedupSize     int
	DedupTTL      time.Duration
	WindowLimit   int
}

func (o Options) withDefaults() Options {
	if o.SessionSize <= 0 {
		o.SessionSize = 1000
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 6 * time.Hour
	}
	if o.CharacterSize <= 0 {
		o.CharacterSize = 50
	}
	if o.CharacterTTL <= 0 {
		o.CharacterTTL = 24 * time.Hour
	}
	if o.DedupSize <= 0 {
		o.DedupSize = 5000
	}
	if o.DedupTTL <= 0 {
		o.DedupTTL = 5 * time.Minute
	}
	if o.WindowLimit <= 0 {
		o.WindowLimit = 30
	}
	return o
}

// SessionCache is the process-local hot tier in front of the document
// store: message windows, channel state, character sheets and a
// processed-message set for webhook deduplication. Every tier is
// bounded and expiring, so a restart or an eviction only costs a
// refetch.
type SessionCache struct {
	opts Options

	messages   *expirable.LRU[string, *MessageWindow]
	channels   *expirable.LRU[domain.ChannelID, *domain.ChannelState]
	characters *expirable.LRU[string, *domain.Character]

	dedupMu sync.Mutex
	dedup   *expirable.LRU[string, struct{}]
}

// New builds a SessionCache with the given options.
func New(opts Options) *SessionCache {
	opts = opts.withDefaults()
	return &SessionCache{
		opts:       opts,
		messages:   expirable.NewLRU[string, *MessageWindow](opts.SessionSize, nil, opts.SessionTTL),
		channels:   expirable.NewLRU[domain.ChannelID, *domain.ChannelState](opts.SessionSize, nil, opts.SessionTTL),
		characters: expirable.NewLRU[string, *domain.Character](opts.CharacterSize, nil, opts.CharacterTTL),
		dedup:      expirable.NewLRU[string, struct{}](opts.DedupSize, nil, opts.DedupTTL),
	}
}

func windowKey(userID domain.UserID, channelID domain.ChannelID) string {
	return string(userID) + ":" + string(channelID)
}

// Window returns the message window for the pair, or nil when the
// entry expired or was never loaded.
func (c *SessionCache) Window(userID domain.UserID, channelID domain.ChannelID) *MessageWindow {
	w, _ := c.messages.Get(windowKey(userID, channelID))
	return w
}

// EnsureWindow returns the existing window or installs an empty one.
func (c *SessionCache) EnsureWindow(userID domain.UserID, channelID domain.ChannelID) *MessageWindow {
	key := windowKey(userID, channelID)
	if w, ok := c.messages.Get(key); ok {
		return w
	}
	w := &MessageWindow{limit: c.opts.WindowLimit}
	c.messages.Add(key, w)
	return w
}

// HasWindow reports whether a live window exists without refreshing it.
func (c *SessionCache) HasWindow(userID domain.UserID, channelID domain.ChannelID) bool {
	return c.messages.Contains(windowKey(userID, channelID))
}

// ClearWindow drops the window, forcing the next turn to reload history
// from the chat transport.
func (c *SessionCache) ClearWindow(userID domain.UserID, channelID domain.ChannelID) {
	c.messages.Remove(windowKey(userID, channelID))
}

// ChannelState returns the cached state for the channel, or nil.
func (c *SessionCache) ChannelState(channelID domain.ChannelID) *domain.ChannelState {
	s, _ := c.channels.Get(channelID)
	return s
}

// PutChannelState caches the state for the channel.
func (c *SessionCache) PutChannelState(channelID domain.ChannelID, state *domain.ChannelState) {
	c.channels.Add(channelID, state)
}

// RemoveChannelState drops the channel's cached state so the next read goes
// to the store.
func (c *SessionCache) RemoveChannelState(channelID domain.ChannelID) {
	c.channels.Remove(channelID)
}

// Character returns the cached character sheet under the given key, or nil.
// The key includes the locale so translated sheets do not collide.
func (c *SessionCache) Character(key string) *domain.Character {
	ch, _ := c.characters.Get(key)
	return ch
}

// PutCharacter caches a character sheet.
func (c *SessionCache) PutCharacter(key string, character *domain.Character) {
	c.characters.Add(key, character)
}

// RemoveCharacter drops every cached locale variant of the character, so a
// republished sheet takes effect without waiting out the TTL.
func (c *SessionCache) RemoveCharacter(id domain.CharacterID) {
	prefix := string(id) + ":"
	for _, key := range c.characters.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.characters.Remove(key)
		}
	}
}

// MarkProcessed records the message as handled and reports whether this
// call was the first to do so. The check and the insert happen under one
// lock so two webhook deliveries of the same message cannot both win.
func (c *SessionCache) MarkProcessed(userID domain.UserID, channelID domain.ChannelID, messageID domain.MessageID) bool {
	key := fmt.Sprintf("%s:%s:%s", userID, channelID, messageID)
	c.dedupMu.Lock()
	defer c.dedupMu.Unlock()
	if c.dedup.Contains(key) {
		return false
	}
	c.dedup.Add(key, struct{}{})
	return true
}

// ForgetProcessed removes a dedup entry, allowing the message to be handled
// again.
func (c *SessionCache) ForgetProcessed(userID domain.UserID, channelID domain.ChannelID, messageID domain.MessageID) {
	key := fmt.Sprintf("%s:%s:%s", userID, channelID, messageID)
	c.dedupMu.Lock()
	c.dedup.Remove(key)
	c.dedupMu.Unlock()
}

// Purge empties every tier.
func (c *SessionCache) Purge() {
	c.messages.Purge()
	c.channels.Purge()
	c.characters.Purge()
	c.dedupMu.Lock()
	c.dedup.Purge()
	c.dedupMu.Unlock()
}

// Report returns the occupancy of every tier.
func (c *SessionCache) Report() []Stats {
	c.dedupMu.Lock()
	dedupLen := c.dedup.Len()
	c.dedupMu.Unlock()
	return []Stats{
		stats("messages", c.messages.Len(), c.opts.SessionSize, c.opts.SessionTTL),
		stats("channels", c.channels.Len(), c.opts.SessionSize, c.opts.SessionTTL),
		stats("characters", c.characters.Len(), c.opts.CharacterSize, c.opts.CharacterTTL),
		stats("processed_messages", dedupLen, c.opts.DedupSize, c.opts.DedupTTL),
	}
}

func stats(name string, length, capacity int, ttl time.Duration) Stats {
	pct := 0.0
	if capacity > 0 {
		pct = float64(length) / float64(capacity) * 100
	}
	return Stats{Name: name, Len: length, Capacity: capacity, TTL: ttl, PercentFull: pct}
}
