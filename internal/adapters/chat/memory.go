package chat

import (
	"context"
	"sync"

	"github.com/sugarworks/sugar-agent/internal/domain"
)

// SentMessage records one SendMessage call on the in-memory transport.
type SentMessage struct {
	ChannelID string
	SenderID  string
	Text      string
	Data      map[string]any
}

// SentEvent records one SendEvent call.
type SentEvent struct {
	ChannelID string
	Type      string
	UserID    string
}

// MemoryTransport is an in-memory ChatTransport for tests and local runs.
type MemoryTransport struct {
	mu       sync.Mutex
	history  map[string][]domain.TransportMessage
	messages []SentMessage
	events   []SentEvent
	bots     map[string]string
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		history: make(map[string][]domain.TransportMessage),
		bots:    make(map[string]string),
	}
}

// Seed preloads a channel's history, oldest first.
func (t *MemoryTransport) Seed(channelID string, msgs ...domain.TransportMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[channelID] = append(t.history[channelID], msgs...)
}

func (t *MemoryTransport) ChannelMessages(_ context.Context, channelID string, limit int) ([]domain.TransportMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.history[channelID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.TransportMessage(nil), msgs...), nil
}

func (t *MemoryTransport) SendMessage(_ context.Context, channelID, senderID, text string, data map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, SentMessage{ChannelID: channelID, SenderID: senderID, Text: text, Data: data})
	t.history[channelID] = append(t.history[channelID], domain.TransportMessage{UserID: senderID, Text: text})
	return nil
}

func (t *MemoryTransport) SendEvent(_ context.Context, channelID, eventType, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, SentEvent{ChannelID: channelID, Type: eventType, UserID: userID})
	return nil
}

func (t *MemoryTransport) UpsertBotUser(_ context.Context, id, name, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bots[id] = name
	return nil
}

// Sent returns a copy of every message sent so far.
func (t *MemoryTransport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.messages...)
}

// Events returns a copy of every event sent so far.
func (t *MemoryTransport) Events() []SentEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentEvent(nil), t.events...)
}

// Bots returns the upserted bot user names keyed by id.
func (t *MemoryTransport) Bots() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.bots))
	for k, v := range t.bots {
		out[k] = v
	}
	return out
}
