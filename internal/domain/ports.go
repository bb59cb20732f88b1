package domain

import (
	"context"
	"errors"
)

// ErrNotFound marks a store miss with no fallback. Callers branch on it with
// errors.Is; it is never wrapped into a user-facing failure by itself.
var ErrNotFound = errors.New("not found")

// DocumentStore is the persistent-store collaborator: plain documents
// addressed by (collection, id). Collection may be a slash path for
// subcollections.
type DocumentStore interface {
	// GetDocument returns the raw document, or ErrNotFound.
	GetDocument(ctx context.Context, collection, id string) (map[string]any, error)

	// SetDocument writes data; with merge, existing fields not present in
	// data survive.
	SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error

	// AppendUnique adds values to an array field as a set operation: values
	// already present are not duplicated, and concurrent calls with the same
	// value record it at most once. This is the unique-artifact primitive.
	AppendUnique(ctx context.Context, collection, id, field string, values ...any) error

	// ServerTimestamp returns the store's server-assigned timestamp sentinel.
	ServerTimestamp() any
}

// TransportMessage is one raw message as the chat transport reports it.
type TransportMessage struct {
	UserID string
	Text   string
}

// ChatTransport is the chat-delivery collaborator.
type ChatTransport interface {
	// ChannelMessages returns up to limit recent messages, oldest first,
	// excluding the message currently being delivered.
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]TransportMessage, error)

	// SendMessage posts text to the channel as senderID. data carries
	// shape-specific extras (e.g. a sticker reference).
	SendMessage(ctx context.Context, channelID, senderID, text string, data map[string]any) error

	// SendEvent emits an ephemeral event (typing.start / typing.stop) as userID.
	SendEvent(ctx context.Context, channelID, eventType, userID string) error

	// UpsertBotUser creates or updates a bot-style participant identity.
	UpsertBotUser(ctx context.Context, id, name, image string) error
}

// InferenceClient is the LLM collaborator: submission yields an opaque
// request id, completion is observed by polling.
type InferenceClient interface {
	Submit(ctx context.Context, req InferenceRequest) (string, error)
	Poll(ctx context.Context, requestID string) (*InferenceResult, error)
}
