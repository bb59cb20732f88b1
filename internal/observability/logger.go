package observability

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyChannelID ctxKey = "channel_id"
)

// basic global logger, JSON to stdout.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func Logger() *slog.Logger {
	return logger
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return logger.With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithChannelID stores a channel_id in the context, so every log line of a
// turn names the conversation it belongs to.
func WithChannelID(ctx context.Context, channelID string) context.Context {
	return context.WithValue(ctx, ctxKeyChannelID, channelID)
}

// LoggerFromContext adds request_id and channel_id when present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	l := logger
	if reqID, _ := ctx.Value(ctxKeyRequestID).(string); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if channelID, _ := ctx.Value(ctxKeyChannelID).(string); channelID != "" {
		l = l.With("channel_id", channelID)
	}
	return l
}
