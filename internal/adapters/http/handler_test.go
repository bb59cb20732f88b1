package httpadapter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/sugarworks/sugar-agent/internal/adapters/http"
	"github.com/sugarworks/sugar-agent/internal/app/dispatch"
	"github.com/sugarworks/sugar-agent/internal/cache"
)

type echoHandler struct {
	gotType string
}

func (h *echoHandler) Name() string { return "echo" }

func (h *echoHandler) Handle(_ context.Context, eventType string, _ map[string]any) (any, error) {
	h.gotType = eventType
	return "handled", nil
}

func newServer(apiKey string) (http.Handler, *echoHandler, *cache.SessionCache) {
	h := &echoHandler{}
	r := dispatch.NewRegistry()
	r.Register(h)
	c := cache.New(cache.Options{})
	return httpadapter.NewServer(r, c, apiKey), h, c
}

func TestWebhookDispatchesEvent(t *testing.T) {
	server, h, _ := newServer("")

	req := httptest.NewRequest(http.MethodPost, "/webhook/stream-chat",
		strings.NewReader(`{"type":"message.new","channel_id":"c1"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if h.gotType != "message.new" {
		t.Fatalf("expected the event type forwarded, got %q", h.gotType)
	}
	if !strings.Contains(rec.Body.String(), "handled") {
		t.Fatalf("expected the handler result in the response: %s", rec.Body.String())
	}
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	server, _, _ := newServer("")

	for _, body := range []string{`not json`, `{"channel_id":"c1"}`} {
		req := httptest.NewRequest(http.MethodPost, "/webhook/stream-chat", strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	server, _, _ := newServer("")

	req := httptest.NewRequest(http.MethodGet, "/webhook/stream-chat", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestCacheStatusAndClear(t *testing.T) {
	server, _, c := newServer("")
	c.EnsureWindow("u1", "c1")

	req := httptest.NewRequest(http.MethodGet, "/api/cache/status", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "messages") {
		t.Fatalf("unexpected status response %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if c.HasWindow("u1", "c1") {
		t.Fatalf("expected the cache cleared")
	}
}

func TestScopedCacheClearLeavesOtherEntriesAlone(t *testing.T) {
	server, _, c := newServer("")
	c.EnsureWindow("u1", "c1")
	c.EnsureWindow("u2", "c2")

	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear",
		strings.NewReader(`{"user_id":"u1","channel_id":"c1"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if c.HasWindow("u1", "c1") {
		t.Fatalf("expected the named window cleared")
	}
	if !c.HasWindow("u2", "c2") {
		t.Fatalf("expected other windows untouched")
	}
}

func TestAPIRoutesRequireTheKey(t *testing.T) {
	server, _, _ := newServer("secret")

	req := httptest.NewRequest(http.MethodGet, "/api/cache/status", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without the key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/cache/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with the key, got %d", rec.Code)
	}

	// The webhook stays open: the chat service signs its own deliveries.
	req = httptest.NewRequest(http.MethodPost, "/webhook/stream-chat",
		strings.NewReader(`{"type":"message.new"}`))
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected the webhook open, got %d", rec.Code)
	}
}

func TestLevelNotifyTargetsTheLevelHandler(t *testing.T) {
	server, _, _ := newServer("")

	req := httptest.NewRequest(http.MethodPost, "/api/levels/notify",
		strings.NewReader(`{"channel_id":"c1","level":2}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no handler named") {
		t.Fatalf("expected the unknown-target error surfaced: %s", rec.Body.String())
	}
}
