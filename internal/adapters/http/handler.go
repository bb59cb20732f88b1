package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/sugarworks/sugar-agent/internal/app/dispatch"
	"github.com/sugarworks/sugar-agent/internal/cache"
	"github.com/sugarworks/sugar-agent/internal/domain"
	"github.com/sugarworks/sugar-agent/internal/observability"
)

type Server struct {
	registry *dispatch.Registry
	cache    *cache.SessionCache
	apiKey   string
}

func NewServer(registry *dispatch.Registry, c *cache.SessionCache, apiKey string) http.Handler {
	s := &Server{registry: registry, cache: c, apiKey: apiKey}
	mux := http.NewServeMux()

	// /webhook/stream-chat → chat service webhook (POST)
	mux.HandleFunc("/webhook/stream-chat", s.handleWebhook)

	// /api/levels/notify → tier-change narration (POST)
	mux.HandleFunc("/api/levels/notify", s.handleLevelNotify)

	// /api/cache/clear  → drop every cache tier (POST)
	// /api/cache/status → occupancy report (GET)
	mux.HandleFunc("/api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("/api/cache/status", s.handleCacheStatus)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return chainMiddlewares(mux, s.withAuth, withLogging)
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	eventType, _ := payload["type"].(string)
	if eventType == "" {
		badRequest(w, "type is required")
		return
	}

	ctx := observability.WithRequestID(r.Context(), uuid.NewString())
	results := s.registry.Dispatch(ctx, "", eventType, payload)
	writeJSON(w, http.StatusOK, toResultsResponse(results))
}

func (s *Server) handleLevelNotify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	ctx := observability.WithRequestID(r.Context(), uuid.NewString())
	results := s.registry.Dispatch(ctx, "level", "level.notify", payload)
	writeJSON(w, http.StatusOK, toResultsResponse(results))
}

type cacheClearRequest struct {
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	CharacterID string `json:"character_id"`
}

// handleCacheClear drops cache entries. An empty body purges every tier; a
// scoped body clears only the named conversation window, channel state or
// character sheet.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req cacheClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid JSON body")
		return
	}
	if req == (cacheClearRequest{}) {
		s.cache.Purge()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}

	if req.ChannelID != "" {
		if req.UserID != "" {
			s.cache.ClearWindow(domain.UserID(req.UserID), domain.ChannelID(req.ChannelID))
		}
		s.cache.RemoveChannelState(domain.ChannelID(req.ChannelID))
	}
	if req.CharacterID != "" {
		s.cache.RemoveCharacter(domain.CharacterID(req.CharacterID))
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": s.cache.Report()})
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

func toResultsResponse(results map[string]dispatch.Result) map[string]any {
	out := make(map[string]any, len(results))
	for name, res := range results {
		if res.Err != nil {
			out[name] = map[string]any{"error": res.Err.Error()}
			continue
		}
		out[name] = map[string]any{"result": res.Value}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
	})
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error": "unauthorized",
	})
}
