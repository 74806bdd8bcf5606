// Package api exposes the help desk over HTTP (chi) and MCP (mcp-go).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/frontdesk/internal/escalation"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/orchestrator"
	"github.com/kalambet/frontdesk/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// TokenIssuer mints realtime session tokens.
type TokenIssuer interface {
	Mint(identity, room string, ttl time.Duration) (livekit.Token, error)
}

type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Tokens       TokenIssuer // optional; if nil, /livekit/token reports 500
	// ListingThreshold is the default min_score for GET /kb?q=.
	ListingThreshold float64
}

// NewHandler returns the help desk REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))

	r.Post("/conversations", handleStartConversation(deps))
	r.Get("/conversations", handleListConversations(deps))
	r.Get("/conversations/{id}", handleGetConversation(deps))
	r.Patch("/conversations/{id}", handleRenameConversation(deps))
	r.Patch("/conversations/{id}/end", handleEndConversation(deps))
	r.Get("/conversations/{id}/messages", handleMessages(deps))
	r.Get("/transcripts/{id}", handleTranscript(deps))

	r.Post("/answer-or-escalate", handleAnswerOrEscalate(deps))

	r.Get("/help-requests", handleListHelpRequests(deps))
	r.Get("/help-requests/{id}", handleGetHelpRequest(deps))
	r.Get("/help-requests/{id}/audit", handleAudit(deps))
	r.Post("/help-requests/{id}/resolve", handleResolve(deps))

	r.Get("/kb", handleKB(deps))
	r.Post("/admin/reset", handleReset(deps))
	r.Post("/admin/seed-kb", handleSeedKB(deps))

	r.Get("/livekit/token", handleLiveKitToken(deps))

	return r
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK     bool   `json:"ok"`
	TS     string `json:"ts"`
	Schema int    `json:"schema"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		schema, err := deps.Orchestrator.SchemaVersion()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, HealthResponse{OK: true, TS: time.Now().UTC().Format(time.RFC3339Nano), Schema: schema})
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response", "error", err)
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escalation.ErrInvalidInput):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, escalation.ErrAlreadyResolved):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusServiceUnavailable, "unavailable_error", "%v", err)
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
