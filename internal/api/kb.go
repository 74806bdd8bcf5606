package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/livekit"
	"github.com/kalambet/frontdesk/internal/storage"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

type SeedRequest struct {
	Items []kb.SeedItem `json:"items"`
	All   bool          `json:"all"`
}

// handleKB lists every entry, or ranks them against q when given.
func handleKB(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := q.Get("q")
		if query == "" {
			entries, err := deps.Orchestrator.KnowledgeBase(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			if entries == nil {
				entries = []storage.KnowledgeEntry{}
			}
			writeJSON(w, map[string]any{"kb": entries})
			return
		}

		k := defaultSearchLimit
		if raw := q.Get("k"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid k: %v", err)
				return
			}
			k = v
		}
		if k > maxSearchLimit {
			k = maxSearchLimit
		}
		minScore := deps.ListingThreshold
		if minScore <= 0 {
			minScore = kb.ListingThreshold
		}
		if raw := q.Get("min_score"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 || v > 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "min_score must be a number within [0, 1]")
				return
			}
			minScore = v
		}

		matches, err := deps.Orchestrator.SearchKB(r.Context(), query, k, minScore)
		if err != nil {
			writeError(w, err)
			return
		}
		if matches == nil {
			matches = []kb.Match{}
		}
		writeJSON(w, map[string]any{"query": query, "matches": matches})
	}
}

func handleReset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Orchestrator.Reset(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "cleared": true})
	}
}

func handleSeedKB(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeedRequest
		if !decodeBody(w, r, &req) {
			return
		}
		n, err := deps.Orchestrator.SeedKB(r.Context(), req.Items, req.All)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "kb_count": n})
	}
}

func handleLiveKitToken(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Tokens == nil {
			httpError(w, http.StatusInternalServerError, "api_error", "livekit token issuer not configured")
			return
		}
		tok, err := deps.Tokens.Mint(r.URL.Query().Get("identity"), "", 0)
		if err != nil {
			if errors.Is(err, livekit.ErrUnavailable) {
				httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, tok)
	}
}
