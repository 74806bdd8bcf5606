package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/storage"
)

type ResolveRequest struct {
	Answer       string `json:"answer"`
	SupervisorID string `json:"supervisorId"`
}

type ResolveResponse struct {
	OK           bool                `json:"ok"`
	Reply        string              `json:"reply"`
	AssistantMsg MessageRef          `json:"assistantMsg"`
	Learned      kb.LearnResult      `json:"learned"`
	HelpRequest  storage.HelpRequest `json:"help_request"`
}

func handleListHelpRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := storage.Status(r.URL.Query().Get("status"))
		list, err := deps.Orchestrator.Tracker().List(r.Context(), status)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []storage.HelpRequest{}
		}
		writeJSON(w, map[string]any{"help_requests": list})
	}
}

func handleGetHelpRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Orchestrator.Tracker().Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, h)
	}
}

func handleAudit(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := deps.Orchestrator.AuditTrail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if msgs == nil {
			msgs = []storage.Message{}
		}
		writeJSON(w, map[string]any{"messages": msgs})
	}
}

func handleResolve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		out, err := deps.Orchestrator.Resolve(r.Context(), chi.URLParam(r, "id"), req.Answer, req.SupervisorID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, ResolveResponse{
			OK:           true,
			Reply:        out.Reply,
			AssistantMsg: refOf(out.AssistantMessage),
			Learned:      out.Learned,
			HelpRequest:  out.HelpRequest,
		})
	}
}
