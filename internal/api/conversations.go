package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/frontdesk/internal/orchestrator"
	"github.com/kalambet/frontdesk/internal/storage"
)

// MessageRef points at the assistant message a reply was stored as, so
// pollers can resume from its timestamp.
type MessageRef struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func refOf(m storage.Message) MessageRef {
	return MessageRef{ID: m.ID, CreatedAt: m.CreatedAt}
}

type AnswerRequest struct {
	ConversationID string `json:"conversationId"`
	Utterance      string `json:"utterance"`
}

type AnswerResponse struct {
	Reply        string               `json:"reply"`
	OnHold       bool                 `json:"onHold"`
	Source       orchestrator.Source  `json:"source"`
	AssistantMsg MessageRef           `json:"assistantMsg"`
	HelpRequest  *storage.HelpRequest `json:"help_request,omitempty"`
}

func answerResponse(out orchestrator.Outcome) AnswerResponse {
	return AnswerResponse{
		Reply:        out.Reply,
		OnHold:       out.OnHold,
		Source:       out.Source,
		AssistantMsg: refOf(out.AssistantMessage),
		HelpRequest:  out.HelpRequest,
	}
}

type TranscriptResponse struct {
	ConversationID string            `json:"conversationId,omitempty"`
	Messages       []storage.Message `json:"messages"`
}

func handleStartConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := deps.Orchestrator.StartConversation(r.Context(), req.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, c)
	}
}

func handleListConversations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := deps.Orchestrator.ListConversations(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []storage.Conversation{}
		}
		writeJSON(w, map[string]any{"conversations": list})
	}
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Orchestrator.GetConversation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, c)
	}
}

func handleRenameConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title *string `json:"title"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Title == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}
		c, err := deps.Orchestrator.RenameConversation(r.Context(), chi.URLParam(r, "id"), *req.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, c)
	}
}

func handleEndConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := deps.Orchestrator.EndConversation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, c)
	}
}

func handleMessages(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since time.Time
		if raw := r.URL.Query().Get("since"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid since: %v", err)
				return
			}
			since = t
		}
		msgs, err := deps.Orchestrator.Transcript(r.Context(), chi.URLParam(r, "id"), since)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, TranscriptResponse{Messages: msgs})
	}
}

func handleTranscript(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		msgs, err := deps.Orchestrator.Transcript(r.Context(), id, time.Time{})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, TranscriptResponse{ConversationID: id, Messages: msgs})
	}
}

func handleAnswerOrEscalate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnswerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		out, err := deps.Orchestrator.Handle(r.Context(), req.ConversationID, req.Utterance)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, answerResponse(out))
	}
}
