// Package orchestrator decides how each customer utterance is answered:
// small talk, a knowledge-base answer, or an escalation to a supervisor.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/frontdesk/internal/escalation"
	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/responder"
	"github.com/kalambet/frontdesk/internal/storage"
)

const (
	// HoldNotice is returned to the caller while a question waits for a supervisor.
	HoldNotice = "Thanks for your question—please hold for a moment while I check with a specialist. I’ll be right back."
	// Sentinel is stored as the assistant message of an escalated turn. Voice
	// and UI clients match it exactly.
	Sentinel = responder.IDontKnow
	// SmallTalkFallback is the reply when the responder cannot produce small talk.
	SmallTalkFallback = "Hi! How can I help you today?"

	maxTitleRunes = 60
)

// Source names the branch that produced a reply.
type Source string

const (
	SourceSmallTalk Source = "small_talk"
	SourceKB        Source = "kb_qna"
	SourceEscalated Source = "no_kb"
)

// Outcome is the result of handling one utterance.
type Outcome struct {
	Reply            string
	OnHold           bool
	Source           Source
	AssistantMessage storage.Message
	// HelpRequest is set only when the utterance was escalated.
	HelpRequest *storage.HelpRequest
}

// ResolveOutcome is the result of a supervisor resolving a help request.
type ResolveOutcome struct {
	Reply            string
	AssistantMessage storage.Message
	HelpRequest      storage.HelpRequest
	Learned          kb.LearnResult
}

// Options holds the tunable thresholds. Zero values use the package defaults.
type Options struct {
	AnswerThreshold float64
	MergeThreshold  float64
	HoldTimeout     time.Duration
}

// Orchestrator is the entry point for customer turns and supervisor
// resolutions.
type Orchestrator struct {
	store     *storage.Store
	matcher   *kb.Matcher
	tracker   *escalation.Tracker
	responder responder.Responder

	answerThreshold float64
	now             func() time.Time
}

// New wires an Orchestrator over store. resp must already be timeout bounded
// (see responder.WithTimeout).
func New(store *storage.Store, resp responder.Responder, opts Options) *Orchestrator {
	if opts.AnswerThreshold <= 0 || opts.AnswerThreshold > 1 {
		opts.AnswerThreshold = kb.AnswerThreshold
	}
	learner := kb.NewLearner(store, opts.MergeThreshold)
	return &Orchestrator{
		store:           store,
		matcher:         kb.NewMatcher(store),
		tracker:         escalation.NewTracker(store, learner, opts.HoldTimeout),
		responder:       resp,
		answerThreshold: opts.AnswerThreshold,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Tracker exposes the help request tracker for admin views.
func (o *Orchestrator) Tracker() *escalation.Tracker { return o.tracker }

// Handle records the utterance and answers it from small talk, the KB, or by
// escalating. Only malformed input and store failures are errors; responder
// failures fall back to fixed text.
func (o *Orchestrator) Handle(ctx context.Context, conversationID, utterance string) (Outcome, error) {
	if conversationID == "" || strings.TrimSpace(utterance) == "" {
		return Outcome{}, fmt.Errorf("%w: conversation id and utterance are required", escalation.ErrInvalidInput)
	}
	question := strings.TrimSpace(utterance)

	err := o.store.Atomically(ctx, func(tx *storage.Tx) error {
		conv, err := tx.GetConversation(ctx, conversationID)
		if err != nil {
			return fmt.Errorf("conversation %s: %w", conversationID, err)
		}
		if err := tx.AppendMessage(ctx, storage.Message{
			ID:             storage.NewID("msg"),
			ConversationID: conversationID,
			Role:           storage.RoleUser,
			Content:        utterance,
			CreatedAt:      o.now(),
		}); err != nil {
			return fmt.Errorf("appending user message: %w", err)
		}
		if conv.Title == "" {
			title := titleFrom(question)
			if _, err := tx.UpdateConversation(ctx, conversationID, storage.ConversationPatch{Title: &title}); err != nil {
				return fmt.Errorf("seeding conversation title: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if IsSmallTalk(question) {
		reply := o.render(ctx, responder.Request{Kind: responder.SmallTalk, Question: question}, SmallTalkFallback)
		msg, err := o.appendAssistant(ctx, conversationID, reply, "")
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: reply, Source: SourceSmallTalk, AssistantMessage: msg}, nil
	}

	matches, err := o.matcher.Retrieve(ctx, question, 1, o.answerThreshold)
	if err != nil {
		return Outcome{}, err
	}
	if len(matches) > 0 {
		best := matches[0]
		slog.Debug("kb hit", "conversation_id", conversationID, "entry_id", best.Entry.ID, "score", best.Score)
		reply := o.render(ctx, responder.Request{
			Kind:     responder.Conversational,
			Question: question,
			KBAnswer: best.Entry.Answer,
		}, best.Entry.Answer)
		msg, err := o.appendAssistant(ctx, conversationID, reply, "")
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: reply, Source: SourceKB, AssistantMessage: msg}, nil
	}

	hr, err := o.tracker.Open(ctx, conversationID, question)
	if err != nil {
		return Outcome{}, err
	}
	msg, err := o.appendAssistant(ctx, conversationID, Sentinel, hr.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Reply:            HoldNotice,
		OnHold:           true,
		Source:           SourceEscalated,
		AssistantMessage: msg,
		HelpRequest:      &hr,
	}, nil
}

// Resolve closes a pending help request with the supervisor's answer, learns
// it, and posts a rendered reply to the customer's conversation. A second
// call for the same request fails with escalation.ErrAlreadyResolved before
// anything is written.
func (o *Orchestrator) Resolve(ctx context.Context, helpRequestID, answer, supervisorID string) (ResolveOutcome, error) {
	res, err := o.tracker.Resolve(ctx, helpRequestID, answer, supervisorID)
	if err != nil {
		return ResolveOutcome{}, err
	}

	// The store section is closed; rendering may take seconds.
	reply := o.render(ctx, responder.Request{
		Kind:     responder.Conversational,
		Question: res.HelpRequest.Question,
		KBAnswer: res.Answer,
	}, res.Answer)

	msg, err := o.appendAssistant(ctx, res.HelpRequest.ConversationID, reply, res.HelpRequest.ID)
	if err != nil {
		return ResolveOutcome{}, err
	}
	return ResolveOutcome{
		Reply:            reply,
		AssistantMessage: msg,
		HelpRequest:      res.HelpRequest,
		Learned:          res.Learned,
	}, nil
}

// render asks the responder for text and falls back when it is unavailable.
func (o *Orchestrator) render(ctx context.Context, req responder.Request, fallback string) string {
	reply, err := o.responder.Respond(ctx, req)
	if err != nil {
		level := slog.LevelWarn
		if responder.Reason(err) == "disabled" {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "responder unavailable, using fallback", "kind", req.Kind.String(), "reason", responder.Reason(err), "error", err)
		return fallback
	}
	if text := strings.TrimSpace(reply.Text); text != "" {
		return text
	}
	return fallback
}

func (o *Orchestrator) appendAssistant(ctx context.Context, conversationID, content, helpRequestID string) (storage.Message, error) {
	m := storage.Message{
		ID:             storage.NewID("msg"),
		ConversationID: conversationID,
		Role:           storage.RoleAssistant,
		Content:        content,
		CreatedAt:      o.now(),
		HelpRequestID:  helpRequestID,
	}
	if err := o.store.AppendMessage(ctx, m); err != nil {
		return storage.Message{}, fmt.Errorf("appending assistant message: %w", err)
	}
	return m, nil
}
