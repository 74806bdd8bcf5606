package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/storage"
)

var (
	// ErrInvalidInput is returned for missing or blank required text.
	ErrInvalidInput = kb.ErrInvalidInput
	// ErrAlreadyResolved is returned when resolving a request a second time.
	ErrAlreadyResolved = errors.New("help request already resolved")
)

const (
	// DefaultHoldTimeout is added to the creation time to compute TimeoutAt.
	DefaultHoldTimeout = 15 * time.Minute
	// DefaultSupervisorID is recorded when a resolve call names no supervisor.
	DefaultSupervisorID = "supervisor_demo"
)

// Store is the persistence the tracker needs.
type Store interface {
	kb.Atomic
	InsertHelpRequest(ctx context.Context, h storage.HelpRequest) error
	GetHelpRequest(ctx context.Context, id string) (storage.HelpRequest, error)
	ListHelpRequests(ctx context.Context, status storage.Status) ([]storage.HelpRequest, error)
	ListHelpRequestMessages(ctx context.Context, helpRequestID string, role storage.Role) ([]storage.Message, error)
}

// Learner folds a resolved pair into the KB inside the caller's section.
type Learner interface {
	LearnIn(ctx context.Context, store kb.EntryStore, helpRequestID, question, answer string) (kb.LearnResult, error)
}

// Resolution is what a successful Resolve committed.
type Resolution struct {
	HelpRequest  storage.HelpRequest
	AuditMessage storage.Message
	Learned      kb.LearnResult
	// Answer is the trimmed supervisor answer.
	Answer string
}

// Tracker owns the pending -> resolved lifecycle of help requests.
type Tracker struct {
	store       Store
	learner     Learner
	holdTimeout time.Duration
	now         func() time.Time
}

// NewTracker creates a Tracker. A non-positive holdTimeout uses DefaultHoldTimeout.
func NewTracker(store Store, learner Learner, holdTimeout time.Duration) *Tracker {
	if holdTimeout <= 0 {
		holdTimeout = DefaultHoldTimeout
	}
	return &Tracker{
		store:       store,
		learner:     learner,
		holdTimeout: holdTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Open creates a pending help request for question. TimeoutAt is recorded
// but nothing acts on it.
func (t *Tracker) Open(ctx context.Context, conversationID, question string) (storage.HelpRequest, error) {
	if conversationID == "" || strings.TrimSpace(question) == "" {
		return storage.HelpRequest{}, fmt.Errorf("%w: conversation id and question are required", ErrInvalidInput)
	}

	now := t.now()
	h := storage.HelpRequest{
		ID:             storage.NewID("hr"),
		ConversationID: conversationID,
		Question:       question,
		Status:         storage.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		TimeoutAt:      now.Add(t.holdTimeout),
	}
	if err := t.store.InsertHelpRequest(ctx, h); err != nil {
		return storage.HelpRequest{}, fmt.Errorf("inserting help request: %w", err)
	}
	slog.Info("help request opened", "help_request_id", h.ID, "conversation_id", conversationID)
	return h, nil
}

// Resolve marks a pending request resolved, appends the supervisor audit
// message and learns the pair, all in one store section. Nothing is
// committed if any step fails.
func (t *Tracker) Resolve(ctx context.Context, id, answer, supervisorID string) (Resolution, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Resolution{}, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}
	if supervisorID = strings.TrimSpace(supervisorID); supervisorID == "" {
		supervisorID = DefaultSupervisorID
	}

	var res Resolution
	err := t.store.Atomically(ctx, func(tx *storage.Tx) error {
		h, err := tx.GetHelpRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("help request %s: %w", id, err)
		}
		if h.Resolved() {
			return fmt.Errorf("help request %s: %w", id, ErrAlreadyResolved)
		}

		now := t.now()
		resolved := storage.StatusResolved
		h, err = tx.UpdateHelpRequest(ctx, id, storage.HelpRequestPatch{
			Status:       &resolved,
			SupervisorID: &supervisorID,
			UpdatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("marking help request resolved: %w", err)
		}

		audit := storage.Message{
			ID:             storage.NewID("msg"),
			ConversationID: h.ConversationID,
			Role:           storage.RoleSupervisor,
			Content:        answer,
			CreatedAt:      now,
			HelpRequestID:  h.ID,
		}
		if err := tx.AppendMessage(ctx, audit); err != nil {
			return fmt.Errorf("appending supervisor message: %w", err)
		}

		learned, err := t.learner.LearnIn(ctx, tx, h.ID, h.Question, answer)
		if err != nil {
			return fmt.Errorf("learning resolved answer: %w", err)
		}

		res = Resolution{HelpRequest: h, AuditMessage: audit, Learned: learned, Answer: answer}
		return nil
	})
	if err != nil {
		return Resolution{}, err
	}

	slog.Info("help request resolved",
		"help_request_id", id,
		"supervisor_id", supervisorID,
		"kb_entry_id", res.Learned.EntryID,
		"kb_created", res.Learned.Created,
	)
	return res, nil
}

// Get returns one help request.
func (t *Tracker) Get(ctx context.Context, id string) (storage.HelpRequest, error) {
	h, err := t.store.GetHelpRequest(ctx, id)
	if err != nil {
		return storage.HelpRequest{}, fmt.Errorf("help request %s: %w", id, err)
	}
	return h, nil
}

// List returns help requests newest first, optionally filtered by status.
func (t *Tracker) List(ctx context.Context, status storage.Status) ([]storage.HelpRequest, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return t.store.ListHelpRequests(ctx, status)
}

// Audit returns the supervisor messages recorded for a help request.
func (t *Tracker) Audit(ctx context.Context, id string) ([]storage.Message, error) {
	if _, err := t.Get(ctx, id); err != nil {
		return nil, err
	}
	return t.store.ListHelpRequestMessages(ctx, id, storage.RoleSupervisor)
}
