package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/frontdesk/internal/similarity"
	"github.com/kalambet/frontdesk/internal/storage"
)

// ErrInvalidInput is returned when a required text field is empty.
var ErrInvalidInput = errors.New("invalid input")

// EntryStore is the subset of record operations the learner needs. Both
// *storage.Store and *storage.Tx satisfy it.
type EntryStore interface {
	EntryLister
	InsertKnowledge(ctx context.Context, e storage.KnowledgeEntry) error
	UpdateKnowledge(ctx context.Context, e storage.KnowledgeEntry) error
}

// Atomic runs a function inside one serialized store section.
type Atomic interface {
	Atomically(ctx context.Context, fn func(tx *storage.Tx) error) error
}

// LearnResult describes what a Learn call did to the KB.
type LearnResult struct {
	EntryID string  `json:"entry_id"`
	Created bool    `json:"created"`
	Updated bool    `json:"updated"`
	Score   float64 `json:"score"`
}

// Learner folds resolved question/answer pairs into the knowledge base.
type Learner struct {
	store          Atomic
	mergeThreshold float64
	now            func() time.Time
}

// NewLearner creates a Learner. A mergeThreshold outside (0, 1] falls back
// to MergeThreshold.
func NewLearner(store Atomic, mergeThreshold float64) *Learner {
	if mergeThreshold <= 0 || mergeThreshold > 1 {
		mergeThreshold = MergeThreshold
	}
	return &Learner{
		store:          store,
		mergeThreshold: mergeThreshold,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Learn merges the pair into the closest existing entry when it scores at
// least the merge threshold, and inserts a new entry otherwise. The scan and
// the write run in one store section.
func (l *Learner) Learn(ctx context.Context, helpRequestID, question, answer string) (LearnResult, error) {
	var res LearnResult
	err := l.store.Atomically(ctx, func(tx *storage.Tx) error {
		var err error
		res, err = l.LearnIn(ctx, tx, helpRequestID, question, answer)
		return err
	})
	if err != nil {
		return LearnResult{}, err
	}
	return res, nil
}

// LearnIn is Learn for a caller that already owns a store section. store
// must be the section's transaction; using the Store itself deadlocks.
func (l *Learner) LearnIn(ctx context.Context, store EntryStore, helpRequestID, question, answer string) (LearnResult, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return LearnResult{}, fmt.Errorf("%w: question and answer are required", ErrInvalidInput)
	}

	entries, err := store.ListKnowledge(ctx)
	if err != nil {
		return LearnResult{}, fmt.Errorf("listing kb entries: %w", err)
	}

	qTok := similarity.Tokenize(question)
	var best *storage.KnowledgeEntry
	bestScore := 0.0
	for i := range entries {
		s := similarity.Jaccard(qTok, similarity.Tokenize(entries[i].Question))
		// Strictly greater: the earliest entry keeps a tie.
		if best == nil || s > bestScore {
			best, bestScore = &entries[i], s
		}
	}

	now := l.now()
	if best != nil && bestScore >= l.mergeThreshold {
		e := *best
		e.Question = question
		e.Answer = answer
		e.UpdatedAt = now
		e.LastHelpRequestID = helpRequestID
		if err := store.UpdateKnowledge(ctx, e); err != nil {
			return LearnResult{}, fmt.Errorf("updating kb entry %s: %w", e.ID, err)
		}
		slog.Debug("kb entry updated", "entry_id", e.ID, "help_request_id", helpRequestID, "score", bestScore)
		return LearnResult{EntryID: e.ID, Updated: true, Score: bestScore}, nil
	}

	e := storage.KnowledgeEntry{
		ID:                storage.NewID("kb"),
		Question:          question,
		Answer:            answer,
		CreatedAt:         now,
		UpdatedAt:         now,
		LastHelpRequestID: helpRequestID,
	}
	if err := store.InsertKnowledge(ctx, e); err != nil {
		return LearnResult{}, fmt.Errorf("inserting kb entry: %w", err)
	}
	slog.Debug("kb entry created", "entry_id", e.ID, "help_request_id", helpRequestID, "best_score", bestScore)
	return LearnResult{EntryID: e.ID, Created: true, Score: bestScore}, nil
}
