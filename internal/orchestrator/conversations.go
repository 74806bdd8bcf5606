package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/frontdesk/internal/kb"
	"github.com/kalambet/frontdesk/internal/storage"
)

// StartConversation creates a conversation. A blank title is left unset so
// the first utterance can seed it.
func (o *Orchestrator) StartConversation(ctx context.Context, title string) (storage.Conversation, error) {
	c := storage.Conversation{
		ID:        storage.NewID("conv"),
		StartedAt: o.now(),
		Title:     strings.TrimSpace(title),
	}
	if err := o.store.InsertConversation(ctx, c); err != nil {
		return storage.Conversation{}, fmt.Errorf("inserting conversation: %w", err)
	}
	slog.Info("conversation started", "conversation_id", c.ID)
	return c, nil
}

// GetConversation returns one conversation or storage.ErrNotFound.
func (o *Orchestrator) GetConversation(ctx context.Context, id string) (storage.Conversation, error) {
	c, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	return c, nil
}

// ListConversations returns every conversation, newest first.
func (o *Orchestrator) ListConversations(ctx context.Context) ([]storage.Conversation, error) {
	return o.store.ListConversations(ctx)
}

// RenameConversation sets the title. A blank title clears it.
func (o *Orchestrator) RenameConversation(ctx context.Context, id, title string) (storage.Conversation, error) {
	title = strings.TrimSpace(title)
	c, err := o.store.UpdateConversation(ctx, id, storage.ConversationPatch{Title: &title})
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	return c, nil
}

// EndConversation stamps ended_at with the current time.
func (o *Orchestrator) EndConversation(ctx context.Context, id string) (storage.Conversation, error) {
	now := o.now()
	c, err := o.store.UpdateConversation(ctx, id, storage.ConversationPatch{EndedAt: &now})
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("conversation %s: %w", id, err)
	}
	return c, nil
}

// Transcript returns the customer-visible messages of a conversation.
// Supervisor messages are never included. A non-zero since keeps only
// messages created after it.
func (o *Orchestrator) Transcript(ctx context.Context, conversationID string, since time.Time) ([]storage.Message, error) {
	if _, err := o.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	msgs, err := o.store.ListMessages(ctx, conversationID, since)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	visible := make([]storage.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == storage.RoleSupervisor {
			continue
		}
		visible = append(visible, m)
	}
	return visible, nil
}

// AuditTrail returns the supervisor messages recorded for a help request.
func (o *Orchestrator) AuditTrail(ctx context.Context, helpRequestID string) ([]storage.Message, error) {
	return o.tracker.Audit(ctx, helpRequestID)
}

// KnowledgeBase returns every KB entry in insertion order.
func (o *Orchestrator) KnowledgeBase(ctx context.Context) ([]storage.KnowledgeEntry, error) {
	return o.store.ListKnowledge(ctx)
}

// SearchKB ranks KB entries against query.
func (o *Orchestrator) SearchKB(ctx context.Context, query string, k int, minScore float64) ([]kb.Match, error) {
	return o.matcher.Retrieve(ctx, query, k, minScore)
}

// SeedKB replaces the knowledge base with items, ids kb_seed_1..n. With all
// set every other table is cleared too. Returns the number of entries.
func (o *Orchestrator) SeedKB(ctx context.Context, items []kb.SeedItem, all bool) (int, error) {
	entries, err := kb.SeedEntries(items, o.now())
	if err != nil {
		return 0, err
	}
	err = o.store.Atomically(ctx, func(tx *storage.Tx) error {
		if all {
			if err := tx.DeleteAll(ctx); err != nil {
				return err
			}
		}
		return tx.ReplaceKnowledge(ctx, entries)
	})
	if err != nil {
		return 0, fmt.Errorf("seeding kb: %w", err)
	}
	slog.Info("kb seeded", "entries", len(entries), "all", all)
	return len(entries), nil
}

// Reset clears every table.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if err := o.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}
	slog.Info("store reset")
	return nil
}

// SchemaVersion is the newest applied store migration, 0 before any.
func (o *Orchestrator) SchemaVersion() (int, error) {
	versions, err := o.store.AppliedMigrations()
	if err != nil {
		return 0, fmt.Errorf("reading applied migrations: %w", err)
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[len(versions)-1], nil
}
