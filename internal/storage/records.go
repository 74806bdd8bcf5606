package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// records holds the typed record operations shared by Store and Tx.
type records struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Conversations ---

func (r records) InsertConversation(ctx context.Context, c Conversation) error {
	var endedAt sql.NullString
	if c.EndedAt != nil {
		endedAt = nullString(formatTime(*c.EndedAt))
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO conversations (id, started_at, ended_at, title) VALUES (?, ?, ?, ?)`,
		c.ID, formatTime(c.StartedAt), endedAt, nullString(c.Title),
	)
	return err
}

const conversationColumns = `id, started_at, ended_at, title`

func scanConversation(s scanner) (Conversation, error) {
	var c Conversation
	var startedAt string
	var endedAt, title sql.NullString
	if err := s.Scan(&c.ID, &startedAt, &endedAt, &title); err != nil {
		return Conversation{}, err
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("parsing started_at: %w", err)
	}
	c.StartedAt = t
	if endedAt.Valid {
		e, err := parseTime(endedAt.String)
		if err != nil {
			return Conversation{}, fmt.Errorf("parsing ended_at: %w", err)
		}
		c.EndedAt = &e
	}
	c.Title = title.String
	return c, nil
}

func (r records) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

// ListConversations returns all conversations, most recently started first.
func (r records) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+conversationColumns+` FROM conversations ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// UpdateConversation applies patch and returns the updated record.
func (r records) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (Conversation, error) {
	var sets []string
	var args []any
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullString(*patch.Title))
	}
	if patch.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, formatTime(*patch.EndedAt))
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := r.q.ExecContext(ctx, `UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return Conversation{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return Conversation{}, err
		}
		if n == 0 {
			return Conversation{}, ErrNotFound
		}
	}
	return r.GetConversation(ctx, id)
}

// --- Messages ---

func (r records) AppendMessage(ctx context.Context, m Message) error {
	if !m.Role.Valid() {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at, help_request_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, string(m.Role), m.Content, formatTime(m.CreatedAt), nullString(m.HelpRequestID),
	)
	return err
}

const messageColumns = `id, conversation_id, role, content, created_at, help_request_id`

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	var results []Message
	for rows.Next() {
		var m Message
		var role, createdAt string
		var helpRequestID sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &createdAt, &helpRequestID); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for message %s: %w", m.ID, err)
		}
		m.Role = Role(role)
		m.CreatedAt = t
		m.HelpRequestID = helpRequestID.String
		results = append(results, m)
	}
	return results, rows.Err()
}

// ListMessages returns the messages of a conversation ordered by created_at,
// ties broken by insertion order. A non-zero since keeps only messages
// created strictly after it. All roles are returned; customer-facing callers
// must filter supervisor messages.
func (r records) ListMessages(ctx context.Context, conversationID string, since time.Time) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	if !since.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, formatTime(since))
	}
	query += ` ORDER BY created_at ASC, seq ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListHelpRequestMessages returns the messages linked to a help request with
// the given role, in insertion order.
func (r records) ListHelpRequestMessages(ctx context.Context, helpRequestID string, role Role) ([]Message, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE help_request_id = ? AND role = ? ORDER BY created_at ASC, seq ASC`,
		helpRequestID, string(role),
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// --- Help requests ---

func (r records) InsertHelpRequest(ctx context.Context, h HelpRequest) error {
	if !h.Status.Valid() {
		return fmt.Errorf("invalid help request status %q", h.Status)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO help_requests (id, conversation_id, question, status, created_at, updated_at, timeout_at, supervisor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.ConversationID, h.Question, string(h.Status),
		formatTime(h.CreatedAt), formatTime(h.UpdatedAt), formatTime(h.TimeoutAt), nullString(h.SupervisorID),
	)
	return err
}

const helpRequestColumns = `id, conversation_id, question, status, created_at, updated_at, timeout_at, supervisor_id`

func scanHelpRequest(s scanner) (HelpRequest, error) {
	var h HelpRequest
	var status, createdAt, updatedAt, timeoutAt string
	var supervisorID sql.NullString
	if err := s.Scan(&h.ID, &h.ConversationID, &h.Question, &status, &createdAt, &updatedAt, &timeoutAt, &supervisorID); err != nil {
		return HelpRequest{}, err
	}
	var err error
	if h.CreatedAt, err = parseTime(createdAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing created_at for help request %s: %w", h.ID, err)
	}
	if h.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing updated_at for help request %s: %w", h.ID, err)
	}
	if h.TimeoutAt, err = parseTime(timeoutAt); err != nil {
		return HelpRequest{}, fmt.Errorf("parsing timeout_at for help request %s: %w", h.ID, err)
	}
	h.Status = Status(status)
	h.SupervisorID = supervisorID.String
	return h, nil
}

func (r records) GetHelpRequest(ctx context.Context, id string) (HelpRequest, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+helpRequestColumns+` FROM help_requests WHERE id = ?`, id)
	h, err := scanHelpRequest(row)
	if err == sql.ErrNoRows {
		return HelpRequest{}, ErrNotFound
	}
	return h, err
}

// ListHelpRequests returns help requests newest first. An empty status
// returns every request.
func (r records) ListHelpRequests(ctx context.Context, status Status) ([]HelpRequest, error) {
	query := `SELECT ` + helpRequestColumns + ` FROM help_requests`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []HelpRequest
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// UpdateHelpRequest applies patch and returns the updated record.
func (r records) UpdateHelpRequest(ctx context.Context, id string, patch HelpRequestPatch) (HelpRequest, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(patch.UpdatedAt)}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return HelpRequest{}, fmt.Errorf("invalid help request status %q", *patch.Status)
		}
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.SupervisorID != nil {
		sets = append(sets, "supervisor_id = ?")
		args = append(args, nullString(*patch.SupervisorID))
	}
	args = append(args, id)

	res, err := r.q.ExecContext(ctx, `UPDATE help_requests SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return HelpRequest{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return HelpRequest{}, err
	}
	if n == 0 {
		return HelpRequest{}, ErrNotFound
	}
	return r.GetHelpRequest(ctx, id)
}

// --- Knowledge base ---

func (r records) InsertKnowledge(ctx context.Context, e KnowledgeEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO kb_entries (id, question, answer, created_at, updated_at, last_help_request_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Question, e.Answer, formatTime(e.CreatedAt), formatTime(e.UpdatedAt), nullString(e.LastHelpRequestID),
	)
	return err
}

// UpdateKnowledge overwrites the mutable fields of an existing entry.
// CreatedAt is never changed.
func (r records) UpdateKnowledge(ctx context.Context, e KnowledgeEntry) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE kb_entries SET question = ?, answer = ?, updated_at = ?, last_help_request_id = ?
		WHERE id = ?`,
		e.Question, e.Answer, formatTime(e.UpdatedAt), nullString(e.LastHelpRequestID), e.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const knowledgeColumns = `id, question, answer, created_at, updated_at, last_help_request_id`

func scanKnowledge(s scanner) (KnowledgeEntry, error) {
	var e KnowledgeEntry
	var createdAt, updatedAt string
	var lastHelpRequestID sql.NullString
	if err := s.Scan(&e.ID, &e.Question, &e.Answer, &createdAt, &updatedAt, &lastHelpRequestID); err != nil {
		return KnowledgeEntry{}, err
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return KnowledgeEntry{}, fmt.Errorf("parsing created_at for kb entry %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return KnowledgeEntry{}, fmt.Errorf("parsing updated_at for kb entry %s: %w", e.ID, err)
	}
	e.LastHelpRequestID = lastHelpRequestID.String
	return e, nil
}

func (r records) GetKnowledge(ctx context.Context, id string) (KnowledgeEntry, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM kb_entries WHERE id = ?`, id)
	e, err := scanKnowledge(row)
	if err == sql.ErrNoRows {
		return KnowledgeEntry{}, ErrNotFound
	}
	return e, err
}

// ListKnowledge returns every KB entry in insertion order.
func (r records) ListKnowledge(ctx context.Context) ([]KnowledgeEntry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+knowledgeColumns+` FROM kb_entries ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []KnowledgeEntry
	for rows.Next() {
		e, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// ReplaceKnowledge deletes every KB entry and inserts entries in order.
func (r records) ReplaceKnowledge(ctx context.Context, entries []KnowledgeEntry) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM kb_entries`); err != nil {
		return fmt.Errorf("clearing kb: %w", err)
	}
	for _, e := range entries {
		if err := r.InsertKnowledge(ctx, e); err != nil {
			return fmt.Errorf("inserting kb entry %s: %w", e.ID, err)
		}
	}
	return nil
}

func (r records) deleteAll(ctx context.Context) error {
	for _, table := range []string{"messages", "help_requests", "kb_entries", "conversations"} {
		if _, err := r.q.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// DeleteAll clears every table inside the current section.
func (t *Tx) DeleteAll(ctx context.Context) error {
	return t.deleteAll(ctx)
}
