package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write kept colliding with a concurrent
// writer after all retry attempts were spent.
var ErrConflict = errors.New("store conflict")

// Role identifies who authored a Message.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSupervisor:
		return true
	}
	return false
}

// Status is the lifecycle state of a HelpRequest.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusResolved
}

type Conversation struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at"`
	Title     string     `json:"title"`
}

// ConversationPatch lists the fields to change. Nil fields are left alone;
// a non-nil empty Title clears the title.
type ConversationPatch struct {
	Title   *string
	EndedAt *time.Time
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	HelpRequestID  string    `json:"help_request_id,omitempty"`
}

type HelpRequest struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Question       string    `json:"question"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	// TimeoutAt is stored for callers that want a deadline; nothing enforces it.
	TimeoutAt    time.Time `json:"timeout_at"`
	SupervisorID string    `json:"supervisor_id,omitempty"`
}

// Resolved reports whether the request has reached its terminal state.
func (h HelpRequest) Resolved() bool {
	return h.Status == StatusResolved
}

// HelpRequestPatch lists the fields to change on a help request.
// UpdatedAt is always written.
type HelpRequestPatch struct {
	Status       *Status
	SupervisorID *string
	UpdatedAt    time.Time
}

type KnowledgeEntry struct {
	ID                string    `json:"id"`
	Question          string    `json:"question"`
	Answer            string    `json:"answer"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LastHelpRequestID string    `json:"last_help_request_id,omitempty"`
}
