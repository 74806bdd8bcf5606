// Package responder turns KB answers and small talk into natural replies
// using a language model. Every failure is reported as ErrUnavailable so
// callers can fall back to fixed text.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// ErrUnavailable is matched by every error a Responder returns.
var ErrUnavailable = errors.New("responder unavailable")

// Fixed texts the responder produces without asking the model.
const (
	IDontKnow        = "I don't know"
	SmallTalkDefault = "Hello! How can I help you today?"
	DefaultTone      = "friendly, concise"
	DefaultTimeout   = 8 * time.Second
)

// Kind selects the prompt and the post-processing rules.
type Kind int

const (
	// SmallTalk answers greetings and pleasantries without business facts.
	SmallTalk Kind = iota
	// Conversational rephrases a known KB answer for the question asked.
	Conversational
	// Strict answers only from KBContext and otherwise says IDontKnow.
	Strict
)

func (k Kind) String() string {
	switch k {
	case SmallTalk:
		return "small_talk"
	case Conversational:
		return "conversational"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Request is the context handed to the model.
type Request struct {
	Kind      Kind
	Question  string
	KBAnswer  string
	KBContext string
	// Tone is used by Conversational; empty means DefaultTone.
	Tone string
}

// Reply is a model answer with a rough confidence in [0, 1].
type Reply struct {
	Text       string
	Confidence float64
}

// Responder produces a reply for a request.
type Responder interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

// UnavailableError explains why no reply was produced.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("responder unavailable (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("responder unavailable (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(reason string, err error) error {
	return &UnavailableError{Reason: reason, Err: err}
}

// Reason returns the reason recorded in an UnavailableError, or "" if err
// is not one.
func Reason(err error) string {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}

// Disabled never answers. It stands in when no model is configured.
type Disabled struct {
	// Reason is reported in every error; empty means "disabled".
	Reason string
}

func (d Disabled) Respond(context.Context, Request) (Reply, error) {
	reason := d.Reason
	if reason == "" {
		reason = "disabled"
	}
	return Reply{}, unavailable(reason, nil)
}

var hedgeRe = regexp.MustCompile(`(?i)(not sure|unsure|can't|cannot|no information|don't know)`)

// Confidence scores text by length, 12 words or more being full confidence,
// and cuts the score to 30% when the text hedges.
func Confidence(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	c := min(1, float64(words)/12)
	if hedgeRe.MatchString(text) {
		c *= 0.3
	}
	return c
}

// generateFunc asks a backend for raw text.
type generateFunc func(ctx context.Context, p Prompt) (string, error)

// respondWith runs the shared request flow for a model backend.
func respondWith(ctx context.Context, backend string, gen generateFunc, req Request) (Reply, error) {
	// Nothing to ground on: no need to ask.
	if req.Kind == Strict && strings.TrimSpace(req.KBContext) == "" {
		return Reply{Text: IDontKnow, Confidence: Confidence(IDontKnow)}, nil
	}

	start := time.Now()
	raw, err := gen(ctx, BuildPrompt(req))
	if err != nil {
		slog.Warn("responder call failed", "backend", backend, "kind", req.Kind.String(), "error", err)
		var ue *UnavailableError
		if errors.As(err, &ue) {
			return Reply{}, err
		}
		return Reply{}, unavailable(backend+"_error", err)
	}
	text := strings.TrimSpace(raw)
	slog.Debug("responder reply", "backend", backend, "kind", req.Kind.String(), "ms", time.Since(start).Milliseconds(), "chars", len(text))

	switch req.Kind {
	case Strict:
		if text == "" {
			text = IDontKnow
		}
	case SmallTalk:
		if text == "" {
			text = SmallTalkDefault
		}
	default:
		if text == "" {
			return Reply{}, unavailable("empty", nil)
		}
	}
	return Reply{Text: text, Confidence: Confidence(text)}, nil
}
