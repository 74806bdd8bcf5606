package responder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/frontdesk/internal/ollama"
)

// Backend names accepted by New.
const (
	BackendGemini = "gemini"
	BackendOllama = "ollama"
	BackendNone   = "none"
)

// Config selects and configures a backend.
type Config struct {
	Backend      string
	GeminiAPIKey string
	GeminiModel  string
	OllamaURL    string
	OllamaModel  string
	Timeout      time.Duration
}

// New builds the configured backend wrapped in WithTimeout. A Gemini
// backend without an API key degrades to Disabled so the service still
// answers with fallback text.
func New(ctx context.Context, cfg Config) (Responder, error) {
	var r Responder
	switch cfg.Backend {
	case BackendNone, "":
		r = Disabled{}
	case BackendGemini:
		g, err := NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Warn("gemini responder unavailable, replies will use fallback text", "error", err)
			r = Disabled{Reason: "gemini not configured"}
		} else {
			slog.Info("responder ready", "backend", BackendGemini, "model", g.Model())
			r = g
		}
	case BackendOllama:
		o := NewOllama(ollama.New(cfg.OllamaURL), cfg.OllamaModel)
		slog.Info("responder ready", "backend", BackendOllama, "model", o.Model(), "url", cfg.OllamaURL)
		r = o
	default:
		return nil, fmt.Errorf("unknown responder backend %q", cfg.Backend)
	}
	return WithTimeout(r, cfg.Timeout), nil
}
