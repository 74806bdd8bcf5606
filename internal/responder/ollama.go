package responder

import (
	"context"

	"github.com/kalambet/frontdesk/internal/ollama"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.2"

// chatter is the part of *ollama.Client the backend calls.
type chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)
}

// Ollama answers through a local Ollama server.
type Ollama struct {
	client chatter
	model  string
}

// NewOllama creates an Ollama backend on an existing client.
func NewOllama(client *ollama.Client, model string) *Ollama {
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{client: client, model: model}
}

// Model returns the configured model name.
func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Respond(ctx context.Context, req Request) (Reply, error) {
	return respondWith(ctx, "ollama", o.generate, req)
}

func (o *Ollama) generate(ctx context.Context, p Prompt) (string, error) {
	text, err := o.client.Chat(ctx, o.model, []ollama.Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}, &ollama.Options{Temperature: 0.3})
	if ollama.IsModelMissing(err) {
		return "", unavailable("model_missing", err)
	}
	return text, err
}
