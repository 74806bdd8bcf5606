package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Responder  ResponderConfig
	Gemini     GeminiConfig
	Ollama     OllamaConfig
	Matching   MatchingConfig
	Escalation EscalationConfig
	LiveKit    LiveKitConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ResponderConfig struct {
	// Backend is one of gemini, ollama or none.
	Backend string
	Timeout time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type MatchingConfig struct {
	AnswerThreshold  float64
	ListingThreshold float64
	MergeThreshold   float64
}

type EscalationConfig struct {
	HoldTimeout time.Duration
}

type LiveKitConfig struct {
	APIKey    string
	APISecret string
	WSURL     string
	Room      string
	TokenTTL  time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Responder: ResponderConfig{
			Backend: "gemini",
			Timeout: 8 * time.Second,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.2",
		},
		Matching: MatchingConfig{
			AnswerThreshold:  0.60,
			ListingThreshold: 0.50,
			MergeThreshold:   0.90,
		},
		Escalation: EscalationConfig{
			HoldTimeout: 15 * time.Minute,
		},
		LiveKit: LiveKitConfig{
			Room:     "demo-room",
			TokenTTL: time.Hour,
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "frontdesk-data"
		}
	}
	return filepath.Join(dir, "frontdesk")
}

// Load reads configuration from $XDG_CONFIG_HOME/frontdesk/config.yaml (or
// config.json), then a .env file in the working directory, then FRONTDESK_*
// environment variables. Later sources win.
// Secrets are only read from the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch c.Responder.Backend {
	case "gemini", "ollama", "none":
	default:
		return fmt.Errorf("invalid responder.backend %q: want gemini, ollama or none", c.Responder.Backend)
	}
	for name, v := range map[string]float64{
		"matching.answer_threshold":  c.Matching.AnswerThreshold,
		"matching.listing_threshold": c.Matching.ListingThreshold,
		"matching.merge_threshold":   c.Matching.MergeThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("invalid %s %v: must be within [0, 1]", name, v)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}
