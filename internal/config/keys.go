package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FRONTDESK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FRONTDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "FRONTDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "responder.backend", typ: kString, env: "FRONTDESK_RESPONDER_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Responder.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Responder.Backend },
	},
	{
		key: "responder.timeout", typ: kDuration, env: "FRONTDESK_RESPONDER_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Responder.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Responder.Timeout },
	},
	{
		key: "gemini.api_key", typ: kString, env: "FRONTDESK_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "gemini.model", typ: kString, env: "FRONTDESK_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Gemini.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.Model },
	},
	{
		key: "ollama.base_url", typ: kString, env: "FRONTDESK_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "FRONTDESK_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "matching.answer_threshold", typ: kFloat, env: "FRONTDESK_MATCHING_ANSWER_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.AnswerThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.AnswerThreshold },
	},
	{
		key: "matching.listing_threshold", typ: kFloat, env: "FRONTDESK_MATCHING_LISTING_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.ListingThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.ListingThreshold },
	},
	{
		key: "matching.merge_threshold", typ: kFloat, env: "FRONTDESK_MATCHING_MERGE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Matching.MergeThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Matching.MergeThreshold },
	},
	{
		key: "escalation.hold_timeout", typ: kDuration, env: "FRONTDESK_ESCALATION_HOLD_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Escalation.HoldTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Escalation.HoldTimeout },
	},
	{
		key: "livekit.api_key", typ: kString, env: "FRONTDESK_LIVEKIT_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LiveKit.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.APIKey },
	},
	{
		key: "livekit.api_secret", typ: kString, env: "FRONTDESK_LIVEKIT_API_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LiveKit.APISecret = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.APISecret },
	},
	{
		key: "livekit.ws_url", typ: kString, env: "FRONTDESK_LIVEKIT_WS_URL",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.WSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.WSURL },
	},
	{
		key: "livekit.room", typ: kString, env: "FRONTDESK_LIVEKIT_ROOM",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.Room = v.(string) },
		extract: func(cfg Config) any { return cfg.LiveKit.Room },
	},
	{
		key: "livekit.token_ttl", typ: kDuration, env: "FRONTDESK_LIVEKIT_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.LiveKit.TokenTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.LiveKit.TokenTTL },
	},
}

// parseValue converts raw to the Go type s.apply expects.
func parseValue(s keySpec, raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		d, err := time.ParseDuration(raw)
		if err == nil && d <= 0 {
			err = fmt.Errorf("duration must be positive")
		}
		return d, err
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (s.typ != kString && raw == "") {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", s.key, raw, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := parseValue(s, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using previous value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
