package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	return writeTempConfigAs(t, "config.json", content)
}

func writeTempConfigAs(t *testing.T, name, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// clearEnv blanks every FRONTDESK_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Responder.Backend != "gemini" {
		t.Errorf("Responder.Backend = %q, want gemini", cfg.Responder.Backend)
	}
	if cfg.Responder.Timeout != 8*time.Second {
		t.Errorf("Responder.Timeout = %v, want 8s", cfg.Responder.Timeout)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini.Model = %q", cfg.Gemini.Model)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q, want %q", cfg.Ollama.BaseURL, "http://localhost:11434")
	}
	if cfg.Matching.AnswerThreshold != 0.60 || cfg.Matching.ListingThreshold != 0.50 || cfg.Matching.MergeThreshold != 0.90 {
		t.Errorf("Matching = %+v", cfg.Matching)
	}
	if cfg.Escalation.HoldTimeout != 15*time.Minute {
		t.Errorf("Escalation.HoldTimeout = %v, want 15m", cfg.Escalation.HoldTimeout)
	}
	if cfg.LiveKit.Room != "demo-room" || cfg.LiveKit.TokenTTL != time.Hour {
		t.Errorf("LiveKit = %+v", cfg.LiveKit)
	}
}

// TestFileParsing verifies that fields are read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `{
  "server.port": 5000,
  "storage.data_dir": "/tmp/frontdesk-test",
  "responder.backend": "ollama",
  "responder.timeout": "3s",
  "ollama.model": "qwen2.5",
  "matching.answer_threshold": 0.7,
  "escalation.hold_timeout": "5m",
  "livekit.ws_url": "wss://example.livekit.cloud"
}`)
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/frontdesk-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Responder.Backend != "ollama" || cfg.Responder.Timeout != 3*time.Second {
		t.Errorf("Responder = %+v", cfg.Responder)
	}
	if cfg.Ollama.Model != "qwen2.5" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.Matching.AnswerThreshold != 0.7 {
		t.Errorf("Matching.AnswerThreshold = %v", cfg.Matching.AnswerThreshold)
	}
	if cfg.Escalation.HoldTimeout != 5*time.Minute {
		t.Errorf("Escalation.HoldTimeout = %v", cfg.Escalation.HoldTimeout)
	}
	if cfg.LiveKit.WSURL != "wss://example.livekit.cloud" {
		t.Errorf("LiveKit.WSURL = %q", cfg.LiveKit.WSURL)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRONTDESK_SERVER_PORT", "7000")
	t.Setenv("FRONTDESK_MATCHING_MERGE_THRESHOLD", "0.95")
	t.Setenv("FRONTDESK_GEMINI_API_KEY", "env-key")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5000}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Matching.MergeThreshold != 0.95 {
		t.Errorf("MergeThreshold = %v, want 0.95", cfg.Matching.MergeThreshold)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want %q", cfg.Gemini.APIKey, "env-key")
	}
}

// TestSecretsIgnoredInFile verifies secrets are only taken from the environment.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{"gemini.api_key": "file-key", "livekit.api_secret": "file-secret"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gemini.APIKey != "" || cfg.LiveKit.APISecret != "" {
		t.Errorf("secrets read from file: %q / %q", cfg.Gemini.APIKey, cfg.LiveKit.APISecret)
	}
}

func TestUnparseableEnvKeepsPreviousValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("FRONTDESK_RESPONDER_TIMEOUT", "soon")

	cfg, err := loadWith(writeTempConfig(t, `{"responder.timeout": "2s"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Responder.Timeout != 2*time.Second {
		t.Errorf("Responder.Timeout = %v, want 2s", cfg.Responder.Timeout)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]string{
		"backend":   `{"responder.backend": "openai"}`,
		"threshold": `{"matching.answer_threshold": 1.5}`,
		"duration":  `{"escalation.hold_timeout": "forever"}`,
		"negative":  `{"livekit.token_ttl": "-1m"}`,
		"log level": `{"log.level": "verbose"}`,
		"port":      `{"server.port": 70000}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := loadWith(writeTempConfig(t, content)); err == nil {
				t.Errorf("expected error for %s", content)
			}
		})
	}
}

func TestYAMLNestedSections(t *testing.T) {
	clearEnv(t)

	b := writeTempConfigAs(t, "config.yaml", `
server:
  port: 4500
responder:
  backend: none
matching:
  listing_threshold: 0.4
escalation:
  hold_timeout: 45m
`)
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4500 || cfg.Responder.Backend != "none" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Matching.ListingThreshold != 0.4 || cfg.Escalation.HoldTimeout != 45*time.Minute {
		t.Errorf("matching = %+v, escalation = %+v", cfg.Matching, cfg.Escalation)
	}
}

func TestYAMLSaveRoundTrip(t *testing.T) {
	b := writeTempConfigAs(t, "config.yaml", "server:\n  port: 4500\n")

	if err := setKey(b, "ollama.model", "qwen2.5"); err != nil {
		t.Fatalf("setKey: %v", err)
	}

	reloaded := newFileBackend(b.path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 4500 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}
	if v, ok, _ := reloaded.GetString("ollama.model"); !ok || v != "qwen2.5" {
		t.Errorf("ollama.model = %q", v)
	}
}

func TestConfigFilePathPrefersYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := configFilePath(); got != filepath.Join(dir, "frontdesk", "config.json") {
		t.Errorf("configFilePath() = %q, want config.json", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, "frontdesk"), 0o755); err != nil {
		t.Fatal(err)
	}
	yml := filepath.Join(dir, "frontdesk", "config.yaml")
	if err := os.WriteFile(yml, []byte("server:\n  port: 4000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := configFilePath(); got != yml {
		t.Errorf("configFilePath() = %q, want %q", got, yml)
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	if err := setKey(b, "server.port", "4100"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "escalation.hold_timeout", "30m"); err != nil {
		t.Fatalf("setKey hold_timeout: %v", err)
	}

	reloaded := newFileBackend(b.path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 4100 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}
	if v, ok, _ := reloaded.GetString("escalation.hold_timeout"); !ok || v != "30m" {
		t.Errorf("escalation.hold_timeout = %q", v)
	}
}

func TestUnsetKey(t *testing.T) {
	b := writeTempConfig(t, `{"ollama.model": "qwen2.5", "server.port": 4100}`)

	if err := unsetKey(b, "ollama.model"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	reloaded := newFileBackend(b.path)
	if _, ok, _ := reloaded.GetString("ollama.model"); ok {
		t.Error("ollama.model still present after unset")
	}
	if v, ok, _ := reloaded.GetInt("server.port"); !ok || v != 4100 {
		t.Errorf("server.port = %d, %v, want untouched", v, ok)
	}

	if err := unsetKey(b, "nope"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := unsetKey(b, "livekit.api_secret"); err == nil {
		t.Error("expected error for secret key")
	}
}

func TestSetKeyRejects(t *testing.T) {
	b := writeTempConfig(t, `{}`)

	err := setKey(b, "gemini.api_key", "x")
	if err == nil || !strings.Contains(err.Error(), "FRONTDESK_GEMINI_API_KEY") {
		t.Errorf("secret: err = %v, want hint at env var", err)
	}
	if err := setKey(b, "matching.merge_threshold", "high"); err == nil {
		t.Error("expected error for non-numeric threshold")
	}
	if err := setKey(b, "no.such.key", "1"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Gemini.APIKey = "hidden"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Value, "hidden") {
			t.Errorf("secret leaked via %s", ki.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "gemini.api_key" || k == "livekit.api_key" || k == "livekit.api_secret" {
			t.Errorf("ValidKeys includes secret %s", k)
		}
	}
}
