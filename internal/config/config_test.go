package config

import (
	"os"
	"testing"
)

const testYAML = `
server:
  listen: ":9090"
  shutdown_timeout: "5s"

logging:
  level: debug
  json: true

planner:
  enabled: true
  base_url: "${PLANNER_BASE_URL}"
  api_key: "${PLANNER_API_KEY}"
  provider: groq
  model: llama-3.3-70b-versatile
  max_steps: 6
  min_confidence: 0.6

confirmation:
  llm_enabled: true
  min_confidence: 0.75

memory:
  base_url: "https://ltm.internal.example"
  api_key: "${LTM_API_KEY}"
  short_term_limit: 30

google:
  client_id: "${GOOGLE_CLIENT_ID}"
  client_secret: "${GOOGLE_CLIENT_SECRET}"
  redirect_uri: "https://app.example/oauth/callback"
  refresh_schedule: "@every 5m"

web_search:
  api_key: "${BRAVE_API_KEY}"

storage:
  data_dir: /var/lib/cortexagent

redis:
  addr: "localhost:6379"

prepare:
  script: hooks/prepare.lua

security:
  token_secret: "${TOKEN_SECRET}"
`

func TestParseExpandsEnv(t *testing.T) {
	os.Setenv("PLANNER_API_KEY", "gsk_test_123")
	os.Setenv("GOOGLE_CLIENT_ID", "cid.apps.googleusercontent.com")
	defer os.Unsetenv("PLANNER_API_KEY")
	defer os.Unsetenv("GOOGLE_CLIENT_ID")

	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.APIKey != "gsk_test_123" {
		t.Errorf("planner api_key = %q", cfg.Planner.APIKey)
	}
	if cfg.Google.ClientID != "cid.apps.googleusercontent.com" {
		t.Errorf("google client_id = %q", cfg.Google.ClientID)
	}
}

func TestParseLeavesUnsetEnvIntact(t *testing.T) {
	os.Unsetenv("BRAVE_API_KEY")
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.APIKey != "${BRAVE_API_KEY}" {
		t.Errorf("unset variable must stay visible, got %q", cfg.Search.APIKey)
	}
}

func TestParseFields(t *testing.T) {
	cfg, err := Parse([]byte(testYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Planner.MaxSteps != 6 || cfg.Planner.Model != "llama-3.3-70b-versatile" {
		t.Errorf("planner = %+v", cfg.Planner)
	}
	if cfg.Memory.ShortTermLimit != 30 {
		t.Errorf("short_term_limit = %d", cfg.Memory.ShortTermLimit)
	}
	if cfg.Google.RefreshSchedule != "@every 5m" {
		t.Errorf("refresh_schedule = %q", cfg.Google.RefreshSchedule)
	}
	if got := cfg.Server.ShutdownTimeoutDuration().String(); got != "5s" {
		t.Errorf("shutdown timeout = %s", got)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != ":8080" {
		t.Errorf("default listen = %q", cfg.Server.Listen)
	}
	if cfg.Planner.MaxSteps != 4 || cfg.Planner.MinRealSteps != 1 {
		t.Errorf("planner defaults = %+v", cfg.Planner)
	}
	if cfg.Planner.MinConfidence != 0.55 {
		t.Errorf("min_confidence default = %v", cfg.Planner.MinConfidence)
	}
	if cfg.Memory.ShortTermLimit != 20 {
		t.Errorf("short_term_limit default = %d", cfg.Memory.ShortTermLimit)
	}
	if cfg.Google.RefreshSchedule != "@every 10m" {
		t.Errorf("refresh_schedule default = %q", cfg.Google.RefreshSchedule)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("want error for missing file")
	}
}
