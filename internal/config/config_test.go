package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.MaxWorkers != 0 {
		t.Errorf("expected unbounded max_workers, got %d", cfg.Defaults.MaxWorkers)
	}

	if cfg.Defaults.AgentCommand != "claude" {
		t.Errorf("expected default agent command 'claude', got %q", cfg.Defaults.AgentCommand)
	}

	if len(cfg.Defaults.AgentArgs) != 1 || cfg.Defaults.AgentArgs[0] != "-p" {
		t.Errorf("expected default agent args [-p], got %v", cfg.Defaults.AgentArgs)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
anthropic:
  api_key: sk-ant-test-key-12345678
  model: claude-sonnet-4-5
aws:
  use_bedrock: true
  region: us-west-2
defaults:
  max_workers: 4
  agent_command: my-agent
worktrees:
  base_dir: /tmp/worktrees
timeouts:
  unit: 20m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key-12345678" {
		t.Errorf("api_key = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", cfg.Anthropic.Model)
	}
	if !cfg.AWS.UseBedrock || cfg.AWS.Region != "us-west-2" {
		t.Errorf("aws = %+v", cfg.AWS)
	}
	if cfg.Defaults.MaxWorkers != 4 {
		t.Errorf("max_workers = %d", cfg.Defaults.MaxWorkers)
	}
	if cfg.Defaults.AgentCommand != "my-agent" {
		t.Errorf("agent_command = %q", cfg.Defaults.AgentCommand)
	}
	if cfg.Worktrees.BaseDir != "/tmp/worktrees" {
		t.Errorf("base_dir = %q", cfg.Worktrees.BaseDir)
	}
	if cfg.Timeouts.Unit != 20*time.Minute {
		t.Errorf("timeouts.unit = %v", cfg.Timeouts.Unit)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_WAVERUNNER_KEY", "sk-ant-from-env-12345")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_WAVERUNNER_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env-12345" {
		t.Errorf("api_key = %q, want env expansion", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissing(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetAPIKeyPrefersEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env-key-12345678")

	cfg := &Config{}
	cfg.Anthropic.APIKey = "sk-ant-config-key-1234"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "sk-ant-env-key-12345678" {
		t.Errorf("key = %q, want env value", key)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := &Config{}
	cfg.Anthropic.APIKey = "sk-ant-config-key-1234"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "sk-ant-config-key-1234" {
		t.Errorf("key = %q, want config value", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(&Config{}); err != ErrNoAPIKey {
		t.Errorf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "sk-ant-api03-abcdefghij", false},
		{"empty", "", true},
		{"wrong prefix", "api-key-1234567890123", true},
		{"too short", "sk-ant-x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("MaskAPIKey(empty) = %q", got)
	}
	if got := MaskAPIKey("short"); got != "****" {
		t.Errorf("MaskAPIKey(short) = %q", got)
	}
	masked := MaskAPIKey("sk-ant-REDACTED")
	if masked != "sk-ant-...mnop" {
		t.Errorf("MaskAPIKey() = %q", masked)
	}
}
