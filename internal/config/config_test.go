package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeWhitelistFile(t *testing.T, content string) string {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "whitelist-*.yml")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	return tmpfile.Name()
}

const minimalWhitelist = `version: 1
watch:
  - category: webserver
    product: nginx
    aliases: ["nginx"]
`

func TestLoad(t *testing.T) {
	path := writeWhitelistFile(t, minimalWhitelist)

	os.Setenv("WHITELIST_PATH", path)
	os.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T00/B00/XXX")
	defer func() {
		os.Unsetenv("WHITELIST_PATH")
		os.Unsetenv("SLACK_WEBHOOK_URL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Verify defaults
	if cfg.Store.Type != "jsonfile" {
		t.Errorf("Expected jsonfile store, got %s", cfg.Store.Type)
	}

	if cfg.Scoring.Threshold != 2 {
		t.Errorf("Expected threshold 2, got %d", cfg.Scoring.Threshold)
	}

	if cfg.Retention != 90*24*time.Hour {
		t.Errorf("Expected 90d retention, got %v", cfg.Retention)
	}

	if cfg.Model.BatchSize != 10 {
		t.Errorf("Expected batch size 10, got %d", cfg.Model.BatchSize)
	}

	if cfg.Model.Concurrency != 2 {
		t.Errorf("Expected concurrency 2, got %d", cfg.Model.Concurrency)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}

	if cfg.Notify.Policy != `severity in ["CRITICAL", "HIGH"]` {
		t.Errorf("Unexpected default policy: %s", cfg.Notify.Policy)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed on default config: %v", err)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	path := writeWhitelistFile(t, `version: 1
defaults:
  x-score-threshold: 3
  x-retention: 30d
watch:
  - category: webserver
    product: nginx
`)

	os.Setenv("WHITELIST_PATH", path)
	os.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T00/B00/XXX")
	os.Setenv("SLACK_MENTION_USERS", "U0123, U0456")
	os.Setenv("MODEL_ENDPOINT", "http://localhost:11434/v1/chat/completions")
	os.Setenv("MODEL_TIMEOUT", "45s")
	os.Setenv("API_PORT", "9000")
	os.Setenv("LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("WHITELIST_PATH")
		os.Unsetenv("SLACK_WEBHOOK_URL")
		os.Unsetenv("SLACK_MENTION_USERS")
		os.Unsetenv("MODEL_ENDPOINT")
		os.Unsetenv("MODEL_TIMEOUT")
		os.Unsetenv("API_PORT")
		os.Unsetenv("LOG_LEVEL")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scoring.Threshold != 3 {
		t.Errorf("Expected threshold 3 from whitelist defaults, got %d", cfg.Scoring.Threshold)
	}

	if cfg.Retention != 30*24*time.Hour {
		t.Errorf("Expected 30d retention from whitelist defaults, got %v", cfg.Retention)
	}

	if len(cfg.Notify.MentionUsers) != 2 || cfg.Notify.MentionUsers[0] != "U0123" || cfg.Notify.MentionUsers[1] != "U0456" {
		t.Errorf("Unexpected mention users: %v", cfg.Notify.MentionUsers)
	}

	if cfg.Model.Timeout != 45*time.Second {
		t.Errorf("Expected 45s model timeout, got %v", cfg.Model.Timeout)
	}

	if cfg.API.Port != 9000 {
		t.Errorf("Expected API port 9000, got %d", cfg.API.Port)
	}

	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Observability.LogLevel)
	}
}

func TestLoadEnvOverridesWhitelistDefaults(t *testing.T) {
	path := writeWhitelistFile(t, `version: 1
defaults:
  x-score-threshold: 3
watch:
  - category: webserver
    product: nginx
`)

	os.Setenv("WHITELIST_PATH", path)
	os.Setenv("SCORE_THRESHOLD", "5")
	os.Setenv("RETENTION_DAYS", "7")
	defer func() {
		os.Unsetenv("WHITELIST_PATH")
		os.Unsetenv("SCORE_THRESHOLD")
		os.Unsetenv("RETENTION_DAYS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scoring.Threshold != 5 {
		t.Errorf("Expected env threshold 5 to win, got %d", cfg.Scoring.Threshold)
	}

	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("Expected env retention 7d to win, got %v", cfg.Retention)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "jsonfile",
					Path: "processed_items.json",
				},
				Scoring: ScoringConfig{Threshold: 2},
				Notify: NotifyConfig{
					WebhookURL: "https://hooks.slack.com/services/T00/B00/XXX",
				},
			},
			wantErr: false,
		},
		{
			name: "missing whitelist path",
			config: &Config{
				WhitelistPath: "",
			},
			wantErr: true,
			errMsg:  "whitelist path is required",
		},
		{
			name: "whitelist file not found",
			config: &Config{
				WhitelistPath: "/nonexistent/whitelist.yml",
			},
			wantErr: true,
			errMsg:  "whitelist file not found",
		},
		{
			name: "invalid store type",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "postgres",
				},
			},
			wantErr: true,
			errMsg:  "invalid store type",
		},
		{
			name: "jsonfile without path",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "jsonfile",
					Path: "",
				},
			},
			wantErr: true,
			errMsg:  "store path is required",
		},
		{
			name: "sqlite without path",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type:       "sqlite",
					SQLitePath: "",
				},
			},
			wantErr: true,
			errMsg:  "sqlite path is required",
		},
		{
			name: "missing webhook without dry run",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "memory",
				},
				Notify: NotifyConfig{
					WebhookURL: "",
					DryRun:     false,
				},
			},
			wantErr: true,
			errMsg:  "SLACK_WEBHOOK_URL environment variable is required",
		},
		{
			name: "dry run without webhook is valid",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "memory",
				},
				Notify: NotifyConfig{
					WebhookURL: "",
					DryRun:     true,
				},
			},
			wantErr: false,
		},
		{
			name: "model endpoint with zero batch size",
			config: &Config{
				WhitelistPath: "whitelist.yml",
				Store: StoreConfig{
					Type: "memory",
				},
				Model: ModelConfig{
					Endpoint:    "http://localhost:11434/v1/chat/completions",
					BatchSize:   0,
					Concurrency: 2,
				},
				Notify: NotifyConfig{DryRun: true},
			},
			wantErr: true,
			errMsg:  "model batch size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temp file for tests that need it
			if tt.config.WhitelistPath == "whitelist.yml" {
				tmpfile, err := os.CreateTemp("", "whitelist-*.yml")
				if err != nil {
					t.Fatal(err)
				}
				defer os.Remove(tmpfile.Name())
				_, _ = tmpfile.Write([]byte(minimalWhitelist))
				_ = tmpfile.Close()
				tt.config.WhitelistPath = tmpfile.Name()
			}

			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				// Check that error contains the expected message (may be wrapped)
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
				}
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "5m")
	defer os.Unsetenv("TEST_DURATION")

	duration := getEnvDuration("TEST_DURATION", 1*time.Minute)
	if duration != 5*time.Minute {
		t.Errorf("Expected 5m, got %v", duration)
	}

	// Test default value
	duration = getEnvDuration("NONEXISTENT", 2*time.Minute)
	if duration != 2*time.Minute {
		t.Errorf("Expected 2m default, got %v", duration)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"0", false},
		{"no", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			os.Setenv("TEST_BOOL", tt.value)
			defer os.Unsetenv("TEST_BOOL")

			if got := getEnvBool("TEST_BOOL", false); got != tt.expected {
				t.Errorf("getEnvBool(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}

	if got := getEnvBool("TEST_BOOL_UNSET", true); !got {
		t.Error("Expected default true for unset variable")
	}
}
