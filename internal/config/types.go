package config

import (
	"time"

	"github.com/perimetra/vulnfeed/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	WhitelistPath string
	Store         StoreConfig
	Feeds         FeedsConfig
	Scoring       ScoringConfig
	Model         ModelConfig
	Notify        NotifyConfig
	Retention     time.Duration
	API           APIConfig
	Observability ObservabilityConfig
}

// StoreConfig configures the dedup store backend
type StoreConfig struct {
	Type       string
	Path       string
	SQLitePath string
}

// FeedsConfig configures the advisory feed collectors
type FeedsConfig struct {
	CVEURL      string
	NewsURL     string
	GitHubToken string
	Timeout     time.Duration
}

// ScoringConfig configures keyword scoring and relevance filtering
type ScoringConfig struct {
	Threshold int
}

// ModelConfig configures the external classification endpoint
type ModelConfig struct {
	Endpoint    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	BatchSize   int
	Concurrency int
}

// NotifyConfig configures the Slack notifier
type NotifyConfig struct {
	WebhookURL   string
	MentionUsers []string
	Policy       string
	Timeout      time.Duration
	DryRun       bool
}

// APIConfig configures the HTTP API server
type APIConfig struct {
	Enabled  bool
	Port     int
	APIKey   string
	ReadOnly bool
}

// ObservabilityConfig configures logging and metrics
type ObservabilityConfig struct {
	LogLevel        string
	MetricsPort     int
	HealthCheckPort int
}

// WhitelistConfig represents the complete whitelist file
type WhitelistConfig struct {
	Version  int                    `yaml:"version"`
	Defaults WhitelistDefaults      `yaml:"defaults"`
	Lexicon  types.Lexicon          `yaml:"lexicon,omitempty"`
	Watch    []types.WhitelistEntry `yaml:"watch"`
}

// WhitelistDefaults contains default configuration values
type WhitelistDefaults struct {
	ScoreThreshold int    `yaml:"x-score-threshold,omitempty"`
	Retention      string `yaml:"x-retention,omitempty"`
}
