package config

import (
	"fmt"
	"os"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
)

// Load loads configuration from environment variables and whitelist.yml defaults
func Load() (*Config, error) {
	whitelistPath := getEnv("WHITELIST_PATH", "whitelist.yml")

	// Parse whitelist config to get defaults
	var scoreThreshold int
	var retention time.Duration

	// Try to load whitelist config for defaults
	if wl, err := ParseWhitelist(whitelistPath); err == nil {
		scoreThreshold = wl.Defaults.ScoreThreshold
		if d, err := wl.GetRetention(); err == nil {
			retention = d
		}
	}

	// Use defaults from whitelist.yml, or fall back to hardcoded defaults
	if scoreThreshold == 0 {
		scoreThreshold = 2
	}
	if retention == 0 {
		retention = 90 * 24 * time.Hour
	}

	// Environment variables win over whitelist file defaults
	scoreThreshold = getEnvInt("SCORE_THRESHOLD", scoreThreshold)
	if days := getEnvInt("RETENTION_DAYS", 0); days > 0 {
		retention = time.Duration(days) * 24 * time.Hour
	}

	cfg := &Config{
		WhitelistPath: whitelistPath,
		Store: StoreConfig{
			Type:       getEnv("STORE_TYPE", "jsonfile"),
			Path:       getEnv("STORE_PATH", "processed_items.json"),
			SQLitePath: getEnv("SQLITE_PATH", "vulnfeed.db"),
		},
		Feeds: FeedsConfig{
			CVEURL:      getEnv("CVE_FEED_URL", "https://nvd.nist.gov/feeds/xml/cve/misc/nvd-rss.xml"),
			NewsURL:     getEnv("NEWS_FEED_URL", "https://feeds.feedburner.com/TheHackersNews"),
			GitHubToken: getEnv("GITHUB_TOKEN", ""),
			Timeout:     getEnvDuration("FEED_TIMEOUT", 30*time.Second),
		},
		Scoring: ScoringConfig{
			Threshold: scoreThreshold,
		},
		Model: ModelConfig{
			Endpoint:    getEnv("MODEL_ENDPOINT", ""),
			Model:       getEnv("MODEL_NAME", "gemma-3-12b-it"),
			APIKey:      getEnv("MODEL_API_KEY", ""),
			Timeout:     getEnvDuration("MODEL_TIMEOUT", 2*time.Minute),
			BatchSize:   getEnvInt("MODEL_BATCH_SIZE", 10),
			Concurrency: getEnvInt("MODEL_CONCURRENCY", 2),
		},
		Notify: NotifyConfig{
			WebhookURL:   getEnv("SLACK_WEBHOOK_URL", ""),
			MentionUsers: splitList(getEnv("SLACK_MENTION_USERS", "")),
			Policy:       getEnv("NOTIFY_POLICY", `severity in ["CRITICAL", "HIGH"]`),
			Timeout:      getEnvDuration("NOTIFY_TIMEOUT", 15*time.Second),
			DryRun:       getEnvBool("DRY_RUN", false),
		},
		Retention: retention,
		API: APIConfig{
			Enabled:  getEnvBool("API_ENABLED", true),
			Port:     getEnvInt("API_PORT", 8080),
			APIKey:   getEnv("VULNFEED_API_KEY", ""),
			ReadOnly: getEnvBool("API_READ_ONLY", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			MetricsPort:     getEnvInt("METRICS_PORT", 9090),
			HealthCheckPort: getEnvInt("HEALTH_CHECK_PORT", 8081),
		},
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WhitelistPath == "" {
		return errors.NewPermanentf("whitelist path is required: %w", errors.ErrWhitelistInvalid)
	}

	if _, err := os.Stat(c.WhitelistPath); os.IsNotExist(err) {
		return errors.NewPermanentf("whitelist file not found: %s: %w", c.WhitelistPath, errors.ErrWhitelistInvalid)
	}

	if c.Store.Type != "jsonfile" && c.Store.Type != "sqlite" && c.Store.Type != "memory" {
		return errors.NewPermanentf("invalid store type: %s (must be jsonfile, sqlite, or memory)", c.Store.Type)
	}

	if c.Store.Type == "jsonfile" && c.Store.Path == "" {
		return errors.NewPermanentf("store path is required when using jsonfile store")
	}

	if c.Store.Type == "sqlite" && c.Store.SQLitePath == "" {
		return errors.NewPermanentf("sqlite path is required when using sqlite store")
	}

	if c.Scoring.Threshold < 0 {
		return errors.NewPermanentf("score threshold must not be negative: %d", c.Scoring.Threshold)
	}

	if c.Model.Endpoint != "" && c.Model.BatchSize <= 0 {
		return errors.NewPermanentf("model batch size must be positive when a model endpoint is configured")
	}

	if c.Model.Endpoint != "" && c.Model.Concurrency <= 0 {
		return errors.NewPermanentf("model concurrency must be positive when a model endpoint is configured")
	}

	if c.Notify.WebhookURL == "" && !c.Notify.DryRun {
		return errors.NewPermanentf("SLACK_WEBHOOK_URL environment variable is required (or set DRY_RUN=true)")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
