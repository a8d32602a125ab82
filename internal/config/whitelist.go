package config

import (
	"os"
	"strings"
	"time"

	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
	"gopkg.in/yaml.v3"
)

// ParseWhitelist reads and parses a whitelist.yml configuration file
func ParseWhitelist(path string) (*WhitelistConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewPermanentf("failed to read whitelist file: %v: %w", err, errors.ErrWhitelistInvalid)
	}

	var config WhitelistConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewPermanentf("failed to parse whitelist YAML: %v: %w", err, errors.ErrWhitelistInvalid)
	}

	if len(config.Watch) == 0 {
		return nil, errors.NewPermanentf("whitelist has no watch entries: %w", errors.ErrWhitelistInvalid)
	}

	for i := range config.Watch {
		entry := &config.Watch[i]
		if entry.Product == "" {
			return nil, errors.NewPermanentf("watch entry %d has no product: %w", i, errors.ErrWhitelistInvalid)
		}
		entry.Product = strings.ToLower(strings.TrimSpace(entry.Product))
		for j, alias := range entry.Aliases {
			entry.Aliases[j] = strings.ToLower(strings.TrimSpace(alias))
		}
	}

	return &config, nil
}

// Entries returns the watch entries in file order
func (w *WhitelistConfig) Entries() []types.WhitelistEntry {
	return w.Watch
}

// GetLexicon returns the lexicon from the file, or the built-in default
// when the file does not override it
func (w *WhitelistConfig) GetLexicon() types.Lexicon {
	if w.Lexicon.Empty() {
		return types.DefaultLexicon()
	}
	return w.Lexicon
}

// GetScoreThreshold returns the relevance threshold from defaults
// Returns the default if specified, otherwise 2
func (w *WhitelistConfig) GetScoreThreshold() int {
	if w.Defaults.ScoreThreshold > 0 {
		return w.Defaults.ScoreThreshold
	}
	return 2
}

// GetRetention returns the processed record retention from defaults
// Returns the default if specified, otherwise 90 days
func (w *WhitelistConfig) GetRetention() (time.Duration, error) {
	if w.Defaults.Retention != "" {
		return parseInterval(w.Defaults.Retention)
	}

	// Fall back to hardcoded default
	return 90 * 24 * time.Hour, nil
}

// ProductNames returns all canonical product names from watch entries
func (w *WhitelistConfig) ProductNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(w.Watch))

	for _, entry := range w.Watch {
		// Deduplicate products listed under multiple categories
		if !seen[entry.Product] {
			seen[entry.Product] = true
			names = append(names, entry.Product)
		}
	}

	return names
}

// EntryForProduct returns the watch entry for a specific product name
func (w *WhitelistConfig) EntryForProduct(product string) *types.WhitelistEntry {
	for i := range w.Watch {
		if w.Watch[i].Product == product {
			return &w.Watch[i]
		}
	}
	return nil
}
