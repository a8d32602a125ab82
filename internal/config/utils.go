package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// intervalUnits maps the accepted interval suffixes. Days are the unit the
// whitelist file actually uses for retention; minutes and hours exist for
// tests and short-lived deployments.
var intervalUnits = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// parseInterval parses interval notation like "12h" or "90d".
func parseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", interval)
	}

	unit, ok := intervalUnits[interval[len(interval)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid interval unit (must be m, h, or d): %s", interval)
	}

	value, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid interval value: %s", interval)
	}
	if value <= 0 {
		return 0, fmt.Errorf("interval value must be positive: %s", interval)
	}

	return time.Duration(value) * unit, nil
}

// splitList splits a comma-separated environment value into trimmed,
// non-empty elements
func splitList(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
