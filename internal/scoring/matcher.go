package scoring

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/perimetra/vulnfeed/internal/errors"
	"github.com/perimetra/vulnfeed/internal/types"
)

// Matcher holds the whitelist with every alias precompiled into a
// boundary-anchored pattern. Built once per run, read-only afterwards.
type Matcher struct {
	entries []compiledEntry
}

type compiledEntry struct {
	entry       types.WhitelistEntry
	patterns    []*regexp.Regexp
	constraints []*semver.Constraints
}

// EntryMatch reports one whitelist entry found in an item's text
type EntryMatch struct {
	Entry types.WhitelistEntry

	// Index is the byte offset of the first mention in the normalized text,
	// used to look for version tokens near the product name
	Index int
}

// NewMatcher compiles the whitelist. An alias matches only at whole-word or
// punctuation boundaries, never embedded in a larger alphanumeric word, so
// short product names like "go" do not match "google". Invalid version
// constraints fail the whole whitelist.
func NewMatcher(entries []types.WhitelistEntry) (*Matcher, error) {
	m := &Matcher{entries: make([]compiledEntry, 0, len(entries))}

	for _, entry := range entries {
		ce := compiledEntry{entry: entry}

		for _, name := range entry.Names() {
			name = Normalize(name)
			if name == "" {
				continue
			}
			pattern := `(^|[^a-z0-9])` + regexp.QuoteMeta(name) + `([^a-z0-9]|$)`
			ce.patterns = append(ce.patterns, regexp.MustCompile(pattern))
		}

		for _, raw := range entry.Versions {
			c, err := semver.NewConstraint(raw)
			if err != nil {
				return nil, errors.NewPermanentf("invalid version constraint %q for %s: %v: %w",
					raw, entry.Product, err, errors.ErrWhitelistInvalid)
			}
			ce.constraints = append(ce.constraints, c)
		}

		m.entries = append(m.entries, ce)
	}

	return m, nil
}

// Match returns the whitelist entries mentioned in the normalized text, in
// whitelist order, one result per distinct product.
func (m *Matcher) Match(text string) []EntryMatch {
	var matches []EntryMatch
	seen := make(map[string]bool)

	for i := range m.entries {
		ce := &m.entries[i]
		if seen[ce.entry.Product] {
			continue
		}

		for _, pattern := range ce.patterns {
			loc := pattern.FindStringIndex(text)
			if loc == nil {
				continue
			}
			seen[ce.entry.Product] = true
			matches = append(matches, EntryMatch{Entry: ce.entry, Index: loc[0]})
			break
		}
	}

	return matches
}

// constraintsFor returns the precompiled constraints for a product, nil when
// the entry declares none
func (m *Matcher) constraintsFor(product string) []*semver.Constraints {
	for i := range m.entries {
		if m.entries[i].entry.Product == product && len(m.entries[i].constraints) > 0 {
			return m.entries[i].constraints
		}
	}
	return nil
}
