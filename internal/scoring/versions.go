package scoring

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
)

var versionPattern = regexp.MustCompile(`\bv?(\d+\.\d+(?:\.\d+)?)\b`)

// versionWindow bounds how far past a product mention a version token still
// counts as belonging to that product
const versionWindow = 80

// versionVerdict reports whether a version mentioned near a matched product
// satisfies that product's declared constraints. Nil when no matched entry
// declares constraints or no parseable version appears near a mention; with
// several constrained matches, any in-range version wins.
func versionVerdict(text string, matches []EntryMatch, matcher *Matcher) *bool {
	var verdict *bool

	for _, match := range matches {
		constraints := matcher.constraintsFor(match.Entry.Product)
		if len(constraints) == 0 {
			continue
		}

		window := text[match.Index:]
		if len(window) > versionWindow {
			window = window[:versionWindow]
		}

		for _, tok := range versionPattern.FindAllStringSubmatch(window, -1) {
			v, err := semver.NewVersion(tok[1])
			if err != nil {
				continue
			}

			inRange := false
			for _, c := range constraints {
				if c.Check(v) {
					inRange = true
					break
				}
			}

			if inRange {
				t := true
				return &t
			}
			if verdict == nil {
				f := false
				verdict = &f
			}
		}
	}

	return verdict
}
