// Package scoring assigns each collected item a relevance score from the
// operator whitelist and a generic security lexicon. Scoring is pure: same
// item, whitelist and lexicon always produce the same result.
package scoring

import (
	"regexp"
	"sort"
	"strings"

	"github.com/perimetra/vulnfeed/internal/types"
)

var cvePattern = regexp.MustCompile(`cve-\d{4}-\d{4,}`)

// Score computes the relevance score for one item. Whitelist mentions carry
// the fixed entry weight; each distinct lexicon term found carries its tier
// weight; a CVE identifier carries its weight once no matter how many appear.
func Score(item types.FeedItem, matcher *Matcher, lexicon types.Lexicon) types.ScoredItem {
	text := Normalize(item.Title + " " + item.Description)

	matches := matcher.Match(text)

	score := 0
	matchedEntries := make([]string, 0, len(matches))
	for _, m := range matches {
		matchedEntries = append(matchedEntries, m.Entry.Product)
		score += types.WeightWhitelist
	}

	var matchedKeywords []string
	if cvePattern.MatchString(text) {
		score += types.WeightCVEPattern
		matchedKeywords = append(matchedKeywords, "CVE")
	}

	tiers := []struct {
		terms  []string
		weight int
	}{
		{lexicon.Critical, types.WeightCriticalKW},
		{lexicon.High, types.WeightHighKW},
		{lexicon.Urgent, types.WeightUrgentKW},
	}

	seen := make(map[string]bool)
	for _, tier := range tiers {
		for _, term := range tier.terms {
			normTerm := Normalize(term)
			if normTerm == "" || seen[normTerm] {
				continue
			}
			if strings.Contains(text, normTerm) {
				seen[normTerm] = true
				score += tier.weight
				matchedKeywords = append(matchedKeywords, term)
			}
		}
	}

	sort.Strings(matchedEntries)
	sort.Strings(matchedKeywords)

	return types.ScoredItem{
		Item:            item,
		Score:           score,
		MatchedEntries:  matchedEntries,
		MatchedKeywords: matchedKeywords,
		VersionInRange:  versionVerdict(text, matches, matcher),
	}
}

// ScoreAll scores a batch in input order
func ScoreAll(items []types.FeedItem, matcher *Matcher, lexicon types.Lexicon) []types.ScoredItem {
	out := make([]types.ScoredItem, 0, len(items))
	for _, item := range items {
		out = append(out, Score(item, matcher, lexicon))
	}
	return out
}
