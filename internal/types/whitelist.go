package types

// WhitelistEntry represents one operator-curated technology the pipeline
// considers relevant. Entries are loaded once per run and read-only after.
type WhitelistEntry struct {
	Category string   `yaml:"category"`
	Product  string   `yaml:"product"` // canonical lowercase name
	Aliases  []string `yaml:"aliases,omitempty"`
	Versions []string `yaml:"versions,omitempty"` // semver constraints the operator actually runs
}

// Names returns the canonical name plus all aliases.
func (w WhitelistEntry) Names() []string {
	names := make([]string, 0, len(w.Aliases)+1)
	names = append(names, w.Product)
	names = append(names, w.Aliases...)
	return names
}

// Lexicon holds the generic security terms that contribute to an item's
// score even when no whitelisted product is named. Terms are grouped into
// tiers with fixed weights; a CVE identifier pattern carries its own weight.
type Lexicon struct {
	Critical []string `yaml:"critical,omitempty"`
	High     []string `yaml:"high,omitempty"`
	Urgent   []string `yaml:"urgent,omitempty"`
}

// Lexicon tier weights. Each distinct term found contributes its tier
// weight once; a CVE identifier in the text contributes WeightCVEPattern
// once no matter how many identifiers appear.
const (
	WeightCVEPattern = 3
	WeightCriticalKW = 2
	WeightHighKW     = 2
	WeightUrgentKW   = 1
	WeightWhitelist  = 4
)

// DefaultLexicon returns the built-in term set used when the whitelist file
// does not override it.
func DefaultLexicon() Lexicon {
	return Lexicon{
		Critical: []string{
			"zero-day", "0-day", "remote code execution", "rce",
			"actively exploited", "in the wild", "critical vulnerability",
		},
		High: []string{
			"vulnerability", "exploit", "security flaw", "privilege escalation",
			"authentication bypass", "sql injection", "arbitrary code",
		},
		Urgent: []string{
			"patch", "security update", "advisory", "disclosure", "cve",
		},
	}
}

// Empty reports whether the lexicon carries no terms at all.
func (l Lexicon) Empty() bool {
	return len(l.Critical) == 0 && len(l.High) == 0 && len(l.Urgent) == 0
}
