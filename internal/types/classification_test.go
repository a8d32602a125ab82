package types

import (
	"testing"
	"time"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Severity
		wantOK bool
	}{
		{name: "critical", input: "CRITICAL", want: SeverityCritical, wantOK: true},
		{name: "lowercase high", input: "high", want: SeverityHigh, wantOK: true},
		{name: "padded medium", input: "  Medium ", want: SeverityMedium, wantOK: true},
		{name: "moderate alias", input: "MODERATE", want: SeverityMedium, wantOK: true},
		{name: "low", input: "low", want: SeverityLow, wantOK: true},
		{name: "unrecognized value", input: "SEVERE", want: SeverityUnknown, wantOK: false},
		{name: "empty", input: "", want: SeverityUnknown, wantOK: false},
		{name: "numeric", input: "9.8", want: SeverityUnknown, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSeverity(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseSeverity(%q) = (%v, %v), want (%v, %v)", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSeverityRank(t *testing.T) {
	order := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("expected %s to rank before %s", order[i-1], order[i])
		}
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
	}{
		{input: "CVE", wantOK: true},
		{input: "NEWS", wantOK: true},
		{input: "ADVISORY", wantOK: true},
		{input: "nvd", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if _, ok := ParseSource(tt.input); ok != tt.wantOK {
				t.Errorf("ParseSource(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
		})
	}
}

func TestFeedItemIdentity(t *testing.T) {
	item := FeedItem{Source: SourceCVE, ExternalID: "CVE-2024-12345"}
	if got := item.Identity(); got != "CVE:CVE-2024-12345" {
		t.Errorf("Identity() = %q, want %q", got, "CVE:CVE-2024-12345")
	}

	record := ProcessedRecord{Source: SourceAdvisory, ExternalID: "GHSA-aaaa-bbbb-cccc", FirstSeen: time.Now()}
	if got := record.Identity(); got != "ADVISORY:GHSA-aaaa-bbbb-cccc" {
		t.Errorf("record Identity() = %q, want %q", got, "ADVISORY:GHSA-aaaa-bbbb-cccc")
	}
}

func TestSortClassified(t *testing.T) {
	items := []ClassifiedItem{
		{ScoredItem: ScoredItem{Item: FeedItem{Source: SourceNews, ExternalID: "b"}}, Severity: SeverityHigh},
		{ScoredItem: ScoredItem{Item: FeedItem{Source: SourceNews, ExternalID: "a"}}, Severity: SeverityHigh},
		{ScoredItem: ScoredItem{Item: FeedItem{Source: SourceCVE, ExternalID: "c"}}, Severity: SeverityCritical},
		{ScoredItem: ScoredItem{Item: FeedItem{Source: SourceCVE, ExternalID: "d"}}, Severity: SeverityUnknown},
	}

	SortClassified(items)

	wantOrder := []string{"CVE:c", "NEWS:a", "NEWS:b", "CVE:d"}
	for i, want := range wantOrder {
		if got := items[i].Item.Identity(); got != want {
			t.Errorf("position %d = %s, want %s", i, got, want)
		}
	}
}

func TestWhitelistEntryNames(t *testing.T) {
	entry := WhitelistEntry{Product: "nginx", Aliases: []string{"nginx ingress"}}
	names := entry.Names()
	if len(names) != 2 || names[0] != "nginx" || names[1] != "nginx ingress" {
		t.Errorf("Names() = %v", names)
	}
}

func TestDefaultLexicon(t *testing.T) {
	lex := DefaultLexicon()
	if lex.Empty() {
		t.Fatal("default lexicon must not be empty")
	}
	if len(lex.Critical) == 0 || len(lex.High) == 0 || len(lex.Urgent) == 0 {
		t.Errorf("default lexicon missing a tier: %+v", lex)
	}
}
