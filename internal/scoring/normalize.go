package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases text and folds diacritics so "Citrïx" and "citrix"
// compare equal. Decompose, strip combining marks, recompose.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		// Fold failure keeps the original text; ASCII matching still works
		folded = s
	}
	return strings.ToLower(folded)
}
