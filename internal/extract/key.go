package extract

import (
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// KeySeparator joins the provider and market codes into one column name.
const KeySeparator = " "

// keyFolder strips combining marks so accented source spellings of the
// same code collapse to one entity.
var keyFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// EntityKey derives the composite column name for a (provider, market)
// pair: both fields folded, trimmed and upper-cased, joined by
// KeySeparator. A separator inside either field would make the key
// ambiguous and fails with ErrKey; an empty field is a record error.
func EntityKey(provider, market string) (string, error) {
	p := foldField(provider)
	m := foldField(market)

	if p == "" || m == "" {
		return "", eris.Wrapf(ErrRecord, "empty provider or market (%q, %q)", provider, market)
	}
	if strings.Contains(p, KeySeparator) || strings.Contains(m, KeySeparator) {
		return "", eris.Wrapf(ErrKey, "separator %q inside raw field (%q, %q)", KeySeparator, p, m)
	}

	return p + KeySeparator + m, nil
}

func foldField(s string) string {
	folded, _, err := transform.String(keyFolder, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(strings.TrimSpace(folded))
}
