package normalizer

import (
	"regexp"
	"strings"
)

// noise prefixes that card processors prepend to the actual payee
var descriptionPrefixes = []string{
	"PURCHASE ", "PAYMENT ", "POS ",
	"VISA ", "MASTERCARD ", "MAESTRO ",
	"TRF ", "TRANSF ",
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	trailingRef = regexp.MustCompile(`\s+\d{6,}$`)
)

// CleanDescription normalizes free-text description fields: trims, strips
// a known processor prefix, drops a trailing terminal reference number,
// and collapses whitespace runs.
func CleanDescription(raw string) string {
	s := strings.TrimSpace(raw)
	upper := strings.ToUpper(s)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(upper, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	s = trailingRef.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
