// Package normalizer turns raw field strings from statement exports into
// typed values: calendar dates, signed amounts in cents, decimal
// quantities, and cleaned descriptions.
package normalizer

import (
	"fmt"
	"strings"
	"time"
)

// DateFormats is the fixed candidate list for date resolution, in priority
// order. Order is the tie-break: ambiguous dd/mm vs mm/dd samples resolve
// toward the US convention because the US layouts come first. Keep this an
// explicit ordered list so the priorities stay testable.
var DateFormats = []string{
	"2006-01-02",           // ISO 8601
	"01/02/2006",           // US slash
	"01/02/06",             // US slash, 2-digit year
	"02/01/2006",           // EU slash
	"02-01-2006",           // EU dash
	"02.01.2006",           // dotted (German)
	"2006/01/02",           // ISO with slashes
	"Jan 2, 2006",          // month-name, US
	"2 Jan 2006",           // month-name, EU
	"January 2, 2006",      // long month-name
	"2006-01-02T15:04:05Z", // ISO timestamp
	"2006-01-02 15:04:05",  // ISO timestamp with space
	"20060102",             // compact numeric
}

const (
	resolveSampleLimit = 5
	resolveMinMatches  = 3
)

// MalformedDateError is a row-level failure: the offending record is
// skipped, the file continues.
type MalformedDateError struct {
	Raw string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("unrecognized date %q", e.Raw)
}

// ResolveDateFormat picks the best-matching format for a column from up to
// 10 raw samples. For each candidate in list order it counts how many of
// the first 5 samples parse; the first candidate reaching min(3, samples)
// wins. Returns "" when no candidate clears the threshold.
func ResolveDateFormat(samples []string) string {
	cleaned := make([]string, 0, resolveSampleLimit)
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
		if len(cleaned) >= resolveSampleLimit {
			break
		}
	}
	if len(cleaned) == 0 {
		return ""
	}

	threshold := resolveMinMatches
	if len(cleaned) < threshold {
		threshold = len(cleaned)
	}

	for _, format := range DateFormats {
		matches := 0
		for _, s := range cleaned {
			if _, err := time.Parse(format, s); err == nil {
				matches++
			}
		}
		if matches >= threshold {
			return format
		}
	}
	return ""
}

// ParseDate parses one raw date string. The resolved file-level format is
// tried first; the full candidate list is the fallback so an isolated row
// with a locally different encoding still succeeds.
func ParseDate(raw, resolved string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &MalformedDateError{Raw: raw}
	}

	if resolved != "" {
		if t, err := time.Parse(resolved, raw); err == nil {
			return t, nil
		}
	}
	for _, format := range DateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &MalformedDateError{Raw: raw}
}
