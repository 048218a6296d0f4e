// Package sniffer recovers structure from delimited statement exports.
// It detects delimiters, tokenizes quoted rows, and infers column semantics
// from header names without any user-supplied mapping.
package sniffer

import (
	"strings"
)

// candidate delimiters, most specific first
var delimiters = []rune{';', '\t', ',', '|'}

// DetectDelimiter picks the delimiter for the header line by counting
// occurrences of each candidate. Comma is the default when no candidate
// appears at all.
func DetectDelimiter(headerLine string) rune {
	best := ','
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(headerLine, string(d))
		if count > bestCount {
			bestCount = count
			best = d
		}
	}
	return best
}

// Tokenize splits raw text into rows of trimmed fields. A double quote
// toggles an in-quote state; while inside quotes the delimiter is literal
// field content. A doubled quote inside a quoted field passes through
// verbatim (known limitation, kept for fidelity with the exports this was
// built against). Blank lines are discarded.
//
// The first row fixes the field count: shorter rows are padded with empty
// strings and longer rows truncated, so a malformed row never aborts the
// file.
func Tokenize(text string, delimiter rune) [][]string {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, tokenizeLine(line, delimiter))
	}

	width := len(rows[0])
	for i := 1; i < len(rows); i++ {
		rows[i] = reconcileWidth(rows[i], width)
	}
	return rows
}

func tokenizeLine(line string, delimiter rune) []string {
	var (
		fields   []string
		field    strings.Builder
		inQuotes bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delimiter && !inQuotes:
			fields = append(fields, strings.TrimSpace(field.String()))
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(field.String()))
	return fields
}

func reconcileWidth(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	if len(row) > width {
		return row[:width]
	}
	padded := make([]string, width)
	copy(padded, row)
	return padded
}

// splitLines is CRLF/LF tolerant and drops blank lines before tokenization.
func splitLines(text string) []string {
	text = strings.TrimPrefix(text, "\uFEFF")
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// SampleColumn returns up to max non-empty values of one column from data
// rows, for format probing.
func SampleColumn(rows [][]string, col, max int) []string {
	if col < 0 {
		return nil
	}
	samples := make([]string, 0, max)
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[col]); v != "" {
			samples = append(samples, v)
		}
		if len(samples) >= max {
			break
		}
	}
	return samples
}
