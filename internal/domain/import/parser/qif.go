package parser

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/normalizer"
)

// placeholderPayee stands in for records that carry no P line.
const placeholderPayee = "Unknown Payee"

// date layouts in the order Quicken products emit them. Month and day are
// rarely zero-padded in real exports, so the non-padded layouts come
// first; time.Parse rejects "1/5/2024" against a padded layout.
var qifDateFormats = []string{
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
}

func parseQIFDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(expandQIFYear(raw))
	for _, format := range qifDateFormats {
		if t, err := time.Parse(format, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &normalizer.MalformedDateError{Raw: raw}
}

// ExtractQIF decodes the QIF line protocol: each line is a single-letter
// field code followed by its value, and ^ terminates the record. Section
// headers (!Type:Bank and friends) and unknown codes are skipped. A record
// is emitted only once both its date and amount were seen; partial records
// at a terminator are dropped with a row error.
func ExtractQIF(ctx context.Context, text string, progress Progress) ([]Transaction, []RowError, error) {
	var (
		transactions []Transaction
		rowErrs      []RowError
	)
	totalLines := strings.Count(text, "\n") + 1

	var (
		current   Transaction
		hasDate   bool
		hasAmount bool
		started   bool
		reported  bool
		record    = 0
	)
	reset := func() {
		current = Transaction{}
		hasDate, hasAmount, started, reported = false, false, false, false
	}

	lineNum := 0
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNum++
		if lineNum%checkpointRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if progress != nil {
				progress(lineNum, totalLines)
			}
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			continue
		}

		code, value := line[0], strings.TrimSpace(line[1:])
		switch code {
		case '^':
			if started {
				record++
				if hasDate && hasAmount {
					if current.Description == "" {
						current.Description = placeholderPayee
					}
					transactions = append(transactions, current)
				} else if !reported {
					rowErrs = append(rowErrs, RowError{Index: record, Reason: "record missing date or amount"})
				}
			}
			reset()
		case 'D':
			date, err := parseQIFDate(value)
			if err != nil {
				started, reported = true, true
				rowErrs = append(rowErrs, RowError{Index: record + 1, Reason: err.Error()})
				continue
			}
			current.Date = date
			hasDate = true
			started = true
		case 'T', 'U':
			amount, err := normalizer.ParseAmountCents(value, false)
			if err != nil {
				started, reported = true, true
				rowErrs = append(rowErrs, RowError{Index: record + 1, Reason: err.Error()})
				continue
			}
			current.AmountCents = amount
			hasAmount = true
			started = true
		case 'P':
			current.Description = normalizer.CleanDescription(value)
			started = true
		case 'L':
			current.Category = normalizer.CleanDescription(value)
			started = true
		case 'M':
			current.Memo = value
			started = true
		case 'N':
			if current.Memo == "" {
				current.Memo = value
			}
			started = true
		default:
			// unknown field codes are ignored
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	// a final record may lack its ^ terminator
	if started && hasDate && hasAmount {
		if current.Description == "" {
			current.Description = placeholderPayee
		}
		transactions = append(transactions, current)
	}

	if progress != nil {
		progress(totalLines, totalLines)
	}
	return transactions, rowErrs, nil
}

// expandQIFYear rewrites the Quicken two-digit year shorthand, where an
// apostrophe separates day and year ("1/5'24" means 1/5/2024).
func expandQIFYear(raw string) string {
	return strings.Replace(raw, "'", "/20", 1)
}
