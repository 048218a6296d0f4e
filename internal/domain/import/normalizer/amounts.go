package normalizer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MalformedNumberError is a row-level failure, recovered by skipping the
// offending record.
type MalformedNumberError struct {
	Raw string
}

func (e *MalformedNumberError) Error() string {
	return fmt.Sprintf("unrecognized number %q", e.Raw)
}

var currencySymbols = []string{"$", "€", "£", "R$", "¥", "₹", "CHF"}

// cleanAmount strips currency formatting: a leading currency symbol,
// thousands separators, and accounting-style parenthesized negatives.
// Returns the bare decimal string ready for parsing.
func cleanAmount(raw string, european bool) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &MalformedNumberError{Raw: raw}
	}

	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.Trim(s, "()")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}

	if european {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &MalformedNumberError{Raw: raw}
	}

	if negative {
		s = "-" + s
	}
	return s, nil
}

// ParseAmountCents parses a monetary amount into signed integer cents.
func ParseAmountCents(raw string, european bool) (int64, error) {
	s, err := cleanAmount(raw, european)
	if err != nil {
		return 0, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &MalformedNumberError{Raw: raw}
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// ParseDecimal parses a quantity/price style value, keeping full precision.
func ParseDecimal(raw string, european bool) (decimal.Decimal, error) {
	s, err := cleanAmount(raw, european)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &MalformedNumberError{Raw: raw}
	}
	return d, nil
}

// DeriveDebitCredit produces a signed amount in cents from a debit/credit
// column pair: credit minus debit, a missing side counting as zero. An
// error is returned only when both sides are present but unparsable, or
// both are empty.
func DeriveDebitCredit(debitRaw, creditRaw string, european bool) (int64, error) {
	debitRaw = strings.TrimSpace(debitRaw)
	creditRaw = strings.TrimSpace(creditRaw)
	if debitRaw == "" && creditRaw == "" {
		return 0, &MalformedNumberError{Raw: ""}
	}

	var debit, credit int64
	var err error
	if debitRaw != "" {
		if debit, err = ParseAmountCents(debitRaw, european); err != nil {
			return 0, err
		}
		if debit < 0 {
			debit = -debit // some banks export debits already signed
		}
	}
	if creditRaw != "" {
		if credit, err = ParseAmountCents(creditRaw, european); err != nil {
			return 0, err
		}
	}
	return credit - debit, nil
}
