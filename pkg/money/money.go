// Package money provides currency helpers over minor-unit amounts.
package money

import (
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when neither the file nor the caller names one.
const DefaultCurrency = gomoney.USD

// NormalizeCurrency upper-cases and validates an ISO 4217 code, falling
// back to the given default and finally to USD when the code is unknown.
func NormalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if gomoney.GetCurrency(code) != nil {
		return code
	}
	fallback = strings.ToUpper(strings.TrimSpace(fallback))
	if gomoney.GetCurrency(fallback) != nil {
		return fallback
	}
	return DefaultCurrency
}

// FormatMinor renders a minor-unit amount with its currency symbol,
// e.g. FormatMinor(-1234, "USD") == "-$12.34".
func FormatMinor(amountMinor int64, code string) string {
	return gomoney.New(amountMinor, NormalizeCurrency(code, "")).Display()
}

// MinorFromDecimal converts a major-unit decimal amount into minor units
// for the given currency, rounding half away from zero.
func MinorFromDecimal(amount decimal.Decimal, code string) int64 {
	currency := gomoney.GetCurrency(NormalizeCurrency(code, ""))
	return amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
}

// DecimalFromMinor converts a minor-unit amount back to major units.
func DecimalFromMinor(amountMinor int64, code string) decimal.Decimal {
	currency := gomoney.GetCurrency(NormalizeCurrency(code, ""))
	return decimal.New(amountMinor, -int32(currency.Fraction))
}
