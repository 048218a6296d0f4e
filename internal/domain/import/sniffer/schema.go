package sniffer

import (
	"strings"
	"unicode"
)

// DatasetKind classifies what a delimited file holds.
type DatasetKind int

const (
	DatasetUnknown DatasetKind = iota
	DatasetTransactions
	DatasetHoldings
)

func (k DatasetKind) String() string {
	switch k {
	case DatasetTransactions:
		return "transactions"
	case DatasetHoldings:
		return "holdings"
	default:
		return "unknown"
	}
}

// ColumnMapping assigns semantic roles to header columns. It is built once
// from the header row and immutable afterward; -1 means the role was not
// detected.
type ColumnMapping struct {
	DateCol      int
	DescCol      int
	AmountCol    int
	DebitCol     int
	CreditCol    int
	CategoryCol  int
	SymbolCol    int
	NameCol      int
	QuantityCol  int
	PriceCol     int
	CostBasisCol int
	AssetTypeCol int

	Delimiter  rune
	DateFormat string
	European   bool // amounts use 1.234,56 style
	Kind       DatasetKind
}

// columnRule is one entry of the ordered role decision table. Exact entries
// match the whole normalized header; contains entries match substrings and
// exist only for the debit/credit family where banks prefix freely
// ("Withdrawal Amount", "Credit (EUR)").
type columnRule struct {
	assign   func(*ColumnMapping, int)
	taken    func(*ColumnMapping) bool
	exact    []string
	contains []string
}

// The table order is the tie-break order: a header matching several roles
// gets the first one listed here, and the first header matching a role
// keeps it. Keep this an explicit table so the priorities stay inspectable.
var columnRules = []columnRule{
	{
		assign: func(m *ColumnMapping, i int) { m.DateCol = i },
		taken:  func(m *ColumnMapping) bool { return m.DateCol >= 0 },
		exact: []string{
			"date", "transaction date", "trade date", "post date",
			"posting date", "settlement date", "value date", "data",
		},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.DescCol = i },
		taken:  func(m *ColumnMapping) bool { return m.DescCol >= 0 },
		exact: []string{
			"description", "payee", "memo", "details", "narrative",
			"merchant", "transaction description",
		},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.AmountCol = i },
		taken:  func(m *ColumnMapping) bool { return m.AmountCol >= 0 },
		exact:  []string{"amount", "transaction amount", "value", "net amount"},
	},
	{
		assign:   func(m *ColumnMapping, i int) { m.DebitCol = i },
		taken:    func(m *ColumnMapping) bool { return m.DebitCol >= 0 },
		contains: []string{"debit", "withdrawal"},
	},
	{
		assign:   func(m *ColumnMapping, i int) { m.CreditCol = i },
		taken:    func(m *ColumnMapping) bool { return m.CreditCol >= 0 },
		contains: []string{"credit", "deposit"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.CategoryCol = i },
		taken:  func(m *ColumnMapping) bool { return m.CategoryCol >= 0 },
		exact:  []string{"category", "transaction type", "class"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.SymbolCol = i },
		taken:  func(m *ColumnMapping) bool { return m.SymbolCol >= 0 },
		exact:  []string{"symbol", "ticker", "ticker symbol"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.NameCol = i },
		taken:  func(m *ColumnMapping) bool { return m.NameCol >= 0 },
		exact:  []string{"name", "security name", "security", "fund name"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.QuantityCol = i },
		taken:  func(m *ColumnMapping) bool { return m.QuantityCol >= 0 },
		exact:  []string{"quantity", "qty", "shares", "units"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.PriceCol = i },
		taken:  func(m *ColumnMapping) bool { return m.PriceCol >= 0 },
		exact:  []string{"price", "last price", "share price", "unit price"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.CostBasisCol = i },
		taken:  func(m *ColumnMapping) bool { return m.CostBasisCol >= 0 },
		exact:  []string{"cost basis", "cost basis total", "cost", "basis"},
	},
	{
		assign: func(m *ColumnMapping, i int) { m.AssetTypeCol = i },
		taken:  func(m *ColumnMapping) bool { return m.AssetTypeCol >= 0 },
		exact:  []string{"asset type", "asset class", "security type", "type"},
	},
}

// DetectSchema classifies each header into at most one semantic role and
// the dataset into transactions, holdings, or unknown. symbol+quantity is
// the rarer, stronger signal, so holdings wins over transactions when a
// brokerage export also carries a description-like column.
func DetectSchema(headers []string, delimiter rune) ColumnMapping {
	mapping := ColumnMapping{
		DateCol: -1, DescCol: -1, AmountCol: -1, DebitCol: -1,
		CreditCol: -1, CategoryCol: -1, SymbolCol: -1, NameCol: -1,
		QuantityCol: -1, PriceCol: -1, CostBasisCol: -1, AssetTypeCol: -1,
		Delimiter: delimiter,
	}

	for i, header := range headers {
		h := normalizeHeader(header)
		if h == "" {
			continue
		}
		for _, rule := range columnRules {
			if rule.taken(&mapping) {
				continue
			}
			if rule.matches(h) {
				rule.assign(&mapping, i)
				break
			}
		}
	}

	switch {
	case mapping.SymbolCol >= 0 && mapping.QuantityCol >= 0:
		mapping.Kind = DatasetHoldings
	case mapping.DateCol >= 0 && mapping.DescCol >= 0:
		mapping.Kind = DatasetTransactions
	default:
		mapping.Kind = DatasetUnknown
	}
	return mapping
}

func (r columnRule) matches(h string) bool {
	for _, kw := range r.exact {
		if h == kw {
			return true
		}
	}
	for _, kw := range r.contains {
		if strings.Contains(h, kw) {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimFunc(h, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(strings.Fields(h), " ")
}

// ProbeAmountFormat inspects amount samples and reports whether they use
// the European convention (comma decimal separator). The bool result is
// only meaningful when ok is true.
func ProbeAmountFormat(samples []string) (european, ok bool) {
	europeanHints := 0
	usHints := 0

	for _, raw := range samples {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
				return r
			}
			return -1
		}, raw)
		cleaned = strings.TrimPrefix(cleaned, "-")
		if cleaned == "" {
			continue
		}

		hasComma := strings.Contains(cleaned, ",")
		hasDot := strings.Contains(cleaned, ".")

		switch {
		case hasComma && hasDot:
			if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
				europeanHints++
			} else {
				usHints++
			}
		case hasComma:
			if hasDecimalSuffix(cleaned, ',') {
				europeanHints++
			}
		case hasDot:
			if hasDecimalSuffix(cleaned, '.') {
				usHints++
			}
		}
	}

	if europeanHints == usHints {
		return false, false
	}
	return europeanHints > usHints, true
}

func hasDecimalSuffix(value string, sep rune) bool {
	idx := strings.LastIndex(value, string(sep))
	if idx == -1 || idx == len(value)-1 {
		return false
	}
	digits := 0
	for _, r := range value[idx+1:] {
		if !unicode.IsDigit(r) {
			return false
		}
		digits++
		if digits > 2 {
			return false
		}
	}
	return digits > 0
}
