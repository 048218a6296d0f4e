package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/normalizer"
)

// ErrNoRootElement means the input never opens an <OFX> document.
var ErrNoRootElement = errors.New("no OFX root element found")

// Statement is one statement block from an OFX document: the account it
// belongs to plus the transactions or positions found inside it. One file
// may carry several statements.
type Statement struct {
	AccountID    string
	BankID       string
	AccountType  string // canonical: checking, savings, credit, investment, other
	Currency     string
	Transactions []Transaction
	Holdings     []Holding
}

// transaction type codes to canonical category labels; unmapped codes fall
// back to categoryOther
var transactionTypeCategories = map[string]string{
	"CREDIT":      "Credit",
	"DEBIT":       "Debit",
	"INT":         "Interest",
	"DIV":         "Dividends",
	"FEE":         "Fees",
	"SRVCHG":      "Fees",
	"DEP":         "Deposit",
	"DIRECTDEP":   "Deposit",
	"ATM":         "Cash",
	"CASH":        "Cash",
	"POS":         "Purchase",
	"XFER":        "Transfer",
	"CHECK":       "Check",
	"PAYMENT":     "Payment",
	"DIRECTDEBIT": "Payment",
	"REPEATPMT":   "Payment",
}

const categoryOther = "Other"

var bankAccountTypes = map[string]string{
	"CHECKING":   "checking",
	"SAVINGS":    "savings",
	"MONEYMRKT":  "savings",
	"CD":         "savings",
	"CREDITLINE": "credit",
}

const accountTypeOther = "other"

// NormalizeTagSoup repairs SGML-style OFX into well-formed nested tags.
// Anything before the first <OFX> marker (the colon-separated header
// block of OFX 1.x files) is discarded, and every <TAG>value leaf whose
// value does not itself start a new tag is rewritten to <TAG>value</TAG>.
func NormalizeTagSoup(text string) (string, error) {
	idx := indexFold(text, "<OFX>")
	if idx < 0 {
		// OFX 2.x is already XML; accept it from its root as-is
		idx = indexFold(text, "<OFX ")
	}
	if idx < 0 {
		return "", ErrNoRootElement
	}
	text = text[idx:]

	var b strings.Builder
	b.Grow(len(text) + len(text)/4)

	i := 0
	for i < len(text) {
		if text[i] != '<' {
			b.WriteByte(text[i])
			i++
			continue
		}
		end := strings.IndexByte(text[i:], '>')
		if end < 0 {
			b.WriteString(text[i:])
			break
		}
		tag := text[i : i+end+1]
		b.WriteString(tag)
		i += end + 1
		if strings.HasPrefix(tag, "</") || strings.HasSuffix(tag, "/>") {
			continue
		}

		name := tagName(tag)
		next := strings.IndexByte(text[i:], '<')
		var value string
		if next < 0 {
			value, i = text[i:], len(text)
		} else {
			value, i = text[i:i+next], i+next
		}

		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			// container element, keep surrounding whitespace
			b.WriteString(value)
			continue
		}
		b.WriteString(trimmed)
		if !closesTag(text[i:], name) {
			b.WriteString("</" + name + ">")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// tagNode is one element of the parsed tag tree.
type tagNode struct {
	name     string
	text     string
	children []*tagNode
}

// parseTagTree builds the element tree from normalized markup using an
// explicit tag stack. A close tag pops until its matching open, so a
// missing close never desynchronizes the rest of the document.
func parseTagTree(text string) *tagNode {
	root := &tagNode{name: ""}
	stack := []*tagNode{root}

	i := 0
	for i < len(text) {
		if text[i] != '<' {
			next := strings.IndexByte(text[i:], '<')
			var chunk string
			if next < 0 {
				chunk, i = text[i:], len(text)
			} else {
				chunk, i = text[i:i+next], i+next
			}
			if trimmed := strings.TrimSpace(chunk); trimmed != "" {
				top := stack[len(stack)-1]
				top.text += trimmed
			}
			continue
		}
		end := strings.IndexByte(text[i:], '>')
		if end < 0 {
			break
		}
		tag := text[i : i+end+1]
		i += end + 1

		if strings.HasPrefix(tag, "</") {
			name := tagName(tag)
			for depth := len(stack) - 1; depth > 0; depth-- {
				if strings.EqualFold(stack[depth].name, name) {
					stack = stack[:depth]
					break
				}
			}
			continue
		}
		if strings.HasPrefix(tag, "<?") || strings.HasPrefix(tag, "<!") {
			continue
		}

		child := &tagNode{name: tagName(tag)}
		top := stack[len(stack)-1]
		top.children = append(top.children, child)
		if !strings.HasSuffix(tag, "/>") {
			stack = append(stack, child)
		}
	}
	return root
}

// findAll returns every descendant with the given name, depth-first. Two
// same-named blocks come back as distinct nodes whether they are siblings
// or nested, which is the whole point of the tree pass.
func (n *tagNode) findAll(name string) []*tagNode {
	var out []*tagNode
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

func (n *tagNode) find(name string) *tagNode {
	for _, c := range n.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// value returns the text of the first descendant with the given name.
func (n *tagNode) value(name string) string {
	if found := n.find(name); found != nil {
		return found.text
	}
	return ""
}

// ExtractOFX normalizes possibly-malformed OFX markup and extracts its
// bank, credit-card, and investment statements. A statement block with no
// parseable account identity is skipped silently; leaf records with
// missing or malformed required fields are dropped with a row error.
func ExtractOFX(ctx context.Context, text string) ([]Statement, []RowError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	normalized, err := NormalizeTagSoup(text)
	if err != nil {
		return nil, nil, err
	}
	root := parseTagTree(normalized)

	var (
		statements []Statement
		rowErrs    []RowError
	)

	for _, block := range root.findAll("STMTRS") {
		acct := block.find("BANKACCTFROM")
		if acct == nil || acct.value("ACCTID") == "" {
			continue
		}
		stmt := Statement{
			AccountID:   acct.value("ACCTID"),
			BankID:      acct.value("BANKID"),
			AccountType: mapAccountType(acct.value("ACCTTYPE")),
			Currency:    block.value("CURDEF"),
		}
		stmt.Transactions, rowErrs = extractStatementTransactions(block, rowErrs)
		statements = append(statements, stmt)
	}

	for _, block := range root.findAll("CCSTMTRS") {
		acct := block.find("CCACCTFROM")
		if acct == nil || acct.value("ACCTID") == "" {
			continue
		}
		stmt := Statement{
			AccountID:   acct.value("ACCTID"),
			AccountType: "credit",
			Currency:    block.value("CURDEF"),
		}
		stmt.Transactions, rowErrs = extractStatementTransactions(block, rowErrs)
		statements = append(statements, stmt)
	}

	for _, block := range root.findAll("INVSTMTRS") {
		acct := block.find("INVACCTFROM")
		if acct == nil || acct.value("ACCTID") == "" {
			continue
		}
		stmt := Statement{
			AccountID:   acct.value("ACCTID"),
			BankID:      acct.value("BROKERID"),
			AccountType: "investment",
			Currency:    block.value("CURDEF"),
		}
		// cash movements inside the investment statement
		stmt.Transactions, rowErrs = extractStatementTransactions(block, rowErrs)
		for i, pos := range block.findAll("INVPOS") {
			holding, err := extractOFXPosition(pos)
			if err != nil {
				rowErrs = append(rowErrs, RowError{Index: i + 1, Reason: err.Error()})
				continue
			}
			stmt.Holdings = append(stmt.Holdings, holding)
		}
		statements = append(statements, stmt)
	}

	return statements, rowErrs, nil
}

func extractStatementTransactions(block *tagNode, rowErrs []RowError) ([]Transaction, []RowError) {
	nodes := block.findAll("STMTTRN")
	transactions := make([]Transaction, 0, len(nodes))
	for i, n := range nodes {
		tx, err := extractOFXTransaction(n)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i + 1, Reason: err.Error()})
			continue
		}
		transactions = append(transactions, tx)
	}
	return transactions, rowErrs
}

func extractOFXTransaction(n *tagNode) (Transaction, error) {
	dateRaw := n.value("DTPOSTED")
	if dateRaw == "" {
		dateRaw = n.value("DTUSER")
	}
	date, err := ParseOFXDate(dateRaw)
	if err != nil {
		return Transaction{}, err
	}

	amountRaw := n.value("TRNAMT")
	if amountRaw == "" {
		return Transaction{}, fmt.Errorf("transaction missing TRNAMT")
	}
	amountCents, err := normalizer.ParseAmountCents(amountRaw, false)
	if err != nil {
		return Transaction{}, err
	}

	description := n.value("NAME")
	if description == "" {
		description = n.value("MEMO")
	}

	return Transaction{
		Date:        date,
		Description: normalizer.CleanDescription(description),
		AmountCents: amountCents,
		Category:    mapTransactionType(n.value("TRNTYPE")),
		FITID:       n.value("FITID"),
		Memo:        n.value("MEMO"),
	}, nil
}

func extractOFXPosition(n *tagNode) (Holding, error) {
	symbol := normalizer.NormalizeSymbol(n.value("TICKER"))
	if symbol == "" {
		symbol = normalizer.NormalizeSymbol(n.value("UNIQUEID"))
	}
	if symbol == "" {
		return Holding{}, fmt.Errorf("position missing security identifier")
	}

	unitsRaw := n.value("UNITS")
	if unitsRaw == "" {
		return Holding{}, fmt.Errorf("position missing UNITS")
	}
	quantity, err := normalizer.ParseDecimal(unitsRaw, false)
	if err != nil {
		return Holding{}, err
	}

	holding := Holding{Symbol: symbol, Quantity: quantity}
	if raw := n.value("UNITPRICE"); raw != "" {
		if p, err := normalizer.ParseDecimal(raw, false); err == nil {
			holding.Price = p
		}
	}
	holding.CostBasis = holding.Price
	return holding, nil
}

// ParseOFXDate parses the 8 or 14-digit OFX date encoding, truncating any
// timezone suffix beyond 14 characters ("20240105120000[-5:EST]").
func ParseOFXDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 14 {
		if t, err := time.Parse("20060102150405", raw[:14]); err == nil {
			return t, nil
		}
	}
	if len(raw) >= 8 {
		if t, err := time.Parse("20060102", raw[:8]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &normalizer.MalformedDateError{Raw: raw}
}

func mapTransactionType(code string) string {
	if category, ok := transactionTypeCategories[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return category
	}
	return categoryOther
}

func mapAccountType(code string) string {
	if t, ok := bankAccountTypes[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return t
	}
	return accountTypeOther
}

func tagName(tag string) string {
	name := strings.Trim(tag, "</>")
	if i := strings.IndexAny(name, " \t\r\n/"); i >= 0 {
		name = name[:i]
	}
	return name
}

// closesTag reports whether text starts with a close tag for name,
// ignoring case.
func closesTag(text, name string) bool {
	if !strings.HasPrefix(text, "</") {
		return false
	}
	end := strings.IndexByte(text, '>')
	if end < 0 {
		return false
	}
	return strings.EqualFold(tagName(text[:end+1]), name)
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToUpper(s), strings.ToUpper(substr))
}
