// Package parser contains the three format-specific extractors: delimited
// text, OFX-style tag soup, and the QIF line protocol. Each consumes raw
// file content and emits normalized transaction and holding records plus
// row-level errors for records it had to drop.
package parser

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Progress reports extraction advancement at coarse intervals. Extractors
// call it from their checkpoint loop, never per row; nil disables it.
type Progress func(done, total int)

// Transaction is a normalized money movement. A record only exists once a
// valid date and a derivable signed amount were found; extractors never
// emit partial records.
type Transaction struct {
	Date        time.Time
	Description string // required but may be empty
	AmountCents int64  // positive = inflow, negative = outflow
	Category    string // raw label, pre-canonicalization
	FITID       string // source transaction ID when the format carries one
	Memo        string
}

// Holding is a normalized position. Symbol and Quantity are required;
// Price defaults to zero and CostBasis falls back to Price.
type Holding struct {
	Symbol    string // upper-cased
	Name      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	CostBasis decimal.Decimal
	AssetType string
}

// RowError records a dropped row. Row errors never abort a file; they are
// collected and surfaced as bounded warnings.
type RowError struct {
	Index  int // 1-based row/record index within the file
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Index, e.Reason)
}

// MissingColumnError is a file-level structural failure: a required column
// for the detected dataset kind was not found in the header. It aborts the
// whole file before any row is processed.
type MissingColumnError struct {
	Role string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q not found", e.Role)
}
