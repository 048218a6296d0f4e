package parser

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/normalizer"
	"github.com/ledgerhound/ledgerhound/internal/domain/import/sniffer"
)

// cancellation is checked every checkpointRows rows inside extraction loops
const checkpointRows = 256

// ExtractTransactions converts tokenized data rows into transactions using
// the detected column mapping. Date and description columns are a
// file-level precondition; the amount comes from a single amount column
// or, when absent, from credit minus debit. Rows whose date or amount
// cannot be parsed are dropped with a row error and never abort the file.
func ExtractTransactions(ctx context.Context, rows [][]string, mapping sniffer.ColumnMapping, progress Progress) ([]Transaction, []RowError, error) {
	if mapping.DateCol < 0 {
		return nil, nil, &MissingColumnError{Role: "date"}
	}
	if mapping.DescCol < 0 {
		return nil, nil, &MissingColumnError{Role: "description"}
	}
	if mapping.AmountCol < 0 && mapping.DebitCol < 0 && mapping.CreditCol < 0 {
		return nil, nil, &MissingColumnError{Role: "amount"}
	}

	transactions := make([]Transaction, 0, len(rows))
	var rowErrs []RowError

	for i, row := range rows {
		if i%checkpointRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if progress != nil {
				progress(i, len(rows))
			}
		}
		rowNum := i + 2 // 1-indexed, after the header row

		date, err := normalizer.ParseDate(cell(row, mapping.DateCol), mapping.DateFormat)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: rowNum, Reason: err.Error()})
			continue
		}

		var amountCents int64
		if mapping.AmountCol >= 0 {
			amountCents, err = normalizer.ParseAmountCents(cell(row, mapping.AmountCol), mapping.European)
		} else {
			amountCents, err = normalizer.DeriveDebitCredit(
				cell(row, mapping.DebitCol), cell(row, mapping.CreditCol), mapping.European)
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: rowNum, Reason: err.Error()})
			continue
		}

		transactions = append(transactions, Transaction{
			Date:        date,
			Description: normalizer.CleanDescription(cell(row, mapping.DescCol)),
			AmountCents: amountCents,
			Category:    normalizer.CleanDescription(cell(row, mapping.CategoryCol)),
		})
	}

	if progress != nil {
		progress(len(rows), len(rows))
	}
	return transactions, rowErrs, nil
}

// ExtractHoldings converts tokenized data rows into holdings. Symbol and
// quantity columns are a file-level precondition; price defaults to zero
// and cost basis falls back to price. Rows missing a parseable symbol or
// quantity are dropped.
func ExtractHoldings(ctx context.Context, rows [][]string, mapping sniffer.ColumnMapping, progress Progress) ([]Holding, []RowError, error) {
	if mapping.SymbolCol < 0 {
		return nil, nil, &MissingColumnError{Role: "symbol"}
	}
	if mapping.QuantityCol < 0 {
		return nil, nil, &MissingColumnError{Role: "quantity"}
	}

	holdings := make([]Holding, 0, len(rows))
	var rowErrs []RowError

	for i, row := range rows {
		if i%checkpointRows == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if progress != nil {
				progress(i, len(rows))
			}
		}
		rowNum := i + 2

		symbol := normalizer.NormalizeSymbol(cell(row, mapping.SymbolCol))
		if symbol == "" {
			rowErrs = append(rowErrs, RowError{Index: rowNum, Reason: "missing symbol"})
			continue
		}

		quantity, err := normalizer.ParseDecimal(cell(row, mapping.QuantityCol), mapping.European)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: rowNum, Reason: fmt.Sprintf("quantity: %v", err)})
			continue
		}

		price := decimal.Zero
		if raw := cell(row, mapping.PriceCol); raw != "" {
			if p, err := normalizer.ParseDecimal(raw, mapping.European); err == nil {
				price = p
			}
		}

		costBasis := price
		if raw := cell(row, mapping.CostBasisCol); raw != "" {
			if cb, err := normalizer.ParseDecimal(raw, mapping.European); err == nil {
				costBasis = cb
			}
		}

		holdings = append(holdings, Holding{
			Symbol:    symbol,
			Name:      normalizer.CleanDescription(cell(row, mapping.NameCol)),
			Quantity:  quantity,
			Price:     price,
			CostBasis: costBasis,
			AssetType: normalizer.CleanDescription(cell(row, mapping.AssetTypeCol)),
		})
	}

	if progress != nil {
		progress(len(rows), len(rows))
	}
	return holdings, rowErrs, nil
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
