package parser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankSoup = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
CHARSET:1252

<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>021000021
<ACCTID>9876543210
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240105120000[-5:EST]
<TRNAMT>-12.34
<FITID>20240105001
<NAME>COFFEE SHOP
</STMTTRN>
<STMTTRN>
<TRNTYPE>DIRECTDEP
<DTPOSTED>20240110
<TRNAMT>2500.00
<FITID>20240110001
<NAME>EMPLOYER PAYROLL
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestNormalizeTagSoup(t *testing.T) {
	t.Run("discards header and closes leaves", func(t *testing.T) {
		out, err := NormalizeTagSoup(bankSoup)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "<OFX>"))
		assert.Contains(t, out, "<CURDEF>USD</CURDEF>")
		assert.Contains(t, out, "<TRNAMT>-12.34</TRNAMT>")
		assert.NotContains(t, out, "OFXHEADER")
	})

	t.Run("already closed leaves untouched", func(t *testing.T) {
		out, err := NormalizeTagSoup("<OFX><CURDEF>EUR</CURDEF></OFX>")
		require.NoError(t, err)
		assert.Equal(t, 1, strings.Count(out, "</CURDEF>"))
	})

	t.Run("no root element", func(t *testing.T) {
		_, err := NormalizeTagSoup("just,a,csv\n1,2,3")
		assert.ErrorIs(t, err, ErrNoRootElement)
	})
}

func TestExtractOFX(t *testing.T) {
	ctx := context.Background()

	t.Run("bank statement", func(t *testing.T) {
		statements, rowErrs, err := ExtractOFX(ctx, bankSoup)
		require.NoError(t, err)
		assert.Empty(t, rowErrs)
		require.Len(t, statements, 1)

		stmt := statements[0]
		assert.Equal(t, "9876543210", stmt.AccountID)
		assert.Equal(t, "021000021", stmt.BankID)
		assert.Equal(t, "checking", stmt.AccountType)
		assert.Equal(t, "USD", stmt.Currency)
		require.Len(t, stmt.Transactions, 2)

		first := stmt.Transactions[0]
		assert.Equal(t, time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC), first.Date)
		assert.Equal(t, int64(-1234), first.AmountCents)
		assert.Equal(t, "COFFEE SHOP", first.Description)
		assert.Equal(t, "Debit", first.Category)
		assert.Equal(t, "20240105001", first.FITID)

		assert.Equal(t, "Deposit", stmt.Transactions[1].Category)
	})

	t.Run("statement without account identity skipped silently", func(t *testing.T) {
		soup := `<OFX><STMTRS><CURDEF>USD
<BANKTRANLIST><STMTTRN><TRNTYPE>DEBIT
<DTPOSTED>20240105
<TRNAMT>-1.00
</STMTTRN></BANKTRANLIST></STMTRS></OFX>`
		statements, rowErrs, err := ExtractOFX(ctx, soup)
		require.NoError(t, err)
		assert.Empty(t, statements)
		assert.Empty(t, rowErrs)
	})

	t.Run("credit card statement", func(t *testing.T) {
		soup := `<OFX><CCSTMTRS><CURDEF>USD
<CCACCTFROM><ACCTID>4111111111111111</CCACCTFROM>
<BANKTRANLIST><STMTTRN>
<TRNTYPE>PAYMENT
<DTPOSTED>20240201
<TRNAMT>-55.00
<NAME>CARD PAYMENT
</STMTTRN></BANKTRANLIST></CCSTMTRS></OFX>`
		statements, _, err := ExtractOFX(ctx, soup)
		require.NoError(t, err)
		require.Len(t, statements, 1)
		assert.Equal(t, "credit", statements[0].AccountType)
		require.Len(t, statements[0].Transactions, 1)
		assert.Equal(t, "Payment", statements[0].Transactions[0].Category)
	})

	t.Run("investment positions", func(t *testing.T) {
		soup := `<OFX><INVSTMTRS><CURDEF>USD
<INVACCTFROM><BROKERID>broker.example.com
<ACCTID>INV-001</INVACCTFROM>
<INVPOSLIST>
<POSSTOCK><INVPOS>
<SECID><UNIQUEID>037833100</SECID>
<TICKER>AAPL
<UNITS>10.5
<UNITPRICE>185.20
</INVPOS></POSSTOCK>
<POSMF><INVPOS>
<SECID><UNIQUEID>922908769</SECID>
<UNITS>3
</INVPOS></POSMF>
</INVPOSLIST></INVSTMTRS></OFX>`
		statements, rowErrs, err := ExtractOFX(ctx, soup)
		require.NoError(t, err)
		assert.Empty(t, rowErrs)
		require.Len(t, statements, 1)

		stmt := statements[0]
		assert.Equal(t, "investment", stmt.AccountType)
		assert.Equal(t, "broker.example.com", stmt.BankID)
		require.Len(t, stmt.Holdings, 2)
		assert.Equal(t, "AAPL", stmt.Holdings[0].Symbol)
		assert.Equal(t, "10.5", stmt.Holdings[0].Quantity.String())
		// falls back to UNIQUEID when no ticker is present
		assert.Equal(t, "922908769", stmt.Holdings[1].Symbol)
	})

	t.Run("malformed leaf becomes row error", func(t *testing.T) {
		soup := `<OFX><STMTRS>
<BANKACCTFROM><ACCTID>1</BANKACCTFROM>
<STMTTRN><TRNTYPE>DEBIT
<DTPOSTED>20240105
<TRNAMT>garbage
</STMTTRN>
<STMTTRN><TRNTYPE>DEBIT
<DTPOSTED>20240106
<TRNAMT>-2.00
<NAME>OK
</STMTTRN></STMTRS></OFX>`
		statements, rowErrs, err := ExtractOFX(ctx, soup)
		require.NoError(t, err)
		require.Len(t, statements, 1)
		assert.Len(t, statements[0].Transactions, 1)
		assert.Len(t, rowErrs, 1)
	})

	t.Run("unknown transaction type maps to other", func(t *testing.T) {
		assert.Equal(t, "Other", mapTransactionType("WIRE"))
		assert.Equal(t, "other", mapAccountType("MYSTERY"))
	})
}

func TestExtractOFX_Deterministic(t *testing.T) {
	ctx := context.Background()
	first, _, err := ExtractOFX(ctx, bankSoup)
	require.NoError(t, err)
	second, _, err := ExtractOFX(ctx, bankSoup)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParseOFXDate(t *testing.T) {
	t.Run("date only", func(t *testing.T) {
		got, err := ParseOFXDate("20240105")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("date time with timezone suffix truncated", func(t *testing.T) {
		got, err := ParseOFXDate("20240105093000.000[-5:EST]")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.January, 5, 9, 30, 0, 0, time.UTC), got)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseOFXDate("2024")
		assert.Error(t, err)
	})
}

func BenchmarkNormalizeTagSoup(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := NormalizeTagSoup(bankSoup); err != nil {
			b.Fatal(err)
		}
	}
}
