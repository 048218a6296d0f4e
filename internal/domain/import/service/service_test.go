package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/repository"
)

func newTestService(repo repository.ImportRepository) *ImportService {
	return NewImportService(repo, slog.Default())
}

var errBoom = errors.New("boom")

type failingRepository struct{}

func (f *failingRepository) SaveImport(ctx context.Context, job *repository.ImportJob, accounts []*repository.Account) error {
	return errBoom
}

func (f *failingRepository) FindAccountByExternalID(ctx context.Context, externalID string) (*repository.Account, error) {
	return nil, nil
}

func TestImportFile_CSV(t *testing.T) {
	ctx := context.Background()

	t.Run("bank csv end to end", func(t *testing.T) {
		csv := `Date,Description,Amount,Category
2024-01-15,Coffee Shop,-4.50,Food
2024-01-16,Salary,5000.00,Income
bogus date,Broken,1.00,
2024-01-17,Groceries,-125.30,Food`

		repo := repository.NewMemoryImportRepository()
		result, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "checking_2024.csv",
			Data:     []byte(csv),
			Currency: "USD",
		})
		require.NoError(t, err)

		assert.Equal(t, 1, result.AccountsCreated)
		assert.Equal(t, 3, result.TransactionsImported)
		assert.Equal(t, 0, result.HoldingsImported)
		assert.Len(t, result.Warnings, 1)

		require.Len(t, repo.Accounts, 1)
		account := repo.Accounts[0]
		assert.Equal(t, "checking 2024", account.Name)
		assert.Equal(t, "checking", account.Type)
		assert.Equal(t, "USD", account.Currency)
		assert.Len(t, account.Transactions, 3)
		assert.Equal(t, int64(-450), account.Transactions[0].AmountMinor)

		require.Len(t, repo.Jobs, 1)
		assert.Equal(t, "csv", repo.Jobs[0].Format)
		assert.Equal(t, 3, repo.Jobs[0].TransactionCount)
	})

	t.Run("holdings csv creates investment account", func(t *testing.T) {
		csv := `Symbol,Quantity,Last Price
AAPL,10.5,185.20
VTI,3,240.00`

		repo := repository.NewMemoryImportRepository()
		result, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "positions.csv",
			Data:     []byte(csv),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.HoldingsImported)
		assert.Equal(t, 0, result.TransactionsImported)
		assert.Equal(t, "investment", repo.Accounts[0].Type)
	})

	t.Run("semicolon delimited european amounts", func(t *testing.T) {
		csv := `Date;Description;Amount
15/01/2024;Mercado;-1.234,56
16/01/2024;Padaria;-4,50
17/01/2024;Farmacia;-12,00`

		repo := repository.NewMemoryImportRepository()
		result, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "extrato.csv",
			Data:     []byte(csv),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, result.TransactionsImported)
		assert.Equal(t, int64(-123456), repo.Accounts[0].Transactions[0].AmountMinor)
	})

	t.Run("header only", func(t *testing.T) {
		repo := repository.NewMemoryImportRepository()
		_, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "empty.csv",
			Data:     []byte("Date,Description,Amount\n"),
		})
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("unclassifiable headers", func(t *testing.T) {
		repo := repository.NewMemoryImportRepository()
		_, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "odd.csv",
			Data:     []byte("Foo,Bar\n1,2\n"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestImportFile_OFX(t *testing.T) {
	ctx := context.Background()

	t.Run("bank soup end to end", func(t *testing.T) {
		ofx := `OFXHEADER:100

<OFX><STMTRS><CURDEF>usd
<BANKACCTFROM><BANKID>1<ACCTID>9876543210<ACCTTYPE>SAVINGS</BANKACCTFROM>
<STMTTRN><TRNTYPE>DEBIT
<DTPOSTED>20240105
<TRNAMT>-12.34
<NAME>COFFEE SHOP
</STMTTRN></STMTRS></OFX>`

		repo := repository.NewMemoryImportRepository()
		result, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "statement.ofx",
			Data:     []byte(ofx),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.AccountsCreated)
		assert.Equal(t, 1, result.TransactionsImported)

		account := repo.Accounts[0]
		assert.Equal(t, "savings", account.Type)
		assert.Equal(t, "9876543210", account.ExternalID)
		assert.Equal(t, "USD", account.Currency)
		assert.Equal(t, "Savings ...3210", account.Name)
	})

	t.Run("reimport resolves the existing account", func(t *testing.T) {
		ofx := `<OFX><STMTRS><CURDEF>USD
<BANKACCTFROM><ACCTID>555000111<ACCTTYPE>CHECKING</BANKACCTFROM>
<STMTTRN><TRNTYPE>DEBIT
<DTPOSTED>20240105
<TRNAMT>-5.00
<NAME>FIRST
</STMTTRN></STMTRS></OFX>`

		repo := repository.NewMemoryImportRepository()
		svc := newTestService(repo)
		req := ImportRequest{FileName: "statement.ofx", Data: []byte(ofx)}

		first, err := svc.ImportFile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, first.AccountsCreated)

		second, err := svc.ImportFile(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 0, second.AccountsCreated)
		assert.Equal(t, 1, second.TransactionsImported)

		require.Len(t, repo.Accounts, 1)
		assert.Len(t, repo.Accounts[0].Transactions, 2)
	})

	t.Run("no statements resolves to no account", func(t *testing.T) {
		repo := repository.NewMemoryImportRepository()
		_, err := newTestService(repo).ImportFile(ctx, ImportRequest{
			FileName: "hollow.ofx",
			Data:     []byte("<OFX><SIGNONMSGSRSV1></SIGNONMSGSRSV1></OFX>"),
		})
		assert.ErrorIs(t, err, ErrNoTargetAccount)
	})
}

func TestImportFile_QIF(t *testing.T) {
	ctx := context.Background()

	qif := "!Type:Bank\nD1/5/2024\nT-12.34\nPCOFFEE SHOP\n^\nD1/10/2024\nT2500.00\n^\n"
	repo := repository.NewMemoryImportRepository()
	result, err := newTestService(repo).ImportFile(ctx, ImportRequest{
		FileName:    "export.qif",
		Data:        []byte(qif),
		AccountName: "Old Checking",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TransactionsImported)
	assert.Equal(t, "Old Checking", repo.Accounts[0].Name)
	assert.Equal(t, "Unknown Payee", repo.Accounts[0].Transactions[1].Description)
}

func TestImportFile_Errors(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryImportRepository()
	svc := newTestService(repo)

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := svc.ImportFile(ctx, ImportRequest{FileName: "statement.pdf", Data: []byte("x")})
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := svc.ImportFile(ctx, ImportRequest{FileName: "a.csv", Data: []byte("  \n ")})
		assert.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("undecodable bytes", func(t *testing.T) {
		_, err := svc.ImportFile(ctx, ImportRequest{FileName: "a.csv", Data: []byte{'a', 0x81, 'b'}})
		assert.ErrorIs(t, err, ErrUndecodableEncoding)
	})

	t.Run("repository failure wrapped as commit error", func(t *testing.T) {
		failing := &failingRepository{}
		_, err := newTestService(failing).ImportFile(ctx, ImportRequest{
			FileName: "a.csv",
			Data:     []byte("Date,Description,Amount\n2024-01-15,x,-1.00\n"),
		})
		var commit *CommitError
		require.ErrorAs(t, err, &commit)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.ImportFile(cancelled, ImportRequest{
			FileName: "a.csv",
			Data:     []byte("Date,Description,Amount\n2024-01-15,x,1.00\n"),
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDecodeText(t *testing.T) {
	t.Run("valid utf8 passes through", func(t *testing.T) {
		got, err := decodeText([]byte("café"))
		require.NoError(t, err)
		assert.Equal(t, "café", got)
	})

	t.Run("windows-1252 fallback", func(t *testing.T) {
		got, err := decodeText([]byte{'c', 'a', 'f', 0xE9})
		require.NoError(t, err)
		assert.Equal(t, "café", got)
	})

	t.Run("bom stripped", func(t *testing.T) {
		got, err := decodeText([]byte{0xEF, 0xBB, 0xBF, 'h', 'i'})
		require.NoError(t, err)
		assert.Equal(t, "hi", got)
	})
}

func TestProgress(t *testing.T) {
	repo := repository.NewMemoryImportRepository()

	var phases []Phase
	var fractions []float64
	svc := newTestService(repo).WithProgress(func(p Phase, f float64) {
		phases = append(phases, p)
		fractions = append(fractions, f)
	})

	_, err := svc.ImportFile(context.Background(), ImportRequest{
		FileName: "a.csv",
		Data:     []byte("Date,Description,Amount\n2024-01-15,x,-1.00\n"),
	})
	require.NoError(t, err)

	assert.Equal(t, PhaseReading, phases[0])
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

func TestProgress_TicksDuringMaterializing(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Date,Description,Amount\n")
	for i := 0; i < 600; i++ {
		sb.WriteString("2024-01-15,Coffee,-1.00\n")
	}

	var fractions []float64
	svc := newTestService(repository.NewMemoryImportRepository()).
		WithProgress(func(p Phase, f float64) {
			if p == PhaseMaterializing {
				fractions = append(fractions, f)
			}
		})

	_, err := svc.ImportFile(context.Background(), ImportRequest{
		FileName: "big.csv",
		Data:     []byte(sb.String()),
	})
	require.NoError(t, err)

	// the fraction advances within the phase, not only at its edges
	require.Greater(t, len(fractions), 2)
	assert.Greater(t, fractions[len(fractions)-1], fractions[0])
	assert.LessOrEqual(t, fractions[len(fractions)-1], phaseProgress[PhaseSaving])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

func TestCollectWarnings(t *testing.T) {
	// bounded at maxWarnings plus one summary line
	csv := "Date,Description,Amount\n"
	for i := 0; i < 60; i++ {
		csv += "garbage,broken,xx\n"
	}
	csv += "2024-01-15,ok,-1.00\n"

	repo := repository.NewMemoryImportRepository()
	result, err := newTestService(repo).ImportFile(context.Background(), ImportRequest{
		FileName: "noisy.csv",
		Data:     []byte(csv),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TransactionsImported)
	assert.Len(t, result.Warnings, maxWarnings+1)
	assert.Contains(t, result.Warnings[maxWarnings], "10 more")
}
