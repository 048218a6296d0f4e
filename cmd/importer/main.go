// Command importer loads bank and brokerage statement files into the
// ledger database, or inspects them with a dry run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gocarina/gocsv"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/repository"
	"github.com/ledgerhound/ledgerhound/internal/domain/import/service"
	"github.com/ledgerhound/ledgerhound/pkg/config"
	"github.com/ledgerhound/ledgerhound/pkg/money"
)

// exportRow is the flattened shape written by -export.
type exportRow struct {
	Account     string `csv:"account"`
	Date        string `csv:"date"`
	Description string `csv:"description"`
	Amount      string `csv:"amount"`
	Category    string `csv:"category"`
	Memo        string `csv:"memo"`
}

func main() {
	var (
		dryRun     = flag.Bool("dry-run", false, "parse the file without writing to the database")
		account    = flag.String("account", "", "account name override for CSV/QIF imports")
		currency   = flag.String("currency", "", "default ISO 4217 currency code")
		exportPath = flag.String("export", "", "write imported transactions to this CSV file")
		verbose    = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <statement-file>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	fileName := flag.Arg(0)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, fileName, *dryRun, *account, *currency, *exportPath); err != nil {
		logger.Error("importer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, fileName string, dryRun bool, account, currency, exportPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if currency == "" {
		currency = cfg.Import.DefaultCurrency
	}

	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	if int64(len(data)) > cfg.Import.MaxFileBytes {
		return fmt.Errorf("file exceeds %d byte limit", cfg.Import.MaxFileBytes)
	}

	var repo repository.ImportRepository
	memRepo := repository.NewMemoryImportRepository()
	if dryRun {
		repo = memRepo
	} else {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		repo = repository.NewPostgresImportRepository(pool)
	}

	svc := service.NewImportService(repo, logger).
		WithProgress(func(phase service.Phase, fraction float64) {
			logger.Debug("progress",
				slog.String("phase", phase.String()),
				slog.Float64("fraction", fraction),
			)
		})

	result, err := svc.ImportFile(ctx, service.ImportRequest{
		FileName:    fileName,
		Data:        data,
		AccountName: account,
		Currency:    currency,
	})
	if err != nil {
		return err
	}

	fmt.Printf("imported %d accounts, %d transactions, %d holdings\n",
		result.AccountsCreated, result.TransactionsImported, result.HoldingsImported)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}

	if exportPath != "" {
		// exports read back from the in-memory repository, so they are
		// only available on dry runs
		if !dryRun {
			return fmt.Errorf("-export requires -dry-run")
		}
		if err := writeExport(exportPath, memRepo.Accounts, currency); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}
	return nil
}

func writeExport(path string, accounts []*repository.Account, currency string) error {
	rows := make([]*exportRow, 0)
	for _, account := range accounts {
		code := account.Currency
		if code == "" {
			code = currency
		}
		for _, t := range account.Transactions {
			rows = append(rows, &exportRow{
				Account:     account.Name,
				Date:        t.Date.Format("2006-01-02"),
				Description: t.Description,
				Amount:      money.FormatMinor(t.AmountMinor, code),
				Category:    t.Category,
				Memo:        strings.ReplaceAll(t.Memo, "\n", " "),
			})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
