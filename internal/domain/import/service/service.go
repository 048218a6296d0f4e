// Package service provides the import orchestration logic.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"github.com/ledgerhound/ledgerhound/internal/domain/import/normalizer"
	"github.com/ledgerhound/ledgerhound/internal/domain/import/parser"
	"github.com/ledgerhound/ledgerhound/internal/domain/import/repository"
	"github.com/ledgerhound/ledgerhound/internal/domain/import/sniffer"
	"github.com/ledgerhound/ledgerhound/pkg/money"
)

// Phase is the coarse state of a running import.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReading
	PhaseDetecting
	PhaseMaterializing
	PhaseSaving
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseDetecting:
		return "detecting"
	case PhaseMaterializing:
		return "materializing"
	case PhaseSaving:
		return "saving"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// phase weights for the coarse progress fraction; progress only moves
// forward
var phaseProgress = map[Phase]float64{
	PhaseIdle:          0,
	PhaseReading:       0.1,
	PhaseDetecting:     0.3,
	PhaseMaterializing: 0.6,
	PhaseSaving:        0.9,
	PhaseComplete:      1,
	PhaseFailed:        1,
}

var (
	// ErrUnsupportedFormat means the file extension maps to no known parser.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrUndecodableEncoding means the payload is neither valid UTF-8 nor Windows-1252.
	ErrUndecodableEncoding = errors.New("file encoding could not be decoded")
	// ErrEmptyInput means the file decoded to nothing usable.
	ErrEmptyInput = errors.New("file contains no data")
	// ErrNoTargetAccount means no account could be resolved or synthesized.
	ErrNoTargetAccount = errors.New("no target account for import")
)

// CommitError wraps a repository failure during the saving phase. It is
// the only terminal error that can occur after materialization.
type CommitError struct {
	Cause error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to save import: %v", e.Cause)
}

func (e *CommitError) Unwrap() error {
	return e.Cause
}

// maxWarnings bounds the warning list; overflow is summarized in one
// final entry.
const maxWarnings = 50

// ImportRequest describes one file to import.
type ImportRequest struct {
	FileName    string
	Data        []byte
	AccountName string // optional override for delimited files
	Currency    string // optional default currency
	DefaultType string // optional account type for delimited files
}

// ImportResult summarizes a completed import.
type ImportResult struct {
	JobID                uuid.UUID
	AccountsCreated      int
	TransactionsImported int
	HoldingsImported     int
	Warnings             []string
}

// ProgressFunc receives phase transitions with a monotonic fraction in
// [0, 1].
type ProgressFunc func(phase Phase, fraction float64)

// ImportService turns raw statement files into persisted accounts,
// transactions, and holdings.
type ImportService struct {
	repo     repository.ImportRepository
	logger   *slog.Logger
	progress ProgressFunc
	lastFrac float64
}

// NewImportService creates a new import service.
func NewImportService(repo repository.ImportRepository, logger *slog.Logger) *ImportService {
	return &ImportService{
		repo:   repo,
		logger: logger,
	}
}

// WithProgress adds a progress callback to the import service.
func (s *ImportService) WithProgress(fn ProgressFunc) *ImportService {
	s.progress = fn
	return s
}

func (s *ImportService) report(phase Phase, frac float64) {
	if s.progress == nil {
		return
	}
	if frac < s.lastFrac {
		frac = s.lastFrac
	}
	s.lastFrac = frac
	s.progress(phase, frac)
}

func (s *ImportService) setPhase(phase Phase) {
	s.report(phase, phaseProgress[phase])
}

// rowProgress maps extractor advancement onto the fraction band between
// the materializing and saving phases, so large files show movement
// between phase transitions.
func (s *ImportService) rowProgress(done, total int) {
	if total <= 0 {
		return
	}
	lo := phaseProgress[PhaseMaterializing]
	hi := phaseProgress[PhaseSaving]
	s.report(PhaseMaterializing, lo+(hi-lo)*float64(done)/float64(total))
}

// ImportFile runs the full pipeline for one file: decode, detect the
// format, materialize accounts with their records, and persist them in a
// single commit.
func (s *ImportService) ImportFile(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	started := time.Now()
	s.lastFrac = 0
	s.setPhase(PhaseReading)

	result, err := s.importFile(ctx, req, started)
	if err != nil {
		s.setPhase(PhaseFailed)
		s.logger.Error("import failed",
			slog.String("file", req.FileName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.setPhase(PhaseComplete)
	s.logger.Info("import complete",
		slog.String("file", req.FileName),
		slog.Int("accounts", result.AccountsCreated),
		slog.Int("transactions", result.TransactionsImported),
		slog.Int("holdings", result.HoldingsImported),
		slog.Int("warnings", len(result.Warnings)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (s *ImportService) importFile(ctx context.Context, req ImportRequest, started time.Time) (*ImportResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := detectFormat(req.FileName)
	if format == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(req.FileName))
	}

	var (
		accounts []*repository.Account
		warnings []string
		err      error
	)
	switch format {
	case "xlsx":
		accounts, warnings, err = s.importWorkbook(ctx, req)
	default:
		text, decErr := decodeText(req.Data)
		if decErr != nil {
			return nil, decErr
		}
		switch format {
		case "csv", "tsv":
			accounts, warnings, err = s.importDelimited(ctx, req, text)
		case "ofx":
			accounts, warnings, err = s.importOFX(ctx, req, text)
		case "qif":
			accounts, warnings, err = s.importQIF(ctx, req, text)
		}
	}
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoTargetAccount
	}

	s.setPhase(PhaseSaving)

	job := &repository.ImportJob{
		ID:           uuid.New(),
		FileName:     filepath.Base(req.FileName),
		Format:       format,
		Status:       "complete",
		AccountCount: len(accounts),
		WarningCount: len(warnings),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	for _, a := range accounts {
		job.TransactionCount += len(a.Transactions)
		job.HoldingCount += len(a.Holdings)
	}

	// accounts resolved to an existing container carry its ID already
	created := 0
	for _, a := range accounts {
		if a.ID == uuid.Nil {
			created++
		}
	}

	if err := s.repo.SaveImport(ctx, job, accounts); err != nil {
		return nil, &CommitError{Cause: err}
	}

	return &ImportResult{
		JobID:                job.ID,
		AccountsCreated:      created,
		TransactionsImported: job.TransactionCount,
		HoldingsImported:     job.HoldingCount,
		Warnings:             warnings,
	}, nil
}

// importDelimited handles CSV and TSV statements: tokenize, detect the
// schema, resolve the date format, then extract either transactions or
// holdings depending on the detected dataset kind.
func (s *ImportService) importDelimited(ctx context.Context, req ImportRequest, text string) ([]*repository.Account, []string, error) {
	s.setPhase(PhaseDetecting)

	delimiter := sniffer.DetectDelimiter(firstLine(text))
	rows := sniffer.Tokenize(text, delimiter)
	if len(rows) == 0 {
		return nil, nil, ErrEmptyInput
	}
	if len(rows) == 1 {
		return nil, nil, fmt.Errorf("%w: header row only", ErrEmptyInput)
	}

	mapping := sniffer.DetectSchema(rows[0], delimiter)
	if mapping.Kind == sniffer.DatasetUnknown {
		return nil, nil, fmt.Errorf("%w: cannot classify columns", ErrUnsupportedFormat)
	}

	data := rows[1:]
	if mapping.DateCol >= 0 {
		mapping.DateFormat = normalizer.ResolveDateFormat(sniffer.SampleColumn(data, mapping.DateCol, 5))
	}
	if amountCol := firstAmountColumn(mapping); amountCol >= 0 {
		if european, ok := sniffer.ProbeAmountFormat(sniffer.SampleColumn(data, amountCol, 10)); ok {
			mapping.European = european
		}
	}

	s.logger.Debug("schema detected",
		slog.String("file", req.FileName),
		slog.String("kind", mapping.Kind.String()),
		slog.String("delimiter", string(mapping.Delimiter)),
		slog.String("date_format", mapping.DateFormat),
		slog.Bool("european", mapping.European),
	)

	s.setPhase(PhaseMaterializing)

	account := s.synthesizeAccount(req, mapping.Kind)

	var (
		rowErrs []parser.RowError
		err     error
	)
	switch mapping.Kind {
	case sniffer.DatasetHoldings:
		var holdings []parser.Holding
		holdings, rowErrs, err = parser.ExtractHoldings(ctx, data, mapping, s.rowProgress)
		if err != nil {
			return nil, nil, err
		}
		account.Holdings = materializeHoldings(holdings)
	default:
		var transactions []parser.Transaction
		transactions, rowErrs, err = parser.ExtractTransactions(ctx, data, mapping, s.rowProgress)
		if err != nil {
			return nil, nil, err
		}
		account.Transactions = materializeTransactions(transactions)
	}

	if len(account.Transactions) == 0 && len(account.Holdings) == 0 {
		return nil, nil, fmt.Errorf("%w: no usable rows", ErrEmptyInput)
	}
	return []*repository.Account{account}, collectWarnings(rowErrs), nil
}

// importWorkbook reads the first sheet of an XLSX file and feeds it
// through the delimited pipeline.
func (s *ImportService) importWorkbook(ctx context.Context, req ImportRequest) ([]*repository.Account, []string, error) {
	s.setPhase(PhaseDetecting)

	rows, err := parser.ReadWorkbookRows(bytes.NewReader(req.Data))
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, ErrEmptyInput
	}

	mapping := sniffer.DetectSchema(rows[0], ',')
	if mapping.Kind == sniffer.DatasetUnknown {
		return nil, nil, fmt.Errorf("%w: cannot classify columns", ErrUnsupportedFormat)
	}
	data := rows[1:]
	if mapping.DateCol >= 0 {
		mapping.DateFormat = normalizer.ResolveDateFormat(sniffer.SampleColumn(data, mapping.DateCol, 5))
	}

	s.setPhase(PhaseMaterializing)

	account := s.synthesizeAccount(req, mapping.Kind)

	var rowErrs []parser.RowError
	if mapping.Kind == sniffer.DatasetHoldings {
		var holdings []parser.Holding
		holdings, rowErrs, err = parser.ExtractHoldings(ctx, data, mapping, s.rowProgress)
		if err != nil {
			return nil, nil, err
		}
		account.Holdings = materializeHoldings(holdings)
	} else {
		var transactions []parser.Transaction
		transactions, rowErrs, err = parser.ExtractTransactions(ctx, data, mapping, s.rowProgress)
		if err != nil {
			return nil, nil, err
		}
		account.Transactions = materializeTransactions(transactions)
	}

	if len(account.Transactions) == 0 && len(account.Holdings) == 0 {
		return nil, nil, fmt.Errorf("%w: no usable rows", ErrEmptyInput)
	}
	return []*repository.Account{account}, collectWarnings(rowErrs), nil
}

// importOFX extracts one account per statement block; blocks without an
// account identity have already been skipped by the parser.
func (s *ImportService) importOFX(ctx context.Context, req ImportRequest, text string) ([]*repository.Account, []string, error) {
	s.setPhase(PhaseDetecting)

	statements, rowErrs, err := parser.ExtractOFX(ctx, text)
	if err != nil {
		if errors.Is(err, parser.ErrNoRootElement) {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, nil, err
	}

	s.setPhase(PhaseMaterializing)

	accounts := make([]*repository.Account, 0, len(statements))
	for _, stmt := range statements {
		account := &repository.Account{
			Name:         accountDisplayName(stmt),
			Type:         stmt.AccountType,
			Institution:  stmt.BankID,
			ExternalID:   stmt.AccountID,
			Currency:     money.NormalizeCurrency(stmt.Currency, req.Currency),
			Transactions: materializeTransactions(stmt.Transactions),
			Holdings:     materializeHoldings(stmt.Holdings),
		}

		// reuse an account created by an earlier import of the same
		// statement source instead of synthesizing a second one
		existing, lookupErr := s.repo.FindAccountByExternalID(ctx, stmt.AccountID)
		if lookupErr != nil {
			return nil, nil, lookupErr
		}
		if existing != nil {
			account.ID = existing.ID
			account.Name = existing.Name
			account.Type = existing.Type
			if existing.Currency != "" {
				account.Currency = existing.Currency
			}
		}
		accounts = append(accounts, account)
	}
	return accounts, collectWarnings(rowErrs), nil
}

// importQIF maps the whole file onto one synthesized account since the
// QIF line protocol carries no account identity.
func (s *ImportService) importQIF(ctx context.Context, req ImportRequest, text string) ([]*repository.Account, []string, error) {
	s.setPhase(PhaseDetecting)
	s.setPhase(PhaseMaterializing)

	transactions, rowErrs, err := parser.ExtractQIF(ctx, text, s.rowProgress)
	if err != nil {
		return nil, nil, err
	}
	if len(transactions) == 0 && len(rowErrs) == 0 {
		return nil, nil, ErrEmptyInput
	}

	account := s.synthesizeAccount(req, sniffer.DatasetTransactions)
	account.Transactions = materializeTransactions(transactions)
	if len(account.Transactions) == 0 {
		return nil, nil, fmt.Errorf("%w: no usable records", ErrEmptyInput)
	}
	return []*repository.Account{account}, collectWarnings(rowErrs), nil
}

// synthesizeAccount builds an account for formats that carry no identity
// of their own, naming it after the file.
func (s *ImportService) synthesizeAccount(req ImportRequest, kind sniffer.DatasetKind) *repository.Account {
	name := req.AccountName
	if name == "" {
		base := filepath.Base(req.FileName)
		name = strings.TrimSuffix(base, filepath.Ext(base))
		name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Imported Account"
		}
	}

	accountType := req.DefaultType
	if accountType == "" {
		if kind == sniffer.DatasetHoldings {
			accountType = "investment"
		} else {
			accountType = "checking"
		}
	}

	return &repository.Account{
		Name:     name,
		Type:     accountType,
		Currency: money.NormalizeCurrency(req.Currency, ""),
	}
}

func materializeTransactions(in []parser.Transaction) []repository.Transaction {
	out := make([]repository.Transaction, 0, len(in))
	for _, t := range in {
		out = append(out, repository.Transaction{
			Date:        t.Date,
			Description: t.Description,
			AmountMinor: t.AmountCents,
			Category:    t.Category,
			ExternalID:  t.FITID,
			Memo:        t.Memo,
		})
	}
	return out
}

func materializeHoldings(in []parser.Holding) []repository.Holding {
	out := make([]repository.Holding, 0, len(in))
	for _, h := range in {
		out = append(out, repository.Holding{
			Symbol:    h.Symbol,
			Name:      h.Name,
			Quantity:  h.Quantity,
			Price:     h.Price,
			CostBasis: h.CostBasis,
			AssetType: h.AssetType,
		})
	}
	return out
}

// collectWarnings converts row errors into user-facing warnings, keeping
// at most maxWarnings entries and summarizing the rest.
func collectWarnings(rowErrs []parser.RowError) []string {
	if len(rowErrs) == 0 {
		return nil
	}
	warnings := make([]string, 0, len(rowErrs)+1)
	for i, e := range rowErrs {
		if i == maxWarnings {
			warnings = append(warnings, fmt.Sprintf("and %d more rows skipped", len(rowErrs)-maxWarnings))
			break
		}
		warnings = append(warnings, e.Error())
	}
	return warnings
}

// decodeText decodes the payload as UTF-8 with a Windows-1252 fallback
// for exports from older banking software.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if len(bytes.TrimSpace(data)) == 0 {
		return "", ErrEmptyInput
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", ErrUndecodableEncoding
	}
	// the decoder maps the five undefined Windows-1252 bytes to C1
	// control runes; their presence means the fallback guess was wrong
	for _, r := range string(decoded) {
		if r == utf8.RuneError || (r >= 0x80 && r <= 0x9F) {
			return "", ErrUndecodableEncoding
		}
	}
	return string(decoded), nil
}

func detectFormat(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".tsv", ".tab":
		return "tsv"
	case ".ofx", ".qfx":
		return "ofx"
	case ".qif":
		return "qif"
	case ".xlsx":
		return "xlsx"
	default:
		return ""
	}
}

func firstAmountColumn(m sniffer.ColumnMapping) int {
	if m.AmountCol >= 0 {
		return m.AmountCol
	}
	return m.CreditCol
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func accountDisplayName(stmt parser.Statement) string {
	id := stmt.AccountID
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	label := strings.ToUpper(stmt.AccountType[:1]) + stmt.AccountType[1:]
	return fmt.Sprintf("%s ...%s", label, id)
}
