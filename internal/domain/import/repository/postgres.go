package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresImportRepository implements ImportRepository using PostgreSQL.
type PostgresImportRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresImportRepository creates a new PostgreSQL import repository.
func NewPostgresImportRepository(pool *pgxpool.Pool) *PostgresImportRepository {
	return &PostgresImportRepository{pool: pool}
}

// SaveImport writes the job record, accounts, transactions, and holdings
// inside one database transaction.
func (r *PostgresImportRepository) SaveImport(ctx context.Context, job *ImportJob, accounts []*Account) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO import_jobs (id, file_name, format, status, account_count, transaction_count, holding_count, warning_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID,
		job.FileName,
		job.Format,
		job.Status,
		job.AccountCount,
		job.TransactionCount,
		job.HoldingCount,
		job.WarningCount,
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import job: %w", err)
	}

	for _, account := range accounts {
		if account.ID == uuid.Nil {
			account.ID = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO accounts (id, name, type, institution, external_id, currency_code)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (external_id) WHERE external_id <> ''
			DO UPDATE SET name = EXCLUDED.name`,
			account.ID,
			account.Name,
			account.Type,
			account.Institution,
			account.ExternalID,
			account.Currency,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", account.Name, err)
		}

		if err := insertTransactions(ctx, tx, account); err != nil {
			return err
		}
		if err := insertHoldings(ctx, tx, account); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func insertTransactions(ctx context.Context, tx pgx.Tx, account *Account) error {
	for i := range account.Transactions {
		t := &account.Transactions[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		t.AccountID = account.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO transactions (id, account_id, occurred_on, description, amount_minor, category, external_id, memo)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (account_id, external_id) WHERE external_id <> ''
			DO NOTHING`,
			t.ID,
			t.AccountID,
			t.Date,
			t.Description,
			t.AmountMinor,
			t.Category,
			t.ExternalID,
			t.Memo,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}
	return nil
}

func insertHoldings(ctx context.Context, tx pgx.Tx, account *Account) error {
	for i := range account.Holdings {
		h := &account.Holdings[i]
		if h.ID == uuid.Nil {
			h.ID = uuid.New()
		}
		h.AccountID = account.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO holdings (id, account_id, symbol, name, quantity, price, cost_basis, asset_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			h.ID,
			h.AccountID,
			h.Symbol,
			h.Name,
			h.Quantity,
			h.Price,
			h.CostBasis,
			h.AssetType,
		)
		if err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
		}
	}
	return nil
}

// FindAccountByExternalID looks up an account previously created from the
// same statement source.
func (r *PostgresImportRepository) FindAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	query := `
		SELECT id, name, type, institution, external_id, currency_code
		FROM accounts
		WHERE external_id = $1`

	account := &Account{}
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&account.ID,
		&account.Name,
		&account.Type,
		&account.Institution,
		&account.ExternalID,
		&account.Currency,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	return account, nil
}
