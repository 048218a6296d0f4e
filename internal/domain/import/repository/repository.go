package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a financial account created or matched during an import,
// together with the records that were filed under it.
type Account struct {
	ID           uuid.UUID
	Name         string
	Type         string // checking, savings, credit, investment, other
	Institution  string
	ExternalID   string
	Currency     string
	Transactions []Transaction
	Holdings     []Holding
}

// Transaction is a ledger row ready for persistence. Amounts are stored
// in minor units of the account currency.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Date        time.Time
	Description string
	AmountMinor int64
	Category    string
	ExternalID  string
	Memo        string
}

// Holding is one investment position snapshot.
type Holding struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Symbol    string
	Name      string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	CostBasis decimal.Decimal
	AssetType string
}

// ImportJob records one import run for auditability.
type ImportJob struct {
	ID               uuid.UUID
	FileName         string
	Format           string
	Status           string
	AccountCount     int
	TransactionCount int
	HoldingCount     int
	WarningCount     int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// ImportRepository persists the output of a completed import. SaveImport
// commits all accounts and their records in a single transaction so a
// failed run leaves nothing behind.
type ImportRepository interface {
	SaveImport(ctx context.Context, job *ImportJob, accounts []*Account) error
	FindAccountByExternalID(ctx context.Context, externalID string) (*Account, error)
}
