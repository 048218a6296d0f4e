package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryImportRepository keeps imports in memory. It backs dry runs and
// tests.
type MemoryImportRepository struct {
	mu       sync.Mutex
	Jobs     []*ImportJob
	Accounts []*Account
}

// NewMemoryImportRepository creates an empty in-memory repository.
func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{}
}

func (r *MemoryImportRepository) SaveImport(ctx context.Context, job *ImportJob, accounts []*Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	r.Jobs = append(r.Jobs, job)

	for _, account := range accounts {
		isNew := account.ID == uuid.Nil
		if isNew {
			account.ID = uuid.New()
		}
		for i := range account.Transactions {
			if account.Transactions[i].ID == uuid.Nil {
				account.Transactions[i].ID = uuid.New()
			}
			account.Transactions[i].AccountID = account.ID
		}
		for i := range account.Holdings {
			if account.Holdings[i].ID == uuid.Nil {
				account.Holdings[i].ID = uuid.New()
			}
			account.Holdings[i].AccountID = account.ID
		}

		// a pre-assigned ID means the account was resolved earlier;
		// fold the new records into the stored one
		if !isNew {
			if existing := r.lookupLocked(account.ID); existing != nil {
				existing.Transactions = append(existing.Transactions, account.Transactions...)
				existing.Holdings = append(existing.Holdings, account.Holdings...)
				continue
			}
		}
		r.Accounts = append(r.Accounts, account)
	}
	return nil
}

func (r *MemoryImportRepository) lookupLocked(id uuid.UUID) *Account {
	for _, a := range r.Accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (r *MemoryImportRepository) FindAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	if externalID == "" {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.Accounts {
		if account.ExternalID == externalID {
			return account, nil
		}
	}
	return nil, nil
}
