package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/credit"
)

type creditRepository struct {
	db *accountTable
}

var _ credit.Repository = (*creditRepository)(nil) // interface compliance check

func NewCreditRepository(db *DB) *creditRepository {
	return &creditRepository{db: db.account}
}

func (repo *creditRepository) GetAccount(ctx context.Context, ownerID string) (credit.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if acc, ok := repo.db.accounts[ownerID]; ok {
		return *acc, nil
	}
	return credit.Account{}, credit.ErrNotFound
}

// ApplyEntry performs the read-modify-write under the table lock so balance
// mutations on the same ownerID serialize.
func (repo *creditRepository) ApplyEntry(ctx context.Context, entry credit.Entry) (credit.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	now := time.Now().UTC()
	acc, ok := repo.db.accounts[entry.OwnerID]
	if !ok {
		// lazy creation on first credit/debit
		acc = &credit.Account{
			OwnerID:   entry.OwnerID,
			Balance:   core.ZeroMoney(entry.Amount.Currency),
			CreatedAt: now,
		}
	}

	balance, err := acc.Balance.Add(entry.Amount)
	if err != nil {
		return credit.Account{}, err
	}
	acc.Balance = balance
	acc.Version++
	acc.UpdatedAt = now
	repo.db.accounts[entry.OwnerID] = acc

	entry.ID = uuid.New().String()
	entry.CreatedAt = now
	repo.db.entries[entry.OwnerID] = append(repo.db.entries[entry.OwnerID], entry)

	return *acc, nil
}

func (repo *creditRepository) QueryEntries(ctx context.Context, ownerID string) ([]credit.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]credit.Entry, len(repo.db.entries[ownerID]))
	copy(entries, repo.db.entries[ownerID])
	return entries, nil
}
