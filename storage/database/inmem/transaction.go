package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

type transactionRepository struct {
	db *transactionTable
}

var _ billing.Repository = (*transactionRepository)(nil) // interface compliance check

func NewTransactionRepository(db *DB) *transactionRepository {
	return &transactionRepository{db: db.transaction}
}

func (repo *transactionRepository) query() []billing.Transaction {
	txs := make([]billing.Transaction, 0, len(repo.db.table))
	for _, tx := range repo.db.table {
		txs = append(txs, *tx)
	}
	return txs
}

func (repo *transactionRepository) CreateTransaction(ctx context.Context, tx billing.Transaction) (billing.Transaction, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	tx.ID = uuid.New().String()
	tx.Version = 1
	repo.db.table[tx.ID] = &tx
	return tx, nil
}

func (repo *transactionRepository) GetTransaction(ctx context.Context, id string) (billing.Transaction, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if tx, ok := repo.db.table[id]; ok {
		return *tx, nil
	}
	return billing.Transaction{}, billing.ErrNotFound
}

func (repo *transactionRepository) UpdateTransaction(ctx context.Context, tx billing.Transaction) (billing.Transaction, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[tx.ID]
	if !ok {
		return billing.Transaction{}, billing.ErrNotFound
	}
	if orig.Version != tx.Version {
		return billing.Transaction{}, billing.ErrVersionConflict
	}
	tx.Version++
	repo.db.table[tx.ID] = &tx
	return tx, nil
}

func (repo *transactionRepository) FilterTransactions(ctx context.Context, filter billing.QueryFilter) ([]billing.Transaction, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	txs := make([]billing.Transaction, 0)
	for _, tx := range repo.query() {
		if filter.Match(tx) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (repo *transactionRepository) QueryDebtors(ctx context.Context, schoolID string) ([]billing.Debtor, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	// one row per (payer, currency), like the postgres backend
	type key struct{ payerID, currency string }
	byPayer := make(map[key]*billing.Debtor)
	for _, tx := range repo.query() {
		if tx.SchoolID != schoolID || tx.Status.IsSettled() {
			continue
		}
		k := key{tx.PayerID, tx.Amount.Currency}
		d, ok := byPayer[k]
		if !ok {
			d = &billing.Debtor{PayerID: tx.PayerID, Outstanding: core.ZeroMoney(tx.Amount.Currency)}
			byPayer[k] = d
		}
		sum, err := d.Outstanding.Add(tx.Amount)
		if err != nil {
			return nil, err
		}
		d.Outstanding = sum
		d.Count++
	}

	debtors := make([]billing.Debtor, 0, len(byPayer))
	for _, d := range byPayer {
		debtors = append(debtors, *d)
	}
	sort.Slice(debtors, func(i, j int) bool {
		return debtors[i].Outstanding.Amount.GreaterThan(debtors[j].Outstanding.Amount)
	})
	return debtors, nil
}
