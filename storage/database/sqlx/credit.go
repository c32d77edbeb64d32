package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/credit"
)

type creditRepository struct {
	db *sqlx.DB
}

var _ credit.Repository = (*creditRepository)(nil) // interface compliance check

func NewCreditRepository(db *sqlx.DB) *creditRepository {
	return &creditRepository{db: db}
}

type accountRow struct {
	OwnerID   string          `db:"owner_id"`
	Balance   decimal.Decimal `db:"balance"`
	Currency  string          `db:"currency"`
	Version   int             `db:"version"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type entryRow struct {
	ID        string          `db:"id"`
	OwnerID   string          `db:"owner_id"`
	Kind      string          `db:"kind"`
	Amount    decimal.Decimal `db:"amount"`
	Currency  string          `db:"currency"`
	Label     string          `db:"label"`
	CreatedAt time.Time       `db:"created_at"`
}

func (repo creditRepository) unrowAccount(row accountRow) credit.Account {
	return credit.Account{
		OwnerID:   row.OwnerID,
		Balance:   core.NewMoney(row.Balance, row.Currency),
		Version:   row.Version,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

func (repo *creditRepository) GetAccount(ctx context.Context, ownerID string) (credit.Account, error) {
	var row accountRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM credit_account WHERE owner_id = $1`, ownerID); err != nil {
		if err == sql.ErrNoRows {
			return credit.Account{}, credit.ErrNotFound
		}
		return credit.Account{}, errors.Wrap(err, "getting credit account")
	}
	return repo.unrowAccount(row), nil
}

// ApplyEntry serializes balance mutations per owner with a row lock; the
// account is created lazily on first use.
func (repo *creditRepository) ApplyEntry(ctx context.Context, entry credit.Entry) (credit.Account, error) {
	dbtx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return credit.Account{}, errors.Wrap(err, "beginning credit entry")
	}
	defer func() { _ = dbtx.Rollback() }()

	upsert := `
		INSERT INTO credit_account (owner_id, balance, currency, created_at, updated_at)
		VALUES ($1, 0, $2, now(), now())
		ON CONFLICT (owner_id) DO NOTHING`
	if _, err = dbtx.ExecContext(ctx, upsert, entry.OwnerID, entry.Amount.Currency); err != nil {
		return credit.Account{}, errors.Wrap(err, "creating credit account")
	}

	var row accountRow
	if err = dbtx.GetContext(ctx, &row, `SELECT * FROM credit_account WHERE owner_id = $1 FOR UPDATE`, entry.OwnerID); err != nil {
		return credit.Account{}, errors.Wrap(err, "locking credit account")
	}
	if row.Currency != entry.Amount.Currency {
		return credit.Account{}, core.ErrCurrencyMismatch
	}

	update := `
		UPDATE credit_account
		SET balance = balance + $2, version = version + 1, updated_at = now()
		WHERE owner_id = $1
		RETURNING balance, version, updated_at`
	if err = dbtx.QueryRowContext(ctx, update, entry.OwnerID, entry.Amount.Amount).
		Scan(&row.Balance, &row.Version, &row.UpdatedAt); err != nil {
		return credit.Account{}, errors.Wrap(err, "updating credit balance")
	}

	insert := `
		INSERT INTO credit_entry (owner_id, kind, amount, currency, label)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err = dbtx.ExecContext(ctx, insert, entry.OwnerID, string(entry.Kind), entry.Amount.Amount, entry.Amount.Currency, entry.Label); err != nil {
		return credit.Account{}, errors.Wrap(err, "recording credit entry")
	}

	if err = dbtx.Commit(); err != nil {
		return credit.Account{}, errors.Wrap(err, "committing credit entry")
	}
	return repo.unrowAccount(row), nil
}

func (repo *creditRepository) QueryEntries(ctx context.Context, ownerID string) ([]credit.Entry, error) {
	var rows []entryRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM credit_entry WHERE owner_id = $1 ORDER BY created_at`, ownerID); err != nil {
		return nil, errors.Wrap(err, "querying credit entries")
	}
	entries := make([]credit.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, credit.Entry{
			ID:        row.ID,
			OwnerID:   row.OwnerID,
			Kind:      credit.EntryKind(row.Kind),
			Amount:    core.NewMoney(row.Amount, row.Currency),
			Label:     row.Label,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
