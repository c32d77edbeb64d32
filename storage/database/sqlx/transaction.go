package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

type transactionRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*transactionRepository)(nil) // interface compliance check

func NewTransactionRepository(db *sqlx.DB) *transactionRepository {
	return &transactionRepository{db: db}
}

type transactionRow struct {
	ID             string          `db:"id"`
	PayerID        string          `db:"payer_id"`
	SchoolID       string          `db:"school_id"`
	Concept        string          `db:"concept"`
	Amount         decimal.Decimal `db:"amount"`
	Currency       string          `db:"currency"`
	RefKind        string          `db:"ref_kind"`
	RefID          string          `db:"ref_id"`
	Method         string          `db:"method"`
	Status         string          `db:"status"`
	DueDate        time.Time       `db:"due_date"`
	ProofRef       string          `db:"proof_ref"`
	ChargeRef      string          `db:"charge_ref"`
	RejectionCount int             `db:"rejection_count"`
	Version        int             `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (repo transactionRepository) row(tx billing.Transaction) transactionRow {
	return transactionRow{
		ID:             tx.ID,
		PayerID:        tx.PayerID,
		SchoolID:       tx.SchoolID,
		Concept:        tx.Concept,
		Amount:         tx.Amount.Amount,
		Currency:       tx.Amount.Currency,
		RefKind:        string(tx.RefKind),
		RefID:          tx.RefID,
		Method:         string(tx.Method),
		Status:         string(tx.Status),
		DueDate:        tx.DueDate.UTC(),
		ProofRef:       string(tx.ProofRef),
		ChargeRef:      tx.ChargeRef,
		RejectionCount: tx.RejectionCount,
		Version:        tx.Version,
		CreatedAt:      tx.CreatedAt.UTC(),
		UpdatedAt:      tx.UpdatedAt.UTC(),
	}
}

func (repo transactionRepository) unrow(row transactionRow) billing.Transaction {
	return billing.Transaction{
		ID:             row.ID,
		PayerID:        row.PayerID,
		SchoolID:       row.SchoolID,
		Concept:        row.Concept,
		Amount:         core.NewMoney(row.Amount, row.Currency),
		RefKind:        billing.ReferenceKind(row.RefKind),
		RefID:          row.RefID,
		Method:         billing.Method(row.Method),
		Status:         billing.Status(row.Status),
		DueDate:        row.DueDate.UTC(),
		ProofRef:       core.BlobRef(row.ProofRef),
		ChargeRef:      row.ChargeRef,
		RejectionCount: row.RejectionCount,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}

func (repo *transactionRepository) CreateTransaction(ctx context.Context, tx billing.Transaction) (billing.Transaction, error) {
	row := repo.row(tx)
	row.Version = 1
	query := `
		INSERT INTO transaction (
			payer_id, school_id, concept, amount, currency, ref_kind, ref_id,
			method, status, due_date, proof_ref, charge_ref, rejection_count,
			version, created_at, updated_at
		) VALUES (
			:payer_id, :school_id, :concept, :amount, :currency, :ref_kind, :ref_id,
			:method, :status, :due_date, :proof_ref, :charge_ref, :rejection_count,
			:version, :created_at, :updated_at
		) RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, repo.db, query, row)
	if err != nil {
		return billing.Transaction{}, errors.Wrap(err, "inserting transaction")
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err = rows.Scan(&row.ID); err != nil {
			return billing.Transaction{}, errors.Wrap(err, "scanning transaction id")
		}
	}
	return repo.unrow(row), rows.Err()
}

func (repo *transactionRepository) GetTransaction(ctx context.Context, id string) (billing.Transaction, error) {
	var row transactionRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM transaction WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return billing.Transaction{}, billing.ErrNotFound
		}
		return billing.Transaction{}, errors.Wrap(err, "getting transaction")
	}
	return repo.unrow(row), nil
}

func (repo *transactionRepository) UpdateTransaction(ctx context.Context, tx billing.Transaction) (billing.Transaction, error) {
	row := repo.row(tx)
	query := `
		UPDATE transaction SET
			method = :method, status = :status, proof_ref = :proof_ref,
			charge_ref = :charge_ref, rejection_count = :rejection_count,
			version = version + 1, updated_at = :updated_at
		WHERE id = :id AND version = :version`
	res, err := sqlx.NamedExecContext(ctx, repo.db, query, row)
	if err != nil {
		return billing.Transaction{}, errors.Wrap(err, "updating transaction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return billing.Transaction{}, errors.Wrap(err, "updating transaction")
	}
	if n == 0 {
		// either the row is gone or the version moved under us
		if _, err := repo.GetTransaction(ctx, tx.ID); err != nil {
			return billing.Transaction{}, err
		}
		return billing.Transaction{}, billing.ErrVersionConflict
	}
	tx.Version++
	return tx, nil
}

func (repo *transactionRepository) FilterTransactions(ctx context.Context, filter billing.QueryFilter) ([]billing.Transaction, error) {
	query := `SELECT * FROM transaction WHERE 1=1`
	var args []interface{}

	addArg := func(clause string, val interface{}) {
		args = append(args, val)
		query += clause
	}
	if filter.PayerID != "" {
		addArg(" AND payer_id = ?", filter.PayerID)
	}
	if filter.SchoolID != "" {
		addArg(" AND school_id = ?", filter.SchoolID)
	}
	if filter.RefID != "" {
		addArg(" AND ref_id = ?", filter.RefID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q, inArgs, err := sqlx.In(" AND status IN (?)", statuses)
		if err != nil {
			return nil, errors.Wrap(err, "building status filter")
		}
		query += q
		args = append(args, inArgs...)
	}
	if !filter.DueFrom.IsZero() {
		addArg(" AND due_date >= ?", filter.DueFrom.UTC())
	}
	if !filter.DueTo.IsZero() {
		addArg(" AND due_date <= ?", filter.DueTo.UTC())
	}
	query += " ORDER BY due_date, created_at"

	var rows []transactionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering transactions")
	}
	txs := make([]billing.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, repo.unrow(row))
	}
	return txs, nil
}

func (repo *transactionRepository) QueryDebtors(ctx context.Context, schoolID string) ([]billing.Debtor, error) {
	query := `
		SELECT payer_id, currency, SUM(amount) AS outstanding, COUNT(*) AS count
		FROM transaction
		WHERE school_id = $1 AND status NOT IN ('paid', 'confirmed')
		GROUP BY payer_id, currency
		ORDER BY outstanding DESC`
	var rows []struct {
		PayerID     string          `db:"payer_id"`
		Currency    string          `db:"currency"`
		Outstanding decimal.Decimal `db:"outstanding"`
		Count       int             `db:"count"`
	}
	if err := repo.db.SelectContext(ctx, &rows, query, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying debtors")
	}
	debtors := make([]billing.Debtor, 0, len(rows))
	for _, row := range rows {
		debtors = append(debtors, billing.Debtor{
			PayerID:     row.PayerID,
			Outstanding: core.NewMoney(row.Outstanding, row.Currency),
			Count:       row.Count,
		})
	}
	return debtors, nil
}
