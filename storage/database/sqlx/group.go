package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/group"
)

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *sqlx.DB) *groupRepository {
	return &groupRepository{db: db}
}

type groupRow struct {
	ID          string          `db:"id"`
	SchoolID    string          `db:"school_id"`
	Name        string          `db:"name"`
	ConceptID   string          `db:"concept_id"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	NextDueDate time.Time       `db:"next_due_date"`
	Version     int             `db:"version"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (repo groupRepository) row(grp group.Group) groupRow {
	return groupRow{
		ID:          grp.ID,
		SchoolID:    grp.SchoolID,
		Name:        grp.Name,
		ConceptID:   grp.ConceptID,
		Amount:      grp.Amount.Amount,
		Currency:    grp.Amount.Currency,
		NextDueDate: grp.NextDueDate.UTC(),
		Version:     grp.Version,
		CreatedAt:   grp.CreatedAt.UTC(),
		UpdatedAt:   grp.UpdatedAt.UTC(),
	}
}

func (repo groupRepository) unrow(row groupRow, members []string) group.Group {
	return group.Group{
		ID:          row.ID,
		SchoolID:    row.SchoolID,
		Name:        row.Name,
		ConceptID:   row.ConceptID,
		Amount:      core.NewMoney(row.Amount, row.Currency),
		Members:     members,
		NextDueDate: row.NextDueDate.UTC(),
		Version:     row.Version,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	row := repo.row(grp)
	row.Version = 1

	dbtx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "beginning group insert")
	}
	defer func() { _ = dbtx.Rollback() }()

	query := `
		INSERT INTO payment_group (
			school_id, name, concept_id, amount, currency, next_due_date,
			version, created_at, updated_at
		) VALUES (
			:school_id, :name, :concept_id, :amount, :currency, :next_due_date,
			:version, :created_at, :updated_at
		) RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, dbtx, query, row)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "inserting payment group")
	}
	if rows.Next() {
		if err = rows.Scan(&row.ID); err != nil {
			_ = rows.Close()
			return group.Group{}, errors.Wrap(err, "scanning group id")
		}
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return group.Group{}, errors.Wrap(err, "inserting payment group")
	}
	_ = rows.Close()

	if err = repo.replaceMembers(ctx, dbtx, row.ID, grp.Members); err != nil {
		return group.Group{}, err
	}
	if err = dbtx.Commit(); err != nil {
		return group.Group{}, errors.Wrap(err, "committing group insert")
	}
	return repo.unrow(row, grp.Members), nil
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string) (group.Group, error) {
	var row groupRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM payment_group WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "getting payment group")
	}
	members, err := repo.members(ctx, id)
	if err != nil {
		return group.Group{}, err
	}
	return repo.unrow(row, members), nil
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	row := repo.row(grp)

	dbtx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "beginning group update")
	}
	defer func() { _ = dbtx.Rollback() }()

	query := `
		UPDATE payment_group SET
			name = :name, amount = :amount, currency = :currency,
			next_due_date = :next_due_date, version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`
	res, err := sqlx.NamedExecContext(ctx, dbtx, query, row)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating payment group")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return group.Group{}, errors.Wrap(err, "updating payment group")
	}
	if n == 0 {
		if _, err := repo.GetGroup(ctx, grp.ID); err != nil {
			return group.Group{}, err
		}
		return group.Group{}, group.ErrVersionConflict
	}

	if _, err = dbtx.ExecContext(ctx, `DELETE FROM payment_group_member WHERE group_id = $1`, grp.ID); err != nil {
		return group.Group{}, errors.Wrap(err, "clearing group members")
	}
	if err = repo.replaceMembers(ctx, dbtx, grp.ID, grp.Members); err != nil {
		return group.Group{}, err
	}
	if err = dbtx.Commit(); err != nil {
		return group.Group{}, errors.Wrap(err, "committing group update")
	}
	grp.Version++
	return grp, nil
}

func (repo *groupRepository) QueryGroupsBySchool(ctx context.Context, schoolID string) ([]group.Group, error) {
	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM payment_group WHERE school_id = $1 ORDER BY created_at`, schoolID); err != nil {
		return nil, errors.Wrap(err, "querying payment groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		members, err := repo.members(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, repo.unrow(row, members))
	}
	return groups, nil
}

func (repo *groupRepository) MarkCycle(ctx context.Context, groupID string, dueDate time.Time) error {
	query := `INSERT INTO payment_group_cycle (group_id, due_date) VALUES ($1, $2)`
	if _, err := repo.db.ExecContext(ctx, query, groupID, dueDate.UTC().Format("2006-01-02")); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return group.ErrCycleDistributed
		}
		return errors.Wrap(err, "marking billing cycle")
	}
	return nil
}

func (repo *groupRepository) replaceMembers(ctx context.Context, dbtx *sqlx.Tx, groupID string, members []string) error {
	query := `INSERT INTO payment_group_member (group_id, payer_id) VALUES ($1, $2)`
	for _, payerID := range members {
		if _, err := dbtx.ExecContext(ctx, query, groupID, payerID); err != nil {
			return errors.Wrap(err, "inserting group member")
		}
	}
	return nil
}

func (repo *groupRepository) members(ctx context.Context, groupID string) ([]string, error) {
	var members []string
	if err := repo.db.SelectContext(ctx, &members, `SELECT payer_id FROM payment_group_member WHERE group_id = $1 ORDER BY payer_id`, groupID); err != nil {
		return nil, errors.Wrap(err, "querying group members")
	}
	return members, nil
}
