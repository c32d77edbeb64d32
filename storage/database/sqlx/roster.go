package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/group"
)

// rosterRepository backs the cohort-resolver and recipient-directory
// capabilities from enrollment data.
type rosterRepository struct {
	db *sqlx.DB
}

var (
	_ group.CohortResolver    = (*rosterRepository)(nil)
	_ core.RecipientDirectory = (*rosterRepository)(nil)
)

func NewRosterRepository(db *sqlx.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) StudentsInCohort(ctx context.Context, cohortID string) ([]string, error) {
	var students []string
	if err := repo.db.SelectContext(ctx, &students, `SELECT id FROM student WHERE cohort_id = $1 ORDER BY id`, cohortID); err != nil {
		return nil, errors.Wrap(err, "querying cohort students")
	}
	return students, nil
}

func (repo *rosterRepository) PayerOf(ctx context.Context, studentID string) (string, error) {
	var payerID string
	if err := repo.db.GetContext(ctx, &payerID, `SELECT payer_id FROM student WHERE id = $1`, studentID); err != nil {
		if err == sql.ErrNoRows {
			return "", errors.Errorf("no payer for student %s", studentID)
		}
		return "", errors.Wrap(err, "querying student payer")
	}
	return payerID, nil
}

type contactRow struct {
	PayerID string `db:"payer_id"`
	Name    string `db:"name"`
	Email   string `db:"email"`
	Phone   string `db:"phone"`
}

func (repo *rosterRepository) Recipient(payerID string) (core.Recipient, error) {
	var row contactRow
	if err := repo.db.Get(&row, `SELECT * FROM payer_contact WHERE payer_id = $1`, payerID); err != nil {
		if err == sql.ErrNoRows {
			return core.Recipient{}, errors.Errorf("no contact details for payer %s", payerID)
		}
		return core.Recipient{}, errors.Wrap(err, "querying payer contact")
	}
	return core.Recipient{PayerID: row.PayerID, Name: row.Name, Email: row.Email, Phone: row.Phone}, nil
}
