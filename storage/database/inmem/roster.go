package inmemdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/group"
)

// rosterRepository backs the cohort-resolver and recipient-directory
// capabilities from enrollment data seeded by the surrounding application.
type rosterRepository struct {
	db *rosterTable
}

var (
	_ group.CohortResolver    = (*rosterRepository)(nil)
	_ core.RecipientDirectory = (*rosterRepository)(nil)
)

func NewRosterRepository(db *DB) *rosterRepository {
	return &rosterRepository{db: db.roster}
}

// SeedStudent registers a student in a cohort with its responsible payer.
func (repo *rosterRepository) SeedStudent(cohortID, studentID, payerID string) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.cohorts[cohortID] = append(repo.db.cohorts[cohortID], studentID)
	repo.db.payers[studentID] = payerID
}

// SeedRecipient registers a payer's contact details.
func (repo *rosterRepository) SeedRecipient(rcp core.Recipient) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.recipients[rcp.PayerID] = rcp
}

func (repo *rosterRepository) StudentsInCohort(ctx context.Context, cohortID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]string, len(repo.db.cohorts[cohortID]))
	copy(students, repo.db.cohorts[cohortID])
	return students, nil
}

func (repo *rosterRepository) PayerOf(ctx context.Context, studentID string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	payerID, ok := repo.db.payers[studentID]
	if !ok {
		return "", errors.Errorf("no payer for student %s", studentID)
	}
	return payerID, nil
}

func (repo *rosterRepository) Recipient(payerID string) (core.Recipient, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rcp, ok := repo.db.recipients[payerID]
	if !ok {
		return core.Recipient{}, errors.Errorf("no contact details for payer %s", payerID)
	}
	return rcp, nil
}
