package group

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("payment group not found")
	// ErrCycleDistributed guards against duplicate distribution for the same
	// (group, dueDate) pair.
	ErrCycleDistributed = errors.New("billing cycle already distributed for this group and due date")
	ErrVersionConflict  = errors.New("payment group version conflict")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroup(ctx context.Context, id string) (Group, error)
		// UpdateGroup persists grp iff the stored Version still matches,
		// bumping it; returns ErrVersionConflict otherwise.
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		QueryGroupsBySchool(ctx context.Context, schoolID string) ([]Group, error)
		// MarkCycle records that (groupID, dueDate) was distributed; returns
		// ErrCycleDistributed when the pair was already recorded.
		MarkCycle(ctx context.Context, groupID string, dueDate time.Time) error
	}

	// CohortResolver resolves the payers behind a cohort of students.
	CohortResolver interface {
		StudentsInCohort(ctx context.Context, cohortID string) ([]string, error)
		PayerOf(ctx context.Context, studentID string) (string, error)
	}

	// Biller creates and queries the billing transactions a group fans out to.
	Biller interface {
		Create(ctx context.Context, nt billing.NewTransaction) (billing.Transaction, error)
		Filter(ctx context.Context, filter billing.QueryFilter) ([]billing.Transaction, error)
	}

	Service struct {
		repo    Repository
		cohorts CohortResolver
		bills   Biller
		log     core.Logger
	}
)

func NewService(repo Repository, cohorts CohortResolver, bills Biller, log core.Logger) *Service {
	return &Service{repo: repo, cohorts: cohorts, bills: bills, log: log}
}

func (svc *Service) Create(ctx context.Context, ng NewGroup) (Group, error) {
	now := NowFunc().UTC()
	grp := Group{
		SchoolID:    ng.SchoolID,
		Name:        ng.Name,
		ConceptID:   ng.ConceptID,
		Amount:      ng.Amount,
		Members:     dedup(ng.Members),
		NextDueDate: ng.NextDueDate.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateGroup(ctx, grp)
}

func (svc *Service) Get(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroup(ctx, id)
}

func (svc *Service) QueryBySchool(ctx context.Context, schoolID string) ([]Group, error) {
	return svc.repo.QueryGroupsBySchool(ctx, schoolID)
}

// ResolveByCohort resolves the deduplicated payer set behind a cohort's
// students. The group is not mutated until CommitMembership.
func (svc *Service) ResolveByCohort(ctx context.Context, cohortID string) ([]string, error) {
	students, err := svc.cohorts.StudentsInCohort(ctx, cohortID)
	if err != nil {
		return nil, core.NewExternalError("resolving cohort students", err)
	}
	payers := make([]string, 0, len(students))
	for _, studentID := range students {
		payerID, err := svc.cohorts.PayerOf(ctx, studentID)
		if err != nil {
			return nil, core.NewExternalError("resolving student payer", err)
		}
		payers = append(payers, payerID)
	}
	return dedup(payers), nil
}

// ResolveManual uses the given payer set directly, deduplicated.
func (svc *Service) ResolveManual(payerIDs []string) []string {
	return dedup(payerIDs)
}

// CommitMembership replaces the group's members atomically.
func (svc *Service) CommitMembership(ctx context.Context, groupID string, members []string) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	grp.Members = dedup(members)
	grp.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}

// MemberFailure reports one member whose fan-out failed; the others proceed.
type MemberFailure struct {
	PayerID string `json:"payer_id"`
	Err     error  `json:"error"`
}

// DistributeResult aggregates a fan-out's per-member outcomes.
type DistributeResult struct {
	Created []billing.Transaction `json:"created"`
	Failed  []MemberFailure       `json:"failed"`
}

// Distribute raises one Pending transaction per member for the cycle due on
// dueDate. Members are billed independently and in no particular order; one
// member's failure never aborts the rest. Each member is billed at most once
// per (group, dueDate) pair: re-running a cycle that had per-member failures
// fans out to the unbilled members only, and a fully billed cycle returns
// ErrCycleDistributed.
func (svc *Service) Distribute(ctx context.Context, groupID string, dueDate time.Time) (DistributeResult, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return DistributeResult{}, err
	}
	dueDate = dueDate.UTC()

	members := grp.Members
	if err := svc.repo.MarkCycle(ctx, grp.ID, dueDate); err != nil {
		if err != ErrCycleDistributed {
			return DistributeResult{}, err
		}
		if members, err = svc.unbilledMembers(ctx, grp, dueDate); err != nil {
			return DistributeResult{}, err
		}
		if len(members) == 0 {
			return DistributeResult{}, ErrCycleDistributed
		}
	}

	var (
		res DistributeResult
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	for _, payerID := range members {
		payerID := payerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := svc.bills.Create(ctx, billing.NewTransaction{
				PayerID:  payerID,
				SchoolID: grp.SchoolID,
				Concept:  grp.Name,
				Amount:   grp.Amount,
				RefKind:  billing.RefRecurring,
				RefID:    grp.ConceptID,
				Method:   billing.MethodBankTransfer, // default; settled via any method later
				DueDate:  dueDate,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, MemberFailure{PayerID: payerID, Err: err})
				return
			}
			res.Created = append(res.Created, tx)
		}()
	}
	wg.Wait()

	if len(res.Failed) > 0 {
		svc.log.Warn("distribution completed with failures", grp.ID, len(res.Failed))
	}
	return res, nil
}

// unbilledMembers returns the members with no transaction for the cycle yet.
func (svc *Service) unbilledMembers(ctx context.Context, grp Group, dueDate time.Time) ([]string, error) {
	txs, err := svc.bills.Filter(ctx, billing.QueryFilter{
		SchoolID: grp.SchoolID,
		RefID:    grp.ConceptID,
		DueFrom:  dueDate,
		DueTo:    dueDate,
	})
	if err != nil {
		return nil, err
	}
	billed := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		billed[tx.PayerID] = struct{}{}
	}
	members := make([]string, 0, len(grp.Members))
	for _, payerID := range grp.Members {
		if _, ok := billed[payerID]; !ok {
			members = append(members, payerID)
		}
	}
	return members, nil
}

// MemberStatuses projects, for every member, the state of the current cycle:
// Paid when a settled transaction exists, Overdue when the due date has
// passed with no settlement, Pending otherwise. Pure read; mutates nothing.
func (svc *Service) MemberStatuses(ctx context.Context, groupID string) ([]MemberStatus, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	txs, err := svc.bills.Filter(ctx, billing.QueryFilter{
		SchoolID: grp.SchoolID,
		RefID:    grp.ConceptID,
		DueFrom:  grp.NextDueDate,
		DueTo:    grp.NextDueDate,
	})
	if err != nil {
		return nil, err
	}

	byPayer := make(map[string]billing.Transaction, len(txs))
	for _, tx := range txs {
		existing, ok := byPayer[tx.PayerID]
		if !ok || (tx.Status.IsSettled() && !existing.Status.IsSettled()) {
			byPayer[tx.PayerID] = tx
		}
	}

	now := NowFunc().UTC()
	statuses := make([]MemberStatus, 0, len(grp.Members))
	for _, payerID := range grp.Members {
		ms := MemberStatus{PayerID: payerID, State: MemberPending}
		if tx, ok := byPayer[payerID]; ok {
			ms.TransactionID = tx.ID
			if tx.Status.IsSettled() {
				ms.State = MemberPaid
			}
		}
		if ms.State != MemberPaid && now.After(grp.NextDueDate) {
			ms.State = MemberOverdue
		}
		statuses = append(statuses, ms)
	}
	return statuses, nil
}

// RollForward advances the group's next due date by an explicit step.
func (svc *Service) RollForward(ctx context.Context, groupID string, next time.Time) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if !next.UTC().After(grp.NextDueDate) {
		return Group{}, core.NewValidationError(nil, core.FieldError{Field: "next_due_date", Error: "must be after the current due date"})
	}
	grp.NextDueDate = next.UTC()
	grp.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateGroup(ctx, grp)
}
