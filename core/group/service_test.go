package group_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/order"
	blobsvc "github.com/trezcool/malipo/services/blob"
	cardsvc "github.com/trezcool/malipo/services/payment"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	"github.com/trezcool/malipo/tests"
)

type testEnv struct {
	svc     *group.Service
	billing *billing.Service
	roster  interface {
		SeedStudent(cohortID, studentID, payerID string)
	}
}

func setup(t *testing.T) *testEnv {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	logger := testutil.NewLogger(t)
	roster := inmemdb.NewRosterRepository(db)

	creditSvc := credit.NewService(inmemdb.NewCreditRepository(db), logger)
	orderSvc := order.NewService(inmemdb.NewOrderRepository(db), nil, logger)
	billingSvc := billing.NewService(
		inmemdb.NewTransactionRepository(db),
		cardsvc.NewConsoleChargerMock(),
		creditSvc, orderSvc, blobsvc.NewMemoryStore(), logger,
	)
	orderSvc.SetBillCreator(billingSvc)

	return &testEnv{
		svc:     group.NewService(inmemdb.NewGroupRepository(db), roster, billingSvc, logger),
		billing: billingSvc,
		roster:  roster,
	}
}

var nextDue = time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC)

func createGroup(t *testing.T, env *testEnv, members []string) group.Group {
	t.Helper()
	grp, err := env.svc.Create(context.Background(), group.NewGroup{
		SchoolID:    "sch1",
		Name:        "Canteen Fees",
		ConceptID:   "concept-canteen",
		Amount:      testutil.USD(t, "25.00"),
		Members:     members,
		NextDueDate: nextDue,
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	return grp
}

func TestService_Create_dedupsMembers(t *testing.T) {
	env := setup(t)
	grp := createGroup(t, env, []string{"payer2", "payer1", "payer2", " ", "payer1"})

	want := []string{"payer1", "payer2"}
	if len(grp.Members) != len(want) {
		t.Fatalf("Members = %v, want %v", grp.Members, want)
	}
	for i, m := range want {
		if grp.Members[i] != m {
			t.Errorf("Members[%d] = %s, want %s", i, grp.Members[i], m)
		}
	}
}

func TestService_ResolveByCohort(t *testing.T) {
	env := setup(t)
	// two siblings share a payer: the payer set deduplicates
	env.roster.SeedStudent("cohort-3a", "stu1", "payer1")
	env.roster.SeedStudent("cohort-3a", "stu2", "payer1")
	env.roster.SeedStudent("cohort-3a", "stu3", "payer2")

	payers, err := env.svc.ResolveByCohort(context.Background(), "cohort-3a")
	if err != nil {
		t.Fatalf("ResolveByCohort() failed: %v", err)
	}
	want := []string{"payer1", "payer2"}
	if len(payers) != len(want) {
		t.Fatalf("ResolveByCohort() = %v, want %v", payers, want)
	}
	for i, p := range want {
		if payers[i] != p {
			t.Errorf("payers[%d] = %s, want %s", i, payers[i], p)
		}
	}
}

func TestService_Distribute(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	members := []string{"payer1", "payer2", "payer3"}
	grp := createGroup(t, env, members)

	res, err := env.svc.Distribute(ctx, grp.ID, nextDue)
	if err != nil {
		t.Fatalf("Distribute() failed: %v", err)
	}
	if len(res.Created) != len(members) || len(res.Failed) != 0 {
		t.Fatalf("Distribute() created %d failed %d, want %d created", len(res.Created), len(res.Failed), len(members))
	}
	for _, tx := range res.Created {
		if tx.Status != billing.StatusPending {
			t.Errorf("distributed transaction status = %s, want %s", tx.Status, billing.StatusPending)
		}
		if tx.RefKind != billing.RefRecurring || tx.RefID != grp.ConceptID {
			t.Errorf("distributed transaction ref = %s %s", tx.RefKind, tx.RefID)
		}
		if !tx.Amount.Equal(grp.Amount) {
			t.Errorf("distributed transaction amount = %s, want %s", tx.Amount, grp.Amount)
		}
	}

	// each member billed exactly once
	txs, err := env.billing.Filter(ctx, billing.QueryFilter{SchoolID: "sch1", RefID: grp.ConceptID})
	if err != nil {
		t.Fatalf("Filter() failed: %v", err)
	}
	seen := make(map[string]int)
	for _, tx := range txs {
		seen[tx.PayerID]++
	}
	for _, m := range members {
		if seen[m] != 1 {
			t.Errorf("member %s billed %d times, want 1", m, seen[m])
		}
	}

	// the same cycle cannot distribute twice
	if _, err = env.svc.Distribute(ctx, grp.ID, nextDue); err != group.ErrCycleDistributed {
		t.Errorf("repeat Distribute() error = %v, want ErrCycleDistributed", err)
	}
	// a later cycle can
	if _, err = env.svc.Distribute(ctx, grp.ID, nextDue.AddDate(0, 1, 0)); err != nil {
		t.Errorf("next cycle Distribute() failed: %v", err)
	}
}

// flakyBiller fails creation for a single payer and delegates the rest.
type flakyBiller struct {
	group.Biller
	failPayerID string
}

func (b *flakyBiller) Create(ctx context.Context, nt billing.NewTransaction) (billing.Transaction, error) {
	if nt.PayerID == b.failPayerID {
		return billing.Transaction{}, errors.New("billing unavailable")
	}
	return b.Biller.Create(ctx, nt)
}

func setupFlaky(t *testing.T, failPayerID string) (*testEnv, *flakyBiller) {
	t.Helper()
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	logger := testutil.NewLogger(t)
	roster := inmemdb.NewRosterRepository(db)

	creditSvc := credit.NewService(inmemdb.NewCreditRepository(db), logger)
	orderSvc := order.NewService(inmemdb.NewOrderRepository(db), nil, logger)
	billingSvc := billing.NewService(
		inmemdb.NewTransactionRepository(db),
		cardsvc.NewConsoleChargerMock(),
		creditSvc, orderSvc, blobsvc.NewMemoryStore(), logger,
	)
	orderSvc.SetBillCreator(billingSvc)
	biller := &flakyBiller{Biller: billingSvc, failPayerID: failPayerID}
	svc := group.NewService(inmemdb.NewGroupRepository(db), roster, biller, logger)
	return &testEnv{svc: svc, billing: billingSvc, roster: roster}, biller
}

func TestService_Distribute_memberFailureDoesNotAbortOthers(t *testing.T) {
	env, _ := setupFlaky(t, "payer2")
	ctx := context.Background()
	grp := createGroup(t, env, []string{"payer1", "payer2", "payer3"})

	res, err := env.svc.Distribute(ctx, grp.ID, nextDue)
	if err != nil {
		t.Fatalf("Distribute() failed: %v", err)
	}
	if len(res.Created) != 2 {
		t.Errorf("Distribute() created %d transactions, want 2", len(res.Created))
	}
	if len(res.Failed) != 1 || res.Failed[0].PayerID != "payer2" {
		t.Fatalf("Distribute() failures = %+v, want one for payer2", res.Failed)
	}
}

func TestService_Distribute_retryBillsOnlyUnbilledMembers(t *testing.T) {
	env, biller := setupFlaky(t, "payer2")
	ctx := context.Background()
	grp := createGroup(t, env, []string{"payer1", "payer2", "payer3"})

	res, err := env.svc.Distribute(ctx, grp.ID, nextDue)
	if err != nil {
		t.Fatalf("Distribute() failed: %v", err)
	}
	if len(res.Created) != 2 || len(res.Failed) != 1 {
		t.Fatalf("Distribute() = %d created %d failed, want 2 and 1", len(res.Created), len(res.Failed))
	}

	// billing recovered; the retry fans out to the failed member only
	biller.failPayerID = ""
	res, err = env.svc.Distribute(ctx, grp.ID, nextDue)
	if err != nil {
		t.Fatalf("retry Distribute() failed: %v", err)
	}
	if len(res.Created) != 1 || len(res.Failed) != 0 {
		t.Fatalf("retry Distribute() = %d created %d failed, want 1 and 0", len(res.Created), len(res.Failed))
	}
	if res.Created[0].PayerID != "payer2" {
		t.Errorf("retry billed %s, want payer2", res.Created[0].PayerID)
	}

	txs, err := env.billing.Filter(ctx, billing.QueryFilter{SchoolID: "sch1", RefID: grp.ConceptID})
	if err != nil {
		t.Fatalf("Filter() failed: %v", err)
	}
	seen := make(map[string]int)
	for _, tx := range txs {
		seen[tx.PayerID]++
	}
	for _, m := range grp.Members {
		if seen[m] != 1 {
			t.Errorf("member %s billed %d times, want 1", m, seen[m])
		}
	}

	// a fully billed cycle stays closed
	if _, err = env.svc.Distribute(ctx, grp.ID, nextDue); err != group.ErrCycleDistributed {
		t.Errorf("Distribute() on a fully billed cycle error = %v, want ErrCycleDistributed", err)
	}
}

func TestService_MemberStatuses(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	grp := createGroup(t, env, []string{"payer1", "payer2", "payer3"})

	res, err := env.svc.Distribute(ctx, grp.ID, nextDue)
	if err != nil {
		t.Fatalf("Distribute() failed: %v", err)
	}

	// settle payer1's transaction
	for _, tx := range res.Created {
		if tx.PayerID != "payer1" {
			continue
		}
		if _, err = env.billing.PayByCard(ctx, tx.ID); err != nil {
			t.Fatalf("PayByCard() failed: %v", err)
		}
	}

	// before the due date: settled is paid, the rest pending
	group.NowFunc = func() time.Time { return nextDue.Add(-time.Hour) }
	defer func() { group.NowFunc = time.Now }()

	statuses, err := env.svc.MemberStatuses(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberStatuses() failed: %v", err)
	}
	byPayer := make(map[string]group.MemberStatus, len(statuses))
	for _, ms := range statuses {
		byPayer[ms.PayerID] = ms
	}
	if byPayer["payer1"].State != group.MemberPaid {
		t.Errorf("payer1 state = %s, want %s", byPayer["payer1"].State, group.MemberPaid)
	}
	if byPayer["payer2"].State != group.MemberPending {
		t.Errorf("payer2 state = %s, want %s", byPayer["payer2"].State, group.MemberPending)
	}

	// past the due date: unsettled flips to overdue, paid stays paid
	group.NowFunc = func() time.Time { return nextDue.AddDate(0, 0, 3) }

	statuses, err = env.svc.MemberStatuses(ctx, grp.ID)
	if err != nil {
		t.Fatalf("MemberStatuses() failed: %v", err)
	}
	for _, ms := range statuses {
		want := group.MemberOverdue
		if ms.PayerID == "payer1" {
			want = group.MemberPaid
		}
		if ms.State != want {
			t.Errorf("%s state = %s, want %s", ms.PayerID, ms.State, want)
		}
	}
}

func TestService_CommitMembership(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	grp := createGroup(t, env, []string{"payer1"})

	got, err := env.svc.CommitMembership(ctx, grp.ID, []string{"payer2", "payer3", "payer2"})
	if err != nil {
		t.Fatalf("CommitMembership() failed: %v", err)
	}
	if len(got.Members) != 2 {
		t.Errorf("Members = %v, want [payer2 payer3]", got.Members)
	}
}

func TestService_RollForward(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	grp := createGroup(t, env, []string{"payer1"})

	// the next due date must move forward
	if _, err := env.svc.RollForward(ctx, grp.ID, nextDue.AddDate(0, 0, -1)); err == nil {
		t.Error("RollForward() to an earlier date expected an error")
	}

	next := nextDue.AddDate(0, 1, 0)
	got, err := env.svc.RollForward(ctx, grp.ID, next)
	if err != nil {
		t.Fatalf("RollForward() failed: %v", err)
	}
	if !got.NextDueDate.Equal(next) {
		t.Errorf("NextDueDate = %s, want %s", got.NextDueDate, next)
	}
}
