package credit_test

import (
	"context"
	"testing"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/credit"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	"github.com/trezcool/malipo/tests"
)

func setup(t *testing.T) *credit.Service {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	return credit.NewService(inmemdb.NewCreditRepository(db), testutil.NewLogger(t))
}

func TestService_ledgerArithmetic(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	// accounts are created lazily; untouched owners do not exist
	if _, err := svc.Balance(ctx, "staff1"); err != credit.ErrNotFound {
		t.Fatalf("Balance() error = %v, want ErrNotFound", err)
	}

	acc, err := svc.Credit(ctx, "staff1", testutil.USD(t, "100.00"))
	if err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	if !acc.Balance.Equal(testutil.USD(t, "100.00")) {
		t.Errorf("balance = %s, want 100.00 USD", acc.Balance)
	}

	acc, err = svc.Debit(ctx, "staff1", testutil.USD(t, "130.00"))
	if err != nil {
		t.Fatalf("Debit() failed: %v", err)
	}
	want := testutil.USD(t, "30.00").Neg()
	if !acc.Balance.Equal(want) {
		t.Errorf("balance = %s, want %s", acc.Balance, want)
	}

	// debt settlement restores the balance and is labelled for audit
	acc, err = svc.SettleDebt(ctx, "staff1", testutil.USD(t, "30.00"))
	if err != nil {
		t.Fatalf("SettleDebt() failed: %v", err)
	}
	if !acc.Balance.IsZero() {
		t.Errorf("balance = %s, want zero", acc.Balance)
	}

	entries, err := svc.QueryEntries(ctx, "staff1")
	if err != nil {
		t.Fatalf("QueryEntries() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("QueryEntries() returned %d entries, want 3", len(entries))
	}
	wantKinds := []credit.EntryKind{credit.EntryCredit, credit.EntryDebit, credit.EntryDebtSettlement}
	for i, entry := range entries {
		if entry.Kind != wantKinds[i] {
			t.Errorf("entry %d kind = %s, want %s", i, entry.Kind, wantKinds[i])
		}
	}
}

func TestService_validation(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		ownerID string
		amount  core.Money
	}{
		{name: "missing owner", amount: testutil.USD(t, "10.00")},
		{name: "zero amount", ownerID: "staff1", amount: core.ZeroMoney("USD")},
		{name: "negative amount", ownerID: "staff1", amount: testutil.USD(t, "10.00").Neg()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Credit(ctx, tt.ownerID, tt.amount); err == nil {
				t.Error("Credit() expected an error")
			} else if _, ok := err.(*core.ValidationError); !ok {
				t.Errorf("Credit() error = %v, want ValidationError", err)
			}
			if _, err := svc.Debit(ctx, tt.ownerID, tt.amount); err == nil {
				t.Error("Debit() expected an error")
			} else if _, ok := err.(*core.ValidationError); !ok {
				t.Errorf("Debit() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestService_currencyMismatch(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	if _, err := svc.Credit(ctx, "staff1", testutil.USD(t, "10.00")); err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	eur, err := core.MoneyFromString("10.00", "EUR")
	if err != nil {
		t.Fatalf("MoneyFromString() failed: %v", err)
	}
	if _, err = svc.Credit(ctx, "staff1", eur); err == nil {
		t.Error("Credit() in a different currency expected an error")
	}
}
