package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/order"
	blobsvc "github.com/trezcool/malipo/services/blob"
	cardsvc "github.com/trezcool/malipo/services/payment"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	"github.com/trezcool/malipo/tests"
)

type testEnv struct {
	svc     *order.Service
	billing *billing.Service
}

func setup(t *testing.T) *testEnv {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	logger := testutil.NewLogger(t)

	creditSvc := credit.NewService(inmemdb.NewCreditRepository(db), logger)
	orderSvc := order.NewService(inmemdb.NewOrderRepository(db), nil, logger)
	billingSvc := billing.NewService(
		inmemdb.NewTransactionRepository(db),
		cardsvc.NewConsoleChargerMock(),
		creditSvc, orderSvc, blobsvc.NewMemoryStore(), logger,
	)
	orderSvc.SetBillCreator(billingSvc)
	return &testEnv{svc: orderSvc, billing: billingSvc}
}

func checkout(t *testing.T, env *testEnv, method billing.Method) order.Order {
	t.Helper()
	ord, err := env.svc.Checkout(context.Background(), order.NewOrder{
		PayerID:  "payer1",
		SchoolID: "sch1",
		Items: []order.NewItem{
			{ProductID: "uniform-m", Quantity: 2, UnitPrice: testutil.USD(t, "15.00")},
			{ProductID: "textbook-3", Quantity: 1, UnitPrice: testutil.USD(t, "12.00")},
		},
		Subtotal:      testutil.USD(t, "42.00"),
		FinalAmount:   testutil.USD(t, "42.00"),
		PaymentMethod: method,
		DueDate:       time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Checkout() failed: %v", err)
	}
	return ord
}

func TestService_Checkout(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// bank transfer settles via proof review: a linked transaction is raised
	ord := checkout(t, env, billing.MethodBankTransfer)
	if ord.Status != order.StatusPending {
		t.Errorf("Checkout() status = %s, want %s", ord.Status, order.StatusPending)
	}
	if ord.TransactionID == "" {
		t.Fatal("Checkout() did not link a transaction")
	}
	tx, err := env.billing.Get(ctx, ord.TransactionID)
	if err != nil {
		t.Fatalf("Get(transaction) failed: %v", err)
	}
	if tx.RefKind != billing.RefOrder || tx.RefID != ord.ID {
		t.Errorf("linked transaction ref = %s %s, want %s %s", tx.RefKind, tx.RefID, billing.RefOrder, ord.ID)
	}
	if !tx.Amount.Equal(ord.FinalAmount) {
		t.Errorf("linked transaction amount = %s, want %s", tx.Amount, ord.FinalAmount)
	}

	// card settles out of band: no linked transaction at checkout
	ord = checkout(t, env, billing.MethodCard)
	if ord.TransactionID != "" {
		t.Errorf("card checkout linked transaction %s", ord.TransactionID)
	}

	// zero amount checks out nothing
	_, err = env.svc.Checkout(ctx, order.NewOrder{
		PayerID:       "payer1",
		SchoolID:      "sch1",
		Items:         []order.NewItem{{ProductID: "pen", Quantity: 1, UnitPrice: core.ZeroMoney("USD")}},
		FinalAmount:   core.ZeroMoney("USD"),
		PaymentMethod: billing.MethodCard,
	})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Checkout() error = %v, want ValidationError", err)
	}
}

func TestService_Advance(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	ord := checkout(t, env, billing.MethodCard)

	chain := []order.Status{order.StatusPreparing, order.StatusReady, order.StatusDelivered}
	for _, want := range chain {
		var err error
		if ord, err = env.svc.Advance(ctx, ord.ID); err != nil {
			t.Fatalf("Advance() failed: %v", err)
		}
		if ord.Status != want {
			t.Fatalf("Advance() status = %s, want %s", ord.Status, want)
		}
	}

	// delivered is terminal
	if _, err := env.svc.Advance(ctx, ord.ID); !core.IsStateError(err) {
		t.Errorf("Advance() past delivered error = %v, want StateError", err)
	}
}

func TestService_Cancel(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	ord := checkout(t, env, billing.MethodCard)
	if _, err := env.svc.Advance(ctx, ord.ID); err != nil {
		t.Fatalf("Advance() failed: %v", err)
	}

	got, err := env.svc.Cancel(ctx, ord.ID)
	if err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	if got.Status != order.StatusCancelled {
		t.Errorf("Cancel() status = %s, want %s", got.Status, order.StatusCancelled)
	}

	// cancelled is terminal
	if _, err = env.svc.Cancel(ctx, ord.ID); !core.IsStateError(err) {
		t.Errorf("repeat Cancel() error = %v, want StateError", err)
	}
}

func TestService_paymentConfirmationUnblocksFulfillment(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	ord := checkout(t, env, billing.MethodBankTransfer)

	if _, err := env.billing.UploadProof(ctx, ord.TransactionID, "blob-1", billing.MethodBankTransfer); err != nil {
		t.Fatalf("UploadProof() failed: %v", err)
	}
	if _, err := env.billing.ConfirmProof(ctx, ord.TransactionID); err != nil {
		t.Fatalf("ConfirmProof() failed: %v", err)
	}

	got, err := env.svc.Get(ctx, ord.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.PaymentSettled {
		t.Error("order not flagged as settled after proof confirmation")
	}
	if got.Status != order.StatusPending {
		t.Errorf("settlement moved fulfillment to %s", got.Status)
	}
}

func TestService_paymentRejectionCancelsOrder(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	// rejection voids the purchase from any fulfillment state
	states := []int{0, 1, 2} // number of Advance calls before the rejection
	for _, advances := range states {
		ord := checkout(t, env, billing.MethodBankTransfer)
		for i := 0; i < advances; i++ {
			if _, err := env.svc.Advance(ctx, ord.ID); err != nil {
				t.Fatalf("Advance() failed: %v", err)
			}
		}

		if _, err := env.billing.UploadProof(ctx, ord.TransactionID, "blob-1", billing.MethodBankTransfer); err != nil {
			t.Fatalf("UploadProof() failed: %v", err)
		}
		if _, err := env.billing.RejectProof(ctx, ord.TransactionID); err != nil {
			t.Fatalf("RejectProof() failed: %v", err)
		}

		got, err := env.svc.Get(ctx, ord.ID)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.Status != order.StatusCancelled {
			t.Errorf("after %d advance(s): status = %s, want %s", advances, got.Status, order.StatusCancelled)
		}
	}
}

func TestService_paymentRejectionOnDeliveredOrder(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	ord := checkout(t, env, billing.MethodBankTransfer)

	for i := 0; i < 3; i++ {
		if _, err := env.svc.Advance(ctx, ord.ID); err != nil {
			t.Fatalf("Advance() failed: %v", err)
		}
	}

	if _, err := env.billing.UploadProof(ctx, ord.TransactionID, "blob-1", billing.MethodBankTransfer); err != nil {
		t.Fatalf("UploadProof() failed: %v", err)
	}
	if _, err := env.billing.RejectProof(ctx, ord.TransactionID); err != nil {
		t.Fatalf("RejectProof() failed: %v", err)
	}

	// a delivered order stays delivered; the mismatch is logged for review
	got, err := env.svc.Get(ctx, ord.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != order.StatusDelivered {
		t.Errorf("status = %s, want %s", got.Status, order.StatusDelivered)
	}
}

func TestService_QueryByPayer(t *testing.T) {
	env := setup(t)
	checkout(t, env, billing.MethodCard)
	checkout(t, env, billing.MethodCard)

	orders, err := env.svc.QueryByPayer(context.Background(), "payer1")
	if err != nil {
		t.Fatalf("QueryByPayer() failed: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("QueryByPayer() returned %d orders, want 2", len(orders))
	}
}
