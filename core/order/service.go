package order

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned by repositories when an update loses a
	// compare-and-swap race.
	ErrVersionConflict = errors.New("order version conflict")
)

const entityName = "order"

type (
	Repository interface {
		CreateOrder(ctx context.Context, ord Order) (Order, error)
		GetOrder(ctx context.Context, id string) (Order, error)
		// UpdateOrder persists ord iff the stored Version still matches
		// ord.Version, bumping it; returns ErrVersionConflict otherwise.
		UpdateOrder(ctx context.Context, ord Order) (Order, error)
		QueryOrdersByPayer(ctx context.Context, payerID string) ([]Order, error)
	}

	// BillCreator raises the settlement transaction linked to an order.
	BillCreator interface {
		Create(ctx context.Context, nt billing.NewTransaction) (billing.Transaction, error)
	}

	Service struct {
		repo  Repository
		bills BillCreator
		log   core.Logger
	}
)

var _ billing.OrderHooks = (*Service)(nil) // proof review side effects land here

func NewService(repo Repository, bills BillCreator, log core.Logger) *Service {
	return &Service{repo: repo, bills: bills, log: log}
}

// SetBillCreator installs the billing side after construction. The order and
// billing services reference each other, so one of them is wired late.
func (svc *Service) SetBillCreator(bills BillCreator) {
	svc.bills = bills
}

// Checkout creates the Order and, when the payment method settles via proof
// review (bank transfer, cash deposit), the linked billing transaction.
func (svc *Service) Checkout(ctx context.Context, no NewOrder) (Order, error) {
	if !no.FinalAmount.IsPositive() {
		return Order{}, core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "final_amount", Error: core.ErrInvalidAmount.Error()})
	}
	now := NowFunc().UTC()

	items := make([]Item, 0, len(no.Items))
	for _, it := range no.Items {
		items = append(items, Item{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	ord := Order{
		PayerID:       no.PayerID,
		SchoolID:      no.SchoolID,
		StudentID:     no.StudentID,
		Items:         items,
		Subtotal:      no.Subtotal,
		FinalAmount:   no.FinalAmount,
		PaymentMethod: no.PaymentMethod,
		Status:        StatusPending,
		OrderDate:     now,
		UpdatedAt:     now,
	}
	ord, err := svc.repo.CreateOrder(ctx, ord)
	if err != nil {
		return Order{}, err
	}

	if no.PaymentMethod.RequiresProof() {
		dueDate := no.DueDate
		if dueDate.IsZero() {
			dueDate = now
		}
		tx, err := svc.bills.Create(ctx, billing.NewTransaction{
			PayerID:  no.PayerID,
			SchoolID: no.SchoolID,
			Concept:  "order " + ord.ID,
			Amount:   no.FinalAmount,
			RefKind:  billing.RefOrder,
			RefID:    ord.ID,
			Method:   no.PaymentMethod,
			DueDate:  dueDate,
		})
		if err != nil {
			return ord, pkgerrors.Wrap(err, "raising order transaction")
		}
		ord.TransactionID = tx.ID
		if ord, err = svc.repo.UpdateOrder(ctx, ord); err != nil {
			return ord, pkgerrors.Wrap(err, "linking order transaction")
		}
	}
	return ord, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Order, error) {
	return svc.repo.GetOrder(ctx, id)
}

func (svc *Service) QueryByPayer(ctx context.Context, payerID string) ([]Order, error) {
	return svc.repo.QueryOrdersByPayer(ctx, payerID)
}

// Advance moves the order to the single next state of the fulfillment chain.
func (svc *Service) Advance(ctx context.Context, id string) (Order, error) {
	ord, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	next, ok := nextStatus[ord.Status]
	if !ok {
		return Order{}, core.NewStateError(entityName, ord.ID, string(ord.Status), "advance")
	}
	return svc.moveTo(ctx, ord, next, false)
}

// Cancel is allowed from any non-terminal state.
func (svc *Service) Cancel(ctx context.Context, id string) (Order, error) {
	ord, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if ord.Status.IsTerminal() {
		return Order{}, core.NewStateError(entityName, ord.ID, string(ord.Status), string(StatusCancelled))
	}
	return svc.moveTo(ctx, ord, StatusCancelled, false)
}

// PaymentConfirmed records settlement of the linked transaction so
// fulfillment can proceed to delivery.
func (svc *Service) PaymentConfirmed(ctx context.Context, orderID string) error {
	ord, err := svc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.PaymentSettled {
		return nil
	}
	_, err = svc.moveTo(ctx, ord, ord.Status, true)
	return err
}

// PaymentRejected forces the order to Cancelled whatever its fulfillment
// state. A rejected proof voids the purchase; an order already delivered is
// left alone and flagged for review.
func (svc *Service) PaymentRejected(ctx context.Context, orderID string) error {
	ord, err := svc.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	switch ord.Status {
	case StatusCancelled:
		return nil
	case StatusDelivered:
		svc.log.Warn("payment rejected on a delivered order", orderID)
		return nil
	}
	_, err = svc.moveTo(ctx, ord, StatusCancelled, false)
	return err
}

func (svc *Service) moveTo(ctx context.Context, ord Order, target Status, settled bool) (Order, error) {
	ord.Status = target
	if settled {
		ord.PaymentSettled = true
	}
	ord.UpdatedAt = NowFunc().UTC()

	updated, err := svc.repo.UpdateOrder(ctx, ord)
	if err == nil {
		return updated, nil
	}
	if pkgerrors.Cause(err) != ErrVersionConflict {
		return Order{}, err
	}
	fresh, gerr := svc.repo.GetOrder(ctx, ord.ID)
	if gerr != nil {
		return Order{}, gerr
	}
	return Order{}, core.NewStateError(entityName, ord.ID, string(fresh.Status), string(target))
}
