package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/credit"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound = errors.New("transaction not found")
	// ErrVersionConflict is returned by repositories when an update loses a
	// compare-and-swap race; the service re-reads and reports a StateError.
	ErrVersionConflict = errors.New("transaction version conflict")
)

const entityName = "transaction"

type (
	Repository interface {
		CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		GetTransaction(ctx context.Context, id string) (Transaction, error)
		// UpdateTransaction persists tx iff the stored Version still matches
		// tx.Version, bumping it; returns ErrVersionConflict otherwise.
		UpdateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		FilterTransactions(ctx context.Context, filter QueryFilter) ([]Transaction, error)
		QueryDebtors(ctx context.Context, schoolID string) ([]Debtor, error)
	}

	// CardCharger is the external card-charge capability. A charge either
	// succeeds with a gateway reference or fails; there is no retry here.
	CardCharger interface {
		Charge(ctx context.Context, payerID string, amount core.Money) (ref string, err error)
	}

	// CreditLedger debits a payer's corporate credit account.
	CreditLedger interface {
		Debit(ctx context.Context, ownerID string, amount core.Money) (credit.Account, error)
	}

	// OrderHooks receives the explicit cross-component side effects of proof
	// review on the linked order.
	OrderHooks interface {
		PaymentConfirmed(ctx context.Context, orderID string) error
		PaymentRejected(ctx context.Context, orderID string) error
	}

	Service struct {
		repo    Repository
		charger CardCharger
		credits CreditLedger
		orders  OrderHooks
		blobs   core.BlobStore
		log     core.Logger
	}
)

func NewService(repo Repository, charger CardCharger, credits CreditLedger, orders OrderHooks, blobs core.BlobStore, log core.Logger) *Service {
	return &Service{
		repo:    repo,
		charger: charger,
		credits: credits,
		orders:  orders,
		blobs:   blobs,
		log:     log,
	}
}

// Create raises a new bill in Pending state. A non-positive amount is
// rejected here regardless of caller-side validation; no entity is created.
func (svc *Service) Create(ctx context.Context, nt NewTransaction) (Transaction, error) {
	if !nt.Amount.IsPositive() {
		return Transaction{}, core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "amount", Error: core.ErrInvalidAmount.Error()})
	}
	now := NowFunc().UTC()
	tx := Transaction{
		PayerID:   nt.PayerID,
		SchoolID:  nt.SchoolID,
		Concept:   nt.Concept,
		Amount:    nt.Amount,
		RefKind:   nt.RefKind,
		RefID:     nt.RefID,
		Method:    nt.Method,
		Status:    StatusPending,
		DueDate:   nt.DueDate.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateTransaction(ctx, tx)
}

func (svc *Service) Get(ctx context.Context, id string) (Transaction, error) {
	return svc.repo.GetTransaction(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter) ([]Transaction, error) {
	return svc.repo.FilterTransactions(ctx, filter)
}

// QueryDebtors lists payers with outstanding transactions for a school,
// with their unsettled amounts summed per currency, largest first.
func (svc *Service) QueryDebtors(ctx context.Context, schoolID string) ([]Debtor, error) {
	return svc.repo.QueryDebtors(ctx, schoolID)
}

// MarkOverdue moves a Pending transaction past its due date to Overdue.
// It is idempotent: already Overdue or settled transactions are left as-is.
func (svc *Service) MarkOverdue(ctx context.Context, id string, now time.Time) (Transaction, error) {
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusPending || !now.UTC().After(tx.DueDate.Add(core.Conf.OverdueGrace)) {
		return tx, nil
	}
	return svc.transition(ctx, tx, StatusOverdue, func(t *Transaction) {})
}

// UploadProof attaches a stored proof reference and moves the transaction to
// ProofUploaded for review. Allowed from Pending, Overdue or Rejected;
// re-uploading after a rejection preserves RejectionCount.
func (svc *Service) UploadProof(ctx context.Context, id string, proofRef core.BlobRef, method Method) (Transaction, error) {
	if !method.RequiresProof() {
		return Transaction{}, core.NewValidationError(nil, core.FieldError{Field: "method", Error: "method does not settle via proof review"})
	}
	if proofRef == "" {
		return Transaction{}, core.NewValidationError(nil, core.FieldError{Field: "proof_ref", Error: "this field is required"})
	}
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	return svc.transition(ctx, tx, StatusProofUploaded, func(t *Transaction) {
		t.ProofRef = proofRef
		t.Method = method
	})
}

// AttachProof stores the raw proof content through the blob store and uploads
// the resulting reference. Content is capped at the configured max size.
func (svc *Service) AttachProof(ctx context.Context, id string, content []byte, contentType string, method Method) (Transaction, error) {
	if len(content) == 0 {
		return Transaction{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}
	if int64(len(content)) > core.Conf.ProofMaxBytes {
		return Transaction{}, core.NewValidationError(nil, core.FieldError{
			Field: "content",
			Error: fmt.Sprintf("proof exceeds the maximum size of %d bytes", core.Conf.ProofMaxBytes),
		})
	}
	ref, err := svc.blobs.Store(ctx, content, contentType)
	if err != nil {
		return Transaction{}, core.NewExternalError("storing proof", err)
	}
	return svc.UploadProof(ctx, id, ref, method)
}

// ConfirmProof settles a reviewed proof. Allowed from ProofUploaded only.
// When the transaction references an order, the order is notified so
// fulfillment can proceed.
func (svc *Service) ConfirmProof(ctx context.Context, id string) (Transaction, error) {
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	tx, err = svc.transition(ctx, tx, StatusConfirmed, func(t *Transaction) {})
	if err != nil {
		return Transaction{}, err
	}
	if tx.RefKind == RefOrder {
		if err := svc.orders.PaymentConfirmed(ctx, tx.RefID); err != nil {
			return tx, pkgerrors.Wrap(err, "notifying order of confirmed payment")
		}
	}
	return tx, nil
}

// RejectProof rejects a reviewed proof, clears it and increments the
// rejection count. Allowed from ProofUploaded only. When the transaction
// references an order, the order is forced to Cancelled.
func (svc *Service) RejectProof(ctx context.Context, id string) (Transaction, error) {
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	tx, err = svc.transition(ctx, tx, StatusRejected, func(t *Transaction) {
		t.ProofRef = ""
		t.RejectionCount++
	})
	if err != nil {
		return Transaction{}, err
	}
	if tx.RefKind == RefOrder {
		if err := svc.orders.PaymentRejected(ctx, tx.RefID); err != nil {
			return tx, pkgerrors.Wrap(err, "cancelling order of rejected payment")
		}
	}
	return tx, nil
}

// PayByCard settles via the external card-charge capability. Allowed from
// Pending, Overdue or Rejected. On capability failure the transaction is left
// unchanged and the failure is surfaced to the caller; no automatic retry.
func (svc *Service) PayByCard(ctx context.Context, id string) (Transaction, error) {
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !tx.Status.canMoveTo(StatusPaid) {
		return Transaction{}, core.NewStateError(entityName, tx.ID, string(tx.Status), string(StatusPaid))
	}
	chargeRef, err := svc.charger.Charge(ctx, tx.PayerID, tx.Amount)
	if err != nil {
		return Transaction{}, core.NewExternalError("card charge", err)
	}
	return svc.transition(ctx, tx, StatusPaid, func(t *Transaction) {
		t.Method = MethodCard
		t.ChargeRef = chargeRef
	})
}

// PayByCorporateCredit settles by debiting the owner's corporate credit
// account; the debit may leave the account in debt. The debit happens before
// the Paid transition commits, so a failed debit (unknown owner, currency
// mismatch) leaves the transaction unchanged.
func (svc *Service) PayByCorporateCredit(ctx context.Context, id, ownerID string) (Transaction, error) {
	tx, err := svc.repo.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, err
	}
	if !tx.Status.canMoveTo(StatusPaid) {
		return Transaction{}, core.NewStateError(entityName, tx.ID, string(tx.Status), string(StatusPaid))
	}
	if _, err := svc.credits.Debit(ctx, ownerID, tx.Amount); err != nil {
		return Transaction{}, pkgerrors.Wrap(err, "debiting corporate credit")
	}
	return svc.transition(ctx, tx, StatusPaid, func(t *Transaction) {
		t.Method = MethodCorporateCredit
	})
}

// transition applies a single edge of the machine with optimistic locking.
// A lost compare-and-swap race is reported as a StateError against the fresh
// state, so of two concurrent reviewers exactly one wins.
func (svc *Service) transition(ctx context.Context, tx Transaction, target Status, apply func(*Transaction)) (Transaction, error) {
	if !tx.Status.canMoveTo(target) {
		return Transaction{}, core.NewStateError(entityName, tx.ID, string(tx.Status), string(target))
	}
	apply(&tx)
	tx.Status = target
	tx.UpdatedAt = NowFunc().UTC()

	updated, err := svc.repo.UpdateTransaction(ctx, tx)
	if err == nil {
		return updated, nil
	}
	if pkgerrors.Cause(err) != ErrVersionConflict {
		return Transaction{}, err
	}
	fresh, gerr := svc.repo.GetTransaction(ctx, tx.ID)
	if gerr != nil {
		return Transaction{}, gerr
	}
	return Transaction{}, core.NewStateError(entityName, tx.ID, string(fresh.Status), string(target))
}
