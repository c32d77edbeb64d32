package credit

import (
	"context"
	"errors"

	"github.com/trezcool/malipo/core"
)

var (
	// errors
	ErrNotFound = errors.New("credit account not found")
)

type (
	Repository interface {
		GetAccount(ctx context.Context, ownerID string) (Account, error)
		// ApplyEntry atomically adjusts the owner's balance by the entry's
		// signed amount, creating the account lazily on first use, and
		// records the entry for audit. Mutations on the same ownerID
		// serialize.
		ApplyEntry(ctx context.Context, entry Entry) (Account, error)
		QueryEntries(ctx context.Context, ownerID string) ([]Entry, error)
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, log core.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Credit increases the owner's balance. amount must be positive.
func (svc *Service) Credit(ctx context.Context, ownerID string, amount core.Money) (Account, error) {
	return svc.apply(ctx, ownerID, amount, EntryCredit, "credit")
}

// Debit decreases the owner's balance. amount must be positive. The balance
// is allowed to go negative; corporate credit is billed post-paid so there is
// no insufficient-funds rejection.
func (svc *Service) Debit(ctx context.Context, ownerID string, amount core.Money) (Account, error) {
	acc, err := svc.apply(ctx, ownerID, amount.Neg(), EntryDebit, "debit")
	if err != nil {
		return Account{}, err
	}
	if acc.Balance.IsNegative() {
		svc.log.Info("corporate credit account in debt", ownerID, acc.Balance.String())
	}
	return acc, nil
}

// SettleDebt repays staff debt. Mechanically a credit; distinguished by its
// audit label only.
func (svc *Service) SettleDebt(ctx context.Context, ownerID string, amount core.Money) (Account, error) {
	return svc.apply(ctx, ownerID, amount, EntryDebtSettlement, "debt settlement")
}

// Balance returns the owner's account. Accounts are created lazily on first
// credit/debit; an owner that was never touched is ErrNotFound.
func (svc *Service) Balance(ctx context.Context, ownerID string) (Account, error) {
	return svc.repo.GetAccount(ctx, ownerID)
}

func (svc *Service) QueryEntries(ctx context.Context, ownerID string) ([]Entry, error) {
	return svc.repo.QueryEntries(ctx, ownerID)
}

func (svc *Service) apply(ctx context.Context, ownerID string, delta core.Money, kind EntryKind, label string) (Account, error) {
	if ownerID == "" {
		return Account{}, core.NewValidationError(nil, core.FieldError{Field: "owner_id", Error: "this field is required"})
	}
	// the caller-facing amount is always positive; delta carries the sign
	if delta.IsZero() || (kind == EntryDebit && !delta.IsNegative()) || (kind != EntryDebit && !delta.IsPositive()) {
		return Account{}, core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "amount", Error: core.ErrInvalidAmount.Error()})
	}
	return svc.repo.ApplyEntry(ctx, Entry{
		OwnerID: ownerID,
		Kind:    kind,
		Amount:  delta,
		Label:   label,
	})
}
