package credit

import (
	"time"

	"github.com/trezcool/malipo/core"
)

// Entry kinds, distinguished for audit only; mechanics are identical.
const (
	EntryCredit         = EntryKind("credit")
	EntryDebit          = EntryKind("debit")
	EntryDebtSettlement = EntryKind("debt-settlement")
)

type EntryKind string

// Account is a post-paid running balance held per payer (or staff member).
// Balance may be negative; a negative balance represents debt.
type Account struct {
	OwnerID   string     `json:"owner_id"`
	Balance   core.Money `json:"balance"`
	Version   int        `json:"-"`
	CreatedAt time.Time  `json:"created_at"` // UTC
	UpdatedAt time.Time  `json:"updated_at"` // UTC
}

// Entry is one audit record of a balance mutation.
type Entry struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Kind      EntryKind  `json:"kind"`
	Amount    core.Money `json:"amount"` // signed delta applied to the balance
	Label     string     `json:"label"`
	CreatedAt time.Time  `json:"created_at"` // UTC
}
