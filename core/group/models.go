package group

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
)

// Member states derived from the billing cycle's transactions.
const (
	MemberPaid    = MemberState("paid")
	MemberOverdue = MemberState("overdue")
	MemberPending = MemberState("pending")
)

type MemberState string

// Group is a named recurring-billing cohort. Members hold no duplicates;
// NextDueDate is advanced only by an explicit roll-forward.
type Group struct {
	ID          string     `json:"id"`
	SchoolID    string     `json:"school_id"`
	Name        string     `json:"name"`
	ConceptID   string     `json:"concept_id"`
	Amount      core.Money `json:"amount"`
	Members     []string   `json:"members"`
	NextDueDate time.Time  `json:"next_due_date"` // UTC calendar date
	Version     int        `json:"-"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// NewGroup contains information needed to create a new Group.
type NewGroup struct {
	SchoolID    string     `json:"school_id" validate:"required"`
	Name        string     `json:"name" validate:"required"`
	ConceptID   string     `json:"concept_id" validate:"required"`
	Amount      core.Money `json:"amount"`
	Members     []string   `json:"members"`
	NextDueDate time.Time  `json:"next_due_date" validate:"required"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.SchoolID = core.CleanString(ng.SchoolID)
	ng.Name = core.CleanString(ng.Name)
	ng.ConceptID = core.CleanString(ng.ConceptID)

	if err := validate.Struct(ng); err != nil {
		return err
	}
	if !ng.Amount.IsPositive() {
		return core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "amount", Error: core.ErrInvalidAmount.Error()})
	}
	return nil
}

// MemberStatus is the read-side projection of one member's cycle state.
type MemberStatus struct {
	PayerID       string      `json:"payer_id"`
	State         MemberState `json:"state"`
	TransactionID string      `json:"transaction_id,omitempty"`
}

// dedup returns a sorted copy of ids with duplicates and blanks removed.
func dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
