package billing

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
)

// Transaction statuses
const (
	StatusPending       = Status("pending")
	StatusProofUploaded = Status("proof-uploaded")
	StatusConfirmed     = Status("confirmed")
	StatusRejected      = Status("rejected")
	StatusPaid          = Status("paid")
	StatusOverdue       = Status("overdue")
)

// Payment methods
const (
	MethodCard            = Method("card")
	MethodBankTransfer    = Method("bank-transfer")
	MethodCash            = Method("cash")
	MethodCorporateCredit = Method("corporate-credit")
)

// Reference kinds linking a transaction to its originating concept.
const (
	RefNone      = ReferenceKind("")
	RefOrder     = ReferenceKind("order")
	RefActivity  = ReferenceKind("activity")
	RefRecurring = ReferenceKind("recurring")
)

type (
	Status        string
	Method        string
	ReferenceKind string
)

// transitions defines the only legal edges of the reconciliation machine.
// Settlement (Paid/Confirmed) is terminal; Rejected re-enters via uploadProof.
var transitions = map[Status][]Status{
	StatusPending:       {StatusProofUploaded, StatusPaid, StatusOverdue},
	StatusOverdue:       {StatusProofUploaded, StatusPaid},
	StatusProofUploaded: {StatusConfirmed, StatusRejected},
	StatusRejected:      {StatusProofUploaded, StatusPaid},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProofUploaded, StatusConfirmed, StatusRejected, StatusPaid, StatusOverdue:
		return true
	}
	return false
}

// IsSettled reports whether s is a terminal settled state.
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusConfirmed
}

func (s Status) canMoveTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

func (m Method) IsValid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodCash, MethodCorporateCredit:
		return true
	}
	return false
}

// RequiresProof reports whether settlement via m goes through proof review.
func (m Method) RequiresProof() bool {
	return m == MethodBankTransfer || m == MethodCash
}

// Transaction represents one amount owed by one payer for one concept.
// Amount and currency are immutable after creation; status only ever moves
// along the machine's edges. Rejected transactions are kept for audit and may
// be re-attempted, preserving RejectionCount.
type Transaction struct {
	ID             string        `json:"id"`
	PayerID        string        `json:"payer_id"`
	SchoolID       string        `json:"school_id"`
	Concept        string        `json:"concept"`
	Amount         core.Money    `json:"amount"`
	RefKind        ReferenceKind `json:"ref_kind,omitempty"`
	RefID          string        `json:"ref_id,omitempty"`
	Method         Method        `json:"method"`
	Status         Status        `json:"status"`
	DueDate        time.Time     `json:"due_date"` // UTC
	ProofRef       core.BlobRef  `json:"proof_ref,omitempty"`
	ChargeRef      string        `json:"charge_ref,omitempty"`
	RejectionCount int           `json:"rejection_count"`
	Version        int           `json:"-"`
	CreatedAt      time.Time     `json:"created_at"` // UTC
	UpdatedAt      time.Time     `json:"updated_at"` // UTC
}

// NewTransaction contains information needed to raise a new bill.
type NewTransaction struct {
	PayerID  string        `json:"payer_id" validate:"required"`
	SchoolID string        `json:"school_id" validate:"required"`
	Concept  string        `json:"concept" validate:"required"`
	Amount   core.Money    `json:"amount"`
	RefKind  ReferenceKind `json:"ref_kind"`
	RefID    string        `json:"ref_id"`
	Method   Method        `json:"method" validate:"required"`
	DueDate  time.Time     `json:"due_date" validate:"required"`
}

func (nt *NewTransaction) Validate(validate *validator.Validate) error {
	nt.PayerID = core.CleanString(nt.PayerID)
	nt.SchoolID = core.CleanString(nt.SchoolID)
	nt.Concept = core.CleanString(nt.Concept)

	if err := validate.Struct(nt); err != nil {
		return err
	}
	if !nt.Amount.IsPositive() {
		return core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "amount", Error: core.ErrInvalidAmount.Error()})
	}
	if !nt.Method.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "method", Error: "unknown payment method"})
	}
	return nil
}

// QueryFilter applies AND on its set fields.
type QueryFilter struct {
	PayerID  string    `query:"payer_id"`
	SchoolID string    `query:"school_id"`
	Statuses []Status  `query:"status"`
	RefID    string    `query:"ref_id"`
	DueFrom  time.Time `query:"due_from"`
	DueTo    time.Time `query:"due_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.PayerID == "" && qf.SchoolID == "" && qf.Statuses == nil && qf.RefID == "" &&
		qf.DueFrom.IsZero() && qf.DueTo.IsZero()
}

// Match reports whether tx satisfies all set fields of the filter.
func (qf *QueryFilter) Match(tx Transaction) bool {
	if qf.PayerID != "" && tx.PayerID != qf.PayerID {
		return false
	}
	if qf.SchoolID != "" && tx.SchoolID != qf.SchoolID {
		return false
	}
	if qf.RefID != "" && tx.RefID != qf.RefID {
		return false
	}
	if len(qf.Statuses) > 0 {
		var found bool
		for _, s := range qf.Statuses {
			if tx.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !qf.DueFrom.IsZero() && tx.DueDate.Before(qf.DueFrom) {
		return false
	}
	if !qf.DueTo.IsZero() && tx.DueDate.After(qf.DueTo) {
		return false
	}
	return true
}

// Debtor summarizes a payer's outstanding (unsettled) transactions. Amounts
// are summed per currency, so a payer owing in two currencies appears as two
// rows; Outstanding carries the currency.
type Debtor struct {
	PayerID     string     `json:"payer_id"`
	Outstanding core.Money `json:"outstanding"`
	Count       int        `json:"count"`
}
