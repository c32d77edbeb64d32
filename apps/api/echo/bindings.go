package echoapi

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

type UploadProofRequest struct {
	ProofRef string `json:"proof_ref" validate:"required"`
	Method   string `json:"method" validate:"required"`
}

func (r *UploadProofRequest) Validate(validate *validator.Validate) error {
	r.ProofRef = core.CleanString(r.ProofRef)
	r.Method = core.CleanString(r.Method, true)
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !billing.Method(r.Method).IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "method", Error: "unknown payment method"})
	}
	return nil
}

type PayByCreditRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
}

func (r *PayByCreditRequest) Validate(validate *validator.Validate) error {
	r.OwnerID = core.CleanString(r.OwnerID)
	return validate.Struct(r)
}

type AmountRequest struct {
	Amount core.Money `json:"amount"`
}

func (r *AmountRequest) Validate(validate *validator.Validate) error {
	if !r.Amount.IsPositive() {
		return core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "amount", Error: core.ErrInvalidAmount.Error()})
	}
	return nil
}

type MembershipRequest struct {
	CohortID string   `json:"cohort_id"`
	Members  []string `json:"members"`
}

func (r *MembershipRequest) Validate(validate *validator.Validate) error {
	r.CohortID = core.CleanString(r.CohortID)
	if r.CohortID == "" && len(r.Members) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "cohort_id", Error: "either cohort_id or members is required"})
	}
	if r.CohortID != "" && len(r.Members) > 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "cohort_id", Error: "cohort_id and members are mutually exclusive"})
	}
	return nil
}

type DistributeRequest struct {
	DueDate time.Time `json:"due_date" validate:"required"`
}

func (r *DistributeRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

type RollForwardRequest struct {
	NextDueDate time.Time `json:"next_due_date" validate:"required"`
}

func (r *RollForwardRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

type RemindRequest struct {
	Channels []string `json:"channels" validate:"required,min=1,dive,channel"`
}

func (r *RemindRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r *RemindRequest) channels() []core.Channel {
	channels := make([]core.Channel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, core.Channel(core.CleanString(ch, true)))
	}
	return channels
}

type DispatchRequest struct {
	PayerIDs []string `json:"payer_ids" validate:"required,min=1"`
	Subject  string   `json:"subject" validate:"required"`
	Body     string   `json:"body" validate:"required"`
	Channels []string `json:"channels" validate:"required,min=1,dive,channel"`
}

func (r *DispatchRequest) Validate(validate *validator.Validate) error {
	r.Subject = core.CleanString(r.Subject)
	r.Body = core.CleanString(r.Body)
	return validate.Struct(r)
}

func (r *DispatchRequest) channels() []core.Channel {
	channels := make([]core.Channel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, core.Channel(core.CleanString(ch, true)))
	}
	return channels
}
