package order

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

// Order statuses; the fulfillment chain is linear.
const (
	StatusPending   = Status("pending")
	StatusPreparing = Status("preparing")
	StatusReady     = Status("ready-for-delivery")
	StatusDelivered = Status("delivered")
	StatusCancelled = Status("cancelled")
)

type Status string

// nextStatus defines the single next step of the fulfillment chain.
var nextStatus = map[Status]Status{
	StatusPending:   StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Item is one order line. UnitPrice is captured at checkout.
type Item struct {
	ProductID string     `json:"product_id"`
	Quantity  int        `json:"quantity"`
	UnitPrice core.Money `json:"unit_price"`
}

// Order is a purchased bundle of items. Fulfillment and payment are
// independent axes: Status tracks fulfillment only, PaymentSettled flips when
// the linked transaction settles. FinalAmount is computed externally before
// checkout (tax/subsidy included) and is immutable here.
type Order struct {
	ID             string         `json:"id"`
	PayerID        string         `json:"payer_id"`
	SchoolID       string         `json:"school_id"`
	StudentID      string         `json:"student_id,omitempty"`
	Items          []Item         `json:"items"`
	Subtotal       core.Money     `json:"subtotal"`
	FinalAmount    core.Money     `json:"final_amount"`
	PaymentMethod  billing.Method `json:"payment_method"`
	Status         Status         `json:"status"`
	PaymentSettled bool           `json:"payment_settled"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	OrderDate      time.Time      `json:"order_date"` // UTC
	Version        int            `json:"-"`
	UpdatedAt      time.Time      `json:"updated_at"` // UTC
}

// NewOrder contains information needed to check out a new Order.
type NewOrder struct {
	PayerID       string         `json:"payer_id" validate:"required"`
	SchoolID      string         `json:"school_id" validate:"required"`
	StudentID     string         `json:"student_id"`
	Items         []NewItem      `json:"items" validate:"required,min=1,dive"`
	Subtotal      core.Money     `json:"subtotal"`
	FinalAmount   core.Money     `json:"final_amount"`
	PaymentMethod billing.Method `json:"payment_method" validate:"required"`
	DueDate       time.Time      `json:"due_date"`
}

type NewItem struct {
	ProductID string     `json:"product_id" validate:"required"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
	UnitPrice core.Money `json:"unit_price"`
}

func (no *NewOrder) Validate(validate *validator.Validate) error {
	no.PayerID = core.CleanString(no.PayerID)
	no.SchoolID = core.CleanString(no.SchoolID)
	no.StudentID = core.CleanString(no.StudentID)

	if err := validate.Struct(no); err != nil {
		return err
	}
	if !no.FinalAmount.IsPositive() {
		return core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "final_amount", Error: core.ErrInvalidAmount.Error()})
	}
	if !no.PaymentMethod.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "payment_method", Error: "unknown payment method"})
	}
	for _, it := range no.Items {
		if !it.UnitPrice.IsPositive() {
			return core.NewValidationError(core.ErrInvalidAmount, core.FieldError{Field: "items", Error: core.ErrInvalidAmount.Error()})
		}
	}
	return nil
}
