package cardsvc

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

// ConsoleCharger approves every charge with a generated reference. It stands
// in for the gateway in Debug mode and in tests.
type ConsoleCharger struct {
	mu            sync.Mutex
	charges       []ChargeRecord
	failNext      bool
	disableOutput bool
}

// ChargeRecord is one approved charge kept for inspection.
type ChargeRecord struct {
	PayerID string
	Amount  core.Money
	Ref     string
}

var _ billing.CardCharger = (*ConsoleCharger)(nil)

func NewConsoleCharger() *ConsoleCharger {
	return &ConsoleCharger{}
}

// NewConsoleChargerMock records charges without printing them.
func NewConsoleChargerMock() *ConsoleCharger {
	return &ConsoleCharger{disableOutput: true}
}

func (svc *ConsoleCharger) Charge(ctx context.Context, payerID string, amount core.Money) (string, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.failNext {
		svc.failNext = false
		return "", errors.New("charge declined")
	}
	rec := ChargeRecord{PayerID: payerID, Amount: amount, Ref: "charge-" + uuid.New().String()}
	svc.charges = append(svc.charges, rec)
	if !svc.disableOutput {
		log.Printf("charged %s to %s (%s)\n", amount, payerID, rec.Ref)
	}
	return rec.Ref, nil
}

// FailNext makes the next Charge call fail once.
func (svc *ConsoleCharger) FailNext() {
	svc.mu.Lock()
	svc.failNext = true
	svc.mu.Unlock()
}

// Charges returns a copy of the approved charges in order.
func (svc *ConsoleCharger) Charges() []ChargeRecord {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	charges := make([]ChargeRecord, len(svc.charges))
	copy(charges, svc.charges)
	return charges
}
