package billing

import "testing"

func TestStatus_canMoveTo(t *testing.T) {
	tests := []struct {
		name   string
		from   Status
		to     Status
		wanted bool
	}{
		{name: "pending to proof-uploaded", from: StatusPending, to: StatusProofUploaded, wanted: true},
		{name: "pending to paid", from: StatusPending, to: StatusPaid, wanted: true},
		{name: "pending to overdue", from: StatusPending, to: StatusOverdue, wanted: true},
		{name: "pending to confirmed", from: StatusPending, to: StatusConfirmed},
		{name: "pending to rejected", from: StatusPending, to: StatusRejected},
		{name: "overdue to proof-uploaded", from: StatusOverdue, to: StatusProofUploaded, wanted: true},
		{name: "overdue to paid", from: StatusOverdue, to: StatusPaid, wanted: true},
		{name: "overdue to confirmed", from: StatusOverdue, to: StatusConfirmed},
		{name: "proof-uploaded to confirmed", from: StatusProofUploaded, to: StatusConfirmed, wanted: true},
		{name: "proof-uploaded to rejected", from: StatusProofUploaded, to: StatusRejected, wanted: true},
		{name: "proof-uploaded to paid", from: StatusProofUploaded, to: StatusPaid},
		{name: "rejected to proof-uploaded", from: StatusRejected, to: StatusProofUploaded, wanted: true},
		{name: "rejected to paid", from: StatusRejected, to: StatusPaid, wanted: true},
		{name: "rejected to confirmed", from: StatusRejected, to: StatusConfirmed},
		{name: "paid is terminal", from: StatusPaid, to: StatusOverdue},
		{name: "confirmed is terminal", from: StatusConfirmed, to: StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.canMoveTo(tt.to); got != tt.wanted {
				t.Errorf("canMoveTo() = %v, want %v", got, tt.wanted)
			}
		})
	}
}

func TestStatus_IsSettled(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusConfirmed} {
		if !s.IsSettled() {
			t.Errorf("%s.IsSettled() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusProofUploaded, StatusRejected, StatusOverdue} {
		if s.IsSettled() {
			t.Errorf("%s.IsSettled() = true, want false", s)
		}
	}
}

func TestMethod_RequiresProof(t *testing.T) {
	for _, m := range []Method{MethodBankTransfer, MethodCash} {
		if !m.RequiresProof() {
			t.Errorf("%s.RequiresProof() = false, want true", m)
		}
	}
	for _, m := range []Method{MethodCard, MethodCorporateCredit} {
		if m.RequiresProof() {
			t.Errorf("%s.RequiresProof() = true, want false", m)
		}
	}
}
