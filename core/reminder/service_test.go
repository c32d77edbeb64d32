package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/reminder"
	notifysvc "github.com/trezcool/malipo/services/notification"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	"github.com/trezcool/malipo/tests"
)

// errSender fails every send.
type errSender struct{}

func (errSender) Send(target core.Recipient, notif core.Notification) error {
	return errors.New("provider unavailable")
}

func setup(t *testing.T, senders map[core.Channel]core.NotificationSender) *reminder.Service {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	roster := inmemdb.NewRosterRepository(db)
	roster.SeedRecipient(core.Recipient{PayerID: "payer1", Name: "Jane Doe", Email: "jane@test.com", Phone: "+243990000001"})
	roster.SeedRecipient(core.Recipient{PayerID: "payer2", Name: "John Doe", Email: "john@test.com", Phone: "+243990000002"})
	return reminder.NewService(senders, roster, testutil.NewLogger(t))
}

var notif = core.Notification{Subject: "Canteen dues", Body: "Please settle your canteen dues."}

func TestService_Dispatch(t *testing.T) {
	notifysvc.ClearSentNotifications()
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail: notifysvc.NewConsoleSenderMock(),
		core.ChannelInApp: notifysvc.NewInAppSender(),
	})
	ctx := context.Background()

	targets := []core.Recipient{
		{PayerID: "payer1", Email: "jane@test.com"},
		{PayerID: "payer2", Email: "john@test.com"},
	}
	outcomes, err := svc.Dispatch(ctx, targets, notif, []core.Channel{core.ChannelEmail, core.ChannelInApp})
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("Dispatch() returned %d outcomes, want 4", len(outcomes))
	}
	for _, out := range outcomes {
		if !out.OK() {
			t.Errorf("outcome %s/%s failed: %v", out.PayerID, out.Channel, out.Err)
		}
	}
	if sent := notifysvc.SentNotifications; len(sent) != 2 {
		t.Errorf("email sender delivered %d notifications, want 2", len(sent))
	}
}

func TestService_Dispatch_channelValidation(t *testing.T) {
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail: notifysvc.NewConsoleSenderMock(),
	})
	ctx := context.Background()
	targets := []core.Recipient{{PayerID: "payer1"}}

	if _, err := svc.Dispatch(ctx, targets, notif, nil); err != reminder.ErrNoChannelSelected {
		t.Errorf("Dispatch() with no channels error = %v, want ErrNoChannelSelected", err)
	}
	_, err := svc.Dispatch(ctx, targets, notif, []core.Channel{core.ChannelEmail, core.Channel("pigeon")})
	if _, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Dispatch() with unknown channel error = %v, want ValidationError", err)
	}
}

func TestService_Dispatch_partialFailure(t *testing.T) {
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail:    notifysvc.NewConsoleSenderMock(),
		core.ChannelWhatsapp: errSender{},
	})

	outcomes, err := svc.Dispatch(
		context.Background(),
		[]core.Recipient{{PayerID: "payer1", Email: "jane@test.com"}},
		notif, []core.Channel{core.ChannelEmail, core.ChannelWhatsapp},
	)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	byChannel := make(map[core.Channel]reminder.Outcome, len(outcomes))
	for _, out := range outcomes {
		byChannel[out.Channel] = out
	}
	if out := byChannel[core.ChannelEmail]; !out.OK() {
		t.Errorf("email outcome failed: %v", out.Err)
	}
	out := byChannel[core.ChannelWhatsapp]
	if out.OK() {
		t.Fatal("whatsapp outcome expected to fail")
	}
	if !core.IsExternal(out.Err) {
		t.Errorf("whatsapp outcome error = %v, want ExternalError", out.Err)
	}
}

func TestService_Dispatch_missingSender(t *testing.T) {
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail: notifysvc.NewConsoleSenderMock(),
	})

	outcomes, err := svc.Dispatch(
		context.Background(),
		[]core.Recipient{{PayerID: "payer1"}},
		notif, []core.Channel{core.ChannelWhatsapp},
	)
	if err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].OK() {
		t.Fatalf("outcomes = %+v, want one failed", outcomes)
	}
	if !core.IsExternal(outcomes[0].Err) {
		t.Errorf("outcome error = %v, want ExternalError", outcomes[0].Err)
	}
}

func TestService_DispatchToPayers(t *testing.T) {
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail: notifysvc.NewConsoleSenderMock(),
		core.ChannelInApp: notifysvc.NewInAppSender(),
	})

	// payer9 has no contact details; its sends fail without blocking the rest
	outcomes, err := svc.DispatchToPayers(
		context.Background(),
		[]string{"payer1", "payer9"},
		notif, []core.Channel{core.ChannelEmail, core.ChannelInApp},
	)
	if err != nil {
		t.Fatalf("DispatchToPayers() failed: %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("DispatchToPayers() returned %d outcomes, want 4", len(outcomes))
	}
	ok, failed := 0, 0
	for _, out := range outcomes {
		switch {
		case out.OK():
			if out.PayerID != "payer1" {
				t.Errorf("unexpected success for %s/%s", out.PayerID, out.Channel)
			}
			ok++
		default:
			if out.PayerID != "payer9" {
				t.Errorf("unexpected failure for %s/%s: %v", out.PayerID, out.Channel, out.Err)
			}
			failed++
		}
	}
	if ok != 2 || failed != 2 {
		t.Errorf("outcomes = %d ok %d failed, want 2 and 2", ok, failed)
	}
}

func TestService_RemindOverdue(t *testing.T) {
	notifysvc.ClearSentNotifications()
	svc := setup(t, map[core.Channel]core.NotificationSender{
		core.ChannelEmail: notifysvc.NewConsoleSenderMock(),
	})

	grp := group.Group{
		Name:        "Canteen Fees",
		Amount:      testutil.USD(t, "25.00"),
		NextDueDate: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
	}
	statuses := []group.MemberStatus{
		{PayerID: "payer1", State: group.MemberOverdue},
		{PayerID: "payer2", State: group.MemberPaid},
	}
	outcomes, err := svc.RemindOverdue(context.Background(), grp, statuses, []core.Channel{core.ChannelEmail})
	if err != nil {
		t.Fatalf("RemindOverdue() failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("RemindOverdue() returned %d outcomes, want 1 (overdue members only)", len(outcomes))
	}
	if outcomes[0].PayerID != "payer1" || !outcomes[0].OK() {
		t.Errorf("outcome = %+v, want success for payer1", outcomes[0])
	}

	sent := notifysvc.SentNotifications
	if len(sent) != 1 {
		t.Fatalf("delivered %d notifications, want 1", len(sent))
	}
	if sent[0].Target.PayerID != "payer1" {
		t.Errorf("delivered to %s, want payer1", sent[0].Target.PayerID)
	}
	if sent[0].Notif.Subject != "Payment reminder: Canteen Fees" {
		t.Errorf("subject = %q", sent[0].Notif.Subject)
	}
}
