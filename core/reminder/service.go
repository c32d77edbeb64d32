package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/group"
)

var (
	// errors
	ErrNoChannelSelected = errors.New("at least one notification channel must be selected")
)

// Outcome is the result of one target × channel send attempt.
type Outcome struct {
	PayerID string       `json:"payer_id"`
	Channel core.Channel `json:"channel"`
	Err     error        `json:"error,omitempty"`
}

func (o Outcome) OK() bool { return o.Err == nil }

type Service struct {
	senders   map[core.Channel]core.NotificationSender
	directory core.RecipientDirectory
	log       core.Logger
}

func NewService(senders map[core.Channel]core.NotificationSender, directory core.RecipientDirectory, log core.Logger) *Service {
	return &Service{senders: senders, directory: directory, log: log}
}

// Dispatch fans a notification out to every target over every selected
// channel. Sends are independent; one failure never blocks the others, and
// every (target, channel) pair reports its own outcome. No retry, no backoff.
func (svc *Service) Dispatch(ctx context.Context, targets []core.Recipient, notif core.Notification, channels []core.Channel) ([]Outcome, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannelSelected
	}
	for _, ch := range channels {
		if !ch.IsValid() {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "channels", Error: fmt.Sprintf("unknown channel %q", ch)})
		}
	}

	outcomes := make([]Outcome, len(targets)*len(channels))
	var wg sync.WaitGroup
	for i, target := range targets {
		for j, ch := range channels {
			i, j, target, ch := i, j, target, ch
			wg.Add(1)
			go func() {
				defer wg.Done()
				out := Outcome{PayerID: target.PayerID, Channel: ch}
				sender, ok := svc.senders[ch]
				if !ok {
					out.Err = core.NewExternalError("notification send", fmt.Errorf("no sender configured for channel %q", ch))
				} else if err := sender.Send(target, notif); err != nil {
					out.Err = core.NewExternalError("notification send", err)
				}
				outcomes[i*len(channels)+j] = out
			}()
		}
	}
	wg.Wait()

	for _, out := range outcomes {
		if !out.OK() {
			svc.log.Warn("notification send failed", out.PayerID, string(out.Channel), out.Err)
		}
	}
	return outcomes, nil
}

// DispatchToPayers resolves payer ids through the recipient directory before
// dispatching. Unresolvable payers get a failed outcome per channel instead
// of blocking the rest.
func (svc *Service) DispatchToPayers(ctx context.Context, payerIDs []string, notif core.Notification, channels []core.Channel) ([]Outcome, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannelSelected
	}

	var (
		targets []core.Recipient
		failed  []Outcome
	)
	for _, payerID := range payerIDs {
		target, err := svc.directory.Recipient(payerID)
		if err != nil {
			for _, ch := range channels {
				failed = append(failed, Outcome{PayerID: payerID, Channel: ch, Err: core.NewExternalError("resolving recipient", err)})
			}
			continue
		}
		targets = append(targets, target)
	}

	outcomes, err := svc.Dispatch(ctx, targets, notif, channels)
	if err != nil {
		return nil, err
	}
	return append(outcomes, failed...), nil
}

// RemindOverdue notifies every overdue member of a payment group that dues
// for the current cycle are outstanding.
func (svc *Service) RemindOverdue(ctx context.Context, grp group.Group, statuses []group.MemberStatus, channels []core.Channel) ([]Outcome, error) {
	var overdue []string
	for _, ms := range statuses {
		if ms.State == group.MemberOverdue {
			overdue = append(overdue, ms.PayerID)
		}
	}
	notif := core.Notification{
		Subject: fmt.Sprintf("Payment reminder: %s", grp.Name),
		Body: fmt.Sprintf(
			"Your %s payment of %s was due on %s and is still outstanding. Please settle it at your earliest convenience.",
			grp.Name, grp.Amount, grp.NextDueDate.Format("2006-01-02"),
		),
	}
	return svc.DispatchToPayers(ctx, overdue, notif, channels)
}
