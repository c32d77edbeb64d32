package notifysvc

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/malipo/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendgridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ core.NotificationSender = (*sendgridSender)(nil)

// NewSendgridSender delivers notifications as plain-text emails via Sendgrid.
func NewSendgridSender() *sendgridSender {
	from := core.Conf.DefaultFromEmail
	return &sendgridSender{
		key:        core.Conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + core.Conf.AppName + "] ",
	}
}

func (svc sendgridSender) Send(target core.Recipient, notif core.Notification) error {
	if target.Email == "" {
		return errors.New("recipient has no email address")
	}

	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + notif.Subject
	p.AddTos(sgmail.NewEmail(target.Name, target.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", notif.Body))

	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sending email")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email - status: %d - Body: %s", res.StatusCode, res.Body)
	}
	return nil
}
