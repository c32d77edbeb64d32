package notifysvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
)

type whatsappSender struct {
	apiURL string
	token  string
	client *http.Client
}

var _ core.NotificationSender = (*whatsappSender)(nil)

// NewWhatsappSender delivers notifications through a WhatsApp Business API
// endpoint configured via WhatsappApiUrl/WhatsappApiToken.
func NewWhatsappSender() *whatsappSender {
	return &whatsappSender{
		apiURL: core.Conf.WhatsappApiUrl,
		token:  core.Conf.WhatsappApiToken,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type whatsappMessage struct {
	To   string `json:"to"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (svc *whatsappSender) Send(target core.Recipient, notif core.Notification) error {
	if target.Phone == "" {
		return errors.New("recipient has no phone number")
	}

	msg := whatsappMessage{To: target.Phone, Type: "text"}
	msg.Text.Body = notif.Subject + "\n\n" + notif.Body
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding whatsapp message")
	}

	req, err := http.NewRequest(http.MethodPost, svc.apiURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building whatsapp request")
	}
	req.Header.Set("Authorization", "Bearer "+svc.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := svc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending whatsapp message")
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending whatsapp message - status: %d", res.StatusCode)
	}
	return nil
}
