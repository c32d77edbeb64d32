package core

import "strings"

// Notification channels
const (
	ChannelEmail    = Channel("email")
	ChannelInApp    = Channel("in-app")
	ChannelWhatsapp = Channel("whatsapp")
)

var AllChannels = []Channel{ChannelEmail, ChannelInApp, ChannelWhatsapp}

type Channel string

func (c Channel) IsValid() bool {
	for _, ch := range AllChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// ParseChannels parses a comma-separated channel list, e.g. "email,whatsapp".
func ParseChannels(s string) []Channel {
	var channels []Channel
	for _, part := range strings.Split(s, ",") {
		if part = CleanString(part, true); part != "" {
			channels = append(channels, Channel(part))
		}
	}
	return channels
}

// Recipient identifies a payer as a notification target across channels.
type Recipient struct {
	PayerID string `json:"payer_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"` // E.164, for whatsapp
}

// Notification is a rendered message ready for sending; channel senders are
// responsible for their own wire format.
type Notification struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationSender is any service that can deliver a Notification over a
// single channel. Send blocks until the capability reports an outcome; any
// timeout handling is the capability's own contract.
type NotificationSender interface {
	Send(target Recipient, notif Notification) error
}

// RecipientDirectory resolves a payer id to its contact details.
type RecipientDirectory interface {
	Recipient(payerID string) (Recipient, error)
}
