package notifysvc

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/trezcool/malipo/core"
)

// SentRecord is a delivered (target, notification) pair kept for inspection.
type SentRecord struct {
	Target core.Recipient
	Notif  core.Notification
}

var (
	SentNotifications = make([]SentRecord, 0)
	mu                sync.Mutex
)

// ClearSentNotifications resets the sent log between test runs.
func ClearSentNotifications() {
	mu.Lock()
	SentNotifications = SentNotifications[:0]
	mu.Unlock()
}

type consoleSender struct {
	subjPrefix    string
	disableOutput bool
}

var _ core.NotificationSender = (*consoleSender)(nil)

func NewConsoleSender() core.NotificationSender {
	return &consoleSender{subjPrefix: "[" + core.Conf.AppName + "] "}
}

// NewConsoleSenderMock records sends without printing them.
func NewConsoleSenderMock() core.NotificationSender {
	return &consoleSender{
		subjPrefix:    "[" + core.Conf.AppName + "] ",
		disableOutput: true,
	}
}

func (svc consoleSender) Send(target core.Recipient, notif core.Notification) error {
	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "To: %s <%s>\r\n", target.Name, target.Email)
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+notif.Subject)
	_, _ = fmt.Fprintf(body, "\r\n%s\r\n", notif.Body)

	if !svc.disableOutput {
		log.Println(body.String())
	}
	mu.Lock()
	SentNotifications = append(SentNotifications, SentRecord{Target: target, Notif: notif})
	mu.Unlock()
	return nil
}
