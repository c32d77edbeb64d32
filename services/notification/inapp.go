package notifysvc

import (
	"sync"

	"github.com/trezcool/malipo/core"
)

// inAppSender keeps an in-memory inbox per payer. It doubles as the in-app
// channel in Debug mode and as a fake in tests.
type inAppSender struct {
	mu      sync.RWMutex
	inboxes map[string][]core.Notification
}

var _ core.NotificationSender = (*inAppSender)(nil)

func NewInAppSender() *inAppSender {
	return &inAppSender{inboxes: make(map[string][]core.Notification)}
}

func (svc *inAppSender) Send(target core.Recipient, notif core.Notification) error {
	svc.mu.Lock()
	svc.inboxes[target.PayerID] = append(svc.inboxes[target.PayerID], notif)
	svc.mu.Unlock()
	return nil
}

// Inbox returns a copy of the payer's notifications in delivery order.
func (svc *inAppSender) Inbox(payerID string) []core.Notification {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	inbox := make([]core.Notification, len(svc.inboxes[payerID]))
	copy(inbox, svc.inboxes[payerID])
	return inbox
}
