package service

import (
	"context"

	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/whatsapp"
)

// Event topics, delivered to subscribers as company-<tenant>-<topic>.
const (
	TopicCampaign        = "campaign"
	TopicContactListItem = "ContactListItem"
)

// NumberValidator checks a phone number against the messaging network.
type NumberValidator interface {
	CheckNumber(ctx context.Context, number string, tenantID int) (whatsapp.Result, error)
}

// DispatchTrigger starts sending an execution. Completion is reported
// asynchronously through Scheduler.Complete.
type DispatchTrigger interface {
	Dispatch(ctx context.Context, c model.Campaign, audience []model.ContactListItem) (executionID string, err error)
}

// EventNotifier is a write-only sink for state changes.
type EventNotifier interface {
	Connect(ctx context.Context) error
	Publish(tenantID int, topic string, payload any)
	Close() error
}

// Notification is the payload of every event published by this package.
type Notification struct {
	Action string `json:"action"`
	Record any    `json:"record,omitempty"`
	ID     int    `json:"id,omitempty"`
}

type nopNotifier struct{}

func (nopNotifier) Connect(context.Context) error { return nil }
func (nopNotifier) Publish(int, string, any) {}
func (nopNotifier) Close() error { return nil }

func notifierOrNop(n EventNotifier) EventNotifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
