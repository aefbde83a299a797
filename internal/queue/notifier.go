package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

type connector interface {
	Connect(ctx context.Context) error
}

type closer interface {
	Close() error
}

// broadcaster is implemented by queues that can fan out without storing.
type broadcaster interface {
	Broadcast(topic string, payload any) error
}

// Notifier broadcasts tenant events as company-<tenant>-<topic> messages.
// Queues that implement Broadcast get fire-and-forget delivery; others get a
// plain Publish. Delivery is best effort.
type Notifier struct {
	Queue Queue
}

func NewNotifier(q Queue) *Notifier {
	return &Notifier{Queue: q}
}

// Connect is a no-op for queues that need no connection.
func (n *Notifier) Connect(ctx context.Context) error {
	if c, ok := n.Queue.(connector); ok {
		return c.Connect(ctx)
	}
	return nil
}

func (n *Notifier) Publish(tenantID int, topic string, payload any) {
	t := Topic(tenantID, topic)
	var err error
	if b, ok := n.Queue.(broadcaster); ok {
		err = b.Broadcast(t, payload)
	} else {
		err = n.Queue.Publish(t, payload)
	}
	if err != nil {
		logrus.WithField("topic", t).WithError(err).Debug("[QUEUE] Event not delivered")
	}
}

func (n *Notifier) Close() error {
	if c, ok := n.Queue.(closer); ok {
		return c.Close()
	}
	return nil
}

func Topic(tenantID int, topic string) string {
	return fmt.Sprintf("company-%d-%s", tenantID, topic)
}
