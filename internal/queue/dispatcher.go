package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// Dispatcher hands campaign executions to the send pipeline.
type Dispatcher struct {
	Queue Queue
}

// Dispatch publishes the execution and returns its id. Completion arrives
// later on TopicDispatchDone.
func (d *Dispatcher) Dispatch(_ context.Context, c model.Campaign, audience []model.ContactListItem) (string, error) {
	job := model.DispatchJob{
		ExecutionID: uuid.NewString(),
		CampaignID:  c.ID,
		TenantID:    c.TenantID,
		WhatsappID:  c.WhatsappID,
		Message:     c.Message,
		Audience:    audience,
	}
	if err := d.Queue.Publish(TopicDispatch, job); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"campaign_id":  c.ID,
		"execution_id": job.ExecutionID,
		"audience":     len(audience),
	}).Info("[QUEUE] Campaign dispatched")
	return job.ExecutionID, nil
}

// StartCompletionSubscriber feeds completions from the send pipeline back
// into fn.
func StartCompletionSubscriber(q Queue, fn func(ctx context.Context, done model.DispatchCompletion) error) error {
	return q.Subscribe(TopicDispatchDone, func(payload any) error {
		var done model.DispatchCompletion
		if err := Decode(payload, &done); err != nil {
			logrus.WithError(err).Warn("[QUEUE] Invalid completion payload")
			return nil // no retry
		}
		return fn(context.Background(), done)
	})
}

// StartDispatchSubscriber feeds dispatch jobs into fn.
func StartDispatchSubscriber(q Queue, fn func(ctx context.Context, job model.DispatchJob) error) error {
	return q.Subscribe(TopicDispatch, func(payload any) error {
		var job model.DispatchJob
		if err := Decode(payload, &job); err != nil {
			logrus.WithError(err).Warn("[QUEUE] Invalid dispatch payload")
			return nil
		}
		return fn(context.Background(), job)
	})
}
