package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/campaign-engine/internal/model"
)

// SendFunc delivers one rendered message to one number.
type SendFunc func(ctx context.Context, number, text string) error

// DispatchWorker processes dispatch jobs: it renders the campaign message
// for each audience member, sends it, and reports one completion per job.
type DispatchWorker struct {
	JobChan  <-chan model.DispatchJob
	SendFunc SendFunc
	Report   func(ctx context.Context, done model.DispatchCompletion) error
}

// NewDispatchWorker returns a worker reading jobChan. jobChan may be nil
// when jobs arrive through Handle only.
func NewDispatchWorker(jobChan <-chan model.DispatchJob, send SendFunc, report func(context.Context, model.DispatchCompletion) error) *DispatchWorker {
	return &DispatchWorker{
		JobChan:  jobChan,
		SendFunc: send,
		Report:   report,
	}
}

// Start processes jobs until JobChan is closed or ctx is done.
func (w *DispatchWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.JobChan:
			if !ok {
				return
			}
			if err := w.Handle(ctx, job); err != nil {
				logrus.WithField("campaign_id", job.CampaignID).WithError(err).Error("[WORKER] Failed to report completion")
			}
		}
	}
}

// Handle sends every message of job. Individual send failures are counted,
// not retried; the returned error only concerns reporting.
func (w *DispatchWorker) Handle(ctx context.Context, job model.DispatchJob) error {
	log := logrus.WithFields(logrus.Fields{"campaign_id": job.CampaignID, "execution_id": job.ExecutionID})
	done := model.DispatchCompletion{
		ExecutionID: job.ExecutionID,
		CampaignID:  job.CampaignID,
		TenantID:    job.TenantID,
	}

	var lastErr error
	for _, it := range job.Audience {
		text := RenderForItem(job.Message, it)
		if err := w.SendFunc(ctx, it.Number, text); err != nil {
			done.Failed++
			lastErr = err
			log.WithField("number", it.Number).WithError(err).Warn("[WORKER] Send failed")
			continue
		}
		done.Sent++
	}
	if done.Failed > 0 {
		done.Err = fmt.Sprintf("%d of %d sends failed, last error: %v", done.Failed, len(job.Audience), lastErr)
	}

	log.WithFields(logrus.Fields{"sent": done.Sent, "failed": done.Failed}).Info("[WORKER] Execution finished")
	return w.Report(ctx, done)
}
