package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
	"github.com/unclebandit/campaign-engine/internal/lock"
	"github.com/unclebandit/campaign-engine/internal/model"
	"github.com/unclebandit/campaign-engine/internal/repository"
)

// Scheduler fires due campaigns and books their completions. Every step
// that writes a campaign holds the campaign's lock and re-reads the row.
type Scheduler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Lists      repository.ContactListRepositoryInterface
	Items      repository.ContactListItemRepositoryInterface
	Contacts   repository.ContactRepositoryInterface
	Resolver   *AudienceResolver
	Dispatcher DispatchTrigger
	Locker     lock.Locker
	Notifier   EventNotifier

	Interval    time.Duration
	Concurrency int
	BatchSize   int
	LockTTL     time.Duration
	// StaleAfter closes executions whose completion never arrived. Zero
	// disables the sweep.
	StaleAfter  time.Duration
	Now         func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func lockKey(campaignID int) string {
	return fmt.Sprintf("campaign:%d", campaignID)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Start runs Tick every Interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()

		logrus.WithField("interval", s.Interval).Info("[SCHEDULER] Started")
		for {
			select {
			case <-ctx.Done():
				logrus.Info("[SCHEDULER] Stopped")
				return
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					logrus.WithError(err).Error("[SCHEDULER] Tick failed")
				}
			}
		}
	}()
}

// Stop cancels the loop and waits for the running tick to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick processes every due campaign. One campaign failing never stops the
// others; only the due scan itself can fail the tick.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.StaleAfter > 0 {
		if err := s.sweepStale(ctx); err != nil {
			logrus.WithError(err).Error("[SCHEDULER] Stale execution sweep failed")
		}
	}

	due, err := s.Campaigns.ListDue(ctx, s.now(), s.batchSize())
	if err != nil {
		return fmt.Errorf("failed to list due campaigns: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	logrus.WithField("due", len(due)).Debug("[SCHEDULER] Processing due campaigns")

	var g errgroup.Group
	g.SetLimit(s.concurrency())
	for _, c := range due {
		g.Go(func() error {
			if err := s.fire(ctx, c); err != nil {
				logrus.WithField("campaign_id", c.ID).WithError(err).Error("[SCHEDULER] Campaign execution failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// sweepStale completes IN_PROGRESS campaigns untouched for StaleAfter as
// failed executions, so a lost completion cannot park a campaign forever.
func (s *Scheduler) sweepStale(ctx context.Context) error {
	stale, err := s.Campaigns.ListStale(ctx, s.now().Add(-s.StaleAfter), s.batchSize())
	if err != nil {
		return fmt.Errorf("failed to list stale campaigns: %w", err)
	}
	for _, c := range stale {
		logrus.WithFields(logrus.Fields{"campaign_id": c.ID, "tenant_id": c.TenantID}).Warn("[SCHEDULER] No completion received, closing execution")
		err := s.Complete(ctx, model.DispatchCompletion{
			CampaignID: c.ID,
			TenantID:   c.TenantID,
			Err:        appErrors.NewDispatchFailed(c.ID, fmt.Sprintf("no completion after %s", s.StaleAfter)).Error(),
		})
		if err != nil && !errors.Is(err, appErrors.ErrLockNotAcquired) {
			logrus.WithField("campaign_id", c.ID).WithError(err).Warn("[SCHEDULER] Failed to close stale execution")
		}
	}
	return nil
}

func (s *Scheduler) concurrency() int {
	if s.Concurrency < 1 {
		return 1
	}
	return s.Concurrency
}

func (s *Scheduler) batchSize() int {
	if s.BatchSize < 1 {
		return 100
	}
	return s.BatchSize
}

// withLock runs fn holding the campaign's lock. ErrLockNotAcquired is
// returned untouched so callers can tell contention from failure.
func (s *Scheduler) withLock(ctx context.Context, campaignID int, fn func() error) error {
	lease, err := s.Locker.Acquire(ctx, lockKey(campaignID), s.LockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logrus.WithField("campaign_id", campaignID).WithError(err).Warn("[LOCK] Release failed")
		}
	}()
	return fn()
}

// fire runs one due campaign: materialize a tag audience, move the campaign
// to IN_PROGRESS under its lock, then dispatch outside the lock.
func (s *Scheduler) fire(ctx context.Context, due *model.Campaign) error {
	log := logrus.WithFields(logrus.Fields{"campaign_id": due.ID, "tenant_id": due.TenantID})

	if due.TagID != nil {
		err := s.materializeTagAudience(ctx, due)
		if errors.Is(err, appErrors.ErrLockNotAcquired) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	var (
		started  model.Campaign
		audience []model.ContactListItem
		fired    bool
	)
	err := s.withLock(ctx, due.ID, func() error {
		c, err := s.Campaigns.GetByID(ctx, due.ID)
		if err != nil {
			return err
		}
		now := s.now()
		if c.Status != model.StatusScheduled {
			log.WithField("status", c.Status).Debug("[SCHEDULER] Campaign no longer scheduled, skipping")
			return nil
		}
		if at := c.PlannedAt(); at == nil || at.After(now) {
			return nil
		}

		audience, err = s.sendableAudience(ctx, c)
		if err != nil {
			return err
		}
		if len(audience) == 0 {
			return s.skipEmpty(ctx, c)
		}

		started, err = Transition(*c, EventStart, now, TransitionOptions{AudienceSize: len(audience)})
		if err != nil {
			return err
		}
		if err := s.Campaigns.Update(ctx, &started, c.Status); err != nil {
			return err
		}
		fired = true
		return nil
	})
	if errors.Is(err, appErrors.ErrLockNotAcquired) {
		log.Debug("[SCHEDULER] Campaign locked by another worker, skipping")
		return nil
	}
	if errors.Is(err, appErrors.ErrStaleCampaign) {
		log.Debug("[SCHEDULER] Campaign changed concurrently, skipping")
		return nil
	}
	if err != nil || !fired {
		return err
	}
	s.publish(started)

	executionID, err := s.Dispatcher.Dispatch(ctx, started, audience)
	if err != nil {
		log.WithError(err).Warn("[SCHEDULER] Dispatch failed")
		return s.Complete(ctx, model.DispatchCompletion{
			CampaignID: started.ID,
			TenantID:   started.TenantID,
			Err:        appErrors.NewDispatchFailed(started.ID, err.Error()).Error(),
		})
	}
	log.WithFields(logrus.Fields{"execution_id": executionID, "audience": len(audience)}).Info("[SCHEDULER] Campaign started")
	return nil
}

// materializeTagAudience resolves the tag's contacts into the campaign's
// own list, creating the list first if needed. Validation runs outside the
// campaign lock; find-or-create keeps concurrent runs harmless.
func (s *Scheduler) materializeTagAudience(ctx context.Context, due *model.Campaign) error {
	listID := due.ContactListID
	if listID == nil {
		err := s.withLock(ctx, due.ID, func() error {
			c, err := s.Campaigns.GetByID(ctx, due.ID)
			if err != nil {
				return err
			}
			if c.ContactListID != nil {
				listID = c.ContactListID
				return nil
			}
			list := &model.ContactList{TenantID: c.TenantID, Name: fmt.Sprintf("campaign %d tag %d", c.ID, *c.TagID)}
			if err := s.Lists.Create(ctx, list); err != nil {
				return err
			}
			next := c.Clone()
			next.ContactListID = &list.ID
			if err := s.Campaigns.Update(ctx, &next, c.Status); err != nil {
				return err
			}
			listID = next.ContactListID
			return nil
		})
		if err != nil {
			return err
		}
	}

	ids, err := s.Contacts.FindIDsByTag(ctx, due.TenantID, *due.TagID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = s.Resolver.Resolve(ctx, *listID, due.TenantID, ids)
	return err
}

func (s *Scheduler) sendableAudience(ctx context.Context, c *model.Campaign) ([]model.ContactListItem, error) {
	if c.ContactListID == nil {
		return nil, nil
	}
	items, err := s.Items.ListAudience(ctx, c.TenantID, *c.ContactListID)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if it.Sendable() {
			out = append(out, it)
		}
	}
	return out, nil
}

// skipEmpty handles a due campaign with nobody to message. A recurrence
// moves on to its next run; a single-shot campaign waits for an audience.
func (s *Scheduler) skipEmpty(ctx context.Context, c *model.Campaign) error {
	log := logrus.WithFields(logrus.Fields{"campaign_id": c.ID, "tenant_id": c.TenantID})
	if !c.IsRecurring {
		log.Warn("[SCHEDULER] Campaign audience is empty, waiting")
		return nil
	}

	next := c.Clone()
	at, err := nextAfter(&next)
	if err != nil {
		return err
	}
	if exhausted(&next, at) {
		next.Status = model.StatusFinished
		next.NextScheduledAt = nil
	} else {
		next.NextScheduledAt = &at
	}
	if err := s.Campaigns.Update(ctx, &next, c.Status); err != nil {
		return err
	}
	log.WithField("next", next.NextScheduledAt).Warn("[SCHEDULER] Campaign audience is empty, occurrence skipped")
	s.publish(next)
	return nil
}

// Complete books the end of an execution. A campaign canceled while its
// execution was in flight stays CANCELED but the execution still counts.
// Returns ErrLockNotAcquired when the campaign is busy so the caller can
// redeliver.
func (s *Scheduler) Complete(ctx context.Context, done model.DispatchCompletion) error {
	log := logrus.WithFields(logrus.Fields{"campaign_id": done.CampaignID, "execution_id": done.ExecutionID})

	var updated *model.Campaign
	err := s.withLock(ctx, done.CampaignID, func() error {
		c, err := s.Campaigns.GetByID(ctx, done.CampaignID)
		if err != nil {
			return err
		}
		now := s.now()

		var next model.Campaign
		switch c.Status {
		case model.StatusInProgress:
			next, err = Transition(*c, EventComplete, now, TransitionOptions{DispatchErr: done.Err})
			if err != nil {
				return err
			}
		case model.StatusCanceled:
			next = c.Clone()
			next.ExecutionCount++
			next.CompletedAt = &now
			next.LastDispatchError = done.Err
		default:
			log.WithField("status", c.Status).Warn("[SCHEDULER] Completion for idle campaign ignored")
			return nil
		}

		if err := s.Campaigns.Update(ctx, &next, c.Status); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return err
	}
	if updated != nil {
		entry := log.WithFields(logrus.Fields{"status": updated.Status, "executions": updated.ExecutionCount})
		if done.OK() {
			entry.Info("[SCHEDULER] Execution completed")
		} else {
			entry.WithField("error", done.Err).Warn("[SCHEDULER] Execution completed with failures")
		}
		s.publish(*updated)
	}
	return nil
}

func (s *Scheduler) publish(c model.Campaign) {
	notifierOrNop(s.Notifier).Publish(c.TenantID, TopicCampaign, Notification{Action: "update", Record: &c})
}
