// ============================================================================
// FILE: internal/publisher/scheduler.go
// PURPOSE: Durable deferred-publish queue and upload dispatch loop
// ============================================================================

package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"golang.org/x/sync/semaphore"

	"github.com/xipebhui/autopublish/internal/adapters/upload"
	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// Store is the slice of persistence the publish scheduler needs. The store
// is authoritative; the in-process heap only decides when to wake up.
type Store interface {
	ListScheduledPublishes(ctx context.Context) ([]models.PublishTask, error)
	PopDuePublish(ctx context.Context, now time.Time, limit int) ([]models.PublishTask, error)
	MarkPublish(ctx context.Context, id uuid.UUID, status models.PublishState, result pqtype.NullRawMessage, videoID, url, errMsg, errCode string) error
	SchedulePublish(ctx context.Context, id uuid.UUID, at time.Time) error
	CancelPublish(ctx context.Context, id uuid.UUID) error
	ReschedulePublish(ctx context.Context, id uuid.UUID, newTime time.Time) error
	ClonePublishForRetry(ctx context.Context, orig *models.PublishTask, scheduledAt time.Time) (*models.PublishTask, error)
	SetTaskPublishStatus(ctx context.Context, taskID uuid.UUID, status models.PublishPhase) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Options tune the dispatch loop.
type Options struct {
	Concurrency   int
	PollInterval  time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	UploadTimeout time.Duration
	QueueSize     int
	BatchSize     int
}

type requestKind int

const (
	reqSchedule requestKind = iota
	reqCancel
	reqReschedule
)

type request struct {
	kind requestKind
	id   uuid.UUID
	at   time.Time
}

// Scheduler owns the min-heap of deferred publishes and the upload pool.
// Only the Run goroutine touches the heap; other components talk to it
// through a bounded request channel.
type Scheduler struct {
	store     Store
	transport upload.Transport
	limiter   *RateLimiter
	logger    common.Logger
	clock     common.Clock
	opts      Options

	queue    *queue
	requests chan request
	sem      *semaphore.Weighted
	stopChan chan struct{}
}

// NewScheduler creates the publish scheduler processor.
func NewScheduler(st Store, transport upload.Transport, logger common.Logger, clock common.Clock, opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.PollInterval <= 0 || opts.PollInterval > 30*time.Second {
		opts.PollInterval = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Minute
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 10 * time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	return &Scheduler{
		store:     st,
		transport: transport,
		limiter:   NewRateLimiter(),
		logger:    logger,
		clock:     clock,
		opts:      opts,
		queue:     newQueue(),
		requests:  make(chan request, opts.QueueSize),
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
		stopChan:  make(chan struct{}),
	}
}

// Name returns the processor name.
func (s *Scheduler) Name() string { return "PublishScheduler" }

// Schedule persists the transition to scheduled and wakes the loop.
func (s *Scheduler) Schedule(ctx context.Context, publishID uuid.UUID, at time.Time) error {
	if err := s.store.SchedulePublish(ctx, publishID, at); err != nil {
		return err
	}
	s.notify(request{kind: reqSchedule, id: publishID, at: at.UTC()})
	return nil
}

// Cancel marks the row cancelled; the heap drops it lazily on pop.
func (s *Scheduler) Cancel(ctx context.Context, publishID uuid.UUID) error {
	if err := s.store.CancelPublish(ctx, publishID); err != nil {
		return err
	}
	s.notify(request{kind: reqCancel, id: publishID})
	return nil
}

// Reschedule atomically moves a scheduled publish to a new time.
func (s *Scheduler) Reschedule(ctx context.Context, publishID uuid.UUID, newTime time.Time) error {
	if err := s.store.ReschedulePublish(ctx, publishID, newTime); err != nil {
		return err
	}
	s.notify(request{kind: reqReschedule, id: publishID, at: newTime.UTC()})
	return nil
}

// Drop removes ids from the heap without touching the store. Used after a
// caller already cancelled the rows (task-level cancellation).
func (s *Scheduler) Drop(ids []uuid.UUID) {
	for _, id := range ids {
		s.notify(request{kind: reqCancel, id: id})
	}
}

// QueueLen reports how many entries the heap currently tracks.
func (s *Scheduler) QueueLen() int { return s.queue.len() }

func (s *Scheduler) notify(req request) {
	select {
	case s.requests <- req:
	default:
		// Channel full: the poll fallback will pick the row up from the
		// store within one interval.
		s.logger.Warn("Publish scheduler request queue full; relying on poll fallback")
	}
}

// Run rebuilds the heap from the store and dispatches due publishes until
// stopped. The wake time is min(next head, poll interval); the poll fallback
// also catches rows scheduled by other processes.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.rebuild(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("Publish heap rebuild failed: %v", err))
	}

	for {
		timer := time.NewTimer(s.wakeIn())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.stopChan:
			timer.Stop()
			return nil
		case req := <-s.requests:
			timer.Stop()
			s.apply(req)
		case <-timer.C:
			s.dispatch(ctx)
		}
	}
}

// Stop halts the loop; in-flight uploads finish on their own contexts.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stopChan)
	return nil
}

func (s *Scheduler) wakeIn() time.Duration {
	wake := s.opts.PollInterval
	if e, ok := s.queue.head(); ok {
		if until := e.at.Sub(s.clock.Now()); until < wake {
			wake = until
		}
	}
	if wake < 0 {
		wake = 0
	}
	return wake
}

func (s *Scheduler) apply(req request) {
	switch req.kind {
	case reqSchedule, reqReschedule:
		s.queue.remove(req.id)
		s.queue.push(req.id, req.at)
	case reqCancel:
		s.queue.remove(req.id)
	}
}

func (s *Scheduler) rebuild(ctx context.Context) error {
	rows, err := s.store.ListScheduledPublishes(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.queue.push(row.ID, row.ScheduledTime)
	}
	s.logger.Info(fmt.Sprintf("Publish heap rebuilt with %d scheduled tasks", len(rows)))
	return nil
}

// dispatch claims due rows through the store's compare-and-set and uploads
// them under the concurrency pool. Nothing fires before its scheduled_time;
// firing may lag under load.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.clock.Now()
	s.queue.popDue(now, s.opts.BatchSize)

	popped, err := s.store.PopDuePublish(ctx, now, s.opts.BatchSize)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to pop due publishes: %v", err))
		return
	}
	for i := range popped {
		task := popped[i]
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer s.sem.Release(1)
			s.uploadOne(ctx, &task)
		}()
	}
}

func (s *Scheduler) uploadOne(ctx context.Context, p *models.PublishTask) {
	account, err := s.store.GetAccount(ctx, p.AccountID)
	if err != nil {
		s.finishFailed(ctx, p, "account lookup failed: "+err.Error(), common.CodeOf(err), common.IsRetryable(err))
		return
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.opts.UploadTimeout)
	defer cancel()

	if err := s.limiter.GetLimiter(account.ID.String()).Wait(uploadCtx); err != nil {
		s.finishFailed(ctx, p, "upload pacing aborted: "+err.Error(), "upload_timeout", true)
		return
	}

	results, err := s.transport.Upload(uploadCtx, []upload.Task{{
		UID:        p.ID.String(),
		ProfileRef: account.ProfileRef,
		Video: upload.Video{
			Path:        p.VideoRef,
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
			Thumbnail:   p.ThumbnailRef,
			Visibility:  p.Privacy,
		},
	}})
	if err != nil {
		s.finishFailed(ctx, p, err.Error(), common.CodeOf(err), common.IsRetryable(err))
		return
	}
	if len(results) == 0 {
		s.finishFailed(ctx, p, "transport returned no result", "upload_empty_result", true)
		return
	}

	res := results[0]
	if res.Status == upload.StatusSuccess {
		if err := s.store.MarkPublish(ctx, p.ID, models.PublishTaskSuccess, pqtype.NullRawMessage{}, res.VideoID, res.URL, "", ""); err != nil {
			s.logger.Error(fmt.Sprintf("Failed to mark publish %s success: %v", p.ID, err))
			return
		}
		if err := s.store.SetTaskPublishStatus(ctx, p.TaskID, models.PublishPublished); err != nil {
			s.logger.Warn(fmt.Sprintf("Failed to update task %s publish status: %v", p.TaskID, err))
		}
		s.logger.Info(fmt.Sprintf("Published %s as %s", p.ID, res.VideoID))
		return
	}

	s.finishFailed(ctx, p, res.Error, "upload_failed", res.Retryable)
}

// finishFailed records the terminal failure and, when policy allows, clones
// the row into a fresh retry scheduled with exponential backoff.
func (s *Scheduler) finishFailed(ctx context.Context, p *models.PublishTask, errMsg, errCode string, retryable bool) {
	if err := s.store.MarkPublish(ctx, p.ID, models.PublishTaskFailed, pqtype.NullRawMessage{}, "", "", errMsg, errCode); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to mark publish %s failed: %v", p.ID, err))
		return
	}

	if !retryable || p.RetryCount >= s.opts.MaxRetries {
		if err := s.store.SetTaskPublishStatus(ctx, p.TaskID, models.PublishFailed); err != nil {
			s.logger.Warn(fmt.Sprintf("Failed to update task %s publish status: %v", p.TaskID, err))
		}
		s.logger.Error(fmt.Sprintf("Publish %s permanently failed: %s", p.ID, errMsg))
		return
	}

	backoff := s.opts.RetryBase * time.Duration(1<<uint(p.RetryCount))
	retryAt := s.clock.Now().Add(backoff)
	clone, err := s.store.ClonePublishForRetry(ctx, p, retryAt)
	if err != nil {
		s.logger.Error(fmt.Sprintf("Failed to clone publish %s for retry: %v", p.ID, err))
		return
	}
	s.notify(request{kind: reqSchedule, id: clone.ID, at: retryAt})
	s.logger.Warn(fmt.Sprintf("Publish %s failed (%s), retry %d/%d as %s at %s",
		p.ID, errMsg, clone.RetryCount, s.opts.MaxRetries, clone.ID, retryAt.Format(time.RFC3339)))
}
