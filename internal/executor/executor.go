// ============================================================================
// FILE: internal/executor/executor.go
// PURPOSE: Bounded-concurrency engine running pipelines and fanning out
// ============================================================================

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"golang.org/x/sync/semaphore"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/pipeline"
	"github.com/xipebhui/autopublish/internal/strategy"
)

// Store is the slice of persistence the engine needs.
type Store interface {
	ClaimDueWork(ctx context.Context, now time.Time, limit int) ([]models.AutoPublishTask, error)
	RecordPipelineResult(ctx context.Context, taskID uuid.UUID, status models.PipelinePhase, result pqtype.NullRawMessage, errMsg, errCode string) error
	SetTaskPublishStatus(ctx context.Context, taskID uuid.UUID, status models.PublishPhase) error
	CloneTaskForRetry(ctx context.Context, orig *models.AutoPublishTask, scheduledAt time.Time) (*models.AutoPublishTask, error)
	ResolveSlot(ctx context.Context, slotID uuid.UUID, status models.SlotStatus) error
	ListStaleRunning(ctx context.Context, cutoff time.Time) ([]models.AutoPublishTask, error)
	FailStaleTask(ctx context.Context, taskID uuid.UUID) error

	GetTask(ctx context.Context, id uuid.UUID) (*models.AutoPublishTask, error)
	GetPublishConfig(ctx context.Context, id uuid.UUID) (*models.PublishConfig, error)
	GetStrategy(ctx context.Context, id uuid.UUID) (*models.Strategy, error)
	ListStrategyAssignments(ctx context.Context, strategyID, groupID uuid.UUID) ([]models.StrategyAssignment, error)
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error)
	GetRingSlot(ctx context.Context, id uuid.UUID) (*models.RingSlot, error)
	EnqueuePublish(ctx context.Context, p *models.PublishTask) error
	CancelPublishesForTask(ctx context.Context, taskID uuid.UUID) ([]uuid.UUID, error)
	CancelTask(ctx context.Context, taskID uuid.UUID) error
	MarkTaskCancelRequested(ctx context.Context, taskID uuid.UUID) error
}

// PublishQueue is the deferred-publish seam (the publish scheduler).
type PublishQueue interface {
	Schedule(ctx context.Context, publishID uuid.UUID, at time.Time) error
	Drop(ids []uuid.UUID)
}

// Invoker is the pipeline registry seam.
type Invoker interface {
	Invoke(ctx context.Context, pipelineID string, params map[string]interface{}) (*pipeline.Result, error)
}

// Options tune the engine.
type Options struct {
	Concurrency     int
	PollInterval    time.Duration
	MaxRetries      int
	RetryBase       time.Duration
	PipelineTimeout time.Duration
	StaleThreshold  time.Duration
}

// Engine pulls due auto-publish tasks, runs their pipelines under a bounded
// pool, resolves variants and hands publish tasks to the publish scheduler.
type Engine struct {
	store    Store
	invoker  Invoker
	resolver *strategy.Resolver
	queue    PublishQueue
	logger   common.Logger
	clock    common.Clock
	opts     Options

	sem      *semaphore.Weighted
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewEngine creates the execution engine processor.
func NewEngine(st Store, invoker Invoker, resolver *strategy.Resolver, queue PublishQueue, logger common.Logger, clock common.Clock, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
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
	if opts.PipelineTimeout <= 0 {
		opts.PipelineTimeout = 30 * time.Minute
	}
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = time.Hour
	}
	return &Engine{
		store:    st,
		invoker:  invoker,
		resolver: resolver,
		queue:    queue,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		stopChan: make(chan struct{}),
	}
}

// Name returns the processor name.
func (e *Engine) Name() string { return "ExecutionEngine" }

// Running reports whether the loop is live.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run recovers stale work, then claims and executes due tasks until stopped.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.RecoverStale(ctx)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return ctx.Err()
		case <-e.stopChan:
			e.wg.Wait()
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Stop halts claiming; in-flight pipeline invocations drain.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		close(e.stopChan)
	}
	e.mu.Unlock()
	return nil
}

// RecoverStale fails running rows older than the stale threshold and feeds
// them back through retry policy. Called once on startup.
func (e *Engine) RecoverStale(ctx context.Context) {
	cutoff := e.clock.Now().Add(-e.opts.StaleThreshold)
	stale, err := e.store.ListStaleRunning(ctx, cutoff)
	if err != nil {
		e.logger.Error(fmt.Sprintf("Stale recovery scan failed: %v", err))
		return
	}
	for i := range stale {
		task := stale[i]
		if err := e.store.FailStaleTask(ctx, task.ID); err != nil {
			continue
		}
		task.PipelineStatus = models.PipelineFailed
		e.logger.Warn(fmt.Sprintf("Recovered stale running task %s", task.ID))
		e.maybeRetry(ctx, &task, true)
	}
}

// Tick claims as many due tasks as the pool has free capacity and launches
// them. Back-pressure is the store: tasks stay pending until a slot frees.
func (e *Engine) Tick(ctx context.Context) {
	free := e.freeSlots()
	if free == 0 {
		return
	}
	claimed, err := e.store.ClaimDueWork(ctx, e.clock.Now(), free)
	if err != nil {
		e.logger.Error(fmt.Sprintf("Claim failed: %v", err))
		return
	}
	for i := range claimed {
		task := claimed[i]
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer e.sem.Release(1)
			e.execute(ctx, &task)
		}()
	}
}

func (e *Engine) freeSlots() int {
	free := 0
	for free < e.opts.Concurrency && e.sem.TryAcquire(1) {
		free++
	}
	for i := 0; i < free; i++ {
		e.sem.Release(1)
	}
	return free
}

// execute runs one claimed task end to end.
func (e *Engine) execute(ctx context.Context, task *models.AutoPublishTask) {
	cfg, err := e.store.GetPublishConfig(ctx, task.ConfigID)
	if err != nil {
		e.recordFailure(ctx, task, nil, err)
		return
	}

	params := effectiveParams(cfg, task)

	invokeCtx, cancel := context.WithTimeout(ctx, e.opts.PipelineTimeout)
	result, err := e.invoker.Invoke(invokeCtx, task.PipelineID, params)
	if invokeCtx.Err() == context.DeadlineExceeded {
		err = common.Permanent("pipeline_timeout", "pipeline invocation exceeded deadline", nil)
	}
	cancel()

	if err == nil && !result.Success {
		if result.Retryable {
			err = common.Transient("pipeline_failed", result.Error, nil)
		} else {
			err = common.Permanent("pipeline_failed", result.Error, nil)
		}
	}
	if err != nil {
		e.recordFailure(ctx, task, result, err)
		return
	}

	resultJSON := pipeline.MarshalResult(result)
	if err := e.store.RecordPipelineResult(ctx, task.ID, models.PipelineCompleted, resultJSON, "", ""); err != nil {
		e.logger.Error(fmt.Sprintf("Failed to record result for task %s: %v", task.ID, err))
		return
	}
	task.PipelineResult = resultJSON

	// A cancel requested while the pipeline was in flight lands here: the
	// invocation finished but nothing gets published.
	if fresh, err := e.store.GetTask(ctx, task.ID); err == nil && fresh.PublishStatus == models.PublishCancelled {
		e.resolveSlot(ctx, task, models.SlotCancelled)
		e.logger.Info(fmt.Sprintf("Task %s cancelled during execution; skipping fan-out", task.ID))
		return
	}

	if err := e.fanOut(ctx, task, cfg, resultJSON.RawMessage); err != nil {
		e.logger.Error(fmt.Sprintf("Fan-out failed for task %s: %v", task.ID, err))
		if err := e.store.SetTaskPublishStatus(ctx, task.ID, models.PublishFailed); err == nil {
			e.resolveSlot(ctx, task, models.SlotFailed)
		}
		return
	}

	if err := e.store.SetTaskPublishStatus(ctx, task.ID, models.PublishScheduled); err != nil {
		e.logger.Warn(fmt.Sprintf("Failed to mark task %s scheduled: %v", task.ID, err))
	}
	e.resolveSlot(ctx, task, models.SlotCompleted)
	e.logger.Info(fmt.Sprintf("Task %s completed", task.ID))
}

func (e *Engine) recordFailure(ctx context.Context, task *models.AutoPublishTask, result *pipeline.Result, err error) {
	appCode := common.CodeOf(err)
	if err := e.store.RecordPipelineResult(ctx, task.ID, models.PipelineFailed,
		pipeline.MarshalResult(result), err.Error(), appCode); err != nil {
		e.logger.Error(fmt.Sprintf("Failed to record failure for task %s: %v", task.ID, err))
		return
	}
	task.PipelineStatus = models.PipelineFailed
	// A cancel requested while the pipeline was in flight also stops retries.
	if fresh, err := e.store.GetTask(ctx, task.ID); err == nil && fresh.PublishStatus == models.PublishCancelled {
		e.resolveSlot(ctx, task, models.SlotCancelled)
		e.logger.Info(fmt.Sprintf("Task %s cancelled during execution; not retrying", task.ID))
		return
	}
	e.maybeRetry(ctx, task, common.IsRetryable(err))
}

// maybeRetry applies §4.6 retry policy: a fresh row with retry_count+1 and
// exponential backoff, or a terminal failure.
func (e *Engine) maybeRetry(ctx context.Context, task *models.AutoPublishTask, retryable bool) {
	if !retryable || task.RetryCount >= e.opts.MaxRetries {
		e.resolveSlot(ctx, task, models.SlotFailed)
		e.logger.Error(fmt.Sprintf("Task %s permanently failed after %d retries", task.ID, task.RetryCount))
		return
	}
	backoff := e.opts.RetryBase * time.Duration(1<<uint(task.RetryCount))
	retryAt := e.clock.Now().Add(backoff)
	clone, err := e.store.CloneTaskForRetry(ctx, task, retryAt)
	if err != nil {
		e.logger.Error(fmt.Sprintf("Failed to clone task %s for retry: %v", task.ID, err))
		return
	}
	e.logger.Warn(fmt.Sprintf("Task %s failed, retry %d/%d as %s at %s",
		task.ID, clone.RetryCount, e.opts.MaxRetries, clone.ID, retryAt.Format(time.RFC3339)))
}

// fanOut resolves variants and enqueues one publish task per group member.
func (e *Engine) fanOut(ctx context.Context, task *models.AutoPublishTask, cfg *models.PublishConfig, resultJSON []byte) error {
	members, err := e.store.ListGroupMembers(ctx, task.GroupID)
	if err != nil {
		return err
	}
	if task.AccountID != nil {
		// Slot-bound tasks publish through the slot's account only.
		members = filterMember(members, *task.AccountID)
	}
	if len(members) == 0 {
		return common.BadRequest("empty_group", "task group has no members to publish through")
	}

	var strat *models.Strategy
	var assignments []models.StrategyAssignment
	if task.StrategyID != nil {
		strat, err = e.store.GetStrategy(ctx, *task.StrategyID)
		if err != nil {
			return err
		}
		if !strategyLive(strat, e.clock.Now()) {
			strat = nil
		} else {
			assignments, err = e.store.ListStrategyAssignments(ctx, strat.ID, task.GroupID)
			if err != nil {
				return err
			}
		}
	}

	bundles, err := e.resolver.Resolve(ctx, cfg, strat, assignments, members, task, resultJSON)
	if err != nil {
		return err
	}

	publishAt := e.publishTime(ctx, task, cfg)
	for i := range bundles {
		b := bundles[i]
		p := &models.PublishTask{
			TaskID:        task.ID,
			AccountID:     b.AccountID,
			Title:         b.Title,
			Description:   b.Description,
			Tags:          b.Tags,
			ThumbnailRef:  b.ThumbnailRef,
			Privacy:       b.Privacy,
			VideoRef:      b.VideoRef,
			Status:        models.PublishTaskPending,
			ScheduledTime: publishAt,
			IsScheduled:   publishAt.After(e.clock.Now()),
		}
		if b.VariantName != "" {
			v := b.VariantName
			p.VariantName = &v
		}
		if err := e.store.EnqueuePublish(ctx, p); err != nil {
			return err
		}
		if err := e.queue.Schedule(ctx, p.ID, publishAt); err != nil {
			return err
		}
	}
	return nil
}

// publishTime applies the config's publish policy: slot time when bound,
// fixed delay, or immediately.
func (e *Engine) publishTime(ctx context.Context, task *models.AutoPublishTask, cfg *models.PublishConfig) time.Time {
	now := e.clock.Now()
	policy := parsePolicy(cfg.PublishPolicy)

	switch policy.Mode {
	case policySlot:
		if task.SlotID != nil {
			if slot, err := e.store.GetRingSlot(ctx, *task.SlotID); err == nil {
				if at := slot.SlotTime(); at.After(now) {
					return at
				}
			}
		}
		return now
	case policyDelay:
		return now.Add(time.Duration(policy.DelayMinutes) * time.Minute)
	default:
		return now
	}
}

// CancelTask cancels a pending task outright, or flags a running one so the
// invocation's outcome is discarded. Deferred publishes in scheduled state
// are cancelled and dropped from the heap either way.
func (e *Engine) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	switch task.PipelineStatus {
	case models.PipelinePending:
		if err := e.store.CancelTask(ctx, taskID); err != nil {
			return err
		}
		e.resolveSlot(ctx, task, models.SlotCancelled)
	case models.PipelineRunning:
		if err := e.store.MarkTaskCancelRequested(ctx, taskID); err != nil {
			return err
		}
	default:
		return common.Conflict("task_terminal", "task already finished")
	}

	ids, err := e.store.CancelPublishesForTask(ctx, taskID)
	if err != nil {
		return err
	}
	e.queue.Drop(ids)
	return nil
}

func (e *Engine) resolveSlot(ctx context.Context, task *models.AutoPublishTask, status models.SlotStatus) {
	if task.SlotID == nil {
		return
	}
	if err := e.store.ResolveSlot(ctx, *task.SlotID, status); err != nil {
		e.logger.Warn(fmt.Sprintf("Failed to resolve slot %s: %v", *task.SlotID, err))
	}
}

func filterMember(members []models.GroupMember, accountID uuid.UUID) []models.GroupMember {
	for _, m := range members {
		if m.AccountID == accountID {
			return []models.GroupMember{m}
		}
	}
	return nil
}

func strategyLive(s *models.Strategy, now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.StartDate != nil && now.Before(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && now.After(*s.EndDate) {
		return false
	}
	return true
}

// effectiveParams merges config defaults with trigger-provided overrides
// already stored on the task.
func effectiveParams(cfg *models.PublishConfig, task *models.AutoPublishTask) map[string]interface{} {
	params := map[string]interface{}{}
	if cfg.PipelineParams.Valid {
		_ = json.Unmarshal(cfg.PipelineParams.RawMessage, &params)
	}
	if task.PipelineParams.Valid {
		overrides := map[string]interface{}{}
		if err := json.Unmarshal(task.PipelineParams.RawMessage, &overrides); err == nil {
			for k, v := range overrides {
				params[k] = v
			}
		}
	}
	return params
}

// --- publish policy ---

type policyMode string

const (
	policyImmediate policyMode = "immediate"
	policySlot      policyMode = "slot"
	policyDelay     policyMode = "fixed_delay"
)

type publishPolicy struct {
	Mode         policyMode `json:"mode"`
	DelayMinutes int        `json:"delay_minutes,omitempty"`
}

func parsePolicy(raw pqtype.NullRawMessage) publishPolicy {
	p := publishPolicy{Mode: policyImmediate}
	if raw.Valid {
		_ = json.Unmarshal(raw.RawMessage, &p)
		if p.Mode == "" {
			p.Mode = policyImmediate
		}
	}
	return p
}
