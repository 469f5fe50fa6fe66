// ============================================================================
// FILE: internal/trigger/evaluator.go
// PURPOSE: Scheduled-trigger evaluation loop creating auto-publish tasks
// ============================================================================

package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// Store is the slice of persistence the evaluator needs.
type Store interface {
	ListActiveScheduledConfigs(ctx context.Context) ([]models.PublishConfig, error)
	RecordConfigFire(ctx context.Context, id uuid.UUID, prev *time.Time, fire time.Time) error
	SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error
	CreateTask(ctx context.Context, t *models.AutoPublishTask) error
	NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error)
	BindSlotToTask(ctx context.Context, slotID, taskID uuid.UUID) error
	UpdateTaskSlot(ctx context.Context, taskID, slotID, accountID uuid.UUID) error
}

// Evaluator walks active scheduled configs on a fixed cadence and enqueues
// one auto-publish task per due fire. All writes go through guarded store
// updates, so running two evaluators is safe.
type Evaluator struct {
	store    Store
	logger   common.Logger
	clock    common.Clock
	interval time.Duration
	stopChan chan struct{}
}

// NewEvaluator creates the trigger evaluation processor.
func NewEvaluator(st Store, logger common.Logger, clock common.Clock, interval time.Duration) *Evaluator {
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return &Evaluator{
		store:    st,
		logger:   logger,
		clock:    clock,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Name returns the processor name.
func (e *Evaluator) Name() string { return "TriggerEvaluator" }

// Run starts the evaluation loop.
func (e *Evaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopChan:
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Stop halts the loop.
func (e *Evaluator) Stop(ctx context.Context) error {
	close(e.stopChan)
	return nil
}

// Tick evaluates every active scheduled config once.
func (e *Evaluator) Tick(ctx context.Context) {
	now := e.clock.Now()
	configs, err := e.store.ListActiveScheduledConfigs(ctx)
	if err != nil {
		e.logger.Error(fmt.Sprintf("Trigger tick failed to list configs: %v", err))
		return
	}
	for i := range configs {
		if err := e.evaluate(ctx, &configs[i], now); err != nil {
			e.logger.Error(fmt.Sprintf("Trigger evaluation failed for config %s: %v", configs[i].ID, err))
		}
	}
}

func (e *Evaluator) evaluate(ctx context.Context, cfg *models.PublishConfig, now time.Time) error {
	if !cfg.TriggerConfig.Valid {
		return common.BadRequest("trigger_config_missing", "scheduled config has no trigger_config")
	}
	sched, err := ParseSchedule(cfg.TriggerConfig.RawMessage)
	if err != nil {
		return err
	}

	after := cfg.CreatedAt.UTC()
	if cfg.LastFire != nil {
		after = cfg.LastFire.UTC()
	}
	due := sched.LatestDue(after, now)
	if due == nil {
		return nil
	}

	// The compare-and-set on last_fire is what keeps a second evaluator from
	// enqueueing the same fire.
	if err := e.store.RecordConfigFire(ctx, cfg.ID, cfg.LastFire, *due); err != nil {
		if appErr, ok := common.AsAppError(err); ok && appErr.Kind == common.KindConflict {
			return nil
		}
		return err
	}

	task := &models.AutoPublishTask{
		ConfigID:       cfg.ID,
		GroupID:        cfg.GroupID,
		PipelineID:     cfg.PipelineID,
		StrategyID:     cfg.StrategyID,
		PipelineStatus: models.PipelinePending,
		PublishStatus:  models.PublishPending,
		PipelineParams: cfg.PipelineParams,
		Priority:       cfg.Priority,
		ScheduledAt:    *due,
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		return err
	}

	// Reserve the next ring slot when the day has one; tasks without a slot
	// still run, they just publish per policy instead of slot time.
	slot, err := e.store.NextPendingSlot(ctx, cfg.ID, now)
	if err == nil && slot != nil {
		if err := e.store.BindSlotToTask(ctx, slot.ID, task.ID); err == nil {
			task.SlotID = &slot.ID
			task.AccountID = &slot.AccountID
			if err := e.store.UpdateTaskSlot(ctx, task.ID, slot.ID, slot.AccountID); err != nil {
				e.logger.Warn(fmt.Sprintf("Failed to denormalize slot onto task %s: %v", task.ID, err))
			}
		}
	}

	if sched.Type == ScheduleOnce {
		if err := e.store.SetConfigActive(ctx, cfg.ID, false); err != nil {
			e.logger.Warn(fmt.Sprintf("Failed to deactivate once config %s: %v", cfg.ID, err))
		}
	}

	e.logger.Info(fmt.Sprintf("Trigger fired for config %s at %s (task %s)",
		cfg.Name, due.Format(time.RFC3339), task.ID))
	return nil
}

// NextFireTime computes the next fire instant for a config without
// mutating anything. Backs the test-next-fire-time endpoint.
func NextFireTime(cfg *models.PublishConfig, now time.Time) (time.Time, error) {
	if !cfg.TriggerConfig.Valid {
		return time.Time{}, common.BadRequest("trigger_config_missing", "config has no trigger_config")
	}
	sched, err := ParseSchedule(cfg.TriggerConfig.RawMessage)
	if err != nil {
		return time.Time{}, err
	}
	after := cfg.CreatedAt.UTC()
	if cfg.LastFire != nil {
		after = cfg.LastFire.UTC()
	}
	if due := sched.LatestDue(after, now); due != nil {
		return *due, nil
	}
	next := sched.NextAfter(after)
	if next.IsZero() {
		return time.Time{}, common.Conflict("schedule_exhausted", "schedule has no further occurrence")
	}
	return next, nil
}
