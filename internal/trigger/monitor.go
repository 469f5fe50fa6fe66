// ============================================================================
// FILE: internal/trigger/monitor.go
// PURPOSE: Monitor pollers watching external sources and emitting tasks
// ============================================================================

package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// SourceItem is one piece of content captured from an external source.
type SourceItem struct {
	ContentID string
	Title     string
	URL       string
	Payload   map[string]interface{}
}

// Source fetches fresh content for a monitor. Implementations live outside
// the core (platform crawlers, trend APIs); tests inject fakes.
type Source interface {
	Fetch(ctx context.Context, monitor *models.Monitor) ([]SourceItem, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, monitor *models.Monitor) ([]SourceItem, error)

// Fetch calls the function.
func (f SourceFunc) Fetch(ctx context.Context, monitor *models.Monitor) ([]SourceItem, error) {
	return f(ctx, monitor)
}

// MonitorStore is the slice of persistence the pollers need.
type MonitorStore interface {
	ListMonitors(ctx context.Context, activeOnly bool) ([]models.Monitor, error)
	TouchMonitorCheck(ctx context.Context, id uuid.UUID, at time.Time) error
	UpsertMonitorResult(ctx context.Context, r *models.MonitorResult) (bool, error)
	ListUnprocessedResults(ctx context.Context, monitorID uuid.UUID, limit int) ([]models.MonitorResult, error)
	ListConfigsForMonitor(ctx context.Context, monitorID uuid.UUID) ([]models.PublishConfig, error)
	CreateTasksForResult(ctx context.Context, result *models.MonitorResult, tasks []models.AutoPublishTask) error
}

// MonitorRunner drives one cooperative poller per active monitor. The
// monitor set is refreshed every refreshInterval so starts and stops via the
// API take effect without a restart.
type MonitorRunner struct {
	store  MonitorStore
	source Source
	cache  common.CacheService
	logger common.Logger
	clock  common.Clock

	refreshInterval time.Duration
	stopChan        chan struct{}

	mu      sync.Mutex
	pollers map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitorRunner creates the monitor polling processor. cache may be nil;
// it only accelerates duplicate detection.
func NewMonitorRunner(st MonitorStore, source Source, cache common.CacheService, logger common.Logger, clock common.Clock) *MonitorRunner {
	return &MonitorRunner{
		store:           st,
		source:          source,
		cache:           cache,
		logger:          logger,
		clock:           clock,
		refreshInterval: time.Minute,
		stopChan:        make(chan struct{}),
		pollers:         make(map[uuid.UUID]context.CancelFunc),
	}
}

// Name returns the processor name.
func (m *MonitorRunner) Name() string { return "MonitorRunner" }

// Run reconciles pollers against the active monitor set until stopped.
func (m *MonitorRunner) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	m.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			m.stopAll()
			return ctx.Err()
		case <-m.stopChan:
			m.stopAll()
			return nil
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

// Stop halts every poller and the reconcile loop.
func (m *MonitorRunner) Stop(ctx context.Context) error {
	close(m.stopChan)
	return nil
}

func (m *MonitorRunner) reconcile(ctx context.Context) {
	monitors, err := m.store.ListMonitors(ctx, true)
	if err != nil {
		m.logger.Error(fmt.Sprintf("Monitor reconcile failed: %v", err))
		return
	}

	active := make(map[uuid.UUID]models.Monitor, len(monitors))
	for _, mon := range monitors {
		active[mon.ID] = mon
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cancel := range m.pollers {
		if _, ok := active[id]; !ok {
			cancel()
			delete(m.pollers, id)
			m.logger.Info(fmt.Sprintf("Stopped poller for monitor %s", id))
		}
	}
	for id, mon := range active {
		if _, ok := m.pollers[id]; ok {
			continue
		}
		pollCtx, cancel := context.WithCancel(ctx)
		m.pollers[id] = cancel
		m.wg.Add(1)
		monitor := mon
		go func() {
			defer m.wg.Done()
			m.poll(pollCtx, monitor)
		}()
		m.logger.Info(fmt.Sprintf("Started poller for monitor %s (%s %s)", id, mon.MonitorType, mon.TargetIdentifier))
	}
}

func (m *MonitorRunner) stopAll() {
	m.mu.Lock()
	for id, cancel := range m.pollers {
		cancel()
		delete(m.pollers, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *MonitorRunner) poll(ctx context.Context, monitor models.Monitor) {
	interval := time.Duration(monitor.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Check(ctx, &monitor)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx, &monitor)
		}
	}
}

// Check performs one poll of a monitor: fetch, dedup, fan out.
func (m *MonitorRunner) Check(ctx context.Context, monitor *models.Monitor) {
	now := m.clock.Now()
	items, err := m.source.Fetch(ctx, monitor)
	if err != nil {
		m.logger.Warn(fmt.Sprintf("Monitor %s fetch failed: %v", monitor.ID, err))
		return
	}
	if err := m.store.TouchMonitorCheck(ctx, monitor.ID, now); err != nil {
		m.logger.Warn(fmt.Sprintf("Monitor %s touch failed: %v", monitor.ID, err))
	}

	for _, item := range items {
		if item.ContentID == "" {
			continue
		}
		if m.seenInCache(ctx, monitor.ID, item.ContentID) {
			continue
		}
		payload := pqtype.NullRawMessage{}
		if item.Payload != nil {
			if raw, err := json.Marshal(item.Payload); err == nil {
				payload = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
			}
		}
		if _, err := m.store.UpsertMonitorResult(ctx, &models.MonitorResult{
			MonitorID: monitor.ID,
			ContentID: item.ContentID,
			Title:     item.Title,
			URL:       item.URL,
			Payload:   payload,
		}); err != nil {
			m.logger.Warn(fmt.Sprintf("Monitor %s result upsert failed: %v", monitor.ID, err))
		}
	}

	m.fanOut(ctx, monitor, now)
}

// seenInCache consults the redis fast path; the unique index on
// (monitor_id, content_id) remains the authority.
func (m *MonitorRunner) seenInCache(ctx context.Context, monitorID uuid.UUID, contentID string) bool {
	if m.cache == nil {
		return false
	}
	key := fmt.Sprintf("monitor:seen:%s:%s", monitorID, contentID)
	set, err := m.cache.SetNX(ctx, key, "1", 24*time.Hour)
	if err != nil {
		return false
	}
	return !set
}

func (m *MonitorRunner) fanOut(ctx context.Context, monitor *models.Monitor, now time.Time) {
	results, err := m.store.ListUnprocessedResults(ctx, monitor.ID, 50)
	if err != nil {
		m.logger.Warn(fmt.Sprintf("Monitor %s result scan failed: %v", monitor.ID, err))
		return
	}
	if len(results) == 0 {
		return
	}
	configs, err := m.store.ListConfigsForMonitor(ctx, monitor.ID)
	if err != nil {
		m.logger.Warn(fmt.Sprintf("Monitor %s config lookup failed: %v", monitor.ID, err))
		return
	}

	for i := range results {
		result := results[i]
		tasks := make([]models.AutoPublishTask, 0, len(configs))
		for _, cfg := range configs {
			params := mergeSourceParams(cfg.PipelineParams, &result)
			tasks = append(tasks, models.AutoPublishTask{
				ConfigID:       cfg.ID,
				GroupID:        cfg.GroupID,
				PipelineID:     cfg.PipelineID,
				StrategyID:     cfg.StrategyID,
				PipelineStatus: models.PipelinePending,
				PublishStatus:  models.PublishPending,
				PipelineParams: params,
				Priority:       cfg.Priority,
				ScheduledAt:    now,
			})
		}
		if err := m.store.CreateTasksForResult(ctx, &result, tasks); err != nil {
			m.logger.Error(fmt.Sprintf("Monitor %s fan-out failed for %s: %v", monitor.ID, result.ContentID, err))
			continue
		}
		if len(tasks) > 0 {
			m.logger.Info(fmt.Sprintf("Monitor %s emitted %d tasks for content %s", monitor.ID, len(tasks), result.ContentID))
		}
	}
}

// mergeSourceParams layers the captured source content onto the config's
// pipeline params so pipelines can react to what was spotted.
func mergeSourceParams(base pqtype.NullRawMessage, result *models.MonitorResult) pqtype.NullRawMessage {
	params := map[string]interface{}{}
	if base.Valid {
		_ = json.Unmarshal(base.RawMessage, &params)
	}
	params["source_content_id"] = result.ContentID
	params["source_title"] = result.Title
	params["source_url"] = result.URL
	raw, err := json.Marshal(params)
	if err != nil {
		return base
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
