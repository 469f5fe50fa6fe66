// path: internal/trigger/monitor_test.go
package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/models"
)

// fakeMonitorStore implements MonitorStore with the same dedup semantics as
// the unique (monitor_id, content_id) index.
type fakeMonitorStore struct {
	monitors []models.Monitor
	configs  []models.PublishConfig
	results  map[string]*models.MonitorResult
	tasks    []models.AutoPublishTask
}

func newFakeMonitorStore() *fakeMonitorStore {
	return &fakeMonitorStore{results: make(map[string]*models.MonitorResult)}
}

func (f *fakeMonitorStore) ListMonitors(ctx context.Context, activeOnly bool) ([]models.Monitor, error) {
	return f.monitors, nil
}

func (f *fakeMonitorStore) TouchMonitorCheck(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (f *fakeMonitorStore) UpsertMonitorResult(ctx context.Context, r *models.MonitorResult) (bool, error) {
	key := r.MonitorID.String() + "|" + r.ContentID
	if _, ok := f.results[key]; ok {
		return false, nil
	}
	r.ID = uuid.New()
	f.results[key] = r
	return true, nil
}

func (f *fakeMonitorStore) ListUnprocessedResults(ctx context.Context, monitorID uuid.UUID, limit int) ([]models.MonitorResult, error) {
	var out []models.MonitorResult
	for _, r := range f.results {
		if r.MonitorID == monitorID && !r.Processed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeMonitorStore) ListConfigsForMonitor(ctx context.Context, monitorID uuid.UUID) ([]models.PublishConfig, error) {
	var out []models.PublishConfig
	for _, c := range f.configs {
		if c.MonitorID != nil && *c.MonitorID == monitorID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeMonitorStore) CreateTasksForResult(ctx context.Context, result *models.MonitorResult, tasks []models.AutoPublishTask) error {
	for _, r := range f.results {
		if r.ID == result.ID {
			if r.Processed {
				return nil
			}
			r.Processed = true
		}
	}
	f.tasks = append(f.tasks, tasks...)
	return nil
}

func TestMonitorCheckEmitsTaskPerConfigAtMostOnce(t *testing.T) {
	st := newFakeMonitorStore()
	monitorID := uuid.New()
	monitor := models.Monitor{
		ID:                   monitorID,
		MonitorType:          models.MonitorCompetitor,
		TargetIdentifier:     "UC123",
		CheckIntervalSeconds: 60,
		Active:               true,
	}
	st.monitors = append(st.monitors, monitor)
	for i := 0; i < 2; i++ {
		id := monitorID
		st.configs = append(st.configs, models.PublishConfig{
			ID:          uuid.New(),
			GroupID:     uuid.New(),
			PipelineID:  "react",
			TriggerKind: models.TriggerMonitor,
			MonitorID:   &id,
			Active:      true,
			Priority:    50,
		})
	}

	source := SourceFunc(func(ctx context.Context, m *models.Monitor) ([]SourceItem, error) {
		return []SourceItem{
			{ContentID: "vid-1", Title: "fresh upload", URL: "https://example.invalid/v/1"},
		}, nil
	})
	clock := &tickClock{now: ts(t, "2026-03-02T12:00:00Z")}
	runner := NewMonitorRunner(st, source, nil, testLogger{}, clock)

	// Two polls of the same content fan out exactly once per config.
	runner.Check(context.Background(), &monitor)
	runner.Check(context.Background(), &monitor)

	if len(st.tasks) != 2 {
		t.Fatalf("expected one task per config, got %d", len(st.tasks))
	}
	seen := map[uuid.UUID]bool{}
	for _, task := range st.tasks {
		if seen[task.ConfigID] {
			t.Errorf("config %s got the same content twice", task.ConfigID)
		}
		seen[task.ConfigID] = true
		if !task.PipelineParams.Valid {
			t.Error("task should carry source params")
		}
	}
}

func TestMonitorNewContentStillFlows(t *testing.T) {
	st := newFakeMonitorStore()
	monitorID := uuid.New()
	monitor := models.Monitor{ID: monitorID, MonitorType: models.MonitorTrending, TargetIdentifier: "gaming", Active: true}
	st.monitors = append(st.monitors, monitor)
	id := monitorID
	st.configs = append(st.configs, models.PublishConfig{
		ID: uuid.New(), GroupID: uuid.New(), PipelineID: "react",
		TriggerKind: models.TriggerMonitor, MonitorID: &id, Active: true,
	})

	round := 0
	source := SourceFunc(func(ctx context.Context, m *models.Monitor) ([]SourceItem, error) {
		round++
		return []SourceItem{{ContentID: "vid-" + string(rune('0'+round))}}, nil
	})
	clock := &tickClock{now: ts(t, "2026-03-02T12:00:00Z")}
	runner := NewMonitorRunner(st, source, nil, testLogger{}, clock)

	runner.Check(context.Background(), &monitor)
	runner.Check(context.Background(), &monitor)

	if len(st.tasks) != 2 {
		t.Fatalf("two distinct contents should yield two tasks, got %d", len(st.tasks))
	}
}
