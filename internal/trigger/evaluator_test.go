// path: internal/trigger/evaluator_test.go
package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// fakeEvalStore implements Store in memory.
type fakeEvalStore struct {
	configs []models.PublishConfig
	tasks   []models.AutoPublishTask
	slots   []models.RingSlot
}

func (f *fakeEvalStore) ListActiveScheduledConfigs(ctx context.Context) ([]models.PublishConfig, error) {
	var out []models.PublishConfig
	for _, c := range f.configs {
		if c.Active && c.TriggerKind == models.TriggerScheduled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEvalStore) RecordConfigFire(ctx context.Context, id uuid.UUID, prev *time.Time, fire time.Time) error {
	for i := range f.configs {
		if f.configs[i].ID != id {
			continue
		}
		current := f.configs[i].LastFire
		if (prev == nil) != (current == nil) {
			return common.Conflict("config_fire_conflict", "last_fire advanced concurrently")
		}
		if prev != nil && !prev.Equal(*current) {
			return common.Conflict("config_fire_conflict", "last_fire advanced concurrently")
		}
		utc := fire.UTC()
		f.configs[i].LastFire = &utc
		return nil
	}
	return common.NotFound("config_not_found", "missing config")
}

func (f *fakeEvalStore) SetConfigActive(ctx context.Context, id uuid.UUID, active bool) error {
	for i := range f.configs {
		if f.configs[i].ID == id {
			f.configs[i].Active = active
			return nil
		}
	}
	return common.NotFound("config_not_found", "missing config")
}

func (f *fakeEvalStore) CreateTask(ctx context.Context, t *models.AutoPublishTask) error {
	t.ID = uuid.New()
	f.tasks = append(f.tasks, *t)
	return nil
}

func (f *fakeEvalStore) NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error) {
	for i := range f.slots {
		s := f.slots[i]
		if s.ConfigID == configID && s.Status == models.SlotPending && !s.SlotTime().Before(now) {
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeEvalStore) BindSlotToTask(ctx context.Context, slotID, taskID uuid.UUID) error {
	for i := range f.slots {
		if f.slots[i].ID == slotID && f.slots[i].Status == models.SlotPending {
			f.slots[i].Status = models.SlotScheduled
			f.slots[i].TaskID = &taskID
			return nil
		}
	}
	return common.Conflict("slot_not_pending", "slot is not pending")
}

func (f *fakeEvalStore) UpdateTaskSlot(ctx context.Context, taskID, slotID, accountID uuid.UUID) error {
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks[i].SlotID = &slotID
			f.tasks[i].AccountID = &accountID
		}
	}
	return nil
}

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time { return c.now }

func newTestEvaluator(st Store, clock common.Clock) *Evaluator {
	return NewEvaluator(st, testLogger{}, clock, time.Minute)
}

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

func rawJSON(s string) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: []byte(s), Valid: true}
}

func TestDailyScheduleFiresOncePerDay(t *testing.T) {
	st := &fakeEvalStore{configs: []models.PublishConfig{{
		ID:            uuid.New(),
		Name:          "daily-10",
		GroupID:       uuid.New(),
		PipelineID:    "story",
		TriggerKind:   models.TriggerScheduled,
		TriggerConfig: rawJSON(`{"schedule_type":"daily","schedule_time":"10:00"}`),
		Priority:      50,
		Active:        true,
		CreatedAt:     ts(t, "2026-03-02T09:00:00Z"),
	}}}
	clock := &tickClock{}
	eval := newTestEvaluator(st, clock)
	ctx := context.Background()

	for _, at := range []string{
		"2026-03-02T09:59:50Z",
		"2026-03-02T10:00:05Z",
		"2026-03-02T10:00:35Z",
		"2026-03-03T10:00:05Z",
	} {
		clock.now = ts(t, at)
		eval.Tick(ctx)
	}

	if len(st.tasks) != 2 {
		t.Fatalf("expected exactly 2 tasks, got %d", len(st.tasks))
	}
	if !st.tasks[0].ScheduledAt.Equal(ts(t, "2026-03-02T10:00:00Z")) {
		t.Errorf("first task scheduled at %s, want today 10:00", st.tasks[0].ScheduledAt)
	}
	if !st.tasks[1].ScheduledAt.Equal(ts(t, "2026-03-03T10:00:00Z")) {
		t.Errorf("second task scheduled at %s, want tomorrow 10:00", st.tasks[1].ScheduledAt)
	}
}

func TestIntervalScheduleRespectsLastFire(t *testing.T) {
	lastFire := ts(t, "2026-03-02T12:00:00Z")
	st := &fakeEvalStore{configs: []models.PublishConfig{{
		ID:            uuid.New(),
		Name:          "every-2h",
		GroupID:       uuid.New(),
		PipelineID:    "story",
		TriggerKind:   models.TriggerScheduled,
		TriggerConfig: rawJSON(`{"schedule_type":"interval","schedule_interval":2,"schedule_interval_unit":"hours"}`),
		Active:        true,
		LastFire:      &lastFire,
		CreatedAt:     ts(t, "2026-03-01T00:00:00Z"),
	}}}
	clock := &tickClock{}
	eval := newTestEvaluator(st, clock)
	ctx := context.Background()

	for _, tc := range []struct {
		at        string
		wantTasks int
	}{
		{"2026-03-02T13:00:00Z", 0},
		{"2026-03-02T13:59:59Z", 0},
		{"2026-03-02T14:00:01Z", 1},
	} {
		clock.now = ts(t, tc.at)
		eval.Tick(ctx)
		if len(st.tasks) != tc.wantTasks {
			t.Fatalf("at %s: expected %d tasks, got %d", tc.at, tc.wantTasks, len(st.tasks))
		}
	}
	if !st.tasks[0].ScheduledAt.Equal(ts(t, "2026-03-02T14:00:00Z")) {
		t.Errorf("task scheduled at %s, want 14:00:00", st.tasks[0].ScheduledAt)
	}
}

func TestOnceConfigSelfDeactivates(t *testing.T) {
	st := &fakeEvalStore{configs: []models.PublishConfig{{
		ID:            uuid.New(),
		Name:          "one-shot",
		GroupID:       uuid.New(),
		PipelineID:    "story",
		TriggerKind:   models.TriggerScheduled,
		TriggerConfig: rawJSON(`{"schedule_type":"once","scheduled_time":"2026-03-02T15:00:00Z"}`),
		Active:        true,
		CreatedAt:     ts(t, "2026-03-02T09:00:00Z"),
	}}}
	clock := &tickClock{now: ts(t, "2026-03-02T15:00:30Z")}
	eval := newTestEvaluator(st, clock)

	eval.Tick(context.Background())
	eval.Tick(context.Background())

	if len(st.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(st.tasks))
	}
	if st.configs[0].Active {
		t.Error("once config should deactivate after firing")
	}
}

func TestTriggerBindsPendingSlot(t *testing.T) {
	configID := uuid.New()
	accountID := uuid.New()
	st := &fakeEvalStore{
		configs: []models.PublishConfig{{
			ID:            configID,
			Name:          "with-slot",
			GroupID:       uuid.New(),
			PipelineID:    "story",
			TriggerKind:   models.TriggerScheduled,
			TriggerConfig: rawJSON(`{"schedule_type":"daily","schedule_time":"10:00"}`),
			Active:        true,
			CreatedAt:     ts(t, "2026-03-02T00:00:00Z"),
		}},
		slots: []models.RingSlot{{
			ID:         uuid.New(),
			ConfigID:   configID,
			AccountID:  accountID,
			SlotDate:   "2026-03-02",
			SlotHour:   11,
			SlotMinute: 0,
			Status:     models.SlotPending,
		}},
	}
	clock := &tickClock{now: ts(t, "2026-03-02T10:00:10Z")}
	eval := newTestEvaluator(st, clock)
	eval.Tick(context.Background())

	if len(st.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(st.tasks))
	}
	if st.slots[0].Status != models.SlotScheduled {
		t.Errorf("slot status = %s, want scheduled", st.slots[0].Status)
	}
	if st.tasks[0].AccountID == nil || *st.tasks[0].AccountID != accountID {
		t.Error("task should carry the bound slot's account")
	}
}
