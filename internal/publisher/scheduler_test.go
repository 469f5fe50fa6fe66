// path: internal/publisher/scheduler_test.go
package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/adapters/upload"
	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakePubStore keeps publish rows in memory with CAS semantics matching the
// real store.
type fakePubStore struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.PublishTask
	accounts map[uuid.UUID]*models.Account
	statuses map[uuid.UUID]models.PublishPhase
}

func newFakePubStore() *fakePubStore {
	return &fakePubStore{
		rows:     make(map[uuid.UUID]*models.PublishTask),
		accounts: make(map[uuid.UUID]*models.Account),
		statuses: make(map[uuid.UUID]models.PublishPhase),
	}
}

func (f *fakePubStore) addAccount() uuid.UUID {
	id := uuid.New()
	f.accounts[id] = &models.Account{ID: id, DisplayName: "acct", ProfileRef: "profile-" + id.String(), Active: true}
	return id
}

func (f *fakePubStore) addScheduled(accountID uuid.UUID, at time.Time, retryCount int) *models.PublishTask {
	p := &models.PublishTask{
		ID:            uuid.New(),
		TaskID:        uuid.New(),
		AccountID:     accountID,
		Title:         "t",
		VideoRef:      "video.mp4",
		Privacy:       "public",
		Status:        models.PublishTaskScheduled,
		ScheduledTime: at.UTC(),
		IsScheduled:   true,
		RetryCount:    retryCount,
	}
	f.mu.Lock()
	f.rows[p.ID] = p
	f.mu.Unlock()
	return p
}

func (f *fakePubStore) ListScheduledPublishes(ctx context.Context) ([]models.PublishTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PublishTask
	for _, p := range f.rows {
		if p.Status == models.PublishTaskScheduled {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePubStore) PopDuePublish(ctx context.Context, now time.Time, limit int) ([]models.PublishTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PublishTask
	for _, p := range f.rows {
		if len(out) >= limit {
			break
		}
		if p.Status == models.PublishTaskScheduled && !p.ScheduledTime.After(now) {
			p.Status = models.PublishTaskUploading
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePubStore) MarkPublish(ctx context.Context, id uuid.UUID, status models.PublishState, result pqtype.NullRawMessage, videoID, url, errMsg, errCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return common.NotFound("publish_not_found", "missing row")
	}
	if p.Status != models.PublishTaskUploading {
		return common.Conflict("publish_not_uploading", "row is not uploading")
	}
	p.Status = status
	p.PlatformVideoID = videoID
	p.PlatformURL = url
	p.Error = errMsg
	p.ErrorCode = errCode
	return nil
}

func (f *fakePubStore) SchedulePublish(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return common.NotFound("publish_not_found", "missing row")
	}
	if p.Status != models.PublishTaskPending {
		return common.Conflict("publish_not_pending", "row is not pending")
	}
	p.Status = models.PublishTaskScheduled
	p.ScheduledTime = at.UTC()
	return nil
}

func (f *fakePubStore) CancelPublish(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return common.NotFound("publish_not_found", "missing row")
	}
	if p.Status != models.PublishTaskPending && p.Status != models.PublishTaskScheduled {
		return common.Conflict("publish_not_cancellable", "row already started")
	}
	p.Status = models.PublishTaskCancelled
	return nil
}

func (f *fakePubStore) ReschedulePublish(ctx context.Context, id uuid.UUID, newTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return common.NotFound("publish_not_found", "missing row")
	}
	if p.Status != models.PublishTaskScheduled {
		return common.Conflict("publish_not_scheduled", "row is not reschedulable")
	}
	p.ScheduledTime = newTime.UTC()
	return nil
}

func (f *fakePubStore) ClonePublishForRetry(ctx context.Context, orig *models.PublishTask, scheduledAt time.Time) (*models.PublishTask, error) {
	clone := *orig
	clone.ID = uuid.New()
	clone.Status = models.PublishTaskScheduled
	clone.ScheduledTime = scheduledAt.UTC()
	clone.RetryCount = orig.RetryCount + 1
	clone.RetryOf = &orig.ID
	clone.Error = ""
	f.mu.Lock()
	f.rows[clone.ID] = &clone
	f.mu.Unlock()
	return &clone, nil
}

func (f *fakePubStore) SetTaskPublishStatus(ctx context.Context, taskID uuid.UUID, status models.PublishPhase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[taskID] = status
	return nil
}

func (f *fakePubStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, common.NotFound("account_not_found", "missing account")
}

func (f *fakePubStore) row(id uuid.UUID) models.PublishTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

// scriptedTransport replays queued results and records invocation times.
type scriptedTransport struct {
	mu      sync.Mutex
	script  []upload.Result
	calls   chan upload.Task
	clock   *fakeClock
	callsAt []time.Time
}

func (s *scriptedTransport) Upload(ctx context.Context, tasks []upload.Task) ([]upload.Result, error) {
	s.mu.Lock()
	var res upload.Result
	if len(s.script) > 0 {
		res = s.script[0]
		s.script = s.script[1:]
	} else {
		res = upload.Result{Status: upload.StatusSuccess, VideoID: "vid"}
	}
	res.UID = tasks[0].UID
	s.callsAt = append(s.callsAt, s.clock.Now())
	s.mu.Unlock()
	s.calls <- tasks[0]
	return []upload.Result{res}, nil
}

func newTestScheduler(st Store, tr upload.Transport, clock common.Clock) *Scheduler {
	return NewScheduler(st, tr, testLogger{}, clock, Options{
		Concurrency:   1,
		MaxRetries:    3,
		RetryBase:     time.Minute,
		UploadTimeout: time.Minute,
	})
}

func waitCall(t *testing.T, ch chan upload.Task) upload.Task {
	t.Helper()
	select {
	case task := <-ch:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for upload")
		return upload.Task{}
	}
}

func waitNoCall(t *testing.T, ch chan upload.Task) {
	t.Helper()
	select {
	case task := <-ch:
		t.Fatalf("unexpected upload of %s", task.UID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDeferredPublishesFireInOrder(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	st := newFakePubStore()
	account := st.addAccount()

	p10 := st.addScheduled(account, base.Add(10*time.Second), 0)
	p5 := st.addScheduled(account, base.Add(5*time.Second), 0)
	p15 := st.addScheduled(account, base.Add(15*time.Second), 0)

	tr := &scriptedTransport{calls: make(chan upload.Task, 10), clock: clock}
	s := newTestScheduler(st, tr, clock)
	ctx := context.Background()

	// Nothing may fire before its scheduled_time.
	clock.set(base.Add(4 * time.Second))
	s.dispatch(ctx)
	waitNoCall(t, tr.calls)

	clock.set(base.Add(6 * time.Second))
	s.dispatch(ctx)
	if got := waitCall(t, tr.calls); got.UID != p5.ID.String() {
		t.Errorf("first upload %s, want %s", got.UID, p5.ID)
	}

	clock.set(base.Add(11 * time.Second))
	s.dispatch(ctx)
	if got := waitCall(t, tr.calls); got.UID != p10.ID.String() {
		t.Errorf("second upload %s, want %s", got.UID, p10.ID)
	}

	clock.set(base.Add(16 * time.Second))
	s.dispatch(ctx)
	if got := waitCall(t, tr.calls); got.UID != p15.ID.String() {
		t.Errorf("third upload %s, want %s", got.UID, p15.ID)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	order := []uuid.UUID{p5.ID, p10.ID, p15.ID}
	for i, at := range tr.callsAt {
		if at.Before(st.row(order[i]).ScheduledTime) {
			t.Errorf("upload %d fired before its scheduled time", i)
		}
	}
}

func TestRetryAfterTransientUploadFailure(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	st := newFakePubStore()
	account := st.addAccount()
	orig := st.addScheduled(account, base, 0)

	tr := &scriptedTransport{
		calls: make(chan upload.Task, 10),
		clock: clock,
		script: []upload.Result{
			{Status: upload.StatusFail, Error: "rate limited", Retryable: true},
			{Status: upload.StatusSuccess, VideoID: "yt-123", URL: "https://example.invalid/watch?v=yt-123"},
		},
	}
	s := newTestScheduler(st, tr, clock)
	ctx := context.Background()

	s.dispatch(ctx)
	waitCall(t, tr.calls)
	waitForStatus(t, st, orig.ID, models.PublishTaskFailed)

	// The original row stays failed for audit; a clone carries retry_count 1
	// at now + 60s.
	clone := findClone(t, st, orig.ID)
	if clone.RetryCount != 1 {
		t.Errorf("clone retry_count = %d, want 1", clone.RetryCount)
	}
	if !clone.ScheduledTime.Equal(base.Add(time.Minute)) {
		t.Errorf("clone scheduled at %s, want now+60s", clone.ScheduledTime)
	}

	clock.set(base.Add(time.Minute))
	s.dispatch(ctx)
	waitCall(t, tr.calls)
	waitForStatus(t, st, clone.ID, models.PublishTaskSuccess)
	if got := st.row(clone.ID); got.PlatformVideoID != "yt-123" {
		t.Errorf("clone video id = %q", got.PlatformVideoID)
	}
}

func TestPermanentUploadFailureDoesNotRetry(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	st := newFakePubStore()
	account := st.addAccount()
	orig := st.addScheduled(account, base, 0)

	tr := &scriptedTransport{
		calls:  make(chan upload.Task, 10),
		clock:  clock,
		script: []upload.Result{{Status: upload.StatusFail, Error: "banned content", Retryable: false}},
	}
	s := newTestScheduler(st, tr, clock)

	s.dispatch(context.Background())
	waitCall(t, tr.calls)
	waitForStatus(t, st, orig.ID, models.PublishTaskFailed)

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.rows) != 1 {
		t.Errorf("permanent failure must not clone a retry, have %d rows", len(st.rows))
	}
}

func TestRetriesStopAtMaxRetries(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	st := newFakePubStore()
	account := st.addAccount()
	exhausted := st.addScheduled(account, base, 3)

	tr := &scriptedTransport{
		calls:  make(chan upload.Task, 10),
		clock:  clock,
		script: []upload.Result{{Status: upload.StatusFail, Error: "still down", Retryable: true}},
	}
	s := newTestScheduler(st, tr, clock)

	s.dispatch(context.Background())
	waitCall(t, tr.calls)
	waitForStatus(t, st, exhausted.ID, models.PublishTaskFailed)

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.rows) != 1 {
		t.Errorf("retry_count at limit must not clone again")
	}
}

func TestHeapRebuildFromStore(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	st := newFakePubStore()
	account := st.addAccount()
	for i := 0; i < 5; i++ {
		st.addScheduled(account, base.Add(time.Duration(i)*time.Minute), 0)
	}

	tr := &scriptedTransport{calls: make(chan upload.Task, 10), clock: clock}
	s := newTestScheduler(st, tr, clock)

	if err := s.rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if n := s.QueueLen(); n != 5 {
		t.Errorf("heap rebuilt with %d entries, want 5", n)
	}
}

func waitForStatus(t *testing.T, st *fakePubStore, id uuid.UUID, want models.PublishState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st.row(id).Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("row %s never reached %s (is %s)", id, want, st.row(id).Status)
}

func findClone(t *testing.T, st *fakePubStore, origID uuid.UUID) models.PublishTask {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st.mu.Lock()
		for _, p := range st.rows {
			if p.RetryOf != nil && *p.RetryOf == origID {
				clone := *p
				st.mu.Unlock()
				return clone
			}
		}
		st.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no retry clone of %s", origID)
	return models.PublishTask{}
}
