// path: internal/ring/ring_test.go
package ring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

// fakeRingStore mimics the unique-key upsert semantics of the real store.
type fakeRingStore struct {
	config   models.PublishConfig
	accounts []models.Account
	slots    map[string]models.RingSlot
}

func slotKey(s *models.RingSlot) string {
	return s.ConfigID.String() + s.AccountID.String() + s.SlotDate +
		time.Date(0, 1, 1, s.SlotHour, s.SlotMinute, 0, 0, time.UTC).Format("15:04")
}

func (f *fakeRingStore) GetPublishConfig(ctx context.Context, id uuid.UUID) (*models.PublishConfig, error) {
	if f.config.ID != id {
		return nil, common.NotFound("config_not_found", "missing config")
	}
	cfg := f.config
	return &cfg, nil
}

func (f *fakeRingStore) ListActiveGroupAccounts(ctx context.Context, groupID uuid.UUID) ([]models.Account, error) {
	return f.accounts, nil
}

func (f *fakeRingStore) UpsertRingSlots(ctx context.Context, slots []models.RingSlot) error {
	if f.slots == nil {
		f.slots = make(map[string]models.RingSlot)
	}
	for i := range slots {
		s := slots[i]
		if existing, ok := f.slots[slotKey(&s)]; ok {
			existing.SlotIndex = s.SlotIndex
			f.slots[slotKey(&s)] = existing
			continue
		}
		s.ID = uuid.New()
		f.slots[slotKey(&s)] = s
	}
	return nil
}

func (f *fakeRingStore) ListRingSlots(ctx context.Context, configID uuid.UUID, date string) ([]models.RingSlot, error) {
	var out []models.RingSlot
	for _, s := range f.slots {
		if s.ConfigID == configID && (date == "" || s.SlotDate == date) {
			out = append(out, s)
		}
	}
	// insertion order is lost in the map; order by slot time
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].SlotTime().Before(out[i].SlotTime()) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeRingStore) NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error) {
	var best *models.RingSlot
	for _, s := range f.slots {
		s := s
		if s.ConfigID != configID || s.Status != models.SlotPending || s.SlotTime().Before(now) {
			continue
		}
		if best == nil || s.SlotTime().Before(best.SlotTime()) {
			best = &s
		}
	}
	return best, nil
}

func newFakeRingStore(n int) *fakeRingStore {
	groupID := uuid.New()
	st := &fakeRingStore{
		config: models.PublishConfig{ID: uuid.New(), GroupID: groupID},
	}
	for i := 0; i < n; i++ {
		st.accounts = append(st.accounts, models.Account{ID: uuid.New(), Active: true})
	}
	return st
}

func TestSlotMinutesUniform(t *testing.T) {
	got := SlotMinutes(4, 8, 20, StrategyUniform, 0)
	want := []int{0, 180, 360, 540}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d at minute %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSlotMinutesRandomDeterministic(t *testing.T) {
	seed := Seed(uuid.MustParse("6f1b0a52-3f6e-4d7a-9a30-aaaaaaaaaaaa"), "2026-03-02")
	a := SlotMinutes(5, 8, 20, StrategyRandom, seed)
	b := SlotMinutes(5, 8, 20, StrategyRandom, seed)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("regeneration drew different minutes: %v vs %v", a, b)
		}
	}
	seen := make(map[int]bool)
	for _, m := range a {
		if m < 0 || m >= 720 {
			t.Errorf("minute %d outside window", m)
		}
		if seen[m] {
			t.Errorf("duplicate minute %d", m)
		}
		seen[m] = true
	}
}

func TestSlotMinutesClampsToWindow(t *testing.T) {
	got := SlotMinutes(100, 10, 11, StrategyUniform, 0)
	if len(got) != 60 {
		t.Errorf("expected clamp to 60 slots, got %d", len(got))
	}
}

func TestGenerateSlotsUniform(t *testing.T) {
	st := newFakeRingStore(4)
	s := NewScheduler(st, testLogger{})

	slots, err := s.GenerateSlots(context.Background(), st.config.ID, "2026-03-02", 8, 20, StrategyUniform)
	if err != nil {
		t.Fatalf("GenerateSlots failed: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	wantTimes := []string{"08:00", "11:00", "14:00", "17:00"}
	for i, slot := range slots {
		got := time.Date(0, 1, 1, slot.SlotHour, slot.SlotMinute, 0, 0, time.UTC).Format("15:04")
		if got != wantTimes[i] {
			t.Errorf("slot %d at %s, want %s", i, got, wantTimes[i])
		}
		if slot.AccountID != st.accounts[i].ID {
			t.Errorf("slot %d assigned out of account order", i)
		}
	}
}

func TestGenerateSlotsIdempotent(t *testing.T) {
	st := newFakeRingStore(3)
	s := NewScheduler(st, testLogger{})
	ctx := context.Background()

	first, err := s.GenerateSlots(ctx, st.config.ID, "2026-03-02", 8, 20, StrategyUniform)
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}

	// Resolve one slot, then regenerate: terminal slots stay untouched and
	// no duplicates appear.
	for key, slot := range st.slots {
		slot.Status = models.SlotCompleted
		st.slots[key] = slot
		break
	}
	second, err := s.GenerateSlots(ctx, st.config.ID, "2026-03-02", 8, 20, StrategyUniform)
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("regeneration changed slot count: %d vs %d", len(second), len(first))
	}
	completed := 0
	for _, slot := range second {
		if slot.Status == models.SlotCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("terminal slot was reset on regeneration")
	}
}

func TestGenerateSlotsRejectsBadWindow(t *testing.T) {
	st := newFakeRingStore(2)
	s := NewScheduler(st, testLogger{})

	if _, err := s.GenerateSlots(context.Background(), st.config.ID, "2026-03-02", 20, 8, StrategyUniform); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := s.GenerateSlots(context.Background(), st.config.ID, "03/02/2026", 8, 20, StrategyUniform); err == nil {
		t.Error("expected error for bad date format")
	}
	if _, err := s.GenerateSlots(context.Background(), st.config.ID, "2026-03-02", 8, 20, Strategy("spread")); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
