// ============================================================================
// FILE: internal/ring/ring.go
// PURPOSE: Deterministic daily time-slot allocation across group accounts
// ============================================================================

package ring

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/models"
)

// Strategy selects how slot minutes are spread across the window.
type Strategy string

const (
	StrategyUniform Strategy = "uniform"
	StrategyRandom  Strategy = "random"
)

// Store is the slice of persistence the ring scheduler needs.
type Store interface {
	GetPublishConfig(ctx context.Context, id uuid.UUID) (*models.PublishConfig, error)
	ListActiveGroupAccounts(ctx context.Context, groupID uuid.UUID) ([]models.Account, error)
	UpsertRingSlots(ctx context.Context, slots []models.RingSlot) error
	ListRingSlots(ctx context.Context, configID uuid.UUID, date string) ([]models.RingSlot, error)
	NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error)
}

// Scheduler distributes a group's daily publications across a window.
type Scheduler struct {
	store  Store
	logger common.Logger
}

// NewScheduler creates a ring scheduler.
func NewScheduler(st Store, logger common.Logger) *Scheduler {
	return &Scheduler{store: st, logger: logger}
}

// GenerateSlots builds the day's slot plan for a config and upserts it.
// Regeneration with identical inputs is idempotent: pending slots keep their
// minutes, terminal slots are untouched.
func (s *Scheduler) GenerateSlots(ctx context.Context, configID uuid.UUID, date string, startHour, endHour int, strategy Strategy) ([]models.RingSlot, error) {
	if startHour >= endHour || startHour < 0 || endHour > 24 {
		return nil, common.BadRequest("bad_window", fmt.Sprintf("invalid window [%d, %d)", startHour, endHour))
	}
	if _, err := time.ParseInLocation("2006-01-02", date, time.UTC); err != nil {
		return nil, common.BadRequest("bad_date", "target_date must be YYYY-MM-DD")
	}
	if strategy == "" {
		strategy = StrategyUniform
	}
	if strategy != StrategyUniform && strategy != StrategyRandom {
		return nil, common.BadRequest("bad_strategy", "strategy must be uniform or random")
	}

	cfg, err := s.store.GetPublishConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.store.ListActiveGroupAccounts(ctx, cfg.GroupID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, common.BadRequest("empty_group", "config group has no active accounts")
	}

	minutes := SlotMinutes(len(accounts), startHour, endHour, strategy, Seed(configID, date))

	slots := make([]models.RingSlot, 0, len(minutes))
	for i, m := range minutes {
		abs := startHour*60 + m
		slots = append(slots, models.RingSlot{
			ConfigID:   configID,
			AccountID:  accounts[i].ID,
			SlotDate:   date,
			SlotHour:   abs / 60,
			SlotMinute: abs % 60,
			SlotIndex:  i,
			Status:     models.SlotPending,
		})
	}

	if err := s.store.UpsertRingSlots(ctx, slots); err != nil {
		return nil, err
	}
	s.logger.Info(fmt.Sprintf("Generated %d ring slots for config %s on %s", len(slots), configID, date))
	return s.store.ListRingSlots(ctx, configID, date)
}

// NextPendingSlot returns the earliest eligible slot at or after now.
func (s *Scheduler) NextPendingSlot(ctx context.Context, configID uuid.UUID, now time.Time) (*models.RingSlot, error) {
	return s.store.NextPendingSlot(ctx, configID, now)
}

// SlotMinutes places n slots inside [startHour, endHour) and returns each
// slot's offset in minutes from the window start, index-aligned with the
// group's account order. When n exceeds the window's minutes the ring is
// clamped to one slot per minute and truncated.
func SlotMinutes(n, startHour, endHour int, strategy Strategy, seed int64) []int {
	total := (endHour - startHour) * 60
	if n > total {
		n = total
	}
	out := make([]int, n)

	switch strategy {
	case StrategyRandom:
		// Partial Fisher-Yates over [0, total) seeded from (config, date)
		// so regeneration draws the same distinct minutes.
		rng := rand.New(rand.NewSource(seed))
		pool := make([]int, total)
		for i := range pool {
			pool[i] = i
		}
		for i := 0; i < n; i++ {
			j := i + rng.Intn(total-i)
			pool[i], pool[j] = pool[j], pool[i]
			out[i] = pool[i]
		}
	default:
		step := total / n
		for i := 0; i < n; i++ {
			out[i] = i * step
		}
	}
	return out
}

// Seed derives the deterministic RNG seed for a (config, date) pair.
func Seed(configID uuid.UUID, date string) int64 {
	h := fnv.New64a()
	h.Write([]byte(configID.String()))
	h.Write([]byte("|"))
	h.Write([]byte(date))
	return int64(h.Sum64())
}
