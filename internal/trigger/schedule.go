// ============================================================================
// FILE: internal/trigger/schedule.go
// PURPOSE: Tagged schedule variants and next-fire computation
// ============================================================================

package trigger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// ScheduleType discriminates the stored trigger_config JSON.
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleCron     ScheduleType = "cron"
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleMonthly  ScheduleType = "monthly"
	ScheduleOnce     ScheduleType = "once"
)

// rawSchedule is the wire shape of trigger_config for scheduled triggers.
type rawSchedule struct {
	ScheduleType         ScheduleType `json:"schedule_type"`
	ScheduleInterval     int          `json:"schedule_interval,omitempty"`
	ScheduleIntervalUnit string       `json:"schedule_interval_unit,omitempty"`
	ScheduleCron         string       `json:"schedule_cron,omitempty"`
	ScheduleTime         string       `json:"schedule_time,omitempty"`
	ScheduleDays         []int        `json:"schedule_days,omitempty"`
	ScheduleDates        []int        `json:"schedule_dates,omitempty"`
	ScheduledTime        string       `json:"scheduled_time,omitempty"`
}

// Schedule is one parsed trigger variant. Occurrence computation is a total
// function for every variant; all times are UTC.
type Schedule struct {
	Type ScheduleType

	Interval time.Duration
	cronExpr cron.Schedule
	CronSpec string

	Hour   int
	Minute int

	DaysOfWeek  []int // 0 = Sunday
	DaysOfMonth []int // 1..31, nonexistent days skip the month

	Once time.Time
}

// ParseSchedule decodes and validates a trigger_config document.
func ParseSchedule(raw []byte) (*Schedule, error) {
	if len(raw) == 0 {
		return nil, common.BadRequest("trigger_config_required", "trigger_config must not be empty")
	}
	var r rawSchedule
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, common.BadRequest("trigger_config_invalid", "trigger_config is not valid JSON")
	}

	s := &Schedule{Type: r.ScheduleType}
	switch r.ScheduleType {
	case ScheduleInterval:
		if r.ScheduleInterval <= 0 {
			return nil, common.BadRequest("interval_invalid", "schedule_interval must be positive")
		}
		switch r.ScheduleIntervalUnit {
		case "minutes":
			s.Interval = time.Duration(r.ScheduleInterval) * time.Minute
		case "hours":
			s.Interval = time.Duration(r.ScheduleInterval) * time.Hour
		case "days":
			s.Interval = time.Duration(r.ScheduleInterval) * 24 * time.Hour
		default:
			return nil, common.BadRequest("interval_unit_invalid", "schedule_interval_unit must be minutes, hours or days")
		}

	case ScheduleCron:
		expr := strings.ReplaceAll(r.ScheduleCron, "?", "*")
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return nil, common.BadRequest("cron_invalid", fmt.Sprintf("invalid cron expression %q: %v", r.ScheduleCron, err))
		}
		s.cronExpr = sched
		s.CronSpec = r.ScheduleCron

	case ScheduleDaily:
		if err := s.setTime(r.ScheduleTime); err != nil {
			return nil, err
		}

	case ScheduleWeekly:
		if err := s.setTime(r.ScheduleTime); err != nil {
			return nil, err
		}
		if len(r.ScheduleDays) == 0 {
			return nil, common.BadRequest("weekly_days_required", "schedule_days must not be empty")
		}
		for _, d := range r.ScheduleDays {
			if d < 0 || d > 6 {
				return nil, common.BadRequest("weekly_day_invalid", "schedule_days values must be in 0..6")
			}
		}
		s.DaysOfWeek = append([]int(nil), r.ScheduleDays...)
		sort.Ints(s.DaysOfWeek)

	case ScheduleMonthly:
		if err := s.setTime(r.ScheduleTime); err != nil {
			return nil, err
		}
		if len(r.ScheduleDates) == 0 {
			return nil, common.BadRequest("monthly_dates_required", "schedule_dates must not be empty")
		}
		for _, d := range r.ScheduleDates {
			if d < 1 || d > 31 {
				return nil, common.BadRequest("monthly_date_invalid", "schedule_dates values must be in 1..31")
			}
		}
		s.DaysOfMonth = append([]int(nil), r.ScheduleDates...)
		sort.Ints(s.DaysOfMonth)

	case ScheduleOnce:
		at, err := time.Parse(time.RFC3339, r.ScheduledTime)
		if err != nil {
			return nil, common.BadRequest("once_time_invalid", "scheduled_time must be RFC 3339")
		}
		s.Once = at.UTC()

	default:
		return nil, common.BadRequest("schedule_type_invalid", fmt.Sprintf("unknown schedule_type %q", r.ScheduleType))
	}
	return s, nil
}

func (s *Schedule) setTime(v string) error {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return common.BadRequest("time_invalid", "schedule_time must be HH:MM")
	}
	s.Hour, s.Minute = t.Hour(), t.Minute()
	return nil
}

// NextAfter returns the smallest occurrence strictly after t, or the zero
// time when the schedule has no further occurrence (exhausted once).
func (s *Schedule) NextAfter(t time.Time) time.Time {
	t = t.UTC()
	switch s.Type {
	case ScheduleInterval:
		return t.Add(s.Interval)
	case ScheduleCron:
		return s.cronExpr.Next(t).UTC()
	case ScheduleDaily:
		c := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
		if !c.After(t) {
			c = c.AddDate(0, 0, 1)
		}
		return c
	case ScheduleWeekly:
		for add := 0; add <= 7; add++ {
			day := t.AddDate(0, 0, add)
			c := time.Date(day.Year(), day.Month(), day.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
			if !c.After(t) {
				continue
			}
			for _, w := range s.DaysOfWeek {
				if int(c.Weekday()) == w {
					return c
				}
			}
		}
		return time.Time{}
	case ScheduleMonthly:
		// Search up to 13 months so a 31st-only schedule always lands.
		for addMonth := 0; addMonth <= 13; addMonth++ {
			base := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, addMonth, 0)
			for _, d := range s.DaysOfMonth {
				c := time.Date(base.Year(), base.Month(), d, s.Hour, s.Minute, 0, 0, time.UTC)
				if c.Month() != base.Month() {
					continue // day does not exist this month
				}
				if c.After(t) {
					return c
				}
			}
		}
		return time.Time{}
	case ScheduleOnce:
		if s.Once.After(t) {
			return s.Once
		}
		return time.Time{}
	}
	return time.Time{}
}

// LatestDue returns the most recent occurrence in (after, now], or nil when
// none is due. Skipped intermediate occurrences are not replayed; the config
// advances straight to the current fire.
func (s *Schedule) LatestDue(after, now time.Time) *time.Time {
	after, now = after.UTC(), now.UTC()
	var due *time.Time
	cursor := after
	// A year of minutes bounds the scan for dense schedules.
	for i := 0; i < 525600; i++ {
		next := s.NextAfter(cursor)
		if next.IsZero() || next.After(now) {
			break
		}
		n := next
		due = &n
		cursor = next
	}
	return due
}
