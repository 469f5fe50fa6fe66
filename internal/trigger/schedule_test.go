// path: internal/trigger/schedule_test.go
package trigger

import (
	"testing"
	"time"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test time %s: %v", value, err)
	}
	return parsed.UTC()
}

func TestParseSchedule_Invalid(t *testing.T) {
	cases := []string{
		``,
		`{"schedule_type":"interval","schedule_interval":0,"schedule_interval_unit":"hours"}`,
		`{"schedule_type":"interval","schedule_interval":5,"schedule_interval_unit":"weeks"}`,
		`{"schedule_type":"cron","schedule_cron":"not a cron"}`,
		`{"schedule_type":"cron","schedule_cron":"* * * *"}`,
		`{"schedule_type":"daily","schedule_time":"25:00"}`,
		`{"schedule_type":"weekly","schedule_days":[7],"schedule_time":"10:00"}`,
		`{"schedule_type":"weekly","schedule_days":[],"schedule_time":"10:00"}`,
		`{"schedule_type":"monthly","schedule_dates":[0],"schedule_time":"10:00"}`,
		`{"schedule_type":"once","scheduled_time":"tomorrow"}`,
		`{"schedule_type":"hourly"}`,
	}
	for _, raw := range cases {
		if _, err := ParseSchedule([]byte(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestCronNextFire_GoldenTable(t *testing.T) {
	cases := []struct {
		expr  string
		after string
		want  string
	}{
		{"*/15 * * * *", "2026-03-02T12:07:00Z", "2026-03-02T12:15:00Z"},
		{"*/15 * * * *", "2026-03-02T12:45:00Z", "2026-03-02T13:00:00Z"},
		{"0 10 * * *", "2026-03-02T09:59:59Z", "2026-03-02T10:00:00Z"},
		{"0 10 * * *", "2026-03-02T10:00:00Z", "2026-03-03T10:00:00Z"},
		{"30 8 1 * *", "2026-03-15T00:00:00Z", "2026-04-01T08:30:00Z"},
		{"0 0 * * 0", "2026-03-06T12:00:00Z", "2026-03-08T00:00:00Z"},
		{"0 12 * * ?", "2026-03-02T13:00:00Z", "2026-03-03T12:00:00Z"},
		{"5,35 9-17 * * 1-5", "2026-03-06T17:36:00Z", "2026-03-09T09:05:00Z"},
		{"0 0 29 2 *", "2027-03-01T00:00:00Z", "2028-02-29T00:00:00Z"},
	}
	for _, tc := range cases {
		sched, err := ParseSchedule([]byte(`{"schedule_type":"cron","schedule_cron":"` + tc.expr + `"}`))
		if err != nil {
			t.Fatalf("parse %q failed: %v", tc.expr, err)
		}
		got := sched.NextAfter(ts(t, tc.after))
		if !got.Equal(ts(t, tc.want)) {
			t.Errorf("cron %q after %s: got %s, want %s", tc.expr, tc.after, got, tc.want)
		}
	}
}

func TestIntervalNextAfter(t *testing.T) {
	sched, err := ParseSchedule([]byte(`{"schedule_type":"interval","schedule_interval":2,"schedule_interval_unit":"hours"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got := sched.NextAfter(ts(t, "2026-03-02T12:00:00Z"))
	if !got.Equal(ts(t, "2026-03-02T14:00:00Z")) {
		t.Errorf("got %s, want 14:00", got)
	}
}

func TestDailyLatestDue(t *testing.T) {
	sched, err := ParseSchedule([]byte(`{"schedule_type":"daily","schedule_time":"10:00"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	after := ts(t, "2026-03-02T09:00:00Z")

	if due := sched.LatestDue(after, ts(t, "2026-03-02T09:59:50Z")); due != nil {
		t.Errorf("expected no fire before 10:00, got %s", due)
	}
	due := sched.LatestDue(after, ts(t, "2026-03-02T10:00:05Z"))
	if due == nil || !due.Equal(ts(t, "2026-03-02T10:00:00Z")) {
		t.Errorf("expected fire at 10:00, got %v", due)
	}
	// After recording last_fire = 10:00, the same day is quiet.
	if due := sched.LatestDue(ts(t, "2026-03-02T10:00:00Z"), ts(t, "2026-03-02T10:00:35Z")); due != nil {
		t.Errorf("expected no second fire, got %s", due)
	}
	due = sched.LatestDue(ts(t, "2026-03-02T10:00:00Z"), ts(t, "2026-03-03T10:00:05Z"))
	if due == nil || !due.Equal(ts(t, "2026-03-03T10:00:00Z")) {
		t.Errorf("expected next-day fire at 10:00, got %v", due)
	}
}

func TestLatestDue_SkipsMissedTicks(t *testing.T) {
	sched, err := ParseSchedule([]byte(`{"schedule_type":"interval","schedule_interval":2,"schedule_interval_unit":"hours"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// last_fire 12:00, now 20:05: intermediate 14/16/18 fires are not
	// replayed, the config jumps to 20:00.
	due := sched.LatestDue(ts(t, "2026-03-02T12:00:00Z"), ts(t, "2026-03-02T20:05:00Z"))
	if due == nil || !due.Equal(ts(t, "2026-03-02T20:00:00Z")) {
		t.Errorf("expected single fire at 20:00, got %v", due)
	}
}

func TestWeeklyNextAfter(t *testing.T) {
	// 0 = Sunday, 3 = Wednesday
	sched, err := ParseSchedule([]byte(`{"schedule_type":"weekly","schedule_days":[0,3],"schedule_time":"08:30"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// 2026-03-02 is a Monday.
	got := sched.NextAfter(ts(t, "2026-03-02T09:00:00Z"))
	if !got.Equal(ts(t, "2026-03-04T08:30:00Z")) {
		t.Errorf("got %s, want Wednesday 08:30", got)
	}
	got = sched.NextAfter(ts(t, "2026-03-04T08:30:00Z"))
	if !got.Equal(ts(t, "2026-03-08T08:30:00Z")) {
		t.Errorf("got %s, want Sunday 08:30", got)
	}
}

func TestMonthlySkipsShortMonths(t *testing.T) {
	sched, err := ParseSchedule([]byte(`{"schedule_type":"monthly","schedule_dates":[31],"schedule_time":"06:00"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// April has 30 days; the 31st next lands in May.
	got := sched.NextAfter(ts(t, "2026-04-01T00:00:00Z"))
	if !got.Equal(ts(t, "2026-05-31T06:00:00Z")) {
		t.Errorf("got %s, want May 31 06:00", got)
	}
}

func TestOnceExhausts(t *testing.T) {
	sched, err := ParseSchedule([]byte(`{"schedule_type":"once","scheduled_time":"2026-03-02T15:00:00Z"}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got := sched.NextAfter(ts(t, "2026-03-02T14:00:00Z"))
	if !got.Equal(ts(t, "2026-03-02T15:00:00Z")) {
		t.Errorf("got %s, want 15:00", got)
	}
	if got := sched.NextAfter(ts(t, "2026-03-02T15:00:00Z")); !got.IsZero() {
		t.Errorf("expected exhausted schedule, got %s", got)
	}
}
