// path: internal/publisher/heap_test.go
package publisher

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQueueOrdersByTime(t *testing.T) {
	q := newQueue()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	late := uuid.New()
	early := uuid.New()
	mid := uuid.New()
	q.push(late, base.Add(15*time.Second))
	q.push(early, base.Add(5*time.Second))
	q.push(mid, base.Add(10*time.Second))

	due := q.popDue(base.Add(20*time.Second), 10)
	if len(due) != 3 {
		t.Fatalf("expected 3 due entries, got %d", len(due))
	}
	wantOrder := []uuid.UUID{early, mid, late}
	for i, e := range due {
		if e.id != wantOrder[i] {
			t.Errorf("position %d: got %s, want %s", i, e.id, wantOrder[i])
		}
	}
}

func TestQueueNothingBeforeItsTime(t *testing.T) {
	q := newQueue()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	q.push(uuid.New(), base.Add(30*time.Second))

	if due := q.popDue(base.Add(29*time.Second), 10); len(due) != 0 {
		t.Errorf("entry fired %d early", len(due))
	}
	if due := q.popDue(base.Add(30*time.Second), 10); len(due) != 1 {
		t.Errorf("entry did not fire at its time")
	}
}

func TestQueueLazyDeletion(t *testing.T) {
	q := newQueue()
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	keep := uuid.New()
	dead := uuid.New()
	q.push(dead, base.Add(time.Second))
	q.push(keep, base.Add(2*time.Second))
	q.remove(dead)

	if n := q.len(); n != 1 {
		t.Errorf("len = %d after lazy removal, want 1", n)
	}
	due := q.popDue(base.Add(5*time.Second), 10)
	if len(due) != 1 || due[0].id != keep {
		t.Errorf("cancelled entry escaped the heap: %v", due)
	}
}

func TestQueueTieBreaksOnID(t *testing.T) {
	q := newQueue()
	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	q.push(b, at)
	q.push(a, at)

	due := q.popDue(at, 10)
	if len(due) != 2 || due[0].id != a || due[1].id != b {
		t.Errorf("equal times should order by id: %v", due)
	}
}
