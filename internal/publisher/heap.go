// path: internal/publisher/heap.go
package publisher

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

// entry is one deferred publish in the queue.
type entry struct {
	id uuid.UUID
	at time.Time
}

// entryHeap orders by (scheduled_time, publish_id).
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id.String() < h[j].id.String()
	}
	return h[i].at.Before(h[j].at)
}
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// queue is the min-heap with lazy deletion: cancelled ids stay in the heap
// and are skipped on pop, since in-place removal from a binary heap is O(n).
type queue struct {
	entries entryHeap
	dead    map[uuid.UUID]bool
}

func newQueue() *queue {
	return &queue{dead: make(map[uuid.UUID]bool)}
}

func (q *queue) push(id uuid.UUID, at time.Time) {
	delete(q.dead, id)
	heap.Push(&q.entries, entry{id: id, at: at.UTC()})
}

func (q *queue) remove(id uuid.UUID) {
	q.dead[id] = true
}

// head returns the next live entry without popping, discarding dead ones.
func (q *queue) head() (entry, bool) {
	for q.entries.Len() > 0 {
		e := q.entries[0]
		if q.dead[e.id] {
			heap.Pop(&q.entries)
			delete(q.dead, e.id)
			continue
		}
		return e, true
	}
	return entry{}, false
}

// popDue removes and returns live entries whose time has come.
func (q *queue) popDue(now time.Time, limit int) []entry {
	var due []entry
	for len(due) < limit {
		e, ok := q.head()
		if !ok || e.at.After(now) {
			break
		}
		heap.Pop(&q.entries)
		due = append(due, e)
	}
	return due
}

func (q *queue) len() int {
	return q.entries.Len() - len(q.dead)
}
