package workflow

import (
	"container/heap"
	"time"

	"recap/internal/queue"
)

// QueuedUnit is a runnable job waiting for a free slot.
type QueuedUnit struct {
	JobID      int64          `json:"job_id"`
	Priority   queue.Priority `json:"priority"`
	Retries    int            `json:"retries"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	NotBefore  time.Time      `json:"not_before"`

	index int
}

// before orders units by priority, then enqueue time, then id.
func (u *QueuedUnit) before(other *QueuedUnit) bool {
	if u.Priority != other.Priority {
		return u.Priority > other.Priority
	}
	if !u.EnqueuedAt.Equal(other.EnqueuedAt) {
		return u.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return u.JobID < other.JobID
}

type unitHeap []*QueuedUnit

func (h unitHeap) Len() int           { return len(h) }
func (h unitHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h unitHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *unitHeap) Push(x any) {
	unit := x.(*QueuedUnit)
	unit.index = len(*h)
	*h = append(*h, unit)
}

func (h *unitHeap) Pop() any {
	old := *h
	n := len(old)
	unit := old[n-1]
	old[n-1] = nil
	unit.index = -1
	*h = old[:n-1]
	return unit
}

// runQueue is the priority-ordered set of units outside active execution.
// It is not safe for concurrent use; the scheduler guards it.
type runQueue struct {
	units unitHeap
	byID  map[int64]*QueuedUnit
}

func newRunQueue() *runQueue {
	return &runQueue{byID: make(map[int64]*QueuedUnit)}
}

// push adds unit unless its job is already queued.
func (q *runQueue) push(unit QueuedUnit) bool {
	if _, exists := q.byID[unit.JobID]; exists {
		return false
	}
	u := unit
	heap.Push(&q.units, &u)
	q.byID[u.JobID] = &u
	return true
}

// popReady removes up to n units whose NotBefore has passed, best first.
// Units still backing off stay queued.
func (q *runQueue) popReady(now time.Time, n int) []QueuedUnit {
	var (
		ready    []QueuedUnit
		deferred []*QueuedUnit
	)
	for len(ready) < n && q.units.Len() > 0 {
		unit := heap.Pop(&q.units).(*QueuedUnit)
		if unit.NotBefore.After(now) {
			deferred = append(deferred, unit)
			continue
		}
		delete(q.byID, unit.JobID)
		ready = append(ready, *unit)
	}
	for _, unit := range deferred {
		heap.Push(&q.units, unit)
	}
	return ready
}

// remove drops the unit for id.
func (q *runQueue) remove(id int64) bool {
	unit, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.units, unit.index)
	delete(q.byID, id)
	return true
}

// waiting returns copies of the units whose NotBefore is still ahead of now.
func (q *runQueue) waiting(now time.Time) []QueuedUnit {
	var out []QueuedUnit
	for _, unit := range q.units {
		if unit.NotBefore.After(now) {
			out = append(out, *unit)
		}
	}
	return out
}

func (q *runQueue) contains(id int64) bool {
	_, ok := q.byID[id]
	return ok
}

func (q *runQueue) len() int {
	return q.units.Len()
}

func (q *runQueue) ids() []int64 {
	out := make([]int64, 0, len(q.byID))
	for id := range q.byID {
		out = append(out, id)
	}
	return out
}

// retryBackoff doubles base for every earlier attempt, capped at max.
func retryBackoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
