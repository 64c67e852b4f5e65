package kb

import "container/heap"

// evictionEntry is one id tracked in the ground_eviction_order priority
// queue of spec.md §4.5, ordered by current priority, lowest first.
type evictionEntry struct {
	id       ID
	priority float64
	index    int
}

// evictionQueue is a container/heap.Interface min-heap over evictionEntry,
// backing the KB's "poll the lowest-priority GROUND/SKOLEMIZED id" capacity
// enforcement step. Standard library heap is used: eviction ordering is a
// single-key comparator spec.md defines precisely, and no pack dependency
// offers a priority heap over an app-defined comparator more usably than
// container/heap.
type evictionQueue struct {
	entries []*evictionEntry
	byID    map[ID]*evictionEntry
}

func newEvictionQueue() *evictionQueue {
	return &evictionQueue{byID: make(map[ID]*evictionEntry)}
}

func (q *evictionQueue) Len() int { return len(q.entries) }

func (q *evictionQueue) Less(i, j int) bool {
	return q.entries[i].priority < q.entries[j].priority
}

func (q *evictionQueue) Swap(i, j int) {
	q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	q.entries[i].index = i
	q.entries[j].index = j
}

func (q *evictionQueue) Push(x interface{}) {
	e := x.(*evictionEntry)
	e.index = len(q.entries)
	q.entries = append(q.entries, e)
}

func (q *evictionQueue) Pop() interface{} {
	old := q.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	q.entries = old[:n-1]
	return e
}

// Add inserts id with priority into the queue.
func (q *evictionQueue) Add(id ID, priority float64) {
	e := &evictionEntry{id: id, priority: priority}
	q.byID[id] = e
	heap.Push(q, e)
}

// Remove deletes id from the queue, if present.
func (q *evictionQueue) Remove(id ID) {
	e, ok := q.byID[id]
	if !ok {
		return
	}
	delete(q.byID, id)
	heap.Remove(q, e.index)
}

// PeekLowest returns the id with the lowest priority currently queued, or
// ("", false) if the queue is empty.
func (q *evictionQueue) PeekLowest() (ID, bool) {
	if len(q.entries) == 0 {
		return "", false
	}
	return q.entries[0].id, true
}
