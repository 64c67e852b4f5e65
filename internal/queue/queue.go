// Package queue implements the Commit Queue (C6) and Task Queue (C7) of
// spec.md §4.6–4.7: a bounded blocking FIFO of candidate assertions feeding
// the single commit thread, and a bounded priority queue of inference
// tasks feeding the worker pool. Grounded on
// internal/core/spawn_queue.go's SpawnQueue: backpressure-aware Submit
// with an offer timeout, a priority-ordered drain, and occupancy
// thresholds that log warn/critical signals without ever refusing to keep
// accepting work.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"noema/internal/kb"
	"noema/internal/logging"
	"noema/internal/unify"
	"go.uber.org/zap"
)

// offerTimeout is the short timeout spec.md §4.6 gives producers offering
// to the Commit Queue before the candidate is shed.
const offerTimeout = 100 * time.Millisecond

// CommitQueue is a bounded blocking queue of PotentialAssertions, drained
// serially by exactly one commit thread (spec.md §4.8 threading model).
type CommitQueue struct {
	ch  chan kb.PotentialAssertion
	cap int
	log *zap.Logger
}

// NewCommitQueue constructs a CommitQueue with the given capacity
// (spec.md §6's COMMIT_QUEUE_CAPACITY, default 2^20).
func NewCommitQueue(capacity int) *CommitQueue {
	return &CommitQueue{
		ch:  make(chan kb.PotentialAssertion, capacity),
		cap: capacity,
		log: logging.Get(logging.CategoryQueue),
	}
}

// Offer attempts to enqueue pa, waiting up to offerTimeout before shedding
// it with a warning (spec.md §4.6 backpressure-by-shedding). Returns false
// if the candidate was dropped.
func (q *CommitQueue) Offer(pa kb.PotentialAssertion) bool {
	select {
	case q.ch <- pa:
		q.warnIfNearCapacity()
		return true
	default:
	}
	timer := time.NewTimer(offerTimeout)
	defer timer.Stop()
	select {
	case q.ch <- pa:
		q.warnIfNearCapacity()
		return true
	case <-timer.C:
		q.log.Warn("commit queue offer timed out, candidate dropped",
			zap.String("kif", pa.KIF.KIFString()))
		return false
	}
}

// Take blocks until a PotentialAssertion is available or ctx is done.
func (q *CommitQueue) Take(ctx context.Context) (kb.PotentialAssertion, bool) {
	select {
	case pa := <-q.ch:
		return pa, true
	case <-ctx.Done():
		return kb.PotentialAssertion{}, false
	}
}

// Len returns the current queue depth.
func (q *CommitQueue) Len() int { return len(q.ch) }

// Drain discards every currently-queued candidate, for spec.md §5's
// clear() ("flushes queues").
func (q *CommitQueue) Drain() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}

func (q *CommitQueue) warnIfNearCapacity() {
	occupancy := float64(len(q.ch)) / float64(q.cap)
	switch {
	case occupancy >= 0.98:
		q.log.Warn("commit queue at critical occupancy", zap.Float64("occupancy", occupancy))
	case occupancy >= 0.90:
		q.log.Warn("commit queue at warn occupancy", zap.Float64("occupancy", occupancy))
	}
}

// TaskKind distinguishes the two InferenceTask variants of spec.md §4.
type TaskKind int

const (
	MatchAntecedent TaskKind = iota
	ApplyOrderedRewrite
)

// Task is an InferenceTask: either a MatchAntecedent seed (rule, trigger
// assertion id, seed bindings) or an ApplyOrderedRewrite pair (rewrite-rule
// assertion id, target assertion id). Priority is computed by the caller
// per spec.md §4.7's per-kind averaging formula.
type Task struct {
	Kind     TaskKind
	Priority float64

	Rule         *kb.Rule
	TriggerID    kb.ID
	SeedBindings unify.Bindings

	RewriteRuleID kb.ID
	TargetID      kb.ID

	// TriggerClauseIndex is the index into Rule.Antecedents that TriggerID
	// already satisfies, seeding SeedBindings; MatchAntecedent execution
	// continues over the remaining clauses.
	TriggerClauseIndex int

	index int // heap bookkeeping
}

// taskHeap is a container/heap.Interface max-heap ordered by Priority
// descending (spec.md §4.7: "ordered by task priority descending").
type taskHeap []*Task

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].Priority > h[j].Priority }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *taskHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// TaskQueue is a bounded priority queue of inference tasks, drained
// concurrently by the inference worker pool (spec.md §4.7–4.8).
type TaskQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	h        taskHeap
	cap      int
	closed   bool
	log      *zap.Logger
}

// NewTaskQueue constructs a TaskQueue with the given capacity (spec.md
// §6's TASK_QUEUE_CAPACITY, default 2^20).
func NewTaskQueue(capacity int) *TaskQueue {
	q := &TaskQueue{cap: capacity, log: logging.Get(logging.CategoryQueue)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push enqueues task, dropping it with a warning if the queue is at
// capacity (the priority queue has no offer-timeout variant: a full task
// queue signals the engine is falling behind, so newest low-value work is
// shed rather than blocking the commit thread that feeds it indirectly).
func (q *TaskQueue) Push(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.h) >= q.cap {
		q.log.Warn("task queue full, task dropped", zap.Float64("priority", t.Priority))
		return false
	}
	heap.Push(&q.h, t)
	q.warnIfNearCapacityLocked()
	q.notEmpty.Signal()
	return true
}

// Take blocks until a task is available, the queue is closed, or ctx is
// done. Returns ok=false on close/cancellation.
func (q *TaskQueue) Take(ctx context.Context) (*Task, bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.h) == 0 && !q.closed {
		select {
		case <-ctx.Done():
			return nil, false
		default:
		}
		q.notEmpty.Wait()
	}
	if len(q.h) == 0 {
		return nil, false
	}
	t := heap.Pop(&q.h).(*Task)
	return t, true
}

// Close wakes all blocked Take callers. After Close, Take still returns
// any tasks queued before it, then returns ok=false once the queue is
// empty.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Len returns the current queue depth.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Drain discards every currently-queued task, for spec.md §5's clear()
// ("flushes queues").
func (q *TaskQueue) Drain() {
	q.mu.Lock()
	q.h = nil
	q.mu.Unlock()
}

func (q *TaskQueue) warnIfNearCapacityLocked() {
	occupancy := float64(len(q.h)) / float64(q.cap)
	switch {
	case occupancy >= 0.90:
		q.log.Warn("task queue at critical occupancy", zap.Float64("occupancy", occupancy))
	case occupancy >= 0.50:
		q.log.Warn("task queue at warn occupancy", zap.Float64("occupancy", occupancy))
	}
}
