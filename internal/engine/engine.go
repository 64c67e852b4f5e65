// Package engine implements the Reasoner Engine (C8) of spec.md §4.8: the
// commit thread and inference worker pool, rule installation, post-commit
// task generation (rule-match, rewrite, universal instantiation),
// skolemization, logical simplification, and depth/weight-bounded
// derivation. Grounded on internal/core/spawn_queue.go's worker-pool
// lifecycle (Start/Stop with a join timeout, a shutdown channel, priority
// work draining) generalized from shard-spawn requests to inference tasks,
// and on internal/core/mangle_watcher.go's pause/resume condition-variable
// pattern.
package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"noema/internal/config"
	"noema/internal/events"
	"noema/internal/kb"
	"noema/internal/logging"
	"noema/internal/queue"

	"go.uber.org/zap"
)

// stopJoinTimeout bounds how long Stop waits for workers to drain before
// giving up and returning anyway (spec.md §5: "~2s per executor").
const stopJoinTimeout = 2 * time.Second

// Engine owns the commit thread and inference worker pool (C8).
type Engine struct {
	kb      *kb.KB
	commitQ *queue.CommitQueue
	taskQ   *queue.TaskQueue
	sink    events.Sink
	cfg     *config.Config
	rules   *ruleSet
	log     *zap.Logger

	paused    atomic.Bool
	pauseMu   sync.Mutex
	pauseCond *sync.Cond

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ruleIDSeq int64
	skolemSeq int64
}

// New constructs an Engine over the given KB and queues. cfg supplies the
// derivation depth/weight limits, worker-count floor, and feature flags of
// spec.md §6.
func New(cfg *config.Config, kbase *kb.KB, commitQ *queue.CommitQueue, taskQ *queue.TaskQueue, sink events.Sink) *Engine {
	e := &Engine{
		kb:      kbase,
		commitQ: commitQ,
		taskQ:   taskQ,
		sink:    sink,
		cfg:     cfg,
		rules:   newRuleSet(),
		log:     logging.Get(logging.CategoryEngine),
	}
	e.pauseCond = sync.NewCond(&e.pauseMu)
	return e
}

// workerCount implements spec.md §4.8's "N ≥ 2, default ≈ max(2, cores/2)",
// treating cfg.MinInferenceWorkers as a floor rather than the target.
func (e *Engine) workerCount() int {
	n := runtime.NumCPU() / 2
	if n < e.cfg.MinInferenceWorkers {
		n = e.cfg.MinInferenceWorkers
	}
	if n < 2 {
		n = 2
	}
	return n
}

// Start launches the commit thread and the inference worker pool. A no-op
// if already running.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.commitLoop()

	n := e.workerCount()
	e.log.Info("engine starting", zap.Int("inference_workers", n))
	for i := 0; i < n; i++ {
		e.wg.Add(1)
		go e.workerLoop(i)
	}
}

// Stop signals shutdown, wakes any paused/blocked loops, and waits up to
// stopJoinTimeout per spec.md §5 before giving up on stragglers.
func (e *Engine) Stop() {
	e.runMu.Lock()
	if !e.running {
		e.runMu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.runMu.Unlock()

	e.pauseMu.Lock()
	e.pauseCond.Broadcast()
	e.pauseMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info("engine stopped")
	case <-time.After(stopJoinTimeout):
		e.log.Warn("engine stop: join timeout exceeded, some workers may be stragglers")
	}
}

// SetPaused atomically flips the pause flag and, on resume, broadcasts the
// shared pause condition so blocked loops wake and re-check.
func (e *Engine) SetPaused(paused bool) {
	e.paused.Store(paused)
	if !paused {
		e.pauseMu.Lock()
		e.pauseCond.Broadcast()
		e.pauseMu.Unlock()
	}
}

// IsPaused reports the current pause state.
func (e *Engine) IsPaused() bool { return e.paused.Load() }

// Clear pauses the engine, flushes both queues, empties the KB and the
// rule set, then resumes (spec.md §5 clear()).
func (e *Engine) Clear() {
	e.SetPaused(true)
	e.commitQ.Drain()
	e.taskQ.Drain()
	e.kb.Clear()
	e.rules.clear()
	e.SetPaused(false)
}

// waitWhilePaused blocks the calling loop while the engine is paused,
// waking on SetPaused(false) or shutdown.
func (e *Engine) waitWhilePaused() {
	e.pauseMu.Lock()
	for e.paused.Load() {
		select {
		case <-e.ctx.Done():
			e.pauseMu.Unlock()
			return
		default:
		}
		e.pauseCond.Wait()
	}
	e.pauseMu.Unlock()
}

// commitLoop is the single commit thread: it serially drains the Commit
// Queue and calls KB.CommitAssertion, generating post-commit tasks on
// every successful commit.
func (e *Engine) commitLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		e.waitWhilePaused()

		pa, ok := e.commitQ.Take(e.ctx)
		if !ok {
			return
		}
		a, err := e.kb.CommitAssertion(pa)
		if err != nil {
			e.log.Warn("commit rejected", zap.Error(err))
			continue
		}
		if a == nil {
			continue // trivial, duplicate, or subsumed: silently rejected
		}
		e.generatePostCommitTasks(a)
	}
}

// workerLoop is one of the N inference workers draining the Task Queue.
func (e *Engine) workerLoop(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}
		e.waitWhilePaused()

		t, ok := e.taskQ.Take(e.ctx)
		if !ok {
			return
		}
		e.executeTaskSafely(t)
	}
}
