package main

import (
	"noema/internal/config"
	"noema/internal/engine"
	"noema/internal/events"
	"noema/internal/kb"
	"noema/internal/queue"
	"noema/internal/router"
)

// kernel bundles the constructed pieces of a running reasoning process:
// the event bus every subscriber (broadcast hub, watcher) hangs off of, the
// knowledge base, the engine driving commit/task processing, and the
// router every external input is fed through.
type kernel struct {
	bus    *events.Bus
	kb     *kb.KB
	engine *engine.Engine
	router *router.Router
}

// buildKernel wires C5 through C10 per spec.md §5's construction order:
// sink first, then KB, then the bounded queues, then the engine, then the
// router that feeds it.
func buildKernel(cfg *config.Config) *kernel {
	bus := events.NewBus()
	kbase := kb.New(cfg.Capacity, bus)
	commitQ := queue.NewCommitQueue(cfg.CommitQueueCapacity)
	taskQ := queue.NewTaskQueue(cfg.TaskQueueCapacity)
	e := engine.New(cfg, kbase, commitQ, taskQ, bus)
	r := router.New(e, cfg, bus)
	return &kernel{bus: bus, kb: kbase, engine: e, router: r}
}

func (k *kernel) start() {
	k.engine.Start()
}

func (k *kernel) stop() {
	k.engine.Stop()
	k.bus.Close()
}
