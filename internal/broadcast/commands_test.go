package broadcast

import (
	"testing"
	"time"

	"noema/internal/config"
	"noema/internal/engine"
	"noema/internal/kb"
	"noema/internal/queue"
	"noema/internal/router"

	"github.com/stretchr/testify/require"
)

func newTestRouterAndKB(t *testing.T) (*router.Router, *kb.KB) {
	t.Helper()
	sink := &noopSink{}
	kbase := kb.New(1000, sink)
	commitQ := queue.NewCommitQueue(1000)
	taskQ := queue.NewTaskQueue(1000)
	cfg := config.DefaultConfig()
	e := engine.New(cfg, kbase, commitQ, taskQ, sink)
	e.Start()
	t.Cleanup(e.Stop)
	return router.New(e, cfg, sink), kbase
}

func TestHandleCommandRoutesKIFInput(t *testing.T) {
	r, kbase := newTestRouterAndKB(t)
	handleCommand(r, kbase, "(instance Rex Dog)")

	require.Eventually(t, func() bool { return kbase.Size() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHandleCommandRetractsByID(t *testing.T) {
	r, kbase := newTestRouterAndKB(t)
	handleCommand(r, kbase, "(instance Rex Dog)")
	require.Eventually(t, func() bool { return kbase.Size() == 1 }, time.Second, 5*time.Millisecond)

	var id kb.ID
	for _, a := range kbase.AllGroundOrSkolemized() {
		id = a.ID
	}
	require.NotEmpty(t, id)

	handleCommand(r, kbase, "retract "+string(id))
	require.Eventually(t, func() bool { return kbase.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHandleCommandIgnoresEmptyLine(t *testing.T) {
	r, kbase := newTestRouterAndKB(t)
	handleCommand(r, kbase, "   ")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, kbase.Size())
}

func TestHandleCommandIgnoresUnparsableLine(t *testing.T) {
	r, kbase := newTestRouterAndKB(t)
	handleCommand(r, kbase, "(unterminated")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, kbase.Size())
}
