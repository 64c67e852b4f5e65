package router

import (
	"sync"
	"testing"
	"time"

	"noema/internal/config"
	"noema/internal/engine"
	"noema/internal/events"
	"noema/internal/kb"
	"noema/internal/parser"
	"noema/internal/queue"
	"noema/internal/term"
)

type recordingSink struct {
	mu      sync.Mutex
	kinds   []events.Kind
	payload []interface{}
}

func (s *recordingSink) Emit(kind events.Kind, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kind)
	s.payload = append(s.payload, payload)
}

func (s *recordingSink) hasInput(kif string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.kinds {
		if k != events.KindInput {
			continue
		}
		if got, ok := s.payload[i].(string); ok && got == kif {
			return true
		}
	}
	return false
}

func (s *recordingSink) hasAdded(kif string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.kinds {
		if k != events.KindAdded {
			continue
		}
		if a, ok := s.payload[i].(*kb.Assertion); ok && a.KIF.KIFString() == kif {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func mustParse(t *testing.T, src string) term.Term {
	t.Helper()
	tm, err := parser.ParseOne(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tm
}

func newTestRouter(t *testing.T) (*Router, *kb.KB, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	kbase := kb.New(1000, sink)
	commitQ := queue.NewCommitQueue(1000)
	taskQ := queue.NewTaskQueue(1000)
	cfg := config.DefaultConfig()
	e := engine.New(cfg, kbase, commitQ, taskQ, sink)
	e.Start()
	t.Cleanup(e.Stop)
	return New(e, cfg, sink), kbase, sink
}

func TestRouteGroundFactEmitsInputThenAdded(t *testing.T) {
	r, _, sink := newTestRouter(t)
	fact := mustParse(t, `(instance Rex Dog)`)
	if err := r.Route(fact, SourceFile, ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !sink.hasInput(`(instance Rex Dog)`) {
		t.Fatal("expected an INPUT event for the routed term")
	}
	waitFor(t, time.Second, func() bool { return sink.hasAdded(`(instance Rex Dog)`) })
}

func TestRouteRejectsNonGroundFact(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if err := r.Route(mustParse(t, `(instance ?x Dog)`), SourceFile, ""); err == nil {
		t.Fatal("expected an error routing a non-ground fact")
	}
}

func TestRouteRejectsMalformedNegation(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if err := r.Route(mustParse(t, `(not Rex)`), SourceFile, ""); err == nil {
		t.Fatal("expected an error routing (not <atom>)")
	}
}

func TestRouteRejectsMalformedExists(t *testing.T) {
	r, kbase, _ := newTestRouter(t)
	if err := r.Route(mustParse(t, `(exists (?k))`), SourceFile, ""); err == nil {
		t.Fatal("expected an error routing an exists term with no body")
	}
	if kbase.Size() != 0 {
		t.Fatalf("got KB size %d, want 0: a malformed exists must never reach the KB", kbase.Size())
	}
}

func TestRouteRuleInstallsBothDirectionsForBiconditional(t *testing.T) {
	r, _, _ := newTestRouter(t)
	form := mustParse(t, `(<=> (instance ?x Dog) (attribute ?x Canine))`)
	if err := r.Route(form, SourceFile, ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := len(r.engine.Rules()); got != 2 {
		t.Fatalf("got %d installed rules, want 2", got)
	}
}

func TestRouteExistsSkolemizesAndAddsAsSkolemized(t *testing.T) {
	r, _, sink := newTestRouter(t)
	form := mustParse(t, `(exists (?k) (and (instance ?k Kitten) (attribute ?k Cute)))`)
	if err := r.Route(form, SourceFile, ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		for i, k := range sink.kinds {
			if k != events.KindAdded {
				continue
			}
			if a, ok := sink.payload[i].(*kb.Assertion); ok && a.Type == kb.SKOLEMIZED {
				return true
			}
		}
		return false
	})
}

func TestRouteForallWithRuleBodyInstallsRuleNotUniversal(t *testing.T) {
	r, kbase, _ := newTestRouter(t)
	form := mustParse(t, `(forall (?x) (=> (instance ?x Dog) (attribute ?x Canine)))`)
	if err := r.Route(form, SourceFile, ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got := len(r.engine.Rules()); got != 1 {
		t.Fatalf("got %d installed rules, want 1", got)
	}
	if kbase.Size() != 0 {
		t.Fatalf("got KB size %d, want 0: a rule-shaped forall must not also be stored as a UNIVERSAL assertion", kbase.Size())
	}
}

func TestRouteForallWithNonRuleBodySubmitsAsUniversal(t *testing.T) {
	r, _, sink := newTestRouter(t)
	form := mustParse(t, `(forall (?x) (attribute ?x Canine))`)
	if err := r.Route(form, SourceFile, ""); err != nil {
		t.Fatalf("Route: %v", err)
	}
	waitFor(t, time.Second, func() bool { return sink.hasAdded(`(forall (?x) (attribute ?x Canine))`) })
}

func TestPriorityBaselineDiffersByBaseSource(t *testing.T) {
	r, _, _ := newTestRouter(t)
	fact := mustParse(t, `(instance Rex Dog)`)
	filePriority := r.priority(fact, SourceFile)
	adapterPriority := r.priority(fact, SourceAdapter)
	if adapterPriority <= filePriority {
		t.Fatalf("expected adapter priority (%f) to exceed file priority (%f)", adapterPriority, filePriority)
	}
}
