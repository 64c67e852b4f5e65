package kb

import (
	"testing"

	"noema/internal/events"
	"noema/internal/kerr"
	"noema/internal/parser"
	"noema/internal/term"
)

// recordingSink implements EventSink synchronously (unlike events.Bus, which
// dispatches from its own goroutine) so tests can assert on emission order
// without a race.
type recordingSink struct {
	kinds    []events.Kind
	payloads []interface{}
}

func (s *recordingSink) Emit(kind events.Kind, payload interface{}) {
	s.kinds = append(s.kinds, kind)
	s.payloads = append(s.payloads, payload)
}

func mustParse(t *testing.T, src string) term.Term {
	t.Helper()
	tm, err := parser.ParseOne(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return tm
}

func pa(kif term.Term, priority float64, support map[ID]struct{}) PotentialAssertion {
	return PotentialAssertion{KIF: kif, Priority: priority, Support: support}
}

func TestCommitAssertionRejectsTrivialReflexiveTerm(t *testing.T) {
	sink := &recordingSink{}
	k := New(100, sink)

	a, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Socrates)`), 1, nil))
	if err != nil || a != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) for trivial term", a, err)
	}
	if len(sink.kinds) != 0 {
		t.Fatalf("expected no event for rejected trivial term, got %v", sink.kinds)
	}
}

func TestCommitAssertionRejectsTrivialUnderNot(t *testing.T) {
	sink := &recordingSink{}
	k := New(100, sink)

	a, err := k.CommitAssertion(pa(mustParse(t, `(not (equal Plato Plato))`), 1, nil))
	if err != nil || a != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) for trivial term under not", a, err)
	}
}

func TestCommitAssertionGroundAssignsPrefixedID(t *testing.T) {
	sink := &recordingSink{}
	k := New(100, sink)

	a, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || a == nil {
		t.Fatalf("unexpected (%v, %v)", a, err)
	}
	if a.Type != GROUND {
		t.Fatalf("got type %v, want GROUND", a.Type)
	}
	if len(a.ID) == 0 {
		t.Fatal("expected non-empty id")
	}
	if sink.kinds[len(sink.kinds)-1] != events.KindAdded {
		t.Fatalf("expected an ADDED event, got %v", sink.kinds)
	}
}

func TestCommitAssertionPromotesToSkolemizedWhenTermContainsSkolemMarker(t *testing.T) {
	k := New(100, &recordingSink{})

	a, err := k.CommitAssertion(pa(mustParse(t, `(instance skc_1 Man)`), 1, nil))
	if err != nil || a == nil {
		t.Fatalf("unexpected (%v, %v)", a, err)
	}
	if a.Type != SKOLEMIZED {
		t.Fatalf("got type %v, want SKOLEMIZED", a.Type)
	}
}

func TestCommitAssertionRejectsExactGroundDuplicate(t *testing.T) {
	k := New(100, &recordingSink{})

	first, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || first == nil {
		t.Fatalf("unexpected (%v, %v)", first, err)
	}

	second, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || second != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) for subsumed duplicate", second, err)
	}
	if k.Size() != 1 {
		t.Fatalf("got size %d, want 1", k.Size())
	}
}

func TestCommitAssertionRejectsDuplicateUniversal(t *testing.T) {
	k := New(100, &recordingSink{})

	first, err := k.CommitAssertion(pa(mustParse(t, `(forall (?x) (instance ?x Man))`), 1, nil))
	if err != nil || first == nil {
		t.Fatalf("unexpected (%v, %v)", first, err)
	}
	if first.Type != UNIVERSAL || len(first.QuantifiedVars) != 1 {
		t.Fatalf("got %+v, want UNIVERSAL with one quantified var", first)
	}

	second, err := k.CommitAssertion(pa(mustParse(t, `(forall (?x) (instance ?x Man))`), 1, nil))
	if err != nil || second != nil {
		t.Fatalf("got (%v, %v), want (nil, nil) for duplicate universal", second, err)
	}
}

func TestCommitAssertionRejectsMalformedNot(t *testing.T) {
	k := New(100, &recordingSink{})

	_, err := k.CommitAssertion(pa(mustParse(t, `(not Socrates)`), 1, nil))
	if _, ok := err.(*kerr.InvalidTermShape); !ok {
		t.Fatalf("got err %v, want *kerr.InvalidTermShape", err)
	}
}

func TestCommitAssertionRejectsForallWithEmptyVarspec(t *testing.T) {
	k := New(100, &recordingSink{})

	_, err := k.CommitAssertion(pa(mustParse(t, `(forall () (instance Socrates Man))`), 1, nil))
	if _, ok := err.(*kerr.InvalidTermShape); !ok {
		t.Fatalf("got err %v, want *kerr.InvalidTermShape", err)
	}
}

func TestDerivationDepthIsOnePlusMaxSupporterDepth(t *testing.T) {
	k := New(100, &recordingSink{})

	base, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || base == nil {
		t.Fatalf("unexpected (%v, %v)", base, err)
	}
	if base.DerivationDepth != 0 {
		t.Fatalf("got depth %d, want 0 for input assertion", base.DerivationDepth)
	}

	derived, err := k.CommitAssertion(pa(mustParse(t, `(mortal Socrates)`), 1, map[ID]struct{}{base.ID: {}}))
	if err != nil || derived == nil {
		t.Fatalf("unexpected (%v, %v)", derived, err)
	}
	if derived.DerivationDepth != 1 {
		t.Fatalf("got depth %d, want 1", derived.DerivationDepth)
	}
}

func TestRetractAssertionCascadesToDependents(t *testing.T) {
	sink := &recordingSink{}
	k := New(100, sink)

	base, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || base == nil {
		t.Fatalf("unexpected (%v, %v)", base, err)
	}
	derived, err := k.CommitAssertion(pa(mustParse(t, `(mortal Socrates)`), 1, map[ID]struct{}{base.ID: {}}))
	if err != nil || derived == nil {
		t.Fatalf("unexpected (%v, %v)", derived, err)
	}

	k.RetractAssertion(base.ID)

	if k.Size() != 0 {
		t.Fatalf("got size %d, want 0 after cascade retraction", k.Size())
	}
	if _, ok := k.Get(base.ID); ok {
		t.Fatal("expected base to be removed")
	}
	if _, ok := k.Get(derived.ID); ok {
		t.Fatal("expected dependent to be cascade-removed")
	}

	var retracted int
	for _, kind := range sink.kinds {
		if kind == events.KindRetracted {
			retracted++
		}
	}
	if retracted != 2 {
		t.Fatalf("got %d retracted events, want 2 (root + dependent)", retracted)
	}
	// Root must be emitted before its dependent, per DFS visitation order.
	firstRetractIdx, secondRetractIdx := -1, -1
	for i, kind := range sink.kinds {
		if kind == events.KindRetracted {
			if firstRetractIdx == -1 {
				firstRetractIdx = i
			} else {
				secondRetractIdx = i
			}
		}
	}
	if sink.payloads[firstRetractIdx].(*Assertion).ID != base.ID {
		t.Fatal("expected root assertion to be retracted before its dependent")
	}
	if sink.payloads[secondRetractIdx].(*Assertion).ID != derived.ID {
		t.Fatal("expected dependent assertion retracted second")
	}
}

func TestRetractAssertionIsIdempotent(t *testing.T) {
	k := New(100, &recordingSink{})
	k.RetractAssertion(ID("does-not-exist"))
	if k.Size() != 0 {
		t.Fatalf("got size %d, want 0", k.Size())
	}
}

func TestCapacityEvictsLowestPriorityGroundAssertion(t *testing.T) {
	sink := &recordingSink{}
	k := New(2, sink)

	low, err := k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if err != nil || low == nil {
		t.Fatalf("unexpected (%v, %v)", low, err)
	}
	high, err := k.CommitAssertion(pa(mustParse(t, `(instance Plato Man)`), 5, nil))
	if err != nil || high == nil {
		t.Fatalf("unexpected (%v, %v)", high, err)
	}
	// KB is now at capacity (2); committing a third forces an eviction of
	// whichever stored GROUND/SKOLEMIZED assertion has the lowest priority.
	newest, err := k.CommitAssertion(pa(mustParse(t, `(instance Aristotle Man)`), 3, nil))
	if err != nil || newest == nil {
		t.Fatalf("unexpected (%v, %v)", newest, err)
	}

	if k.Size() != 2 {
		t.Fatalf("got size %d, want 2 (capacity enforced)", k.Size())
	}
	if _, ok := k.Get(low.ID); ok {
		t.Fatal("expected lowest-priority assertion to be evicted")
	}
	if _, ok := k.Get(high.ID); !ok {
		t.Fatal("expected higher-priority assertion to survive eviction")
	}

	var evicted int
	for _, kind := range sink.kinds {
		if kind == events.KindEvicted {
			evicted++
		}
	}
	if evicted != 1 {
		t.Fatalf("got %d evict events, want 1", evicted)
	}
}

func TestCapacityExceededWhenNoEvictableAssertionRemains(t *testing.T) {
	k := New(1, &recordingSink{})

	universal, err := k.CommitAssertion(pa(mustParse(t, `(forall (?x) (instance ?x Man))`), 1, nil))
	if err != nil || universal == nil {
		t.Fatalf("unexpected (%v, %v)", universal, err)
	}
	// UNIVERSAL assertions are never eviction-queue members, so with
	// capacity 1 already occupied by one, no GROUND commit can free space.
	_, err = k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	if _, ok := err.(*kerr.CapacityExceeded); !ok {
		t.Fatalf("got err %v, want *kerr.CapacityExceeded", err)
	}
}

func TestFindUnifiableConfirmsCandidatesWithRealUnification(t *testing.T) {
	k := New(100, &recordingSink{})
	k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	k.CommitAssertion(pa(mustParse(t, `(instance Plato Man)`), 1, nil))
	k.CommitAssertion(pa(mustParse(t, `(instance Socrates Dog)`), 1, nil))

	got := k.FindUnifiable(mustParse(t, `(instance ?x Man)`))
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
}

func TestFindInstancesOfPatternFiltersByPolarity(t *testing.T) {
	k := New(100, &recordingSink{})
	k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	k.CommitAssertion(pa(mustParse(t, `(not (instance Plato Man))`), 1, nil))

	positive := k.FindInstancesOfPattern(mustParse(t, `(instance ?x Man)`), false)
	if len(positive) != 1 || positive[0].KIF.KIFString() != `(instance Socrates Man)` {
		t.Fatalf("got %v, want only the positive instance assertion", positive)
	}

	negative := k.FindInstancesOfPattern(mustParse(t, `(instance ?x Man)`), true)
	if len(negative) != 1 {
		t.Fatalf("got %v, want only the negated instance assertion", negative)
	}
}

func TestFindRelevantUniversalsRegistersUnderEachHeadAtom(t *testing.T) {
	k := New(100, &recordingSink{})
	k.CommitAssertion(pa(mustParse(t, `(forall (?x) (=> (instance ?x Man) (mortal ?x)))`), 1, nil))

	instanceUniversals := k.FindRelevantUniversals("instance")
	if len(instanceUniversals) != 1 {
		t.Fatalf("got %d, want 1 universal registered under instance", len(instanceUniversals))
	}
	mortalUniversals := k.FindRelevantUniversals("mortal")
	if len(mortalUniversals) != 1 {
		t.Fatalf("got %d, want 1 universal registered under mortal", len(mortalUniversals))
	}
	none := k.FindRelevantUniversals("unrelated")
	if len(none) != 0 {
		t.Fatalf("got %v, want none", none)
	}
}

func TestClearResetsKBToEmpty(t *testing.T) {
	k := New(100, &recordingSink{})
	k.CommitAssertion(pa(mustParse(t, `(instance Socrates Man)`), 1, nil))
	k.Clear()
	if k.Size() != 0 {
		t.Fatalf("got size %d, want 0 after Clear", k.Size())
	}
	if got := k.FindUnifiable(mustParse(t, `(instance ?x ?y)`)); len(got) != 0 {
		t.Fatalf("got %v, want no results after Clear", got)
	}
}
