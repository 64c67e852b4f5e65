package kb

import (
	"sync"
	"sync/atomic"

	"noema/internal/events"
	"noema/internal/kerr"
	"noema/internal/pathindex"
	"noema/internal/term"
	"noema/internal/unify"
)

// reflexiveOps is the trivial-term rejection set of spec.md §4.5 step 1.
var reflexiveOps = map[string]struct{}{
	"instance": {}, "subclass": {}, "subrelation": {}, "equivalent": {},
	"same": {}, "equal": {}, "domain": {}, "range": {}, "=": {},
}

// KB is the Knowledge Base (C5). The zero value is not usable; construct
// with New. Mutating operations (CommitAssertion, RetractAssertion, Clear)
// are serialized by mu; queries may take the read lock.
type KB struct {
	mu sync.RWMutex

	capacity int
	sink     EventSink

	byID         map[ID]*Assertion
	pathIdx      *pathindex.Index
	universalIdx map[string]map[ID]struct{}
	universalIDs map[ID]struct{}
	dependencies map[ID]map[ID]struct{} // supporter id -> dependent ids
	evictionQ    *evictionQueue

	groundCounter     int64
	universalCounter  int64
	skolemizedCounter int64
	clock             int64
}

// New constructs an empty KB with the given capacity and event sink.
func New(capacity int, sink EventSink) *KB {
	return &KB{
		capacity:     capacity,
		sink:         sink,
		byID:         make(map[ID]*Assertion),
		pathIdx:      pathindex.New(),
		universalIdx: make(map[string]map[ID]struct{}),
		universalIDs: make(map[ID]struct{}),
		dependencies: make(map[ID]map[ID]struct{}),
		evictionQ:    newEvictionQueue(),
	}
}

// Size returns the current count of stored assertions.
func (k *KB) Size() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.byID)
}

// Get returns the stored assertion for id, if present.
func (k *KB) Get(id ID) (*Assertion, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	a, ok := k.byID[id]
	return a, ok
}

// CommitAssertion implements spec.md §4.5 commitAssertion. A nil
// Assertion with a nil error means the candidate was silently rejected
// (trivial, duplicate, or subsumed) and no event was emitted. A non-nil
// error is an engine-internal fault (CapacityExceeded, InvalidTermShape)
// that the caller should log/contain per spec.md §7.
func (k *KB) CommitAssertion(pa PotentialAssertion) (*Assertion, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if isTrivial(pa.KIF) {
		return nil, nil
	}

	shape, err := analyzeTerm(pa.KIF)
	if err != nil {
		return nil, err
	}

	if shape.kind == GROUND || shape.kind == SKOLEMIZED {
		effective := effectiveTermOf(pa.KIF, shape)
		if k.subsumedLocked(effective, shape.negated, shape.kind) {
			return nil, nil
		}
	} else {
		if k.duplicateUniversalLocked(pa.KIF) {
			return nil, nil
		}
	}

	if err := k.enforceCapacityLocked(); err != nil {
		return nil, err
	}

	id := k.nextIDLocked(shape.kind)
	k.clock++
	depth := k.derivationDepthLocked(pa.Support)

	a := &Assertion{
		ID:                 id,
		KIF:                pa.KIF,
		Priority:           pa.Priority,
		Timestamp:          k.clock,
		SourceNoteID:       pa.SourceNoteID,
		Support:            pa.Support,
		Type:               shape.kind,
		IsEquality:         shape.isEquality,
		IsOrientedEquality: shape.isOrientedEquality,
		IsNegated:          shape.negated,
		QuantifiedVars:     shape.quantifiedVars,
		DerivationDepth:    depth,
	}

	k.insertLocked(a)
	k.sink.Emit(events.KindAdded, a)
	return a, nil
}

func (k *KB) insertLocked(a *Assertion) {
	k.byID[a.ID] = a
	switch a.Type {
	case GROUND, SKOLEMIZED:
		k.pathIdx.Add(a.EffectiveTerm(), pathindex.AssertionID(a.ID))
		k.evictionQ.Add(a.ID, a.Priority)
	case UNIVERSAL:
		k.universalIDs[a.ID] = struct{}{}
		heads := map[string]struct{}{}
		collectHeadAtoms(a.EffectiveTerm(), heads)
		for h := range heads {
			set, ok := k.universalIdx[h]
			if !ok {
				set = make(map[ID]struct{})
				k.universalIdx[h] = set
			}
			set[a.ID] = struct{}{}
		}
	}
	for s := range a.Support {
		set, ok := k.dependencies[s]
		if !ok {
			set = make(map[ID]struct{})
			k.dependencies[s] = set
		}
		set[a.ID] = struct{}{}
	}
}

// RetractAssertion removes id and cascades through its dependents,
// emitting RETRACTED for each removed assertion in DFS order. Idempotent:
// retracting an id not present in by_id is a no-op.
func (k *KB) RetractAssertion(id ID) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.byID[id]; !ok {
		return
	}
	k.cascadeRemoveLocked(id, events.KindRetracted)
}

// Clear removes every stored assertion without emitting per-assertion
// events, resetting the KB to its initial empty state.
func (k *KB) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.byID = make(map[ID]*Assertion)
	k.pathIdx = pathindex.New()
	k.universalIdx = make(map[string]map[ID]struct{})
	k.universalIDs = make(map[ID]struct{})
	k.dependencies = make(map[ID]map[ID]struct{})
	k.evictionQ = newEvictionQueue()
}

// cascadeRemoveLocked removes rootID and every transitive dependent via a
// depth-first traversal of the dependency graph, emitting kind for each
// removed assertion in visitation order (root first).
func (k *KB) cascadeRemoveLocked(rootID ID, kind events.Kind) {
	var visit func(id ID)
	visited := map[ID]struct{}{}
	visit = func(id ID) {
		if _, done := visited[id]; done {
			return
		}
		visited[id] = struct{}{}
		a, ok := k.byID[id]
		if !ok {
			return
		}
		dependents := make([]ID, 0, len(k.dependencies[id]))
		for d := range k.dependencies[id] {
			dependents = append(dependents, d)
		}
		k.removeOneLocked(a)
		k.sink.Emit(kind, a)
		for _, d := range dependents {
			visit(d)
		}
	}
	visit(rootID)
}

// removeOneLocked deletes a single assertion's index entries, without
// touching its dependents; callers handle cascading.
func (k *KB) removeOneLocked(a *Assertion) {
	delete(k.byID, a.ID)
	switch a.Type {
	case GROUND, SKOLEMIZED:
		k.pathIdx.Remove(a.EffectiveTerm(), pathindex.AssertionID(a.ID))
		k.evictionQ.Remove(a.ID)
	case UNIVERSAL:
		delete(k.universalIDs, a.ID)
		heads := map[string]struct{}{}
		collectHeadAtoms(a.EffectiveTerm(), heads)
		for h := range heads {
			if set, ok := k.universalIdx[h]; ok {
				delete(set, a.ID)
				if len(set) == 0 {
					delete(k.universalIdx, h)
				}
			}
		}
	}
	delete(k.dependencies, a.ID)
	for s := range a.Support {
		if set, ok := k.dependencies[s]; ok {
			delete(set, a.ID)
			if len(set) == 0 {
				delete(k.dependencies, s)
			}
		}
	}
}

// enforceCapacityLocked implements spec.md §4.5 step 5: while at or above
// capacity, evict the lowest-priority GROUND/SKOLEMIZED id (cascading);
// if capacity cannot be reached because no evictable id remains, fail.
func (k *KB) enforceCapacityLocked() error {
	for len(k.byID) >= k.capacity {
		id, ok := k.evictionQ.PeekLowest()
		if !ok {
			return &kerr.CapacityExceeded{Capacity: k.capacity}
		}
		k.cascadeRemoveLocked(id, events.KindEvicted)
	}
	return nil
}

func (k *KB) derivationDepthLocked(support map[ID]struct{}) int {
	if len(support) == 0 {
		return 0
	}
	max := 0
	for s := range support {
		if a, ok := k.byID[s]; ok && a.DerivationDepth > max {
			max = a.DerivationDepth
		}
	}
	return max + 1
}

func (k *KB) subsumedLocked(effective term.Term, negated bool, kind AssertionType) bool {
	candidates := k.pathIdx.FindInstances(effective)
	for _, cid := range candidates {
		a, ok := k.byID[ID(cid)]
		if !ok || a.IsNegated != negated {
			continue
		}
		if a.Type != GROUND && a.Type != SKOLEMIZED {
			continue
		}
		if term.Equal(a.EffectiveTerm(), effective) {
			return true
		}
		if _, matched := unify.Match(a.EffectiveTerm(), effective, nil); matched {
			return true
		}
	}
	return false
}

func (k *KB) duplicateUniversalLocked(candidate term.Term) bool {
	for id := range k.universalIDs {
		if a, ok := k.byID[id]; ok && term.Equal(a.KIF, candidate) {
			return true
		}
	}
	return false
}

// FindUnifiable returns stored GROUND/SKOLEMIZED assertions whose
// effective term unifies with pattern, confirmed via real unification
// over the path index's candidate set.
func (k *KB) FindUnifiable(pattern term.Term) []*Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []*Assertion
	for _, cid := range k.pathIdx.FindUnifiable(pattern) {
		a, ok := k.byID[ID(cid)]
		if !ok {
			continue
		}
		if _, ok := unify.Unify(pattern, a.EffectiveTerm(), nil); ok {
			out = append(out, a)
		}
	}
	return out
}

// FindInstancesOfPattern returns stored GROUND/SKOLEMIZED assertions of
// the given polarity whose effective term is matched by pattern.
func (k *KB) FindInstancesOfPattern(pattern term.Term, negated bool) []*Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []*Assertion
	for _, cid := range k.pathIdx.FindInstances(pattern) {
		a, ok := k.byID[ID(cid)]
		if !ok || a.IsNegated != negated {
			continue
		}
		if _, ok := unify.Match(pattern, a.EffectiveTerm(), nil); ok {
			out = append(out, a)
		}
	}
	return out
}

// AllGroundOrSkolemized returns a snapshot of every stored GROUND or
// SKOLEMIZED assertion. The path index has no subterm-level query
// (spec.md §4.4), so the Reasoner Engine's rewrite-candidate search over
// "every existing assertion whose effective term has a candidate subterm
// matching" a new oriented equality's LHS scans this snapshot directly.
func (k *KB) AllGroundOrSkolemized() []*Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Assertion, 0, len(k.byID))
	for _, a := range k.byID {
		if a.Type == GROUND || a.Type == SKOLEMIZED {
			out = append(out, a)
		}
	}
	return out
}

// FindRelevantUniversals returns stored UNIVERSAL assertions registered
// under predicateAtom.
func (k *KB) FindRelevantUniversals(predicateAtom string) []*Assertion {
	k.mu.RLock()
	defer k.mu.RUnlock()
	set, ok := k.universalIdx[predicateAtom]
	if !ok {
		return nil
	}
	out := make([]*Assertion, 0, len(set))
	for id := range set {
		if a, ok := k.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// collectHeadAtoms walks t, recording every atom value that appears as
// the head of a sublist anywhere within t (spec.md §4.5 universal_index
// registration).
func collectHeadAtoms(t term.Term, out map[string]struct{}) {
	if !t.IsList() {
		return
	}
	children := t.Children()
	if len(children) > 0 && children[0].IsAtom() {
		out[children[0].Value()] = struct{}{}
	}
	for _, c := range children {
		collectHeadAtoms(c, out)
	}
}

func isTrivial(t term.Term) bool {
	check := t
	if op, ok := t.Operator(); ok && op == "not" {
		children := t.Children()
		if len(children) == 2 {
			check = children[1]
		}
	}
	op, ok := check.Operator()
	if !ok {
		return false
	}
	if _, reflexive := reflexiveOps[op]; !reflexive {
		return false
	}
	children := check.Children()
	if len(children) < 3 {
		return false
	}
	return term.Equal(children[1], children[2])
}

func effectiveTermOf(t term.Term, shape assertionShape) term.Term {
	if shape.negated {
		return t.Children()[1]
	}
	return t
}

// nextIDLocked mints the next id for kind, per spec.md's `fact-ground-…`
// naming; the three counters keep each kind's sequence independent so ids
// remain stable regardless of commit interleaving across kinds.
func (k *KB) nextIDLocked(kind AssertionType) ID {
	var n int64
	var prefix string
	switch kind {
	case GROUND:
		n = atomic.AddInt64(&k.groundCounter, 1)
		prefix = "fact-ground-"
	case UNIVERSAL:
		n = atomic.AddInt64(&k.universalCounter, 1)
		prefix = "fact-universal-"
	case SKOLEMIZED:
		n = atomic.AddInt64(&k.skolemizedCounter, 1)
		prefix = "fact-skolemized-"
	}
	return ID(prefix + itoa(n))
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
