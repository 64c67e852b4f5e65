// Package pathindex implements the path/discrimination index over ground and
// skolemized terms described in spec.md §4.4: assertions are bucketed by a
// structural key tuple (one slot per top-level argument, classified as an
// atom value, a nested-list marker, or — on the query side only — a
// variable wildcard) mapping down to candidate assertion id sets. Because
// only GROUND and SKOLEMIZED terms are ever inserted (per spec.md §4.4,
// universal terms live in the separate universal index), a stored slot is
// never a variable; only query patterns contribute the variable wildcard.
// The index is an over-approximating candidate filter: callers still run
// real unify/match against the returned candidates' full terms. The
// reverse-index-of-candidate-sets shape generalizes the single-key fact
// index in theRebelliousNerd-codenerd's internal/mangle/engine.go
// (fileFacts map[string][]ast.Atom) from one key to a structural key tuple.
package pathindex

import "noema/internal/term"

// AssertionID identifies an assertion owning an indexed term. Defined as a
// plain string so callers can pass their own id type directly (e.g.
// kb.ID) without this package needing to know its shape.
type AssertionID string

// varSentinel marks a query-side wildcard slot (any pattern variable).
// listSentinel marks a slot whose term is a list headed by something other
// than a bare atom (or an empty list). Neither value can collide with a
// printed atom value because this index compares against the atom's raw
// internal string, never its printed/quoted form.
const (
	varSentinel  = "\x00VAR"
	listSentinel = "\x00LIST"
)

// Index is a fixed-depth trie: one level for the head key, then one level
// per argument slot, where "depth" is bounded by the indexed term's own
// arity — there is no recursion into nested argument structure, which keeps
// key generation on both the insert and query sides unambiguous.
type Index struct {
	root *node
}

type node struct {
	children map[string]*node
	here     map[AssertionID]struct{}
}

func newNode() *node {
	return &node{children: make(map[string]*node), here: make(map[AssertionID]struct{})}
}

// New returns an empty path index.
func New() *Index {
	return &Index{root: newNode()}
}

// slotKey classifies a single term for use as one trie level: an atom
// contributes its own value, a list contributes its head atom's value (or
// listSentinel if headless/non-atom-headed), and a variable contributes
// varSentinel. Ground/skolemized terms passed at insertion time never
// reach the variable case.
func slotKey(t term.Term) string {
	switch t.Kind() {
	case term.KindAtom:
		return t.Value()
	case term.KindVar:
		return varSentinel
	case term.KindList:
		children := t.Children()
		if len(children) > 0 && children[0].IsAtom() {
			return children[0].Value()
		}
		return listSentinel
	}
	return listSentinel
}

// slots returns the full key tuple for t: [selfKey] for a bare atom or
// variable, or [headKey, argKey...] for a list, where each argKey is the
// shallow slotKey of that argument (no recursion past one level).
func slots(t term.Term) []string {
	if !t.IsList() {
		return []string{slotKey(t)}
	}
	children := t.Children()
	if len(children) == 0 {
		return []string{listSentinel}
	}
	out := make([]string, len(children))
	out[0] = slotKey(children[0])
	for i, c := range children[1:] {
		out[i+1] = slotKey(c)
	}
	return out
}

// Add inserts id under the key tuple computed for t.
func (ix *Index) Add(t term.Term, id AssertionID) {
	n := ix.root
	for _, key := range slots(t) {
		child, ok := n.children[key]
		if !ok {
			child = newNode()
			n.children[key] = child
		}
		n = child
	}
	n.here[id] = struct{}{}
}

// Remove deletes id from the key tuple computed for t. A no-op if that
// path or id is absent. Empty branches are left in place rather than
// pruned: branch count is bounded by distinct (head, arity, arg-shape)
// combinations ever seen, which spec.md does not require reclaiming.
func (ix *Index) Remove(t term.Term, id AssertionID) {
	n := ix.root
	for _, key := range slots(t) {
		child, ok := n.children[key]
		if !ok {
			return
		}
		n = child
	}
	delete(n.here, id)
}

// candidateKeys returns, for a single query slot, every trie key that
// could plausibly correspond to it. A stored ground slot can never itself
// be a variable, so a concrete query slot only ever matches its own exact
// shallow key. When the query slot is a variable, or a list headed by a
// variable (which can unify with a list under any head), every existing
// child key is a candidate.
func candidateKeys(n *node, querySlot term.Term) []string {
	if querySlot.IsVar() || (querySlot.IsList() && len(querySlot.Children()) > 0 && querySlot.Children()[0].IsVar()) {
		out := make([]string, 0, len(n.children))
		for k := range n.children {
			out = append(out, k)
		}
		return out
	}
	return []string{slotKey(querySlot)}
}

// collect walks the trie matching queryTerm's slot tuple, honoring
// variable wildcards, and adds every assertion id reachable at the end of
// a matching path to seen.
func collect(root *node, queryTerm term.Term, seen map[AssertionID]struct{}) {
	if queryTerm.IsVar() {
		var all func(n *node)
		all = func(n *node) {
			for id := range n.here {
				seen[id] = struct{}{}
			}
			for _, c := range n.children {
				all(c)
			}
		}
		all(root)
		return
	}
	var querySlots []term.Term
	if queryTerm.IsList() {
		querySlots = queryTerm.Children()
		if len(querySlots) == 0 {
			querySlots = []term.Term{queryTerm}
		}
	} else {
		querySlots = []term.Term{queryTerm}
	}
	walk(root, querySlots, seen)
}

func walk(n *node, remaining []term.Term, seen map[AssertionID]struct{}) {
	if n == nil {
		return
	}
	if len(remaining) == 0 {
		for id := range n.here {
			seen[id] = struct{}{}
		}
		return
	}
	head, rest := remaining[0], remaining[1:]
	for _, key := range candidateKeys(n, head) {
		if child, ok := n.children[key]; ok {
			walk(child, rest, seen)
		}
	}
}

// FindUnifiable returns candidate assertion ids whose stored term might
// unify with query: a query variable (or variable-headed list) matches any
// stored slot, a bare variable query matches every stored term, and a
// query constant matches only the identically-keyed stored slot (the
// stored side is always ground, so it never itself holds a variable).
func (ix *Index) FindUnifiable(query term.Term) []AssertionID {
	seen := map[AssertionID]struct{}{}
	collect(ix.root, query, seen)
	return idSlice(seen)
}

// FindInstances returns candidate assertion ids whose stored term might be
// a ground/skolemized instance of pattern. Since this index never stores
// variables, the matching rule is identical to FindUnifiable's: a pattern
// variable matches anything, a pattern constant requires an exact stored
// match at that slot. The real distinction (one-way match semantics) is
// enforced by the caller's subsequent call to unify.Match over full terms.
func (ix *Index) FindInstances(pattern term.Term) []AssertionID {
	seen := map[AssertionID]struct{}{}
	collect(ix.root, pattern, seen)
	return idSlice(seen)
}

func idSlice(seen map[AssertionID]struct{}) []AssertionID {
	out := make([]AssertionID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
