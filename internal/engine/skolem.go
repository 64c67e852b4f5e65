package engine

import (
	"fmt"
	"sort"
	"sync/atomic"

	"noema/internal/term"
	"noema/internal/unify"
)

// simplifyMaxDepth bounds the logical-simplification fixed point (spec.md
// §4.8: "a bounded fixed-point (depth ≤ 5)").
const simplifyMaxDepth = 5

// Skolemize eliminates the existential quantifier of an `(exists <varspec>
// body)` term per spec.md §4.8's three-step algorithm, returning the
// skolemized body. Any substitution owed to an enclosing rule match must
// already be applied to t by the caller (the Input Router's top-level case
// passes the raw parsed term under an "empty context", matching this).
func (e *Engine) Skolemize(t term.Term) term.Term {
	children := t.Children()
	if len(children) != 3 {
		return t
	}
	varspec, body := children[1], children[2]

	var existential []string
	switch {
	case varspec.IsVar():
		existential = []string{varspec.Value()}
	case varspec.IsList():
		for _, c := range varspec.Children() {
			if c.IsVar() {
				existential = append(existential, c.Value())
			}
		}
	default:
		return t
	}
	eSet := make(map[string]struct{}, len(existential))
	for _, v := range existential {
		eSet[v] = struct{}{}
	}

	free := body.Variables()
	freeNames := make([]string, 0, len(free))
	for name := range free {
		if _, isExistential := eSet[name]; !isExistential {
			freeNames = append(freeNames, name)
		}
	}
	sort.Strings(freeNames)

	bindings := unify.Bindings{}
	for _, name := range existential {
		n := atomic.AddInt64(&e.skolemSeq, 1)
		if len(freeNames) == 0 {
			bindings[name] = term.NewAtom(fmt.Sprintf("skc_%s_%d", name, n))
			continue
		}
		args := make([]term.Term, 0, len(freeNames)+1)
		args = append(args, term.NewAtom(fmt.Sprintf("skf_%s_%d", name, n)))
		for _, fn := range freeNames {
			args = append(args, free[fn])
		}
		bindings[name] = term.NewList(args...)
	}
	return unify.Subst(body, bindings)
}

// simplify applies spec.md §4.8's mandatory logical simplification
// (double-negation elimination) to a fixed point bounded by
// simplifyMaxDepth.
func simplify(t term.Term) term.Term {
	cur := t
	for i := 0; i < simplifyMaxDepth; i++ {
		next, changed := simplifyOnce(cur)
		if !changed {
			return cur
		}
		cur = next
	}
	return cur
}

// simplifyOnce rewrites every `(not (not X))` found in t to X in one
// bottom-up pass (children first, via the recursive descent below),
// reporting whether any rewrite fired.
func simplifyOnce(t term.Term) (term.Term, bool) {
	if !t.IsList() {
		return t, false
	}
	children := t.Children()
	newChildren := make([]term.Term, len(children))
	changed := false
	for i, c := range children {
		nc, ch := simplifyOnce(c)
		newChildren[i] = nc
		if ch {
			changed = true
		}
	}
	if changed {
		t = term.NewList(newChildren...)
	}

	if op, ok := t.Operator(); ok && op == "not" && len(t.Children()) == 2 {
		inner := t.Children()[1]
		if innerOp, ok := inner.Operator(); ok && innerOp == "not" {
			innerChildren := inner.Children()
			if len(innerChildren) == 2 {
				return innerChildren[1], true
			}
		}
	}
	return t, changed
}
