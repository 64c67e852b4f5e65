// Package unify implements Robinson unification with occurs-check, one-way
// matching, substitution, and single-step term rewriting over internal/term,
// per spec.md §4.3. The dispatch shape (chase-then-structurally-descend) is
// grounded on the kevinawalsh-datalog reference engine surveyed in
// other_examples/, adapted from pointer-identity variables and flat literals
// to noema's interned-by-name Var and arbitrary nested List terms.
package unify

import (
	"noema/internal/term"
)

// Bindings maps variable name -> bound term. Returned bindings are never
// mutated in place by callers; Unify/Match always produce a fresh map.
type Bindings map[string]term.Term

// Clone returns a shallow copy of b.
func (b Bindings) Clone() Bindings {
	out := make(Bindings, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

const maxSubstDepth = 50

// resolve follows a chain of variable bindings to a fixed point (a
// non-variable term, or an unbound variable), without recursing into the
// term's children.
func resolve(t term.Term, b Bindings) term.Term {
	for t.IsVar() {
		next, ok := b[t.Value()]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

// Unify attempts classical Robinson unification of x and y under the given
// starting bindings (which may be nil), returning the extended bindings or
// (nil, false) on failure. Performs an occurs check.
func Unify(x, y term.Term, in Bindings) (Bindings, bool) {
	b := in
	if b == nil {
		b = Bindings{}
	} else {
		b = in.Clone()
	}
	out, ok := unify(x, y, b)
	return out, ok
}

func unify(x, y term.Term, b Bindings) (Bindings, bool) {
	x = resolve(x, b)
	y = resolve(y, b)

	if x.IsVar() && y.IsVar() && x.Value() == y.Value() {
		return b, true
	}
	if term.Equal(x, y) {
		return b, true
	}
	if x.IsVar() {
		return bindVar(x, y, b)
	}
	if y.IsVar() {
		return bindVar(y, x, b)
	}
	if x.IsList() && y.IsList() {
		xc, yc := x.Children(), y.Children()
		if len(xc) != len(yc) {
			return nil, false
		}
		for i := range xc {
			var ok bool
			b, ok = unify(xc[i], yc[i], b)
			if !ok {
				return nil, false
			}
		}
		return b, true
	}
	return nil, false
}

// bindVar binds variable v to value, failing the occurs check if value
// (after substitution) contains v.
func bindVar(v, value term.Term, b Bindings) (Bindings, bool) {
	if occurs(v.Value(), value, b) {
		return nil, false
	}
	out := b.Clone()
	out[v.Value()] = value
	return out, true
}

func occurs(name string, t term.Term, b Bindings) bool {
	t = resolve(t, b)
	switch t.Kind() {
	case term.KindVar:
		return t.Value() == name
	case term.KindList:
		for _, c := range t.Children() {
			if occurs(name, c, b) {
				return true
			}
		}
	}
	return false
}

// Match performs one-way unification: only variables in pattern may be
// bound. When a pattern variable is already bound, require structural
// equality (via recursive Match) with the candidate target rather than
// further unification. No occurs check (pattern variables never bind to
// terms containing themselves in the matching direction).
func Match(pattern, t term.Term, in Bindings) (Bindings, bool) {
	b := in
	if b == nil {
		b = Bindings{}
	} else {
		b = in.Clone()
	}
	out, ok := match(pattern, t, b)
	return out, ok
}

func match(pattern, t term.Term, b Bindings) (Bindings, bool) {
	if pattern.IsVar() {
		if bound, ok := b[pattern.Value()]; ok {
			return match(bound, t, b)
		}
		out := b.Clone()
		out[pattern.Value()] = t
		return out, true
	}
	switch pattern.Kind() {
	case term.KindAtom:
		if t.IsAtom() && pattern.Value() == t.Value() {
			return b, true
		}
		return nil, false
	case term.KindList:
		if !t.IsList() {
			return nil, false
		}
		pc, tc := pattern.Children(), t.Children()
		if len(pc) != len(tc) {
			return nil, false
		}
		for i := range pc {
			var ok bool
			b, ok = match(pc[i], tc[i], b)
			if !ok {
				return nil, false
			}
		}
		return b, true
	}
	return nil, false
}

// Subst applies bindings to term to a fixed point, bounded by maxSubstDepth
// to avoid pathological (cyclic) substitution loops. Hitting the depth
// limit is not reported; SubstWithWarn reports it.
func Subst(t term.Term, b Bindings) term.Term {
	return substDepth(t, b, 0, nil)
}

// SubstWithWarn is Subst but calls warn() each time the hard depth limit is
// reached.
func SubstWithWarn(t term.Term, b Bindings, warn func()) term.Term {
	return substDepth(t, b, 0, warn)
}

// substDepth substitutes bindings into t. chainDepth counts only
// variable-dereference hops (a bound variable resolving to another bound
// variable, possibly through intervening structure) — it is the guard
// against a cyclic binding chain, not against ordinary structural nesting.
// Plain recursion into a list's children does not advance chainDepth, so a
// single deeply nested but acyclic term is never truncated partway through.
func substDepth(t term.Term, b Bindings, chainDepth int, warn func()) term.Term {
	switch t.Kind() {
	case term.KindVar:
		if chainDepth >= maxSubstDepth {
			if warn != nil {
				warn()
			}
			return t
		}
		if bound, ok := b[t.Value()]; ok {
			return substDepth(bound, b, chainDepth+1, warn)
		}
		return t
	case term.KindList:
		children := t.Children()
		newChildren := make([]term.Term, len(children))
		changed := false
		for i, c := range children {
			nc := substDepth(c, b, chainDepth, warn)
			newChildren[i] = nc
			if !term.Equal(nc, c) {
				changed = true
			}
		}
		if !changed {
			return t
		}
		return term.NewList(newChildren...)
	default:
		return t
	}
}

// Rewrite attempts a single rewrite of target using the oriented equation
// lhs -> rhs: first tries to match lhs against target itself; on success
// returns Subst(rhs, bindings). Otherwise, if target is a list, recursively
// attempts to rewrite each child in order and returns a new list as soon as
// one child rewrites (first successful rewrite wins); returns (zero, false)
// if nothing rewrote.
func Rewrite(target, lhs, rhs term.Term) (term.Term, bool) {
	if b, ok := Match(lhs, target, nil); ok {
		return Subst(rhs, b), true
	}
	if !target.IsList() {
		return term.Term{}, false
	}
	children := target.Children()
	for i, c := range children {
		if nc, ok := Rewrite(c, lhs, rhs); ok {
			out := make([]term.Term, len(children))
			copy(out, children)
			out[i] = nc
			return term.NewList(out...), true
		}
	}
	return term.Term{}, false
}
