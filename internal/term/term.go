// Package term implements the immutable term algebra: atoms, variables,
// and lists over a KIF-style S-expression language. Equality is structural
// (Equal); the package defines no hash function over terms.
package term

import (
	"strings"
	"sync"
)

// Kind distinguishes the three closed variants of Term.
type Kind int

const (
	// KindAtom is an interned symbol.
	KindAtom Kind = iota
	// KindVar is an interned variable, written "?name".
	KindVar
	// KindList is an ordered, possibly-empty sequence of terms.
	KindList
)

// Term is a tagged sum type with exactly three variants: Atom, Var, List.
// Values are immutable after construction; equality is structural.
type Term struct {
	kind     Kind
	value    string // Atom symbol or Var name (without leading '?')
	children []Term // only meaningful for KindList

	derived *derivedData
}

// derivedData holds the four cached values every term computes once.
type derivedData struct {
	once          sync.Once
	kifString     string
	hasVariable   bool
	hasSkolem     bool
	weight        int
}

// skolemConstPrefix and skolemFuncPrefix mark fresh identifiers minted during
// existential elimination. See Engine.Skolemize.
const (
	skolemConstPrefix = "skc_"
	skolemFuncPrefix  = "skf_"
)

// Kind reports the term's variant.
func (t Term) Kind() Kind { return t.kind }

// Value returns the Atom symbol or Var name. Panics if called on a List.
func (t Term) Value() string {
	if t.kind == KindList {
		panic("term: Value called on a List term")
	}
	return t.value
}

// Children returns the ordered child terms of a List. Returns nil for
// non-lists.
func (t Term) Children() []Term {
	if t.kind != KindList {
		return nil
	}
	return t.children
}

// IsAtom, IsVar, IsList are convenience predicates.
func (t Term) IsAtom() bool { return t.kind == KindAtom }
func (t Term) IsVar() bool  { return t.kind == KindVar }
func (t Term) IsList() bool { return t.kind == KindList }

// ensureDerived lazily computes and caches the four derived values. Safe for
// concurrent use; recomputation (if it ever raced) is idempotent.
func (t Term) ensureDerived() *derivedData {
	t.derived.once.Do(func() {
		d := t.derived
		switch t.kind {
		case KindAtom:
			d.kifString = printAtom(t.value)
			d.hasVariable = false
			d.hasSkolem = strings.HasPrefix(t.value, skolemConstPrefix)
			d.weight = 1
		case KindVar:
			d.kifString = "?" + t.value
			d.hasVariable = true
			d.hasSkolem = false
			d.weight = 1
		case KindList:
			var sb strings.Builder
			sb.WriteByte('(')
			weight := 1
			hasVar := false
			hasSkolem := false
			if len(t.children) > 0 && t.children[0].IsAtom() && strings.HasPrefix(t.children[0].Value(), skolemFuncPrefix) {
				hasSkolem = true
			}
			for i, c := range t.children {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(c.KIFString())
				weight += c.Weight()
				hasVar = hasVar || c.ContainsVariable()
				hasSkolem = hasSkolem || c.ContainsSkolem()
			}
			sb.WriteByte(')')
			d.kifString = sb.String()
			d.hasVariable = hasVar
			d.hasSkolem = hasSkolem
			d.weight = weight
		}
	})
	return t.derived
}

// KIFString renders the term in canonical external KIF syntax.
func (t Term) KIFString() string { return t.ensureDerived().kifString }

// String implements fmt.Stringer via KIFString.
func (t Term) String() string { return t.KIFString() }

// Weight is the structural size: 1 for atoms/vars, 1+sum(children) for lists.
func (t Term) Weight() int { return t.ensureDerived().weight }

// ContainsVariable reports whether the term or any descendant is a Var.
func (t Term) ContainsVariable() bool { return t.ensureDerived().hasVariable }

// ContainsSkolem reports whether the term contains a skolem constant or
// function: an atom beginning with "skc_", or a list whose operator atom
// begins with "skf_", recursively.
func (t Term) ContainsSkolem() bool { return t.ensureDerived().hasSkolem }

// Variables returns the set of distinct variables occurring in the term,
// keyed by Var name.
func (t Term) Variables() map[string]Term {
	out := make(map[string]Term)
	collectVariables(t, out)
	return out
}

func collectVariables(t Term, out map[string]Term) {
	switch t.kind {
	case KindVar:
		out[t.value] = t
	case KindList:
		for _, c := range t.children {
			collectVariables(c, out)
		}
	}
}

// Operator returns the head atom's symbol for a non-empty list whose first
// child is an atom, and ok=true. Otherwise ok=false.
func (t Term) Operator() (string, bool) {
	if t.kind != KindList || len(t.children) == 0 {
		return "", false
	}
	if !t.children[0].IsAtom() {
		return "", false
	}
	return t.children[0].Value(), true
}

// Equal reports structural equality.
func Equal(a, b Term) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindAtom, KindVar:
		return a.value == b.value
	case KindList:
		if len(a.children) != len(b.children) {
			return false
		}
		for i := range a.children {
			if !Equal(a.children[i], b.children[i]) {
				return false
			}
		}
		return true
	}
	return false
}
