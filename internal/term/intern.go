package term

import "sync"

// registry interns Atom and Var terms by value: the same string always
// yields a Term sharing the same *derivedData, so the once-computed KIF
// string / weight / flags are never recomputed for a given symbol. Lists are
// not interned (per spec, lists need not be).
type registry struct {
	mu    sync.RWMutex
	atoms map[string]*derivedData
	vars  map[string]*derivedData
}

var globalRegistry = &registry{
	atoms: make(map[string]*derivedData),
	vars:  make(map[string]*derivedData),
}

func (r *registry) internAtom(value string) *derivedData {
	r.mu.RLock()
	d, ok := r.atoms[value]
	r.mu.RUnlock()
	if ok {
		return d
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.atoms[value]; ok {
		return d
	}
	d = &derivedData{}
	r.atoms[value] = d
	return d
}

func (r *registry) internVar(name string) *derivedData {
	r.mu.RLock()
	d, ok := r.vars[name]
	r.mu.RUnlock()
	if ok {
		return d
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.vars[name]; ok {
		return d
	}
	d = &derivedData{}
	r.vars[name] = d
	return d
}

// NewAtom constructs an interned Atom term.
func NewAtom(value string) Term {
	return Term{kind: KindAtom, value: value, derived: globalRegistry.internAtom(value)}
}

// NewVar constructs an interned Var term. name must not include the leading
// '?'.
func NewVar(name string) Term {
	return Term{kind: KindVar, value: name, derived: globalRegistry.internVar(name)}
}

// NewList constructs a List term over the given children (copied).
func NewList(children ...Term) Term {
	cp := make([]Term, len(children))
	copy(cp, children)
	return Term{kind: KindList, children: cp, derived: &derivedData{}}
}
