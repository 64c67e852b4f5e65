package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"noema/internal/kb"
	"noema/internal/kerr"
	"noema/internal/term"

	"go.uber.org/zap"
)

// ruleSet is the concurrent set of installed rules spec.md §5 requires
// ("the rule set is a concurrent set; reads are snapshot-consistent"),
// keyed by form equality (spec.md §3 Rule: "Rule equality is by form").
type ruleSet struct {
	mu     sync.RWMutex
	byForm map[string]*kb.Rule
}

func newRuleSet() *ruleSet {
	return &ruleSet{byForm: make(map[string]*kb.Rule)}
}

func (rs *ruleSet) add(r *kb.Rule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.byForm[r.Form.KIFString()] = r
}

func (rs *ruleSet) remove(form term.Term) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	key := form.KIFString()
	if _, ok := rs.byForm[key]; !ok {
		return false
	}
	delete(rs.byForm, key)
	return true
}

func (rs *ruleSet) snapshot() []*kb.Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]*kb.Rule, 0, len(rs.byForm))
	for _, r := range rs.byForm {
		out = append(out, r)
	}
	return out
}

func (rs *ruleSet) clear() {
	rs.mu.Lock()
	rs.byForm = make(map[string]*kb.Rule)
	rs.mu.Unlock()
}

func (rs *ruleSet) len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.byForm)
}

// AddRule parses form as a Rule per spec.md §3/§4.8 and installs it.
// `<=>` installs both directions, sharing priority. Returns the rule built
// from form itself; the reverse direction (if any) is installed as a side
// effect but not returned.
func (e *Engine) AddRule(form term.Term, priority float64) (*kb.Rule, error) {
	op, ok := form.Operator()
	if !ok || (op != "=>" && op != "<=>") {
		return nil, &kerr.InvalidTermShape{
			Reason: "rule form must be (=> A C) or (<=> A C)",
			Term:   form.KIFString(),
		}
	}
	children := form.Children()
	if len(children) != 3 {
		return nil, &kerr.InvalidTermShape{
			Reason: "rule form must have exactly an antecedent and a consequent",
			Term:   form.KIFString(),
		}
	}
	antecedent, consequent := children[1], children[2]

	antecedents, err := computeAntecedents(antecedent)
	if err != nil {
		return nil, err
	}

	warnUnboundConsequentVars(antecedent, consequent, e.log)

	id := kb.ID(fmt.Sprintf("rule-%d", atomic.AddInt64(&e.ruleIDSeq, 1)))
	r := &kb.Rule{
		ID:          id,
		Form:        form,
		Antecedent:  antecedent,
		Consequent:  consequent,
		Priority:    priority,
		Antecedents: antecedents,
	}
	e.rules.add(r)

	if op == "<=>" {
		reverseForm := term.NewList(term.NewAtom("=>"), consequent, antecedent)
		if _, err := e.AddRule(reverseForm, priority); err != nil {
			e.log.Warn("failed to install reverse direction of biconditional", zap.Error(err))
		}
	}
	return r, nil
}

// RemoveRule removes the rule matching form, by form equality.
func (e *Engine) RemoveRule(form term.Term) bool {
	return e.rules.remove(form)
}

// Rules returns a snapshot of every installed rule.
func (e *Engine) Rules() []*kb.Rule {
	return e.rules.snapshot()
}

// computeAntecedents splits an antecedent into its conjuncts per spec.md §3:
// `(and c1 c2 …)` yields `[c1, c2, …]`; anything else yields a single-clause
// list. Every resulting clause must be a list or `(not list)`.
func computeAntecedents(a term.Term) ([]term.Term, error) {
	if op, ok := a.Operator(); ok && op == "and" {
		clauses := a.Children()[1:]
		for _, c := range clauses {
			if err := validateClause(c); err != nil {
				return nil, err
			}
		}
		return clauses, nil
	}
	if err := validateClause(a); err != nil {
		return nil, err
	}
	return []term.Term{a}, nil
}

func validateClause(c term.Term) error {
	if !c.IsList() {
		return &kerr.InvalidTermShape{
			Reason: "antecedent clause must be a list or (not list)",
			Term:   c.KIFString(),
		}
	}
	if op, ok := c.Operator(); ok && op == "not" {
		children := c.Children()
		if len(children) != 2 || !children[1].IsList() {
			return &kerr.InvalidTermShape{
				Reason: "negated antecedent clause must wrap exactly one list",
				Term:   c.KIFString(),
			}
		}
	}
	return nil
}

// clauseShape splits an antecedent clause into its match pattern and
// polarity: `(not X)` yields (X, true); anything else yields (c, false).
func clauseShape(c term.Term) (term.Term, bool) {
	if op, ok := c.Operator(); ok && op == "not" {
		children := c.Children()
		if len(children) == 2 {
			return children[1], true
		}
	}
	return c, false
}

// warnUnboundConsequentVars logs (without rejecting) when the consequent
// carries a variable the antecedent never binds — spec.md §3 accepts this,
// since it is exactly how existential introduction in a consequent works.
func warnUnboundConsequentVars(antecedent, consequent term.Term, log *zap.Logger) {
	aVars := antecedent.Variables()
	for name := range consequent.Variables() {
		if _, ok := aVars[name]; !ok {
			log.Debug("consequent variable not bound by antecedent", zap.String("var", "?"+name))
		}
	}
}
