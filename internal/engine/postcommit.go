package engine

import (
	"noema/internal/kb"
	"noema/internal/queue"
	"noema/internal/term"
	"noema/internal/unify"
)

// generatePostCommitTasks implements spec.md §4.8's three post-commit
// actions for a successfully committed assertion A.
func (e *Engine) generatePostCommitTasks(a *kb.Assertion) {
	if a.Type == kb.GROUND || a.Type == kb.SKOLEMIZED {
		e.generateRuleMatchTasks(a)
		e.generateRewriteTasks(a)
	}
	if a.Type == kb.GROUND {
		e.instantiateUniversals(a)
	}
}

// generateRuleMatchTasks enqueues a MatchAntecedent seed task for every
// (rule, clause) pair whose polarity agrees with A and whose pattern
// unifies with A's effective term.
func (e *Engine) generateRuleMatchTasks(a *kb.Assertion) {
	for _, r := range e.rules.snapshot() {
		for i, clause := range r.Antecedents {
			pattern, negated := clauseShape(clause)
			if negated != a.IsNegated {
				continue
			}
			bindings, ok := unify.Unify(pattern, a.EffectiveTerm(), nil)
			if !ok {
				continue
			}
			e.taskQ.Push(&queue.Task{
				Kind:               queue.MatchAntecedent,
				Priority:           (r.Priority + a.Priority) / 2,
				Rule:               r,
				TriggerID:          a.ID,
				SeedBindings:       bindings,
				TriggerClauseIndex: i,
			})
		}
	}
}

// generateRewriteTasks implements spec.md §4.8 step 2: if A is itself an
// oriented equality, enqueue a rewrite task against every other stored
// assertion with a matching subterm; otherwise enqueue a rewrite task
// against A for every stored oriented equality whose LHS matches a
// subterm of A.
func (e *Engine) generateRewriteTasks(a *kb.Assertion) {
	if a.IsNegated {
		return
	}
	if a.IsEquality && a.IsOrientedEquality && len(a.KIF.Children()) == 3 {
		lhs := a.KIF.Children()[1]
		for _, cand := range e.kb.AllGroundOrSkolemized() {
			if cand.ID == a.ID {
				continue
			}
			if hasMatchingSubterm(cand.EffectiveTerm(), lhs) {
				e.taskQ.Push(&queue.Task{
					Kind:          queue.ApplyOrderedRewrite,
					Priority:      (a.Priority + cand.Priority) / 2,
					RewriteRuleID: a.ID,
					TargetID:      cand.ID,
				})
			}
		}
		return
	}
	for _, cand := range e.kb.AllGroundOrSkolemized() {
		if cand.ID == a.ID || cand.IsNegated || !cand.IsEquality || !cand.IsOrientedEquality {
			continue
		}
		if len(cand.KIF.Children()) != 3 {
			continue
		}
		lhs := cand.KIF.Children()[1]
		if hasMatchingSubterm(a.EffectiveTerm(), lhs) {
			e.taskQ.Push(&queue.Task{
				Kind:          queue.ApplyOrderedRewrite,
				Priority:      (cand.Priority + a.Priority) / 2,
				RewriteRuleID: cand.ID,
				TargetID:      a.ID,
			})
		}
	}
}

// hasMatchingSubterm reports whether some subterm of t (t itself, or any
// descendant) is matched by pattern lhs.
func hasMatchingSubterm(t, lhs term.Term) bool {
	if _, ok := unify.Match(lhs, t, nil); ok {
		return true
	}
	if !t.IsList() {
		return false
	}
	for _, c := range t.Children() {
		if hasMatchingSubterm(c, lhs) {
			return true
		}
	}
	return false
}

// instantiateUniversals implements spec.md §4.8 step 3: for every
// universal registered under A's head predicate, try matching every
// sub-expression of its body against A, and submit a closed instance
// whenever the match binds every quantified variable. This is the
// "generous" sub-expression policy the spec's Open Question names — see
// DESIGN.md.
func (e *Engine) instantiateUniversals(a *kb.Assertion) {
	head, ok := a.EffectiveTerm().Operator()
	if !ok {
		return
	}
	for _, u := range e.kb.FindRelevantUniversals(head) {
		if u.DerivationDepth >= e.cfg.MaxDerivationDepth {
			continue
		}
		for _, sub := range subExpressions(u.EffectiveTerm()) {
			bindings, ok := unify.Match(sub, a.EffectiveTerm(), nil)
			if !ok || !coversAll(bindings, u.QuantifiedVars) {
				continue
			}
			instance := unify.Subst(u.EffectiveTerm(), bindings)
			support := map[kb.ID]struct{}{a.ID: {}, u.ID: {}}
			for s := range a.Support {
				support[s] = struct{}{}
			}
			for s := range u.Support {
				support[s] = struct{}{}
			}
			depth, priority := e.supportDepthAndPriority(support)
			e.submitCandidate(kb.PotentialAssertion{
				KIF:             instance,
				Priority:        priority,
				Support:         support,
				DerivationDepth: depth,
			}, string(u.ID))
		}
	}
}

// subExpressions returns t and every descendant subterm.
func subExpressions(t term.Term) []term.Term {
	out := []term.Term{t}
	if t.IsList() {
		for _, c := range t.Children() {
			out = append(out, subExpressions(c)...)
		}
	}
	return out
}

func coversAll(bindings unify.Bindings, vars []string) bool {
	for _, v := range vars {
		if _, ok := bindings[v]; !ok {
			return false
		}
	}
	return true
}
