package engine

import (
	"fmt"
	"math"
	"time"

	"noema/internal/kb"
	"noema/internal/kerr"
	"noema/internal/queue"
	"noema/internal/term"
	"noema/internal/unify"

	"go.uber.org/zap"
)

// workerFaultBackoff is the short sleep spec.md §4.8 prescribes after a
// single task fails, before the worker resumes looping.
const workerFaultBackoff = 50 * time.Millisecond

// executeTaskSafely dispatches t, recovering from any panic inside a
// single task so one bad task never halts the worker (spec.md §4.8
// "Failure semantics inside a worker").
func (e *Engine) executeTaskSafely(t *queue.Task) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			fault := &kerr.WorkerFault{TaskKind: taskKindName(t.Kind), Cause: err}
			e.log.Error("worker fault", zap.Error(fault))
			time.Sleep(workerFaultBackoff)
		}
	}()
	switch t.Kind {
	case queue.MatchAntecedent:
		e.executeMatchAntecedent(t)
	case queue.ApplyOrderedRewrite:
		e.executeApplyOrderedRewrite(t)
	}
}

func taskKindName(k queue.TaskKind) string {
	switch k {
	case queue.MatchAntecedent:
		return "match-antecedent"
	case queue.ApplyOrderedRewrite:
		return "apply-ordered-rewrite"
	default:
		return "unknown"
	}
}

// matchState is one partial binding continuation in the explicit work
// stack spec.md §9 calls for ("avoid recursion-only designs... iterate
// with an explicit work stack when antecedent count is large").
type matchState struct {
	bindings  unify.Bindings
	support   map[kb.ID]struct{}
	remaining []int
}

// executeMatchAntecedent completes a rule match seeded by one already-
// satisfied clause, exploring the remaining clauses left-to-right with an
// explicit stack (depth-first, non-recursive) rather than recursion, and
// dispatches the consequent for every complete binding found.
func (e *Engine) executeMatchAntecedent(t *queue.Task) {
	r := t.Rule
	if r == nil {
		return
	}
	if _, ok := e.kb.Get(t.TriggerID); !ok {
		return // trigger retracted before this task ran
	}

	initialSupport := map[kb.ID]struct{}{t.TriggerID: {}}
	remaining := make([]int, 0, len(r.Antecedents))
	for i := range r.Antecedents {
		if i != t.TriggerClauseIndex {
			remaining = append(remaining, i)
		}
	}

	stack := []matchState{{bindings: t.SeedBindings, support: initialSupport, remaining: remaining}}
	for len(stack) > 0 {
		st := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(st.remaining) == 0 {
			e.onCompleteMatch(r, st.bindings, st.support)
			continue
		}

		idx := st.remaining[0]
		rest := st.remaining[1:]
		pattern, negated := clauseShape(r.Antecedents[idx])
		pattern = unify.SubstWithWarn(pattern, st.bindings, func() {
			e.log.Warn("antecedent pattern substitution hit depth limit", zap.String("rule", string(r.ID)))
		})

		for _, cand := range e.kb.FindUnifiable(pattern) {
			if cand.IsNegated != negated {
				continue
			}
			newBindings, ok := unify.Unify(pattern, cand.EffectiveTerm(), st.bindings)
			if !ok {
				continue
			}
			newSupport := cloneSupport(st.support)
			newSupport[cand.ID] = struct{}{}
			stack = append(stack, matchState{bindings: newBindings, support: newSupport, remaining: rest})
		}
	}
}

func cloneSupport(s map[kb.ID]struct{}) map[kb.ID]struct{} {
	out := make(map[kb.ID]struct{}, len(s)+1)
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// onCompleteMatch substitutes and simplifies the rule's consequent for one
// complete binding, then dispatches it by outermost operator.
func (e *Engine) onCompleteMatch(r *kb.Rule, bindings unify.Bindings, support map[kb.ID]struct{}) {
	consequent := unify.SubstWithWarn(r.Consequent, bindings, func() {
		e.log.Warn("consequent substitution hit depth limit", zap.String("rule", string(r.ID)))
	})
	e.dispatchConsequent(string(r.ID), simplify(consequent), support)
}

// dispatchConsequent implements spec.md §4.8's dispatch-by-outermost-
// operator step.
func (e *Engine) dispatchConsequent(ruleID string, t term.Term, support map[kb.ID]struct{}) {
	op, ok := t.Operator()
	switch {
	case ok && op == "and":
		for _, conjunct := range t.Children()[1:] {
			e.dispatchConsequent(ruleID, conjunct, support)
		}
	case ok && op == "forall":
		children := t.Children()
		if len(children) != 3 {
			return
		}
		body := children[2]
		if bodyOp, bok := body.Operator(); bok && (bodyOp == "=>" || bodyOp == "<=>") && e.cfg.EnableRuleDerivation {
			_, priority := e.supportDepthAndPriority(support)
			if _, err := e.AddRule(body, priority); err != nil {
				e.log.Warn("derived rule rejected", zap.Error(err))
			}
			return
		}
		if e.cfg.EnableForwardInstantiation {
			e.submitDerived(t, support, ruleID)
		}
	case ok && op == "exists":
		if !e.cfg.EnableSkolemization {
			return
		}
		e.submitDerived(e.Skolemize(t), support, ruleID)
	default:
		e.submitDerived(t, support, ruleID)
	}
}

// supportDepthAndPriority computes the derivation depth (1 + max supporter
// depth) and decayed priority (decay × min supporter priority) shared by
// every derivation path spec.md §4.8 describes loosely as "decayed minimum
// of supporter priorities" / "priority derived from both".
func (e *Engine) supportDepthAndPriority(support map[kb.ID]struct{}) (int, float64) {
	depth := 0
	minPriority := math.MaxFloat64
	for id := range support {
		a, ok := e.kb.Get(id)
		if !ok {
			continue
		}
		if a.DerivationDepth > depth {
			depth = a.DerivationDepth
		}
		if a.Priority < minPriority {
			minPriority = a.Priority
		}
	}
	if minPriority == math.MaxFloat64 {
		minPriority = 0
	}
	return depth + 1, minPriority * e.cfg.DerivedPriorityDecay
}

// submitDerived builds and offers a PotentialAssertion for a dispatched
// consequent (or a skolemized body), subject to the depth/weight limits.
func (e *Engine) submitDerived(t term.Term, support map[kb.ID]struct{}, ruleID string) {
	depth, priority := e.supportDepthAndPriority(support)
	e.submitCandidate(kb.PotentialAssertion{
		KIF:             t,
		Priority:        priority,
		Support:         support,
		DerivationDepth: depth,
	}, ruleID)
}

// submitCandidate enforces MAX_DERIVATION_DEPTH / MAX_DERIVED_TERM_WEIGHT
// (spec.md §4.8) before offering pa to the Commit Queue.
func (e *Engine) submitCandidate(pa kb.PotentialAssertion, ruleID string) {
	if pa.DerivationDepth > e.cfg.MaxDerivationDepth {
		e.log.Warn("derivation discarded", zap.Error(&kerr.DerivationLimit{RuleID: ruleID, Reason: "depth exceeded"}))
		return
	}
	if w := pa.KIF.Weight(); w > e.cfg.MaxDerivedTermWeight {
		e.log.Warn("derivation discarded", zap.Error(&kerr.DerivationLimit{RuleID: ruleID, Reason: "weight exceeded"}))
		return
	}
	if !e.commitQ.Offer(pa) {
		e.log.Warn("commit queue saturated, derived candidate dropped", zap.String("rule", ruleID))
	}
}

// SubmitInput offers an externally-supplied (depth-0) candidate directly,
// bypassing the derivation depth/weight limits that only bound internally
// generated derivations.
func (e *Engine) SubmitInput(pa kb.PotentialAssertion) bool {
	return e.commitQ.Offer(pa)
}

// executeApplyOrderedRewrite implements spec.md §4.8's ApplyOrderedRewrite
// task: rewrite the target by the rewrite-rule's oriented equality and, if
// it produced a genuinely new term, submit it as a new candidate.
func (e *Engine) executeApplyOrderedRewrite(t *queue.Task) {
	r, ok := e.kb.Get(t.RewriteRuleID)
	if !ok {
		return
	}
	target, ok := e.kb.Get(t.TargetID)
	if !ok {
		return
	}
	if r.Type != kb.GROUND || r.IsNegated || !r.IsOrientedEquality || len(r.KIF.Children()) != 3 {
		return
	}

	lhs, rhs := r.KIF.Children()[1], r.KIF.Children()[2]
	rewritten, ok := unify.Rewrite(target.KIF, lhs, rhs)
	if !ok || term.Equal(rewritten, target.KIF) {
		return
	}

	support := map[kb.ID]struct{}{target.ID: {}, r.ID: {}}
	for s := range target.Support {
		support[s] = struct{}{}
	}
	depth, priority := e.supportDepthAndPriority(support)
	e.submitCandidate(kb.PotentialAssertion{
		KIF:             rewritten,
		Priority:        priority,
		Support:         support,
		DerivationDepth: depth,
	}, string(r.ID))
}
