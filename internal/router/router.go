// Package router implements the Input Router (C10) of spec.md §4.10: it
// classifies a parsed top-level term by its outermost operator and submits
// it to the Engine (for rules, including foralls with a rule body) or the
// Commit Queue (for ground facts, other foralls and skolemized
// existentials), computing the input priority
// baseline along the way. Grounded on theRebelliousNerd-codenerd's
// dispatch-by-head-atom style seen throughout internal/core/kernel_*.go: a
// switch on the outermost operator delegating to a dedicated handler per
// case, generalized here from shard-kernel message kinds to KIF operators.
package router

import (
	"noema/internal/config"
	"noema/internal/engine"
	"noema/internal/events"
	"noema/internal/kb"
	"noema/internal/kerr"
	"noema/internal/logging"
	"noema/internal/term"

	"go.uber.org/zap"
)

// Source names where a top-level term came from, per spec.md §4.10's
// BASE-priority split between file/WS input and adapter-generated input.
type Source int

const (
	SourceFile Source = iota
	SourceWebSocket
	SourceAdapter
)

// base returns BASE for the input priority baseline formula
// BASE / (1 + weight).
func (s Source) base() float64 {
	if s == SourceAdapter {
		return 15
	}
	return 10
}

func (s Source) String() string {
	switch s {
	case SourceFile:
		return "file"
	case SourceWebSocket:
		return "websocket"
	case SourceAdapter:
		return "adapter"
	default:
		return "unknown"
	}
}

// Router dispatches parsed top-level terms to the Engine or KB.
type Router struct {
	engine *engine.Engine
	cfg    *config.Config
	sink   events.Sink
	log    *zap.Logger
}

// New constructs a Router over e. cfg supplies the forward-instantiation
// feature flag this component's forall branch checks directly (spec.md
// §4.10), and sink receives the INPUT event spec.md §4.9 requires before
// any commit is attempted.
func New(e *engine.Engine, cfg *config.Config, sink events.Sink) *Router {
	return &Router{engine: e, cfg: cfg, sink: sink, log: logging.Get(logging.CategoryRouter)}
}

// Route classifies t per spec.md §4.10 and submits it. sourceNoteID is
// attached to whatever PotentialAssertion is ultimately submitted, if any.
func (r *Router) Route(t term.Term, source Source, sourceNoteID string) error {
	r.sink.Emit(events.KindInput, t.KIFString())

	op, ok := t.Operator()
	if !ok {
		err := &kerr.InvalidTermShape{Reason: "top-level input must be a list", Term: t.KIFString()}
		r.log.Warn("rejected non-list input", zap.Error(err))
		return err
	}

	switch op {
	case "=>", "<=>":
		_, err := r.engine.AddRule(t, r.priority(t, source))
		if err != nil {
			r.log.Warn("rule installation rejected", zap.Error(err))
		}
		return err
	case "exists":
		return r.routeExists(t, source, sourceNoteID)
	case "forall":
		return r.routeForall(t, source, sourceNoteID)
	default:
		return r.routeGroundFact(t, source, sourceNoteID)
	}
}

// routeExists implements spec.md §4.10's `exists` case: top-level
// skolemization under an empty context, then submit the skolemized body as
// a SKOLEMIZED candidate (the KB derives the SKOLEMIZED classification
// itself from the skolem marker left in the term). The arity check mirrors
// routeForall's: Engine.Skolemize silently returns t unchanged when it
// isn't a well-formed `(exists <varspec> body)`, so without this check a
// malformed exists term would fall through to submit as an (incorrectly)
// GROUND fact, possibly still carrying a free variable.
func (r *Router) routeExists(t term.Term, source Source, sourceNoteID string) error {
	children := t.Children()
	if len(children) != 3 {
		err := &kerr.InvalidTermShape{Reason: "exists must have exactly a varspec and a body", Term: t.KIFString()}
		r.log.Warn("rejected malformed exists", zap.Error(err))
		return err
	}
	return r.submit(r.engine.Skolemize(t), source, sourceNoteID)
}

// routeForall implements spec.md §4.10's `forall` case: a rule-shaped body
// installs as a rule (or rule pair, for `<=>`); otherwise, if forward
// instantiation is enabled, the whole quantified term is submitted as a
// UNIVERSAL candidate.
func (r *Router) routeForall(t term.Term, source Source, sourceNoteID string) error {
	children := t.Children()
	if len(children) != 3 {
		err := &kerr.InvalidTermShape{Reason: "forall must have exactly a varspec and a body", Term: t.KIFString()}
		r.log.Warn("rejected malformed forall", zap.Error(err))
		return err
	}
	body := children[2]
	if bodyOp, ok := body.Operator(); ok && (bodyOp == "=>" || bodyOp == "<=>") {
		_, err := r.engine.AddRule(body, r.priority(t, source))
		if err != nil {
			r.log.Warn("forall-derived rule installation rejected", zap.Error(err))
		}
		return err
	}
	if !r.cfg.EnableForwardInstantiation {
		return nil
	}
	return r.submit(t, source, sourceNoteID)
}

// routeGroundFact implements spec.md §4.10's final case: a closed (no free
// variables) list, validated for `not` shape, classified GROUND or
// SKOLEMIZED by the KB's own skolem-marker check at commit time.
func (r *Router) routeGroundFact(t term.Term, source Source, sourceNoteID string) error {
	if op, ok := t.Operator(); ok && op == "not" {
		children := t.Children()
		if len(children) != 2 || !children[1].IsList() {
			err := &kerr.InvalidTermShape{Reason: "not must wrap exactly one list argument", Term: t.KIFString()}
			r.log.Warn("rejected malformed negation", zap.Error(err))
			return err
		}
	}
	if t.ContainsVariable() {
		err := &kerr.InvalidTermShape{Reason: "ground fact input must be closed (no free variables)", Term: t.KIFString()}
		r.log.Warn("rejected non-ground input", zap.Error(err))
		return err
	}
	return r.submit(t, source, sourceNoteID)
}

// submit builds a depth-0, empty-support PotentialAssertion from t and
// offers it to the Engine's Commit Queue directly, bypassing the
// derivation limits that only bound internally generated candidates.
func (r *Router) submit(t term.Term, source Source, sourceNoteID string) error {
	pa := kb.PotentialAssertion{
		KIF:          t,
		Priority:     r.priority(t, source),
		SourceNoteID: sourceNoteID,
	}
	if !r.engine.SubmitInput(pa) {
		err := &kerr.QueueSaturation{Queue: "commit"}
		r.log.Warn("commit queue saturated, input dropped", zap.Error(err), zap.String("source", source.String()))
		return err
	}
	return nil
}

// priority implements spec.md §4.10's input priority baseline:
// BASE / (1 + weight).
func (r *Router) priority(t term.Term, source Source) float64 {
	return source.base() / float64(1+t.Weight())
}
