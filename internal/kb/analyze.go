package kb

import (
	"noema/internal/kerr"
	"noema/internal/term"
)

// assertionShape is the result of classifying a candidate KIF term per
// spec.md §4 Data Model's construction-time invariants: negation wrapper,
// universal wrapper plus quantified variables, GROUND/SKOLEMIZED kind, and
// the equality flags.
type assertionShape struct {
	kind               AssertionType
	negated            bool
	isEquality         bool
	isOrientedEquality bool
	quantifiedVars     []string
}

// analyzeTerm classifies t, validating the `not` and `forall` wrapper
// shapes spec.md requires ("is_negated ⇔ outermost operator is not", with
// negated form carrying exactly one list argument; UNIVERSAL ⇔ outermost
// operator is forall with non-empty quantified_vars"). Malformed wrappers
// are rejected with *kerr.InvalidTermShape rather than silently coerced.
func analyzeTerm(t term.Term) (assertionShape, error) {
	var shape assertionShape

	body := t
	if op, ok := t.Operator(); ok && op == "not" {
		children := t.Children()
		if len(children) != 2 || !children[1].IsList() {
			return shape, &kerr.InvalidTermShape{
				Reason: "not must wrap exactly one list argument",
				Term:   t.KIFString(),
			}
		}
		shape.negated = true
		body = children[1]
	}

	if op, ok := body.Operator(); ok && op == "forall" {
		vars, err := quantifiedVarsOf(body)
		if err != nil {
			return shape, err
		}
		if len(vars) == 0 {
			return shape, &kerr.InvalidTermShape{
				Reason: "forall requires at least one quantified variable",
				Term:   t.KIFString(),
			}
		}
		shape.kind = UNIVERSAL
		shape.quantifiedVars = vars
	} else if body.ContainsSkolem() {
		shape.kind = SKOLEMIZED
	} else {
		shape.kind = GROUND
	}

	if shape.kind != UNIVERSAL {
		if op, ok := body.Operator(); ok && op == "=" && !shape.negated {
			children := body.Children()
			if len(children) == 3 {
				shape.isEquality = true
				shape.isOrientedEquality = children[1].Weight() > children[2].Weight()
			}
		}
	}

	return shape, nil
}

// quantifiedVarsOf extracts the ordered variable names bound by a
// (forall <varspec> <body>) term, where varspec is a single variable or a
// list of variables. Any other varspec shape or arity is rejected.
func quantifiedVarsOf(t term.Term) ([]string, error) {
	children := t.Children()
	if len(children) != 3 {
		return nil, &kerr.InvalidTermShape{
			Reason: "forall must have exactly a varspec and a body",
			Term:   t.KIFString(),
		}
	}
	varspec := children[1]
	switch {
	case varspec.IsVar():
		return []string{varspec.Value()}, nil
	case varspec.IsList():
		out := make([]string, 0, len(varspec.Children()))
		for _, c := range varspec.Children() {
			if !c.IsVar() {
				return nil, &kerr.InvalidTermShape{
					Reason: "forall varspec list must contain only variables",
					Term:   t.KIFString(),
				}
			}
			out = append(out, c.Value())
		}
		return out, nil
	default:
		return nil, &kerr.InvalidTermShape{
			Reason: "forall varspec must be a variable or a list of variables",
			Term:   t.KIFString(),
		}
	}
}
