package registry

import (
	"fmt"
	"strings"
)

// SelectorOp is one label-selector comparison operator (§4.2): equality,
// inequality, set membership/non-membership, and existence checks.
type SelectorOp string

const (
	OpEquals    SelectorOp = "="
	OpNotEquals SelectorOp = "!="
	OpIn        SelectorOp = "in"
	OpNotIn     SelectorOp = "notin"
	OpExists    SelectorOp = "exists"
	OpNotExists SelectorOp = "not-exists"
)

// Requirement is a single label term, e.g. "region=eu" or "tier in
// (gold, silver)".
type Requirement struct {
	Key    string
	Op     SelectorOp
	Values []string
}

// Selector is a conjunction of Requirements — every requirement must
// match for the label set to be selected.
type Selector struct {
	Requirements []Requirement
}

// Matches reports whether labels satisfies every requirement. `exists`
// matches any value including the empty string, per §8's invariant.
func (s Selector) Matches(labels map[string]string) bool {
	for _, r := range s.Requirements {
		if !r.matches(labels) {
			return false
		}
	}
	return true
}

func (r Requirement) matches(labels map[string]string) bool {
	v, present := labels[r.Key]
	switch r.Op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	case OpEquals:
		return present && len(r.Values) == 1 && v == r.Values[0]
	case OpNotEquals:
		// a=v and a!=v are mutually exclusive (§8): a!=v is satisfied
		// whenever the key is absent too.
		return !present || len(r.Values) != 1 || v != r.Values[0]
	case OpIn:
		if !present {
			return false
		}
		for _, want := range r.Values {
			if v == want {
				return true
			}
		}
		return false
	case OpNotIn:
		if !present {
			return true
		}
		for _, want := range r.Values {
			if v == want {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ParseSelector parses a comma-separated label selector expression, e.g.
// `region=eu,tier in (gold,silver),!deprecated,owner`, where a bare key
// is an existence check.
func ParseSelector(expr string) (Selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Selector{}, nil
	}

	var sel Selector
	for _, term := range splitTopLevel(expr, ',') {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		req, err := parseRequirement(term)
		if err != nil {
			return Selector{}, err
		}
		sel.Requirements = append(sel.Requirements, req)
	}
	return sel, nil
}

func parseRequirement(term string) (Requirement, error) {
	switch {
	case strings.HasPrefix(term, "!"):
		return Requirement{Key: strings.TrimSpace(term[1:]), Op: OpNotExists}, nil
	case strings.Contains(term, "!="):
		parts := strings.SplitN(term, "!=", 2)
		return Requirement{Key: strings.TrimSpace(parts[0]), Op: OpNotEquals, Values: []string{strings.TrimSpace(parts[1])}}, nil
	case strings.Contains(term, " notin "):
		return parseSetTerm(term, " notin ", OpNotIn)
	case strings.Contains(term, " in "):
		return parseSetTerm(term, " in ", OpIn)
	case strings.Contains(term, "="):
		parts := strings.SplitN(term, "=", 2)
		return Requirement{Key: strings.TrimSpace(parts[0]), Op: OpEquals, Values: []string{strings.TrimSpace(parts[1])}}, nil
	default:
		return Requirement{Key: strings.TrimSpace(term), Op: OpExists}, nil
	}
}

func parseSetTerm(term, sep string, op SelectorOp) (Requirement, error) {
	parts := strings.SplitN(term, sep, 2)
	key := strings.TrimSpace(parts[0])
	rest := strings.TrimSpace(parts[1])
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	if rest == "" {
		return Requirement{}, fmt.Errorf("invalid set selector %q: empty value list", term)
	}
	var values []string
	for _, v := range strings.Split(rest, ",") {
		values = append(values, strings.TrimSpace(v))
	}
	return Requirement{Key: key, Op: op, Values: values}, nil
}

// splitTopLevel splits on sep, but not inside a parenthesized group, so
// "tier in (a,b),x=y" splits into two terms rather than three.
func splitTopLevel(s string, sep byte) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}
