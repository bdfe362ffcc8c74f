package program

import (
	"fmt"

	"github.com/roach88/ripple/internal/ir"
)

// guard evaluates a when clause against the world. An absent subject reads
// as zero for ordering ops, matching add_resource's counter semantics.
func (p *Program) guard(s scope, g *ir.GuardSpec) (bool, error) {
	cur, present, err := p.subject(s, g)
	if err != nil {
		return false, err
	}

	switch g.Op {
	case "exists":
		return present, nil
	case "absent":
		return !present, nil
	}

	want, err := p.value(s, g.Value)
	if err != nil {
		return false, err
	}

	switch g.Op {
	case "eq":
		return present && ir.Equal(cur, want), nil
	case "ne":
		return !present || !ir.Equal(cur, want), nil
	case "lt", "le", "gt", "ge":
		a, ok := ir.AsInt(cur)
		if !ok {
			return false, nil
		}
		b, ok := want.(ir.Int)
		if !ok {
			return false, fmt.Errorf("%s needs an integer, got %s", g.Op, ir.Format(want))
		}
		return compare(g.Op, a, int64(b)), nil
	}
	return false, fmt.Errorf("unknown guard op %q", g.Op)
}

func (p *Program) subject(s scope, g *ir.GuardSpec) (ir.Value, bool, error) {
	if g.Resource != "" {
		v, ok := s.view.Resource(g.Resource)
		return v, ok, nil
	}
	e, err := p.entity(s, g.Target)
	if err != nil {
		return nil, false, err
	}
	v, ok := s.view.Component(e, g.Component)
	return v, ok, nil
}

func compare(op string, a, b int64) bool {
	switch op {
	case "lt":
		return a < b
	case "le":
		return a <= b
	case "gt":
		return a > b
	default:
		return a >= b
	}
}
