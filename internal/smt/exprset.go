package smt

// ExprSet is an aggregate value: the reference itself plus the values of the members
// of the object it refers to. Components of reference members are nested sets.
type ExprSet struct {
	Main       Expr
	Components []ExprSet
}

// Single wraps a primitive value
func Single(e Expr) ExprSet {
	return ExprSet{Main: e}
}

// Equal is element-wise equality of Main and all components, recursively. Sets of
// different shape compare their common prefix.
func (s ExprSet) Equal(other ExprSet) BoolExpr {
	parts := []BoolExpr{Eq(s.Main, other.Main)}
	n := min(len(s.Components), len(other.Components))
	for i := 0; i < n; i++ {
		parts = append(parts, s.Components[i].Equal(other.Components[i]))
	}
	return And(parts...)
}

// Flatten returns Main followed by every component in depth-first order
func (s ExprSet) Flatten() []Expr {
	out := []Expr{s.Main}
	for _, c := range s.Components {
		out = append(out, c.Flatten()...)
	}
	return out
}
