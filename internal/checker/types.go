package checker

import (
	"fmt"

	"github.com/lhaig/boundcheck/internal/model"
)

// isAssignable reports whether a value of type from can be stored in a variable of
// type to. Integers widen to floating point; null fits every heap type.
func isAssignable(to, from *model.Type) bool {
	if to == nil || from == nil {
		return false
	}
	if to.Equal(from) {
		return true
	}
	return to.Kind == model.FloatingPoint && from.Kind == model.Integer
}

// isComparable reports whether == and != are defined between the two types
func isComparable(a, b *model.Type) bool {
	if a == nil || b == nil {
		return false
	}
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	return a.Equal(b)
}

// canonicalType rewrites class names to the qualified name of the class they
// resolve to and rejects types the engine cannot represent
func canonicalType(c *model.ClassModel, t *model.Type) error {
	if t == nil {
		return fmt.Errorf("missing type")
	}
	switch t.Kind {
	case model.Reference:
		target := c.Class(t.ClassName)
		if target == nil {
			return fmt.Errorf("unknown class %q", t.ClassName)
		}
		t.ClassName = target.Name
	case model.Array:
		if !t.Elem.IsPrimitive() {
			return fmt.Errorf("arrays of %s are not supported, only bool, int and double elements", t.Elem)
		}
	}
	return nil
}

// isConstant reports whether e is a literal, possibly negated
func isConstant(e model.Expression) bool {
	switch n := e.(type) {
	case *model.BoolLiteral, *model.IntLiteral, *model.FloatLiteral, *model.NullLiteral:
		return true
	case *model.Unary:
		if n.Op != model.Negate {
			return false
		}
		switch n.Operand.(type) {
		case *model.IntLiteral, *model.FloatLiteral:
			return true
		}
	case *model.Paren:
		return isConstant(n.Inner)
	}
	return false
}
