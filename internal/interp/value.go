package interp

import (
	"fmt"
	"strconv"

	"github.com/lhaig/boundcheck/internal/model"
)

// Value is a runtime value: int64, float64, bool, *Object, *Array, or nil for null
type Value any

// Object is an instance of a class model
type Object struct {
	ID     int
	Class  *model.ClassModel
	Fields map[string]Value
}

// Array is a fixed-length array
type Array struct {
	ID    int
	Elem  *model.Type
	Items []Value
}

// Zero returns the default value of t
func Zero(t *model.Type) Value {
	switch t.Kind {
	case model.Boolean:
		return false
	case model.Integer:
		return int64(0)
	case model.FloatingPoint:
		return float64(0)
	default:
		return nil
	}
}

// convert widens ints stored into double variables
func convert(v Value, t *model.Type) Value {
	if t != nil && t.Kind == model.FloatingPoint {
		if i, ok := v.(int64); ok {
			return float64(i)
		}
	}
	return v
}

// Format renders v the way counterexamples print values
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return fmt.Sprintf("%g", x)
	case bool:
		return strconv.FormatBool(x)
	case *Object:
		return fmt.Sprintf("object#%d", x.ID)
	case *Array:
		return fmt.Sprintf("array#%d", x.ID)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// ParseValue reads a primitive value printed by Format for a variable of type t
func ParseValue(text string, t *model.Type) (Value, error) {
	switch t.Kind {
	case model.Boolean:
		return strconv.ParseBool(text)
	case model.Integer:
		return strconv.ParseInt(text, 10, 64)
	case model.FloatingPoint:
		return strconv.ParseFloat(text, 64)
	}
	if text == "null" {
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s value %q", ErrNotReplayable, t, text)
}

func asBool(v Value) bool {
	b, _ := v.(bool)
	return b
}

// numbers returns both operands as floats when either is a float
func numbers(l, r Value) (li, ri int64, lf, rf float64, isFloat bool) {
	lf, lok := l.(float64)
	rf, rok := r.(float64)
	if !lok && !rok {
		return l.(int64), r.(int64), 0, 0, false
	}
	if !lok {
		lf = float64(l.(int64))
	}
	if !rok {
		rf = float64(r.(int64))
	}
	return 0, 0, lf, rf, true
}

func equal(l, r Value) bool {
	switch l.(type) {
	case int64, float64:
		li, ri, lf, rf, isFloat := numbers(l, r)
		if isFloat {
			return lf == rf
		}
		return li == ri
	}
	return l == r
}
