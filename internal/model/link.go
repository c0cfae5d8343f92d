package model

import (
	"errors"
	"fmt"
)

// Scope resolves names visible inside a method body or an assertion: members of the
// class, then parameters and locals of Method when it is set.
type Scope struct {
	Class  *ClassModel
	Method *Method
}

// Lookup finds the variable a bare name refers to
func (s Scope) Lookup(name string) *Variable {
	if s.Method != nil {
		if v := s.Method.Lookup(name); v != nil {
			return v
		}
	}
	return s.Class.Member(name)
}

// ResolveFunc is called for every name Resolve cannot bind
type ResolveFunc func(e Expression, reason string)

// Resolve binds variable references, member accesses and null literals inside e.
// Nodes that cannot be bound are reported through fail and left unbound.
func Resolve(e Expression, scope Scope, fail ResolveFunc) {
	switch n := e.(type) {
	case *VariableRef:
		if n.ViaThis {
			n.Var = scope.Class.Member(n.Name)
		} else {
			n.Var = scope.Lookup(n.Name)
		}
		if n.Var == nil {
			fail(n, fmt.Sprintf("unknown name %q", n.Name))
		}
	case *Paren:
		Resolve(n.Inner, scope, fail)
	case *Unary:
		Resolve(n.Operand, scope, fail)
	case *Binary:
		Resolve(n.Left, scope, fail)
		Resolve(n.Right, scope, fail)
	case *Comparison:
		Resolve(n.Left, scope, fail)
		Resolve(n.Right, scope, fail)
		bindNull(n.Left, n.Right)
		bindNull(n.Right, n.Left)
	case *Logical:
		Resolve(n.Left, scope, fail)
		Resolve(n.Right, scope, fail)
	case *NewArray:
		Resolve(n.Length, scope, fail)
	case *MemberAccess:
		Resolve(n.Object, scope, fail)
		ot := n.Object.Type()
		switch {
		case ot == nil:
		case ot.Kind == Array && n.Member == "Length":
		case ot.Kind == Reference:
			cls := scope.Class.Class(ot.ClassName)
			if cls == nil {
				fail(n, fmt.Sprintf("unknown class %q", ot.ClassName))
				return
			}
			n.Var = cls.Member(n.Member)
			if n.Var == nil {
				fail(n, fmt.Sprintf("%s has no member %q", ot.ClassName, n.Member))
			}
		default:
			fail(n, fmt.Sprintf("member access on %s", ot))
		}
	case *ElementAccess:
		Resolve(n.Array, scope, fail)
		Resolve(n.Index, scope, fail)
	}
}

func bindNull(target, other Expression) {
	if null, ok := target.(*NullLiteral); ok && null.Of == nil {
		null.Of = other.Type()
	}
}

// ResolveStatements binds every expression and call in a statement list
func ResolveStatements(stmts []Statement, scope Scope, fail ResolveFunc) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *Assignment:
			Resolve(n.Target, scope, fail)
			Resolve(n.Value, scope, fail)
			if null, ok := n.Value.(*NullLiteral); ok && null.Of == nil {
				null.Of = n.Target.Type()
			}
		case *Conditional:
			Resolve(n.Condition, scope, fail)
			ResolveStatements(n.Then, scope, fail)
			ResolveStatements(n.Else, scope, fail)
		case *Return:
			if n.Value != nil {
				Resolve(n.Value, scope, fail)
			}
		case *MethodCall:
			n.Callee = scope.Class.Method(n.Method)
			if n.Callee == nil {
				fail(nil, fmt.Sprintf("unknown method %q", n.Method))
			}
			for _, a := range n.Args {
				Resolve(a, scope, fail)
			}
			if n.Dest != nil {
				Resolve(n.Dest, scope, fail)
			}
		case *ForLoop:
			Resolve(n.Index, scope, fail)
			Resolve(n.From, scope, fail)
			Resolve(n.To, scope, fail)
			ResolveStatements(n.Body, scope, fail)
		}
	}
}

// Link re-binds every name in a decoded model. It fails on the first name that cannot
// be bound, which means the model was not produced by a conforming front-end.
func (c *ClassModel) Link() error {
	var errs []error
	fail := func(_ Expression, reason string) {
		errs = append(errs, errors.New(reason))
	}
	for _, dep := range c.Dependencies {
		for _, m := range dep.Members() {
			if m.Initializer != nil {
				Resolve(m.Initializer, Scope{Class: dep}, fail)
			}
		}
	}
	for _, m := range c.Members() {
		if m.Initializer != nil {
			Resolve(m.Initializer, Scope{Class: c}, fail)
		}
	}
	for _, inv := range c.Invariants {
		Resolve(inv.Expr, Scope{Class: c}, fail)
	}
	for _, m := range c.Methods {
		scope := Scope{Class: c, Method: m}
		for _, v := range m.Locals {
			if v.Initializer != nil {
				Resolve(v.Initializer, scope, fail)
			}
		}
		for _, a := range m.Requires {
			Resolve(a.Expr, scope, fail)
		}
		for _, a := range m.Ensures {
			Resolve(a.Expr, scope, fail)
		}
		ResolveStatements(m.Body, scope, fail)
	}
	if len(errs) > 0 {
		return fmt.Errorf("link %s: %w", c.Name, errors.Join(errs...))
	}
	return nil
}
