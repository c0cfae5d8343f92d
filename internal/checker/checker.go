package checker

import (
	"fmt"
	"strings"

	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/model"
)

// ContractContext tracks where we are during checking for contract validation
type ContractContext int

const (
	CtxNormal      ContractContext = iota // Method body
	CtxInitializer                        // Member initializer
	CtxRequires                           // Require comment
	CtxEnsures                            // Ensure comment
	CtxInvariant                          // Invariant comment
)

func (c ContractContext) isContract() bool {
	return c == CtxRequires || c == CtxEnsures || c == CtxInvariant
}

// issue is the first problem found in a statement or an assertion. Node is the
// offending expression, or nil when the statement as a whole is the problem.
type issue struct {
	node   model.Expression
	reason string
}

func (i *issue) Error() string { return i.reason }

func fail(node model.Expression, format string, args ...any) *issue {
	return &issue{node: node, reason: fmt.Sprintf(format, args...)}
}

// Checker validates a parsed class against the restricted language. Everything it
// cannot accept is filed under the class's Unsupported accumulator; nothing is
// removed from the model.
type Checker struct {
	class  *model.ClassModel
	method *model.Method
	scope  *Scope
	ctx    ContractContext
	loops  []*model.Variable // indexes of the enclosing for loops
}

// Check validates every class parsed from one source. The diagnostics hold a warning
// for each unsupported element, including the ones the parser already rejected.
func Check(classes []*model.ClassModel) *diagnostic.Diagnostics {
	checkers := make([]*Checker, len(classes))
	for i, c := range classes {
		if c.Unsupported == nil {
			c.Unsupported = &model.Unsupported{}
		}
		checkers[i] = &Checker{class: c}
		checkers[i].checkDeclarations()
	}
	for _, ch := range checkers {
		ch.checkBodies()
	}
	for _, c := range classes {
		checkDependencies(c)
	}

	diags := diagnostic.New()
	for _, c := range classes {
		for _, el := range c.Unsupported.All() {
			diags.Unsupported(c.Name, el)
		}
	}
	diags.Sort()
	return diags
}

// --- Declarations ---

func (ch *Checker) checkDeclarations() {
	c := ch.class
	ch.scope = NewScope(nil)
	for _, v := range c.Members() {
		if reason := ch.declare(ch.scope, v); reason != "" {
			c.Unsupported.Reject(memberCategory(v), declText(v), v.Location, reason)
		}
	}

	seen := make(map[string]bool)
	for _, m := range c.Methods {
		reject := func(reason string) {
			c.Unsupported.Reject(model.UnsupportedMethod, signature(m), m.Location, reason)
		}
		switch {
		case seen[m.Name]:
			reject("overloaded methods are not supported")
			continue
		case c.Member(m.Name) != nil:
			reject(fmt.Sprintf("method %q has the same name as a member", m.Name))
		}
		seen[m.Name] = true
		if err := canonicalType(c, m.ReturnType); err != nil {
			reject(err.Error())
		}

		scope := NewScope(ch.scope)
		for _, p := range m.Parameters {
			if reason := ch.declare(scope, p); reason != "" {
				c.Unsupported.Reject(model.UnsupportedParameter, declText(p), p.Location, reason)
			}
		}
		for _, l := range m.Locals {
			if reason := ch.declare(scope, l); reason != "" {
				c.Unsupported.Reject(model.UnsupportedLocal, declText(l), l.Location, reason)
			}
		}
	}
}

func (ch *Checker) declare(scope *Scope, v *model.Variable) string {
	if err := canonicalType(ch.class, v.Type); err != nil {
		return err.Error()
	}
	if v.Type.Kind == model.Void {
		return fmt.Sprintf("%s %q cannot be void", v.Kind, v.Name)
	}
	if err := scope.Define(v); err != nil {
		return err.Error()
	}
	return ""
}

func memberCategory(v *model.Variable) model.Category {
	if v.Kind == model.PropertyVar {
		return model.UnsupportedProperty
	}
	return model.UnsupportedField
}

func declText(v *model.Variable) string {
	return fmt.Sprintf("%s %s", v.Type, v.Name)
}

func signature(m *model.Method) string {
	params := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		params[i] = declText(p)
	}
	return fmt.Sprintf("%s %s %s(%s)", m.Access, m.ReturnType, m.Name, strings.Join(params, ", "))
}

// --- Bodies ---

func (ch *Checker) checkBodies() {
	c := ch.class
	classScope := model.Scope{Class: c}

	ch.method = nil
	ch.ctx = CtxInitializer
	for _, v := range c.Members() {
		if v.Initializer == nil {
			continue
		}
		if err := ch.checkInitializer(v, classScope); err != nil {
			c.Unsupported.Reject(memberCategory(v), declText(v)+" = "+model.Render(v.Initializer), v.Location, err.Error())
		}
	}

	ch.ctx = CtxInvariant
	for _, inv := range c.Invariants {
		if err := ch.condition(inv.Expr, classScope); err != nil {
			c.Unsupported.Reject(model.UnsupportedInvariant, inv.Text, inv.Location, err.Error())
		}
	}

	for _, m := range c.Methods {
		ch.method = m
		scope := model.Scope{Class: c, Method: m}

		ch.ctx = CtxRequires
		for _, a := range m.Requires {
			if err := ch.condition(a.Expr, scope); err != nil {
				c.Unsupported.Reject(model.UnsupportedRequire, a.Text, a.Location, err.Error())
			}
		}
		ch.ctx = CtxEnsures
		for _, a := range m.Ensures {
			if err := ch.condition(a.Expr, scope); err != nil {
				c.Unsupported.Reject(model.UnsupportedEnsure, a.Text, a.Location, err.Error())
			}
		}

		ch.ctx = CtxNormal
		ch.loops = nil
		ch.checkBlock(m.Body, scope)
	}
	ch.method = nil
}

// checkInitializer accepts constants, new C() and new T[n] with a constant length
func (ch *Checker) checkInitializer(v *model.Variable, scope model.Scope) error {
	init := v.Initializer
	switch n := init.(type) {
	case *model.NewObject:
		if hasInitializerCycle(ch.class, n.ClassName, map[string]bool{ch.class.Name: true}) {
			return fmt.Errorf("initializer builds an unbounded chain of %s objects", n.ClassName)
		}
	case *model.NewArray:
		length, ok := n.Length.(*model.IntLiteral)
		if !ok {
			return fmt.Errorf("array length in an initializer must be a constant")
		}
		if length.Value < 0 {
			return fmt.Errorf("array length %d is negative", length.Value)
		}
	default:
		if !isConstant(init) {
			return fmt.Errorf("initializers must be constants, new C() or new T[n]")
		}
	}
	bindNull(init, v.Type)
	t, err := ch.expr(init, scope)
	if err != nil {
		return err
	}
	if !isAssignable(v.Type, t) {
		return fmt.Errorf("cannot initialize %s with a %s value", v.Type, t)
	}
	return nil
}

func hasInitializerCycle(c *model.ClassModel, name string, stack map[string]bool) bool {
	cls := c.Class(name)
	if cls == nil {
		return false
	}
	if stack[cls.Name] {
		return true
	}
	stack[cls.Name] = true
	defer delete(stack, cls.Name)
	for _, m := range cls.Members() {
		if n, ok := m.Initializer.(*model.NewObject); ok && hasInitializerCycle(c, n.ClassName, stack) {
			return true
		}
	}
	return false
}

func (ch *Checker) checkBlock(stmts []model.Statement, scope model.Scope) {
	for i, s := range stmts {
		if _, ok := s.(*model.Return); ok && i < len(stmts)-1 {
			next := stmts[i+1]
			ch.class.Unsupported.Reject(model.UnsupportedStatement, stmtText(next), next.Loc(), "unreachable code after return")
		}
		if err := ch.checkStatement(s, scope); err != nil {
			ch.rejectIssue(s, err)
		}
	}
}

func (ch *Checker) rejectIssue(s model.Statement, err *issue) {
	if err.node != nil {
		ch.class.Unsupported.Reject(model.UnsupportedExpression, model.Render(err.node), err.node.Loc(), err.reason)
		return
	}
	ch.class.Unsupported.Reject(model.UnsupportedStatement, stmtText(s), s.Loc(), err.reason)
}

func stmtText(s model.Statement) string {
	return strings.TrimSpace(model.RenderStatements([]model.Statement{s}, 0))
}

func (ch *Checker) checkStatement(s model.Statement, scope model.Scope) *issue {
	switch n := s.(type) {
	case *model.Assignment:
		tt, err := ch.target(n.Target, scope)
		if err != nil {
			return err
		}
		bindNull(n.Value, tt)
		vt, err := ch.expr(n.Value, scope)
		if err != nil {
			return err
		}
		if !isAssignable(tt, vt) {
			return fail(nil, "cannot assign %s to %s", vt, tt)
		}

	case *model.Conditional:
		if err := ch.condition(n.Condition, scope); err != nil {
			return err
		}
		ch.checkBlock(n.Then, scope)
		ch.checkBlock(n.Else, scope)

	case *model.Return:
		rt := ch.method.ReturnType
		if n.Value == nil {
			if rt.Kind != model.Void {
				return fail(nil, "%s must return a %s value", ch.method.Name, rt)
			}
			return nil
		}
		if rt.Kind == model.Void {
			return fail(nil, "void method %s cannot return a value", ch.method.Name)
		}
		bindNull(n.Value, rt)
		vt, err := ch.expr(n.Value, scope)
		if err != nil {
			return err
		}
		if !isAssignable(rt, vt) {
			return fail(n.Value, "cannot return %s from a method returning %s", vt, rt)
		}

	case *model.MethodCall:
		return ch.call(n, scope)

	case *model.ForLoop:
		if _, err := ch.expr(n.Index, scope); err != nil {
			return err
		}
		for _, outer := range ch.loops {
			if outer == n.Index.Var {
				return fail(nil, "nested loop reuses the index %s", n.Index.Name)
			}
		}
		for _, bound := range []model.Expression{n.From, n.To} {
			t, err := ch.expr(bound, scope)
			if err != nil {
				return err
			}
			if t.Kind != model.Integer {
				return fail(bound, "loop bounds must be int, got %s", t)
			}
		}
		ch.loops = append(ch.loops, n.Index.Var)
		ch.checkBlock(n.Body, scope)
		ch.loops = ch.loops[:len(ch.loops)-1]
	}
	return nil
}

// target checks the left-hand side of an assignment and returns its type
func (ch *Checker) target(e model.Expression, scope model.Scope) (*model.Type, *issue) {
	t, err := ch.expr(e, scope)
	if err != nil {
		return nil, err
	}
	switch n := e.(type) {
	case *model.VariableRef:
		for _, index := range ch.loops {
			if n.Var == index {
				return nil, fail(nil, "loop index %s cannot be assigned inside the loop", n.Name)
			}
		}
	case *model.MemberAccess:
		if n.IsArrayLength() {
			return nil, fail(nil, "the length of an array cannot be assigned")
		}
	}
	return t, nil
}

func (ch *Checker) call(n *model.MethodCall, scope model.Scope) *issue {
	if n.Callee == nil {
		n.Callee = ch.class.Method(n.Method)
	}
	callee := n.Callee
	if callee == nil {
		return fail(nil, "unknown method %q", n.Method)
	}
	if ch.method.IsStatic && !callee.IsStatic {
		return fail(nil, "static method %s cannot call instance method %s", ch.method.Name, callee.Name)
	}
	if len(n.Args) != len(callee.Parameters) {
		return fail(nil, "%s expects %d arguments, got %d", callee.Name, len(callee.Parameters), len(n.Args))
	}
	for i, a := range n.Args {
		p := callee.Parameters[i]
		bindNull(a, p.Type)
		at, err := ch.expr(a, scope)
		if err != nil {
			return err
		}
		if !isAssignable(p.Type, at) {
			return fail(a, "cannot pass %s as parameter %s of type %s", at, p.Name, p.Type)
		}
	}
	if n.Dest == nil {
		return nil
	}
	if callee.ReturnType.Kind == model.Void {
		return fail(nil, "%s does not return a value", callee.Name)
	}
	dt, err := ch.target(n.Dest, scope)
	if err != nil {
		return err
	}
	if !isAssignable(dt, callee.ReturnType) {
		return fail(nil, "cannot assign %s to %s", callee.ReturnType, dt)
	}
	return nil
}

// --- Expressions ---

func (ch *Checker) condition(e model.Expression, scope model.Scope) *issue {
	t, err := ch.expr(e, scope)
	if err != nil {
		return err
	}
	if t.Kind != model.Boolean {
		return fail(e, "condition must be bool, got %s", t)
	}
	return nil
}

// expr binds the names in e and returns its type
func (ch *Checker) expr(e model.Expression, scope model.Scope) (*model.Type, *issue) {
	var unresolved *issue
	model.Resolve(e, scope, func(n model.Expression, reason string) {
		if unresolved == nil {
			unresolved = &issue{node: n, reason: reason}
		}
	})
	if unresolved != nil {
		return nil, unresolved
	}
	return ch.typeOf(e)
}

func (ch *Checker) typeOf(e model.Expression) (*model.Type, *issue) {
	switch n := e.(type) {
	case *model.BoolLiteral, *model.IntLiteral, *model.FloatLiteral:
		return e.Type(), nil

	case *model.NullLiteral:
		if n.Of == nil {
			return nil, fail(n, "the type of null cannot be inferred here")
		}
		if !n.Of.IsHeap() {
			return nil, fail(n, "null is not a %s value", n.Of)
		}
		return n.Of, nil

	case *model.VariableRef:
		v := n.Var
		switch {
		case v.IsResult && ch.ctx != CtxEnsures:
			return nil, fail(n, "%s is only available in Ensure comments", model.ResultName)
		case v.Kind == model.LocalVar && !v.IsResult && ch.ctx.isContract():
			return nil, fail(n, "local %s cannot be used in a contract", v.Name)
		case v.IsMember() && ch.method != nil && ch.method.IsStatic:
			return nil, fail(n, "static method %s cannot use member %s", ch.method.Name, v.Name)
		}
		return v.Type, nil

	case *model.Paren:
		return ch.typeOf(n.Inner)

	case *model.Unary:
		t, err := ch.typeOf(n.Operand)
		if err != nil {
			return nil, err
		}
		if n.Op == model.Not && t.Kind != model.Boolean {
			return nil, fail(n, "operator ! needs a bool operand, got %s", t)
		}
		if n.Op == model.Negate && !t.IsNumeric() {
			return nil, fail(n, "operator - needs a numeric operand, got %s", t)
		}
		return n.Type(), nil

	case *model.Binary:
		lt, rt, err := ch.operands(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		if !lt.IsNumeric() || !rt.IsNumeric() {
			return nil, fail(n, "operator %s needs numeric operands, got %s and %s", n.Op, lt, rt)
		}
		if n.Op == model.Rem && (lt.Kind == model.FloatingPoint || rt.Kind == model.FloatingPoint) {
			return nil, fail(n, "operator %% is only supported on int")
		}
		return n.Type(), nil

	case *model.Comparison:
		lt, rt, err := ch.operands(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case model.Eq, model.Ne:
			if !isComparable(lt, rt) {
				return nil, fail(n, "cannot compare %s with %s", lt, rt)
			}
		default:
			if !lt.IsNumeric() || !rt.IsNumeric() {
				return nil, fail(n, "operator %s needs numeric operands, got %s and %s", n.Op, lt, rt)
			}
		}
		return model.TypeBool, nil

	case *model.Logical:
		lt, rt, err := ch.operands(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		if lt.Kind != model.Boolean || rt.Kind != model.Boolean {
			return nil, fail(n, "operator %s needs bool operands, got %s and %s", n.Op, lt, rt)
		}
		return model.TypeBool, nil

	case *model.NewObject:
		if ch.ctx.isContract() {
			return nil, fail(n, "objects cannot be created in a contract")
		}
		target := ch.class.Class(n.ClassName)
		if target == nil {
			return nil, fail(n, "unknown class %q", n.ClassName)
		}
		n.ClassName = target.Name
		return n.Type(), nil

	case *model.NewArray:
		if ch.ctx.isContract() {
			return nil, fail(n, "arrays cannot be created in a contract")
		}
		if err := canonicalType(ch.class, model.ArrayOf(n.Elem)); err != nil {
			return nil, fail(n, "%s", err)
		}
		t, err := ch.typeOf(n.Length)
		if err != nil {
			return nil, err
		}
		if t.Kind != model.Integer {
			return nil, fail(n.Length, "array length must be int, got %s", t)
		}
		return n.Type(), nil

	case *model.MemberAccess:
		ot, err := ch.typeOf(n.Object)
		if err != nil {
			return nil, err
		}
		if t := n.Type(); t != nil {
			return t, nil
		}
		return nil, fail(n, "%s has no member %q", ot, n.Member)

	case *model.ElementAccess:
		at, it, err := ch.operands(n.Array, n.Index)
		if err != nil {
			return nil, err
		}
		if at.Kind != model.Array {
			return nil, fail(n, "cannot index a %s value", at)
		}
		if it.Kind != model.Integer {
			return nil, fail(n.Index, "array index must be int, got %s", it)
		}
		return at.Elem, nil
	}
	return nil, fail(e, "unsupported expression")
}

func (ch *Checker) operands(left, right model.Expression) (*model.Type, *model.Type, *issue) {
	lt, err := ch.typeOf(left)
	if err != nil {
		return nil, nil, err
	}
	rt, err := ch.typeOf(right)
	if err != nil {
		return nil, nil, err
	}
	return lt, rt, nil
}

func bindNull(e model.Expression, t *model.Type) {
	if null, ok := e.(*model.NullLiteral); ok && null.Of == nil {
		null.Of = t
	}
}

// --- Dependencies ---

// checkDependencies excludes a class that creates or declares objects of a class
// whose members could not be modeled
func checkDependencies(c *model.ClassModel) {
	for _, name := range referencedClasses(c) {
		dep := c.Class(name)
		if dep == nil || dep.Name == c.Name {
			continue
		}
		u := dep.Unsupported
		if u.InvalidDeclaration || len(u.Fields) > 0 || len(u.Properties) > 0 {
			c.Unsupported.Reject(model.UnsupportedDeclaration, dep.Name, c.Location,
				fmt.Sprintf("class %s has members that cannot be verified", dep.Name))
		}
	}
}

func referencedClasses(c *model.ClassModel) []string {
	seen := make(map[string]bool)
	var names []string
	addType := func(t *model.Type) {
		if t != nil && t.Kind == model.Reference && !seen[t.ClassName] {
			seen[t.ClassName] = true
			names = append(names, t.ClassName)
		}
	}
	visit := func(e model.Expression) {
		if n, ok := e.(*model.NewObject); ok {
			addType(n.Type())
		}
	}
	for _, v := range c.Members() {
		addType(v.Type)
		walkExpr(v.Initializer, visit)
	}
	for _, m := range c.Methods {
		addType(m.ReturnType)
		for _, v := range m.Parameters {
			addType(v.Type)
		}
		for _, v := range m.Locals {
			addType(v.Type)
		}
		walkStatements(m.Body, visit)
	}
	return names
}

func walkStatements(stmts []model.Statement, fn func(model.Expression)) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *model.Assignment:
			walkExpr(n.Target, fn)
			walkExpr(n.Value, fn)
		case *model.Conditional:
			walkExpr(n.Condition, fn)
			walkStatements(n.Then, fn)
			walkStatements(n.Else, fn)
		case *model.Return:
			walkExpr(n.Value, fn)
		case *model.MethodCall:
			for _, a := range n.Args {
				walkExpr(a, fn)
			}
			walkExpr(n.Dest, fn)
		case *model.ForLoop:
			walkExpr(n.From, fn)
			walkExpr(n.To, fn)
			walkStatements(n.Body, fn)
		}
	}
}

func walkExpr(e model.Expression, fn func(model.Expression)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case *model.Paren:
		walkExpr(n.Inner, fn)
	case *model.Unary:
		walkExpr(n.Operand, fn)
	case *model.Binary:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *model.Comparison:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *model.Logical:
		walkExpr(n.Left, fn)
		walkExpr(n.Right, fn)
	case *model.NewArray:
		walkExpr(n.Length, fn)
	case *model.MemberAccess:
		walkExpr(n.Object, fn)
	case *model.ElementAccess:
		walkExpr(n.Array, fn)
		walkExpr(n.Index, fn)
	}
}
