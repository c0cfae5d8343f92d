// Package interp executes class models on concrete values. It follows the same
// semantics as the bounded verifier and is used to replay and cross-check its findings.
package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/lhaig/boundcheck/internal/model"
)

var (
	// ErrPrecondition is returned when a public call is made with arguments its
	// requires reject. Such a call is not a violation.
	ErrPrecondition = errors.New("precondition of public method not met")
	// ErrLimit is returned when execution exceeds the step or call depth limit
	ErrLimit = errors.New("execution limit exceeded")
	// ErrNotReplayable is returned for counterexamples that cannot be executed
	ErrNotReplayable = errors.New("counterexample cannot be replayed")
)

// Failure is a property that failed during execution
type Failure struct {
	Kind     model.ViolationKind
	Method   string
	Location model.Location
	Text     string
	Message  string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s violation at %s: %s (%s)", f.Kind, f.Location.ID(), f.Message, f.Text)
}

// Limits bound an execution
type Limits struct {
	MaxSteps     int
	MaxCallDepth int
}

// DefaultLimits are generous enough for every bounded scenario
var DefaultLimits = Limits{MaxSteps: 100000, MaxCallDepth: 256}

type frame struct {
	method *model.Method
	this   *Object
	vars   map[*model.Variable]Value
}

// Machine holds one instance of the class under test and executes calls on it
type Machine struct {
	class    *model.ClassModel
	this     *Object
	frames   []*frame
	limits   Limits
	steps    int
	nextID   int
	contract bool
}

// New constructs the instance under test with its field initializers
func New(class *model.ClassModel, limits Limits) (*Machine, error) {
	m := &Machine{class: class, limits: limits}
	this, err := m.construct(class)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	m.this = this
	return m, nil
}

// This returns the instance under test
func (m *Machine) This() *Object { return m.this }

// Field returns the current value of a member of the instance under test
func (m *Machine) Field(name string) Value { return m.this.Fields[name] }

func (m *Machine) construct(class *model.ClassModel) (*Object, error) {
	m.nextID++
	obj := &Object{ID: m.nextID, Class: class, Fields: make(map[string]Value)}
	for _, v := range class.Members() {
		obj.Fields[v.Name] = Zero(v.Type)
	}
	m.frames = append(m.frames, &frame{this: obj, vars: map[*model.Variable]Value{}})
	defer m.pop()
	for _, v := range class.Members() {
		if v.Initializer == nil {
			continue
		}
		val, err := m.eval(v.Initializer)
		if err != nil {
			return nil, err
		}
		obj.Fields[v.Name] = convert(val, v.Type)
	}
	return obj, nil
}

func (m *Machine) pop() { m.frames = m.frames[:len(m.frames)-1] }

func (m *Machine) top() *frame { return m.frames[len(m.frames)-1] }

// Call runs a public method. Requires that do not hold yield ErrPrecondition;
// ensures that do not hold yield a *Failure.
func (m *Machine) Call(name string, args ...Value) (Value, error) {
	method := m.class.Method(name)
	if method == nil {
		return nil, fmt.Errorf("unknown method %q", name)
	}
	if len(args) != len(method.Parameters) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", name, len(method.Parameters), len(args))
	}
	f := m.enter(method, args)
	defer m.pop()

	for _, r := range method.Requires {
		ok, err := m.contractHolds(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s requires %s", ErrPrecondition, name, r.Text)
		}
	}
	return m.finish(f)
}

// CheckInvariants returns a *Failure for the first invariant that does not hold
func (m *Machine) CheckInvariants() error {
	m.frames = append(m.frames, &frame{this: m.this, vars: map[*model.Variable]Value{}})
	defer m.pop()
	for _, inv := range m.class.Invariants {
		ok, err := m.contractHolds(inv)
		if err != nil {
			return err
		}
		if !ok {
			return &Failure{
				Kind:     model.InvariantViolation,
				Location: inv.Location,
				Text:     inv.Text,
				Message:  "invariant does not hold",
			}
		}
	}
	return nil
}

func (m *Machine) enter(method *model.Method, args []Value) *frame {
	f := &frame{method: method, this: m.this, vars: make(map[*model.Variable]Value)}
	for i, p := range method.Parameters {
		f.vars[p] = convert(args[i], p.Type)
	}
	for _, l := range method.Locals {
		f.vars[l] = Zero(l.Type)
	}
	m.frames = append(m.frames, f)
	return f
}

// finish runs the body of the entered frame and checks its ensures
func (m *Machine) finish(f *frame) (Value, error) {
	if _, err := m.block(f.method.Body); err != nil {
		return nil, err
	}
	for _, e := range f.method.Ensures {
		ok, err := m.contractHolds(e)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &Failure{
				Kind:     model.EnsureViolation,
				Method:   f.method.Name,
				Location: e.Location,
				Text:     e.Text,
				Message:  "postcondition does not hold",
			}
		}
	}
	if r := f.method.Result(); r != nil {
		return f.vars[r], nil
	}
	return nil, nil
}

func (m *Machine) contractHolds(a *model.Assertion) (bool, error) {
	m.contract = true
	defer func() { m.contract = false }()
	v, err := m.eval(a.Expr)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", a.Text, err)
	}
	return asBool(v), nil
}

// block runs statements until one returns
func (m *Machine) block(stmts []model.Statement) (bool, error) {
	for _, s := range stmts {
		m.steps++
		if m.limits.MaxSteps > 0 && m.steps > m.limits.MaxSteps {
			return false, fmt.Errorf("%w: more than %d steps", ErrLimit, m.limits.MaxSteps)
		}
		returned, err := m.statement(s)
		if err != nil || returned {
			return returned, err
		}
	}
	return false, nil
}

func (m *Machine) statement(s model.Statement) (bool, error) {
	switch n := s.(type) {
	case *model.Assignment:
		val, err := m.eval(n.Value)
		if err != nil {
			return false, err
		}
		return false, m.assign(n.Target, val)

	case *model.Conditional:
		c, err := m.eval(n.Condition)
		if err != nil {
			return false, err
		}
		if asBool(c) {
			return m.block(n.Then)
		}
		return m.block(n.Else)

	case *model.Return:
		if n.Value != nil {
			val, err := m.eval(n.Value)
			if err != nil {
				return false, err
			}
			f := m.top()
			if r := f.method.Result(); r != nil {
				f.vars[r] = convert(val, r.Type)
			}
		}
		return true, nil

	case *model.MethodCall:
		return false, m.call(n)

	case *model.ForLoop:
		from, err := m.eval(n.From)
		if err != nil {
			return false, err
		}
		f := m.top()
		f.vars[n.Index.Var] = from
		for {
			to, err := m.eval(n.To)
			if err != nil {
				return false, err
			}
			i := f.vars[n.Index.Var].(int64)
			limit := to.(int64)
			if i > limit || (i == limit && !n.Inclusive) {
				return false, nil
			}
			returned, err := m.block(n.Body)
			if err != nil || returned {
				return returned, err
			}
			f.vars[n.Index.Var] = f.vars[n.Index.Var].(int64) + 1
		}

	default:
		return false, fmt.Errorf("unsupported statement %T", s)
	}
}

func (m *Machine) call(n *model.MethodCall) error {
	callee := n.Callee
	if callee == nil {
		return fmt.Errorf("%s: unresolved method %q", n.Location.ID(), n.Method)
	}
	if len(m.frames) > m.limits.MaxCallDepth {
		return fmt.Errorf("%w: call depth %d", ErrLimit, len(m.frames))
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := m.eval(a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	caller := m.top().method.Name
	f := m.enter(callee, args)
	for _, r := range callee.Requires {
		ok, err := m.contractHolds(r)
		if err != nil {
			m.pop()
			return err
		}
		if !ok {
			m.pop()
			return &Failure{
				Kind:     model.RequireViolation,
				Method:   callee.Name,
				Location: r.Location,
				Text:     r.Text,
				Message:  fmt.Sprintf("precondition of %s does not hold when called from %s at %s", callee.Name, caller, n.Location.ID()),
			}
		}
	}
	result, err := m.finish(f)
	m.pop()
	if err != nil {
		return err
	}
	if n.Dest != nil {
		return m.assign(n.Dest, result)
	}
	return nil
}

func (m *Machine) assign(target model.Expression, val Value) error {
	switch t := target.(type) {
	case *model.VariableRef:
		if t.Var == nil {
			return fmt.Errorf("%s: unresolved name %q", t.Location.ID(), t.Name)
		}
		val = convert(val, t.Var.Type)
		if t.Var.IsMember() {
			m.top().this.Fields[t.Var.Name] = val
		} else {
			m.top().vars[t.Var] = val
		}
		return nil

	case *model.MemberAccess:
		v, err := m.eval(t.Object)
		if err != nil {
			return err
		}
		obj, err := m.object(t.Object, v)
		if err != nil {
			return err
		}
		if t.Var == nil {
			return fmt.Errorf("%s: %s cannot be assigned", t.Location.ID(), model.Render(t))
		}
		obj.Fields[t.Var.Name] = convert(val, t.Var.Type)
		return nil

	case *model.ElementAccess:
		arr, i, err := m.element(t)
		if err != nil {
			return err
		}
		arr.Items[i] = convert(val, arr.Elem)
		return nil

	default:
		return fmt.Errorf("%s: %s cannot be assigned", target.Loc().ID(), model.Render(target))
	}
}

// fail reports an implicit runtime obligation that does not hold. Inside contracts
// the evaluation is undefined instead.
func (m *Machine) fail(node model.Expression, message string) error {
	if m.contract {
		return fmt.Errorf("%s: %s", node.Loc().ID(), message)
	}
	method := ""
	if f := m.top(); f.method != nil {
		method = f.method.Name
	}
	return &Failure{
		Kind:     model.AssumeViolation,
		Method:   method,
		Location: node.Loc(),
		Text:     model.Render(node),
		Message:  message,
	}
}

func (m *Machine) eval(e model.Expression) (Value, error) {
	switch n := e.(type) {
	case *model.BoolLiteral:
		return n.Value, nil
	case *model.IntLiteral:
		return n.Value, nil
	case *model.FloatLiteral:
		return n.Value, nil
	case *model.NullLiteral:
		return nil, nil

	case *model.VariableRef:
		if n.Var == nil {
			return nil, fmt.Errorf("%s: unresolved name %q", n.Location.ID(), n.Name)
		}
		if n.Var.IsMember() {
			return m.top().this.Fields[n.Var.Name], nil
		}
		return m.top().vars[n.Var], nil

	case *model.Paren:
		return m.eval(n.Inner)

	case *model.Unary:
		v, err := m.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case bool:
			return !x, nil
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
		return nil, fmt.Errorf("%s: %s applied to %T", n.Location.ID(), n.Op, v)

	case *model.Binary:
		l, err := m.eval(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := m.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return m.arith(n, l, r)

	case *model.Comparison:
		l, err := m.eval(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := m.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return compare(n.Op, l, r), nil

	case *model.Logical:
		l, err := m.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if n.Op == model.And && !asBool(l) {
			return false, nil
		}
		if n.Op == model.Or && asBool(l) {
			return true, nil
		}
		return m.eval(n.Right)

	case *model.NewObject:
		class := m.class.Class(n.ClassName)
		if class == nil {
			return nil, fmt.Errorf("%s: unknown class %q", n.Location.ID(), n.ClassName)
		}
		return m.construct(class)

	case *model.NewArray:
		v, err := m.eval(n.Length)
		if err != nil {
			return nil, err
		}
		length := v.(int64)
		if length < 0 {
			return nil, m.fail(n, "array length is negative")
		}
		m.nextID++
		arr := &Array{ID: m.nextID, Elem: n.Elem, Items: make([]Value, length)}
		for i := range arr.Items {
			arr.Items[i] = Zero(n.Elem)
		}
		return arr, nil

	case *model.MemberAccess:
		v, err := m.eval(n.Object)
		if err != nil {
			return nil, err
		}
		if n.IsArrayLength() {
			arr, ok := v.(*Array)
			if !ok {
				return nil, m.fail(n.Object, fmt.Sprintf("null dereference of %s", model.Render(n.Object)))
			}
			return int64(len(arr.Items)), nil
		}
		obj, err := m.object(n.Object, v)
		if err != nil {
			return nil, err
		}
		return obj.Fields[n.Var.Name], nil

	case *model.ElementAccess:
		arr, i, err := m.element(n)
		if err != nil {
			return nil, err
		}
		return arr.Items[i], nil

	default:
		return nil, fmt.Errorf("unsupported expression %T", e)
	}
}

func (m *Machine) object(node model.Expression, v Value) (*Object, error) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, m.fail(node, fmt.Sprintf("null dereference of %s", model.Render(node)))
	}
	return obj, nil
}

func (m *Machine) element(n *model.ElementAccess) (*Array, int64, error) {
	av, err := m.eval(n.Array)
	if err != nil {
		return nil, 0, err
	}
	iv, err := m.eval(n.Index)
	if err != nil {
		return nil, 0, err
	}
	arr, ok := av.(*Array)
	if !ok || arr == nil {
		return nil, 0, m.fail(n.Array, fmt.Sprintf("null dereference of %s", model.Render(n.Array)))
	}
	i := iv.(int64)
	if i < 0 || i >= int64(len(arr.Items)) {
		return nil, 0, m.fail(n, fmt.Sprintf("index %d is out of bounds of %s", i, model.Render(n.Array)))
	}
	return arr, i, nil
}

// arith follows C#: integer division truncates toward zero and the remainder takes
// the sign of the dividend
func (m *Machine) arith(n *model.Binary, l, r Value) (Value, error) {
	li, ri, lf, rf, isFloat := numbers(l, r)
	if (n.Op == model.Div || n.Op == model.Rem) && ((isFloat && rf == 0) || (!isFloat && ri == 0)) {
		return nil, m.fail(n, "division by zero")
	}
	if isFloat {
		switch n.Op {
		case model.Add:
			return lf + rf, nil
		case model.Sub:
			return lf - rf, nil
		case model.Mul:
			return lf * rf, nil
		case model.Div:
			return lf / rf, nil
		default:
			return math.Mod(lf, rf), nil
		}
	}
	switch n.Op {
	case model.Add:
		return li + ri, nil
	case model.Sub:
		return li - ri, nil
	case model.Mul:
		return li * ri, nil
	case model.Div:
		return li / ri, nil
	default:
		return li % ri, nil
	}
}

func compare(op model.CompareOp, l, r Value) bool {
	switch op {
	case model.Eq:
		return equal(l, r)
	case model.Ne:
		return !equal(l, r)
	}
	li, ri, lf, rf, isFloat := numbers(l, r)
	if isFloat {
		switch op {
		case model.Lt:
			return lf < rf
		case model.Le:
			return lf <= rf
		case model.Gt:
			return lf > rf
		default:
			return lf >= rf
		}
	}
	switch op {
	case model.Lt:
		return li < ri
	case model.Le:
		return li <= ri
	case model.Gt:
		return li > ri
	default:
		return li >= ri
	}
}
