package verify

import (
	"fmt"
	"slices"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/objects"
	"github.com/lhaig/boundcheck/internal/smt"
)

// obligation ties a solver check back to the property it refutes
type obligation struct {
	check    int
	kind     model.ViolationKind
	method   string
	location model.Location
	text     string
	message  string
	labels   []string
	// invariant checks also evaluate each invariant so the failing one can be named
	invariants []*model.Assertion
}

type witness struct {
	label string
	expr  smt.Expr
}

// callFrame is one method activation. returned is the path condition under which
// the method has already executed a return.
type callFrame struct {
	method   *model.Method
	returned smt.BoolExpr
	returns  int
}

// executor encodes one call sequence
type executor struct {
	cfg         Config
	class       *model.ClassModel
	session     *smt.Session
	objs        *objects.Manager
	frames      []*callFrame
	guards      []smt.BoolExpr
	contract    bool
	report      bool
	sequence    []string
	args        []witness
	obligations []obligation
	// bounded names the loops and calls where a bound excluded executions
	bounded     []string
}

func newExecutor(cfg Config, class *model.ClassModel, session *smt.Session) *executor {
	return &executor{
		cfg:     cfg,
		class:   class,
		session: session,
		objs:    objects.NewManager(session, class, cfg.MaxReferenceDepth),
	}
}

// run encodes the initial state, every call of seq and the final invariant check.
// Only the last call is refuted; its prefix was checked as a shorter sequence.
func (x *executor) run(seq []*model.Method) error {
	for _, m := range seq {
		x.sequence = append(x.sequence, m.Name)
	}
	x.session.Comment("sequence %v", x.sequence)

	this, err := x.objs.NewObject(x.class, x.eval)
	if err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	if this.Expr.String() != smt.RefVal(objects.This).String() {
		return fmt.Errorf("initial state: object under verification allocated at %s", this.Expr)
	}

	for i, m := range seq {
		x.report = i == len(seq)-1
		if err := x.publicCall(i, m); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
	}
	x.report = true
	return x.checkInvariants()
}

func (x *executor) frame() *callFrame {
	return x.frames[len(x.frames)-1]
}

func (x *executor) methodName() string {
	if len(x.frames) == 0 {
		return ""
	}
	return x.frame().method.Name
}

func (x *executor) publicCall(i int, m *model.Method) error {
	x.session.Comment("call %d: %s", i+1, m.Name)
	x.frames = append(x.frames, &callFrame{method: m, returned: smt.False})
	defer func() { x.frames = x.frames[:len(x.frames)-1] }()

	for _, p := range m.Parameters {
		v := x.objs.Unknown(p)
		x.args = append(x.args, witness{label: fmt.Sprintf("%s#%d.%s", m.Name, i+1, p.Name), expr: v.Expr})
	}
	for _, l := range m.Locals {
		x.objs.CreateVariable(l, objects.This, nil)
	}

	for _, r := range m.Requires {
		c, err := x.contractCondition(r.Expr)
		if err != nil {
			return err
		}
		x.session.Assert(c)
	}

	if err := x.block(m.Body); err != nil {
		return err
	}
	return x.ensures(m)
}

func (x *executor) ensures(m *model.Method) error {
	for _, e := range m.Ensures {
		c, err := x.contractCondition(e.Expr)
		if err != nil {
			return err
		}
		x.prove(model.EnsureViolation, m.Name, e.Location, e.Text, "postcondition may not hold", c)
	}
	return nil
}

func (x *executor) checkInvariants() error {
	if len(x.class.Invariants) == 0 {
		return nil
	}
	terms := make([]smt.BoolExpr, len(x.class.Invariants))
	for i, inv := range x.class.Invariants {
		c, err := x.contractCondition(inv.Expr)
		if err != nil {
			return err
		}
		terms[i] = c
	}

	values := make([]smt.Expr, 0, len(terms))
	for _, t := range terms {
		values = append(values, t)
	}
	ws := x.witnesses()
	labels := make([]string, len(ws))
	for i, w := range ws {
		values = append(values, w.expr)
		labels[i] = w.label
	}

	idx := x.session.Refute("invariant", smt.True, smt.And(terms...), values...)
	x.obligations = append(x.obligations, obligation{
		check:      idx,
		kind:       model.InvariantViolation,
		message:    "invariant may not hold",
		labels:     labels,
		invariants: x.class.Invariants,
	})
	return nil
}

// prove refutes claim at the current point when reporting, then assumes it
func (x *executor) prove(kind model.ViolationKind, method string, loc model.Location, text, message string, claim smt.BoolExpr) {
	guard := smt.And(append([]smt.BoolExpr{x.objs.Branch()}, x.guards...)...)
	if x.report {
		ws := x.witnesses()
		values := make([]smt.Expr, len(ws))
		labels := make([]string, len(ws))
		for i, w := range ws {
			values[i] = w.expr
			labels[i] = w.label
		}
		label := fmt.Sprintf("%s %s at %s", kind, method, loc.ID())
		idx := x.session.Refute(label, guard, claim, values...)
		x.obligations = append(x.obligations, obligation{
			check:    idx,
			kind:     kind,
			method:   method,
			location: loc,
			text:     text,
			message:  message,
			labels:   labels,
		})
	}
	smt.AddToSolver(x.session, guard, claim)
}

// assume records an implicit runtime obligation of the code being executed
func (x *executor) assume(node model.Expression, message string, claim smt.BoolExpr) {
	if x.contract || claim.IsTrue() {
		return
	}
	x.prove(model.AssumeViolation, x.methodName(), node.Loc(), model.Render(node), message, claim)
}

// witnesses returns the call arguments so far and the current members of the
// object under verification
func (x *executor) witnesses() []witness {
	out := slices.Clone(x.args)
	for _, m := range x.class.Members() {
		out = append(out, witness{label: "this." + m.Name, expr: x.objs.Read(m.ScopedName(objects.This)).Expr})
	}
	return out
}

// violations maps solver answers back to properties. It also counts checks the
// solver could not decide.
func (x *executor) violations(results []smt.CheckResult) (out []model.Violation, unknown int) {
	for _, ob := range x.obligations {
		if ob.check >= len(results) {
			unknown++
			continue
		}
		r := results[ob.check]
		switch r.Status {
		case smt.Unknown:
			unknown++
			continue
		case smt.Unsat:
			continue
		}

		v := model.Violation{
			Kind:     ob.kind,
			Method:   ob.method,
			Location: ob.location,
			Text:     ob.text,
			Message:  ob.message,
			Sequence: slices.Clone(x.sequence),
		}
		values := r.Values
		if ob.invariants != nil {
			failing := ob.invariants[0]
			for i, inv := range ob.invariants {
				if i < len(values) && values[i] == "false" {
					failing = inv
					break
				}
			}
			v.Location, v.Text = failing.Location, failing.Text
			if len(values) >= len(ob.invariants) {
				values = values[len(ob.invariants):]
			}
		}
		if len(values) == len(ob.labels) && len(values) > 0 {
			v.Counterexample = make(map[string]string, len(values))
			for i, label := range ob.labels {
				v.Counterexample[label] = values[i]
			}
		}
		out = append(out, v)
	}
	return out, unknown
}

// --- statements ---

// block executes stmts. Once a statement may have returned, the rest of the block
// runs only on the paths that did not.
func (x *executor) block(stmts []model.Statement) error {
	f := x.frame()
	seen := f.returns
	for i, s := range stmts {
		if f.returns != seen {
			x.objs.BeginBranch(smt.Not(f.returned))
			err := x.block(stmts[i:])
			x.objs.EndBranch()
			return err
		}
		if err := x.statement(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *executor) statement(s model.Statement) error {
	switch n := s.(type) {
	case *model.Assignment:
		val, err := x.eval(n.Value)
		if err != nil {
			return err
		}
		return x.assignTo(n.Target, val)

	case *model.Conditional:
		c, err := x.condition(n.Condition)
		if err != nil {
			return err
		}
		x.objs.BeginBranch(c)
		if err := x.block(n.Then); err != nil {
			return err
		}
		if len(n.Else) > 0 {
			x.objs.ElseBranch()
			if err := x.block(n.Else); err != nil {
				return err
			}
		}
		x.objs.EndBranch()
		return nil

	case *model.Return:
		f := x.frame()
		if n.Value != nil {
			val, err := x.eval(n.Value)
			if err != nil {
				return err
			}
			result := f.method.Result()
			if result == nil {
				return fmt.Errorf("%s: return value in void method", n.Location.ID())
			}
			x.objs.Assign(result.ScopedName(objects.This), val)
		}
		f.returned = smt.Or(f.returned, x.objs.Branch())
		f.returns++
		return nil

	case *model.MethodCall:
		return x.call(n)

	case *model.ForLoop:
		from, err := x.eval(n.From)
		if err != nil {
			return err
		}
		x.objs.Assign(n.Index.Var.ScopedName(objects.This), from)
		return x.unroll(n, 0)

	default:
		return fmt.Errorf("unsupported statement %T", s)
	}
}

func (x *executor) assignTo(target model.Expression, val objects.Value) error {
	switch t := target.(type) {
	case *model.VariableRef:
		if t.Var == nil {
			return fmt.Errorf("%s: unresolved name %q", t.Location.ID(), t.Name)
		}
		x.objs.Assign(t.Var.ScopedName(objects.This), val)
		return nil

	case *model.MemberAccess:
		obj, err := x.eval(t.Object)
		if err != nil {
			return err
		}
		if t.Var == nil {
			return fmt.Errorf("%s: %s cannot be assigned", t.Location.ID(), model.Render(t))
		}
		x.nonNull(t.Object, obj)
		x.objs.WriteMember(obj, t.Var, val)
		return nil

	case *model.ElementAccess:
		arr, idx, err := x.element(t)
		if err != nil {
			return err
		}
		x.objs.WriteElement(arr, idx, val.Expr)
		return nil

	default:
		return fmt.Errorf("%s: %s cannot be assigned", target.Loc().ID(), model.Render(target))
	}
}

// unroll encodes iteration k of loop and, nested inside it, all later iterations.
// Executions that need more than MaxLoopUnroll iterations are excluded.
func (x *executor) unroll(loop *model.ForLoop, k int) error {
	key := loop.Index.Var.ScopedName(objects.This)
	index := x.objs.Read(key).Expr
	to, err := x.eval(loop.To)
	if err != nil {
		return err
	}
	cond := smt.Lt(index, to.Expr)
	if loop.Inclusive {
		cond = smt.Le(index, to.Expr)
	}
	if k == x.cfg.MaxLoopUnroll {
		x.cutOff(fmt.Sprintf("loop at %s explored for at most %d iterations", loop.Location.ID(), k))
		x.objs.Assume(smt.Not(cond))
		return nil
	}

	f := x.frame()
	x.objs.BeginBranch(cond)
	seen := f.returns
	if err := x.block(loop.Body); err != nil {
		return err
	}
	guarded := f.returns != seen
	if guarded {
		x.objs.BeginBranch(smt.Not(f.returned))
	}
	x.objs.Assign(key, objects.Prim(smt.Add(x.objs.Read(key).Expr, smt.IntVal(1))))
	if err := x.unroll(loop, k+1); err != nil {
		return err
	}
	if guarded {
		x.objs.EndBranch()
	}
	x.objs.EndBranch()
	return nil
}

// cutOff records a site where executions continuing past a bound are excluded
func (x *executor) cutOff(note string) {
	if !slices.Contains(x.bounded, note) {
		x.bounded = append(x.bounded, note)
	}
}

// call inlines an internal method call
func (x *executor) call(n *model.MethodCall) error {
	callee := n.Callee
	if callee == nil {
		return fmt.Errorf("%s: unresolved method %q", n.Location.ID(), n.Method)
	}
	if len(x.frames) > x.cfg.MaxCallDepth {
		x.cutOff(fmt.Sprintf("call to %s at %s beyond call depth %d", callee.Name, n.Location.ID(), x.cfg.MaxCallDepth))
		x.objs.Assume(smt.False)
		return nil
	}

	args := make([]objects.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := x.eval(a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	// a recursive activation reuses the keys of the outer one
	scoped := append(slices.Clone(callee.Parameters), callee.Locals...)
	var restore []func()
	for _, v := range scoped {
		key := v.ScopedName(objects.This)
		if x.objs.Has(key) {
			a := x.objs.Current(key)
			restore = append(restore, func() { x.objs.Restore(a) })
		}
	}

	caller := x.methodName()
	x.frames = append(x.frames, &callFrame{method: callee, returned: smt.False})
	for i, p := range callee.Parameters {
		x.objs.CreateVariable(p, objects.This, &args[i])
	}
	for _, l := range callee.Locals {
		x.objs.CreateVariable(l, objects.This, nil)
	}

	for _, r := range callee.Requires {
		c, err := x.contractCondition(r.Expr)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("precondition of %s may not hold when called from %s at %s", callee.Name, caller, n.Location.ID())
		x.prove(model.RequireViolation, callee.Name, r.Location, r.Text, msg, c)
	}
	if err := x.block(callee.Body); err != nil {
		return err
	}
	if err := x.ensures(callee); err != nil {
		return err
	}

	var result objects.Value
	if r := callee.Result(); r != nil {
		result = x.objs.Read(r.ScopedName(objects.This))
	}
	x.frames = x.frames[:len(x.frames)-1]
	for _, fn := range restore {
		fn()
	}

	if n.Dest != nil {
		return x.assignTo(n.Dest, result)
	}
	return nil
}

// --- expressions ---

func (x *executor) condition(e model.Expression) (smt.BoolExpr, error) {
	v, err := x.eval(e)
	if err != nil {
		return smt.False, err
	}
	b, ok := v.Expr.(smt.BoolExpr)
	if !ok {
		return smt.False, fmt.Errorf("%s: %s is not a condition", e.Loc().ID(), model.Render(e))
	}
	return b, nil
}

// contractCondition evaluates an annotation. Contracts carry no runtime obligations.
func (x *executor) contractCondition(e model.Expression) (smt.BoolExpr, error) {
	prev := x.contract
	x.contract = true
	defer func() { x.contract = prev }()
	return x.condition(e)
}

func (x *executor) eval(e model.Expression) (objects.Value, error) {
	switch n := e.(type) {
	case *model.BoolLiteral:
		return objects.Prim(smt.BoolVal(n.Value)), nil
	case *model.IntLiteral:
		return objects.Prim(smt.IntVal(n.Value)), nil
	case *model.FloatLiteral:
		return objects.Prim(smt.RealVal(n.Value)), nil
	case *model.NullLiteral:
		return objects.NullValue, nil

	case *model.VariableRef:
		if n.Var == nil {
			return objects.Value{}, fmt.Errorf("%s: unresolved name %q", n.Location.ID(), n.Name)
		}
		return x.objs.Read(n.Var.ScopedName(objects.This)), nil

	case *model.Paren:
		return x.eval(n.Inner)

	case *model.Unary:
		v, err := x.eval(n.Operand)
		if err != nil {
			return v, err
		}
		if n.Op == model.Not {
			b, ok := v.Expr.(smt.BoolExpr)
			if !ok {
				return v, fmt.Errorf("%s: ! applied to %s", n.Location.ID(), v.Expr.Sort())
			}
			return objects.Prim(smt.Not(b)), nil
		}
		return objects.Prim(smt.Neg(v.Expr)), nil

	case *model.Binary:
		l, err := x.eval(n.Left)
		if err != nil {
			return l, err
		}
		r, err := x.eval(n.Right)
		if err != nil {
			return r, err
		}
		switch n.Op {
		case model.Add:
			return objects.Prim(smt.Add(l.Expr, r.Expr)), nil
		case model.Sub:
			return objects.Prim(smt.Sub(l.Expr, r.Expr)), nil
		case model.Mul:
			return objects.Prim(smt.Mul(l.Expr, r.Expr)), nil
		case model.Div:
			x.assume(n, "possible division by zero", smt.Distinct(r.Expr, smt.Zero))
			return objects.Prim(smt.Div(l.Expr, r.Expr)), nil
		default:
			x.assume(n, "possible division by zero", smt.Distinct(r.Expr, smt.Zero))
			return objects.Prim(smt.Rem(l.Expr, r.Expr)), nil
		}

	case *model.Comparison:
		l, err := x.eval(n.Left)
		if err != nil {
			return l, err
		}
		r, err := x.eval(n.Right)
		if err != nil {
			return r, err
		}
		switch n.Op {
		case model.Eq:
			return objects.Prim(smt.Eq(l.Expr, r.Expr)), nil
		case model.Ne:
			return objects.Prim(smt.Distinct(l.Expr, r.Expr)), nil
		case model.Lt:
			return objects.Prim(smt.Lt(l.Expr, r.Expr)), nil
		case model.Le:
			return objects.Prim(smt.Le(l.Expr, r.Expr)), nil
		case model.Gt:
			return objects.Prim(smt.Gt(l.Expr, r.Expr)), nil
		default:
			return objects.Prim(smt.Ge(l.Expr, r.Expr)), nil
		}

	case *model.Logical:
		l, err := x.condition(n.Left)
		if err != nil {
			return objects.Value{}, err
		}
		// the right operand only runs when the left does not decide the result
		guard := l
		if n.Op == model.Or {
			guard = smt.Not(l)
		}
		x.guards = append(x.guards, guard)
		r, err := x.condition(n.Right)
		x.guards = x.guards[:len(x.guards)-1]
		if err != nil {
			return objects.Value{}, err
		}
		if n.Op == model.Or {
			return objects.Prim(smt.Or(l, r)), nil
		}
		return objects.Prim(smt.And(l, r)), nil

	case *model.NewObject:
		class := x.class.Class(n.ClassName)
		if class == nil {
			return objects.Value{}, fmt.Errorf("%s: unknown class %q", n.Location.ID(), n.ClassName)
		}
		return x.objs.NewObject(class, x.eval)

	case *model.NewArray:
		length, err := x.eval(n.Length)
		if err != nil {
			return length, err
		}
		x.assume(n, "array length may be negative", smt.Ge(length.Expr, smt.Zero))
		return x.objs.NewArray(n.Elem, length.Expr), nil

	case *model.MemberAccess:
		obj, err := x.eval(n.Object)
		if err != nil {
			return obj, err
		}
		x.nonNull(n.Object, obj)
		if n.IsArrayLength() {
			return objects.Prim(x.objs.Length(obj)), nil
		}
		return x.objs.ReadMember(obj, n.Var), nil

	case *model.ElementAccess:
		arr, idx, err := x.element(n)
		if err != nil {
			return objects.Value{}, err
		}
		return objects.Prim(x.objs.ReadElement(arr, idx, n.Type())), nil

	default:
		return objects.Value{}, fmt.Errorf("unsupported expression %T", e)
	}
}

// element evaluates the array and index of an element access and records the
// bounds obligation
func (x *executor) element(n *model.ElementAccess) (objects.Value, smt.Expr, error) {
	arr, err := x.eval(n.Array)
	if err != nil {
		return arr, nil, err
	}
	idx, err := x.eval(n.Index)
	if err != nil {
		return arr, nil, err
	}
	x.nonNull(n.Array, arr)
	inBounds := smt.And(smt.Ge(idx.Expr, smt.Zero), smt.Lt(idx.Expr, x.objs.Length(arr)))
	x.assume(n, fmt.Sprintf("index may be out of bounds of %s", model.Render(n.Array)), inBounds)
	return arr, idx.Expr, nil
}

// nonNull records that obj must not be null where it is dereferenced
func (x *executor) nonNull(node model.Expression, obj objects.Value) {
	if !slices.Contains(obj.Targets, 0) {
		return
	}
	x.assume(node, fmt.Sprintf("possible null dereference of %s", model.Render(node)), smt.Distinct(obj.Expr, smt.Null))
}
