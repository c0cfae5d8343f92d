// Package objects models the heap of one verification sequence: an arena of object
// instances, the SSA aliases of their members, and the branch protocol that merges
// aliases after a conditional.
package objects

import (
	"fmt"
	"slices"

	"github.com/lhaig/boundcheck/internal/alias"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/smt"
)

// This is the arena index of the object under verification. Index 0 is null.
const This = 1

// Instance is one allocated object or array
type Instance struct {
	Index int
	Class *model.ClassModel // nil for arrays
	Elem  *model.Type       // element type of arrays
}

// IsArray reports whether the instance is an array
func (i *Instance) IsArray() bool { return i.Class == nil }

// LengthKey is the alias key of an array's length
func (i *Instance) LengthKey() string {
	return fmt.Sprintf("%s[]#%d:Length", i.Elem, i.Index)
}

// ElementsKey is the alias key of an array's contents
func (i *Instance) ElementsKey() string {
	return fmt.Sprintf("%s[]#%d:Elements", i.Elem, i.Index)
}

// Value is an encoded value. Targets lists the arena indices a reference value may
// hold; it is empty for primitives and includes 0 when the value may be null.
type Value struct {
	Expr    smt.Expr
	Targets []int
}

// Prim wraps a primitive term
func Prim(e smt.Expr) Value { return Value{Expr: e} }

// NullValue is the null reference
var NullValue = Value{Expr: smt.Null, Targets: []int{0}}

// SortOf maps a source type to its solver sort. Doubles are modeled as reals.
func SortOf(t *model.Type) smt.Sort {
	switch t.Kind {
	case model.Boolean:
		return smt.Bool
	case model.Integer:
		return smt.Int
	case model.FloatingPoint:
		return smt.Real
	default:
		return smt.Ref
	}
}

type frame struct {
	pre       *alias.Table
	thenTable *alias.Table
	outer     smt.BoolExpr
	cond      smt.BoolExpr
	inElse    bool
}

// Manager owns the arena, the alias table and the solver session of one sequence
type Manager struct {
	session  *smt.Session
	root     *model.ClassModel
	table    *alias.Table
	arena    []*Instance
	sorts    map[string]smt.Sort
	targets  map[string][]int
	branch   smt.BoolExpr
	frames   []*frame
	maxDepth int
	fresh    int
}

// NewManager returns a manager with an arena holding only null.
// maxRefDepth bounds how deep unknown reference parameters are materialized.
func NewManager(session *smt.Session, root *model.ClassModel, maxRefDepth int) *Manager {
	return &Manager{
		session:  session,
		root:     root,
		table:    alias.NewTable(),
		arena:    []*Instance{nil},
		sorts:    make(map[string]smt.Sort),
		targets:  make(map[string][]int),
		branch:   smt.True,
		maxDepth: maxRefDepth,
	}
}

// Session returns the solver session
func (m *Manager) Session() *smt.Session { return m.session }

// Table returns the current alias table
func (m *Manager) Table() *alias.Table { return m.table }

// Branch returns the predicate under which the current statement executes
func (m *Manager) Branch() smt.BoolExpr { return m.branch }

// Instance returns the arena entry at index, or nil for null
func (m *Manager) Instance(index int) *Instance {
	if index <= 0 || index >= len(m.arena) {
		return nil
	}
	return m.arena[index]
}

// Len returns the arena size including the null slot
func (m *Manager) Len() int { return len(m.arena) }

// Assume asserts e on the current branch
func (m *Manager) Assume(e smt.BoolExpr) {
	smt.AddToSolver(m.session, m.branch, e)
}

func (m *Manager) constant(a alias.VariableAlias) smt.Expr {
	return m.session.Declare(a.String(), m.sorts[a.Key])
}

// register adds or re-versions key and declares the new version
func (m *Manager) register(key string, sort smt.Sort) alias.VariableAlias {
	m.sorts[key] = sort
	a := m.table.AddOrIncrement(key)
	m.constant(a)
	return a
}

// Read returns the current value of key
func (m *Manager) Read(key string) Value {
	a := m.table.Alias(key)
	return Value{Expr: m.constant(a), Targets: m.targets[a.String()]}
}

// Current returns the current version of key
func (m *Manager) Current(key string) alias.VariableAlias {
	return m.table.Alias(key)
}

// Restore makes an earlier version of a variable current again
func (m *Manager) Restore(a alias.VariableAlias) {
	m.table.Restore(a)
}

// Has reports whether key is registered on the current branch
func (m *Manager) Has(key string) bool { return m.table.Has(key) }

// Assign gives key a new version equal to v on the current branch
func (m *Manager) Assign(key string, v Value) {
	a := m.table.IncrementAlias(key)
	c := m.constant(a)
	m.Assume(smt.Eq(c, smt.Coerce(v.Expr, c.Sort())))
	m.targets[a.String()] = v.Targets
}

// CreateVariable registers the first version of v on the given instance, or a new
// version when the variable is already known, as for the parameters of a method
// entered again. A nil init assigns the default value of the type.
func (m *Manager) CreateVariable(v *model.Variable, instance int, init *Value) Value {
	key := v.ScopedName(instance)
	a := m.register(key, SortOf(v.Type))
	c := m.constant(a)
	val := Value{Expr: smt.Default(c.Sort()), Targets: []int{0}}
	if init != nil {
		val = *init
	}
	if !v.Type.IsHeap() {
		val.Targets = nil
	}
	m.Assume(smt.Eq(c, smt.Coerce(val.Expr, c.Sort())))
	m.targets[a.String()] = val.Targets
	return Value{Expr: c, Targets: val.Targets}
}

// Unknown registers v with an unconstrained value. Reference and array parameters
// may point to null, to any compatible existing object, or to a fresh object of
// unknown contents.
func (m *Manager) Unknown(v *model.Variable) Value {
	key := v.ScopedName(This)
	a := m.register(key, SortOf(v.Type))
	c := m.constant(a)
	if !v.Type.IsHeap() {
		return Prim(c)
	}
	ref := m.CreateReferenceConstant(v.Type, 0)
	m.session.Assert(m.oneOf(c, ref.Targets))
	m.targets[a.String()] = ref.Targets
	return Value{Expr: c, Targets: ref.Targets}
}

func (m *Manager) oneOf(e smt.Expr, targets []int) smt.BoolExpr {
	var alts []smt.BoolExpr
	for _, t := range targets {
		alts = append(alts, smt.Eq(e, smt.RefVal(t)))
	}
	return smt.Or(alts...)
}

// compatible returns null and the existing instances of type t
func (m *Manager) compatible(t *model.Type) []int {
	out := []int{0}
	for _, inst := range m.arena[1:] {
		switch {
		case t.Kind == model.Reference && !inst.IsArray() && inst.Class.Name == t.ClassName:
			out = append(out, inst.Index)
		case t.Kind == model.Array && inst.IsArray() && inst.Elem.Equal(t.Elem):
			out = append(out, inst.Index)
		}
	}
	return out
}

func (m *Manager) allocate(class *model.ClassModel, elem *model.Type) *Instance {
	inst := &Instance{Index: len(m.arena), Class: class, Elem: elem}
	m.arena = append(m.arena, inst)
	return inst
}

// CreateReferenceConstant allocates an object of type t whose members are unknown,
// and returns the candidate set a reference of that type may hold. Members of
// reference type are materialized the same way up to the configured depth; deeper
// members may only hold null or existing objects.
func (m *Manager) CreateReferenceConstant(t *model.Type, depth int) Value {
	candidates := m.compatible(t)
	var inst *Instance
	switch t.Kind {
	case model.Array:
		inst = m.allocate(nil, t.Elem)
		length := m.register(inst.LengthKey(), smt.Int)
		m.session.Assert(smt.Ge(m.constant(length), smt.Zero))
		m.register(inst.ElementsKey(), smt.ArrayOf(SortOf(t.Elem)))
	case model.Reference:
		class := m.root.Class(t.ClassName)
		if class == nil {
			return Value{Expr: smt.Null, Targets: candidates}
		}
		inst = m.allocate(class, nil)
		for _, member := range class.Members() {
			a := m.register(member.ScopedName(inst.Index), SortOf(member.Type))
			if !member.Type.IsHeap() {
				continue
			}
			var nested []int
			if depth+1 < m.maxDepth {
				nested = m.CreateReferenceConstant(member.Type, depth+1).Targets
			} else {
				nested = m.compatible(member.Type)
			}
			m.session.Assert(m.oneOf(m.constant(a), nested))
			m.targets[a.String()] = nested
		}
	default:
		panic(fmt.Sprintf("objects: %s is not a reference type", t))
	}
	return Value{Expr: smt.RefVal(inst.Index), Targets: append(candidates, inst.Index)}
}

// NewObject allocates an instance of class and initializes its members from their
// declared initializers. eval encodes initializer expressions.
func (m *Manager) NewObject(class *model.ClassModel, eval func(model.Expression) (Value, error)) (Value, error) {
	inst := m.allocate(class, nil)
	state := smt.ExprSet{Main: smt.RefVal(inst.Index)}
	init := smt.ExprSet{Main: smt.RefVal(inst.Index)}
	for _, member := range class.Members() {
		v := Value{Expr: smt.Default(SortOf(member.Type)), Targets: []int{0}}
		if member.Initializer != nil {
			var err error
			if v, err = eval(member.Initializer); err != nil {
				return Value{}, err
			}
		}
		a := m.register(member.ScopedName(inst.Index), SortOf(member.Type))
		c := m.constant(a)
		if member.Type.IsHeap() {
			m.targets[a.String()] = v.Targets
		}
		state.Components = append(state.Components, smt.Single(c))
		init.Components = append(init.Components, smt.Single(smt.Coerce(v.Expr, c.Sort())))
	}
	// members of a fresh object are not reachable from anything else yet
	m.session.Assert(state.Equal(init))
	return Value{Expr: smt.RefVal(inst.Index), Targets: []int{inst.Index}}, nil
}

// NewArray allocates an array of length default elements
func (m *Manager) NewArray(elem *model.Type, length smt.Expr) Value {
	inst := m.allocate(nil, elem)
	l := m.register(inst.LengthKey(), smt.Int)
	m.session.Assert(smt.Eq(m.constant(l), length))
	sort := smt.ArrayOf(SortOf(elem))
	e := m.register(inst.ElementsKey(), sort)
	m.session.Assert(smt.Eq(m.constant(e), smt.Default(sort)))
	return Value{Expr: smt.RefVal(inst.Index), Targets: []int{inst.Index}}
}

// candidates returns the non-null targets of obj that satisfy keep
func (m *Manager) candidates(obj Value, keep func(*Instance) bool) []*Instance {
	var out []*Instance
	for _, t := range obj.Targets {
		if inst := m.Instance(t); inst != nil && keep(inst) {
			out = append(out, inst)
		}
	}
	return out
}

// select builds an ite over the candidate instances, reading key(inst) from each
func (m *Manager) selectOver(obj Value, cands []*Instance, key func(*Instance) string, sort smt.Sort) Value {
	if len(cands) == 0 {
		// obj is null on every path; the non-null obligation already fails
		m.fresh++
		return Value{Expr: m.session.Declare(fmt.Sprintf("undefined!%d", m.fresh), sort), Targets: []int{0}}
	}
	last := m.Read(key(cands[len(cands)-1]))
	expr := last.Expr
	targets := slices.Clone(last.Targets)
	for i := len(cands) - 2; i >= 0; i-- {
		v := m.Read(key(cands[i]))
		expr = smt.Ite(smt.Eq(obj.Expr, smt.RefVal(cands[i].Index)), v.Expr, expr)
		targets = union(targets, v.Targets)
	}
	return Value{Expr: expr, Targets: targets}
}

// writeOver updates key(inst) of every candidate, changing only the one obj refers to
func (m *Manager) writeOver(obj Value, cands []*Instance, key func(*Instance) string, update func(old Value) Value) {
	for _, inst := range cands {
		k := key(inst)
		old := m.Read(k)
		nv := update(old)
		if len(cands) > 1 || obj.Expr.String() != smt.RefVal(inst.Index).String() {
			nv.Expr = smt.Ite(smt.Eq(obj.Expr, smt.RefVal(inst.Index)), nv.Expr, smt.Coerce(old.Expr, nv.Expr.Sort()))
			nv.Targets = union(nv.Targets, old.Targets)
		}
		m.Assign(k, nv)
	}
}

func memberOf(member *model.Variable) func(*Instance) bool {
	return func(inst *Instance) bool { return !inst.IsArray() && inst.Class.Name == member.Owner }
}

func isArray(inst *Instance) bool { return inst.IsArray() }

// ReadMember reads member of the object obj refers to
func (m *Manager) ReadMember(obj Value, member *model.Variable) Value {
	key := func(inst *Instance) string { return member.ScopedName(inst.Index) }
	v := m.selectOver(obj, m.candidates(obj, memberOf(member)), key, SortOf(member.Type))
	if !member.Type.IsHeap() {
		v.Targets = nil
	}
	return v
}

// WriteMember assigns v to member of the object obj refers to
func (m *Manager) WriteMember(obj Value, member *model.Variable, v Value) {
	key := func(inst *Instance) string { return member.ScopedName(inst.Index) }
	sort := SortOf(member.Type)
	v.Expr = smt.Coerce(v.Expr, sort)
	if !member.Type.IsHeap() {
		v.Targets = nil
	}
	m.writeOver(obj, m.candidates(obj, memberOf(member)), key, func(Value) Value { return v })
}

// Length reads the length of the array arr refers to
func (m *Manager) Length(arr Value) smt.Expr {
	return m.selectOver(arr, m.candidates(arr, isArray), (*Instance).LengthKey, smt.Int).Expr
}

// ReadElement reads arr[index], an element of type elem
func (m *Manager) ReadElement(arr Value, index smt.Expr, elem *model.Type) smt.Expr {
	sort := smt.ArrayOf(SortOf(elem))
	contents := m.selectOver(arr, m.candidates(arr, isArray), (*Instance).ElementsKey, sort)
	return smt.Select(smt.AsArray(contents.Expr), index)
}

// WriteElement stores v at arr[index]
func (m *Manager) WriteElement(arr Value, index smt.Expr, v smt.Expr) {
	m.writeOver(arr, m.candidates(arr, isArray), (*Instance).ElementsKey, func(old Value) Value {
		return Prim(smt.Store(smt.AsArray(old.Expr), index, v))
	})
}

// Snapshot returns the current member values of the object at index as a set
func (m *Manager) Snapshot(index int) smt.ExprSet {
	set := smt.ExprSet{Main: smt.RefVal(index)}
	inst := m.Instance(index)
	if inst == nil || inst.IsArray() {
		return set
	}
	for _, member := range inst.Class.Members() {
		set.Components = append(set.Components, smt.Single(m.Read(member.ScopedName(index)).Expr))
	}
	return set
}

func union(a, b []int) []int {
	out := slices.Clone(a)
	for _, x := range b {
		if !slices.Contains(out, x) {
			out = append(out, x)
		}
	}
	slices.Sort(out)
	return out
}
