package objects

import (
	"github.com/lhaig/boundcheck/internal/smt"
)

// BeginBranch enters the then-arm of a conditional on cond. Every BeginBranch must be
// closed by EndBranch; ElseBranch is optional.
func (m *Manager) BeginBranch(cond smt.BoolExpr) {
	m.frames = append(m.frames, &frame{
		pre:   m.table.Clone(),
		outer: m.branch,
		cond:  cond,
	})
	m.branch = smt.And(m.branch, cond)
}

// ElseBranch switches to the else-arm, starting again from the aliases that were
// current at BeginBranch
func (m *Manager) ElseBranch() {
	f := m.top()
	if f.inElse {
		panic("objects: ElseBranch called twice")
	}
	f.inElse = true
	f.thenTable = m.table
	m.table = f.pre.Clone()
	m.branch = smt.And(f.outer, smt.Not(f.cond))
}

// EndBranch merges both arms. Variables created on one arm only get their default
// value on the other; variables the arms disagree on get a fresh version equal to
// the value of whichever arm ran.
func (m *Manager) EndBranch() {
	f := m.top()
	m.frames = m.frames[:len(m.frames)-1]

	thenT, elseT := m.table, f.pre
	if f.inElse {
		thenT, elseT = f.thenTable, m.table
	}
	onThen := smt.And(f.outer, f.cond)
	onElse := smt.And(f.outer, smt.Not(f.cond))

	for _, key := range thenT.GetAliasDifference(elseT) {
		a := elseT.AddVariable(key)
		m.session.Assert(smt.Implies(onElse, smt.Eq(m.constant(a), smt.Default(m.sorts[key]))))
		m.defaultTargets(a.String(), key)
	}
	for _, key := range elseT.GetAliasDifference(thenT) {
		a := thenT.AddVariable(key)
		m.session.Assert(smt.Implies(onThen, smt.Eq(m.constant(a), smt.Default(m.sorts[key]))))
		m.defaultTargets(a.String(), key)
	}

	before := thenT.Clone()
	for _, key := range thenT.Merge(elseT) {
		merged, tv, ev := thenT.Alias(key), before.Alias(key), elseT.Alias(key)
		c := m.constant(merged)
		m.session.Assert(smt.Implies(onThen, smt.Eq(c, m.constant(tv))))
		m.session.Assert(smt.Implies(onElse, smt.Eq(c, m.constant(ev))))
		m.targets[merged.String()] = union(m.targets[tv.String()], m.targets[ev.String()])
	}

	m.table = thenT
	m.branch = f.outer
}

func (m *Manager) defaultTargets(version, key string) {
	if m.sorts[key].Kind == smt.RefSort {
		m.targets[version] = []int{0}
	}
}

// Depth returns the number of open branches
func (m *Manager) Depth() int { return len(m.frames) }

func (m *Manager) top() *frame {
	if len(m.frames) == 0 {
		panic("objects: no open branch")
	}
	return m.frames[len(m.frames)-1]
}
