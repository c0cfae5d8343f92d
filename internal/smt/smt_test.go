package smt

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiterals(t *testing.T) {
	assert.Equal(t, "5", IntVal(5).String())
	assert.Equal(t, "(- 5)", IntVal(-5).String())
	assert.Equal(t, "2.0", RealVal(2).String())
	assert.Equal(t, "(- 0.5)", RealVal(-0.5).String())
	assert.Equal(t, "3", RefVal(3).String())
	assert.Equal(t, "|a_b|", Quote("a|b"))
}

func TestBooleanSimplification(t *testing.T) {
	x := AsBool(Const("x", Bool))
	y := AsBool(Const("y", Bool))

	assert.Equal(t, "(and |x| |y|)", And(x, True, y).String())
	assert.Equal(t, False, And(x, False))
	assert.Equal(t, x, And(True, x))
	assert.Equal(t, True, And())
	assert.Equal(t, "(or |x| |y|)", Or(x, False, y).String())
	assert.Equal(t, True, Or(x, True))
	assert.Equal(t, x, Implies(True, x))
	assert.Equal(t, "(=> |x| |y|)", Implies(x, y).String())
	assert.Equal(t, "(not |x|)", Not(x).String())
	assert.Equal(t, False, Not(BoolExpr{}))
	assert.True(t, BoolExpr{}.IsTrue())
}

func TestNumericPromotion(t *testing.T) {
	i := Const("i", Int)
	r := Const("r", Real)

	sum := Add(i, r)
	assert.Equal(t, Real, sum.Sort())
	assert.Equal(t, "(+ (to_real |i|) |r|)", sum.String())

	assert.Equal(t, "(< |r| (to_real |i|))", Lt(r, i).String())
	assert.Equal(t, Int, Add(i, IntVal(1)).Sort())

	ite := Ite(AsBool(Const("c", Bool)), i, r)
	assert.Equal(t, Real, ite.Sort())

	assert.Panics(t, func() { Add(i, Const("b", Bool)) })
}

func TestReferencesCompareAsInts(t *testing.T) {
	o := Const("o", Ref)
	assert.Equal(t, "(= |o| 0)", Eq(o, Null).String())
	assert.Equal(t, "(distinct |o| 2)", Distinct(o, RefVal(2)).String())
	assert.Equal(t, "Int", Ref.String())
}

func TestTruncatingDivision(t *testing.T) {
	a, b := Const("a", Int), Const("b", Int)
	assert.Equal(t,
		"(ite (= (>= |a| 0) (>= |b| 0)) (div (abs |a|) (abs |b|)) (- (div (abs |a|) (abs |b|))))",
		Div(a, b).String())
	assert.Equal(t,
		"(ite (>= |a| 0) (mod (abs |a|) (abs |b|)) (- (mod (abs |a|) (abs |b|))))",
		Rem(a, b).String())
	assert.Equal(t, "(/ |x| 2.0)", Div(Const("x", Real), RealVal(2)).String())
}

func TestArrays(t *testing.T) {
	s := ArrayOf(Int)
	assert.Equal(t, "(Array Int Int)", s.String())
	assert.Equal(t, "((as const (Array Int Int)) 0)", Default(s).String())

	arr := AsArray(Const("a", ArrayOf(Real)))
	stored := Store(arr, IntVal(1), IntVal(3))
	assert.Equal(t, "(store |a| 1 (to_real 3))", stored.String())
	assert.Equal(t, Real, Select(stored, Zero).Sort())
}

func TestExprSetEqual(t *testing.T) {
	a := ExprSet{Main: RefVal(1), Components: []ExprSet{Single(Const("x1", Int))}}
	b := ExprSet{Main: RefVal(1), Components: []ExprSet{Single(IntVal(0))}}
	assert.Equal(t, "(and (= 1 1) (= |x1| 0))", a.Equal(b).String())
	assert.Len(t, a.Flatten(), 2)
}

func TestSessionScript(t *testing.T) {
	s := NewSession()
	x := s.Declare("x_0", Int)
	s.Declare("x_0", Int)
	assert.Panics(t, func() { s.Declare("x_0", Bool) })

	s.Assert(Ge(x, Zero))
	s.Assert(True)
	idx := s.Refute("positive", True, Gt(x, Zero), x)
	assert.Equal(t, 0, idx)

	script := s.Script()
	assert.Contains(t, script, "(declare-const |x_0| Int)\n")
	assert.Contains(t, script, "(assert (>= |x_0| 0))\n")
	assert.Contains(t, script, "(push 1)\n(assert (not (> |x_0| 0)))\n(check-sat)\n(get-value (|x_0|))\n(pop 1)\n")
	assert.Equal(t, 1, len(s.Checks()))

	decls, asserts := s.Stats()
	assert.Equal(t, 1, decls)
	assert.Equal(t, 2, asserts)

	assert.Panics(t, func() { NewSession().Pop() })
}

func TestParseResults(t *testing.T) {
	checks := []Check{
		{Label: "a", Values: []Expr{Const("x", Int), Const("r", Real), Const("o", Ref), Const("b", Bool)}},
		{Label: "b", Values: []Expr{Const("x", Int)}},
		{Label: "c"},
	}
	output := `sat
((|x| (- 4))
 (|r| (/ 1.0 2.0))
 (|o| 0)
 (|b| true))
unsat
(error "line 9 column 10: model is not available")
unknown
`
	results, err := ParseResults(output, checks)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, Sat, results[0].Status)
	assert.Equal(t, []string{"-4", "0.5", "null", "true"}, results[0].Values)
	assert.Equal(t, Unsat, results[1].Status)
	assert.Empty(t, results[1].Values)
	assert.Equal(t, Unknown, results[2].Status)
}

func TestParseResultsTruncated(t *testing.T) {
	checks := []Check{{Label: "a"}, {Label: "b"}}
	results, err := ParseResults("unsat\n", checks)
	require.NoError(t, err)
	assert.Equal(t, Unsat, results[0].Status)
	assert.Equal(t, Unknown, results[1].Status)
}

func TestParseResultsErrors(t *testing.T) {
	checks := []Check{{Label: "a"}}

	_, err := ParseResults(`(error "line 3 column 1: unknown constant x")`, checks)
	assert.ErrorIs(t, err, ErrSolver)

	_, err = ParseResults("maybe", checks)
	assert.ErrorIs(t, err, ErrSolver)

	_, err = ParseResults("sat\n((|x| 1)", []Check{{Label: "a", Values: []Expr{Const("x", Int)}}})
	assert.ErrorIs(t, err, ErrSolver)
}

type fakeBackend struct {
	out    string
	err    error
	script string
}

func (f *fakeBackend) Run(_ context.Context, script string) (string, error) {
	f.script = script
	return f.out, f.err
}

func TestSolveUsesBackend(t *testing.T) {
	s := NewSession()
	x := s.Declare("x", Int)
	s.Refute("x is zero", True, Eq(x, Zero), x)

	backend := &fakeBackend{out: "sat\n((|x| 7))\n"}
	results, err := s.Solve(context.Background(), backend)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, results[0].Values)
	assert.Contains(t, backend.script, "(set-option :produce-models true)")

	backend = &fakeBackend{err: ErrTimeout}
	_, err = s.Solve(context.Background(), backend)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestZ3(t *testing.T) {
	if _, err := exec.LookPath("z3"); err != nil {
		t.Skip("z3 not installed")
	}
	z3, err := NewZ3Backend("", 10*time.Second)
	require.NoError(t, err)

	s := NewSession()
	a := s.Declare("a", Int)
	b := s.Declare("b", Int)
	s.Assert(Eq(a, IntVal(-7)))
	s.Assert(Eq(b, IntVal(2)))
	s.Refute("truncating division", True, Eq(Div(a, b), IntVal(-3)))
	s.Refute("remainder sign", True, Eq(Rem(a, b), IntVal(-1)))
	s.Refute("wrong quotient", True, Eq(Div(a, b), IntVal(-4)), a, b)

	results, err := s.Solve(context.Background(), z3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Unsat, results[0].Status)
	assert.Equal(t, Unsat, results[1].Status)
	assert.Equal(t, Sat, results[2].Status)
	assert.Equal(t, []string{"-7", "2"}, results[2].Values)
}

func TestNewZ3Missing(t *testing.T) {
	_, err := NewZ3Backend("/nonexistent/z3-binary", time.Second)
	assert.ErrorIs(t, err, ErrSolverNotFound)
}
