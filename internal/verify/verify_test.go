package verify

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/checker"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/parser"
	"github.com/lhaig/boundcheck/internal/smt"
)

func parseClass(t *testing.T, source, name string) *model.ClassModel {
	t.Helper()
	p := parser.New(source)
	classes := p.Parse()
	require.False(t, p.Diagnostics().HasErrors(), p.Diagnostics().Format("test"))
	checker.Check(classes)
	for _, c := range classes {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("class %s not found", name)
	return nil
}

// scriptedBackend answers every check of a script without a solver. sat decides the
// status of check i; satisfiable checks report 0 for every requested value.
type scriptedBackend struct {
	mu      sync.Mutex
	scripts []string
	sat     func(script string, check int) bool
	err     error
}

func (b *scriptedBackend) Run(_ context.Context, script string) (string, error) {
	b.mu.Lock()
	b.scripts = append(b.scripts, script)
	b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}

	var out strings.Builder
	lines := strings.Split(script, "\n")
	check := 0
	for i, line := range lines {
		if line != "(check-sat)" {
			continue
		}
		isSat := b.sat != nil && b.sat(script, check)
		check++
		if isSat {
			out.WriteString("sat\n")
		} else {
			out.WriteString("unsat\n")
		}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "(get-value (") {
			if !isSat {
				out.WriteString("(error \"model is not available\")\n")
				continue
			}
			terms := countTerms(strings.TrimSuffix(strings.TrimPrefix(lines[i+1], "(get-value ("), "))"))
			out.WriteString("(")
			for j := 0; j < terms; j++ {
				out.WriteString("(t 0)")
			}
			out.WriteString(")\n")
		}
	}
	return out.String(), nil
}

func (b *scriptedBackend) runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scripts)
}

// countTerms counts the top-level terms of a space separated term list
func countTerms(s string) int {
	n, depth, quoted, inTerm := 0, 0, false, false
	for _, c := range s {
		if quoted {
			if c == '|' {
				quoted = false
			}
			continue
		}
		if depth == 0 && c == ' ' {
			inTerm = false
			continue
		}
		if depth == 0 && !inTerm {
			n++
			inTerm = true
		}
		switch c {
		case '|':
			quoted = true
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return n
}

func TestCountTerms(t *testing.T) {
	assert.Equal(t, 3, countTerms("|a b| (+ |x| 1) 5"))
	assert.Equal(t, 1, countTerms("(and (= 1 1) |y|)"))
}

const counterSource = `class Counter {
    // Invariant: Count >= 0
    private int Count = 0;

    public void Inc() { Count = Count + 1; }

    public void Reset() { Count = 0; }
}`

func TestSequences(t *testing.T) {
	a := &model.Method{Name: "A"}
	b := &model.Method{Name: "B"}

	assert.Equal(t, [][]*model.Method{nil}, normalize(Sequences([]*model.Method{a, b}, 0)))
	assert.Equal(t, [][]*model.Method{{a, a}, {a, b}, {b, a}, {b, b}}, Sequences([]*model.Method{a, b}, 2))
	assert.Empty(t, Sequences(nil, 1))
}

func normalize(seqs [][]*model.Method) [][]*model.Method {
	for i, s := range seqs {
		if len(s) == 0 {
			seqs[i] = nil
		}
	}
	return seqs
}

func TestVerifySafeWithScriptedBackend(t *testing.T) {
	class := parseClass(t, counterSource, "Counter")
	backend := &scriptedBackend{}
	cfg := DefaultConfig()
	cfg.MaxDepth = 2

	result := New(backend, cfg, zap.NewNop()).Verify(context.Background(), class)

	assert.Equal(t, Safe, result.State)
	assert.Equal(t, 7, result.Sequences, "1 + 2 + 4 sequences")
	assert.Equal(t, 7, backend.runs())
	assert.Empty(t, result.Violations)
	assert.False(t, result.HasExceptions())

	first := backend.scripts[0]
	assert.Contains(t, first, "(set-option :produce-models true)")
	assert.Contains(t, first, "(= |Counter#1:Count_0| 0)")
}

func TestVerifyStopsAtFirstViolation(t *testing.T) {
	class := parseClass(t, counterSource, "Counter")
	backend := &scriptedBackend{sat: func(script string, _ int) bool {
		return strings.Contains(script, "; call 1: Reset")
	}}

	result := New(backend, DefaultConfig(), zap.NewNop()).Verify(context.Background(), class)

	require.Equal(t, ViolationFound, result.State)
	assert.Equal(t, 3, result.Sequences, "initial state, Inc, Reset")
	require.Len(t, result.Violations, 1)

	v := result.Violations[0]
	assert.Equal(t, model.InvariantViolation, v.Kind)
	assert.Equal(t, "Count >= 0", v.Text)
	assert.Equal(t, []string{"Reset"}, v.Sequence)
	assert.Equal(t, "0", v.Counterexample["this.Count"])
}

func TestVerifyRecordsBounds(t *testing.T) {
	class := parseClass(t, `class A {
    // Ensure: Result >= 0
    public int Sum(int n) {
        int s = 0;
        for (int i = 0; i < n; i++) { s = s + 1; }
        return s;
    }
}`, "A")
	cfg := DefaultConfig()
	cfg.MaxDepth = 1
	cfg.MaxLoopUnroll = 2

	result := New(&scriptedBackend{}, cfg, zap.NewNop()).Verify(context.Background(), class)
	assert.Equal(t, Safe, result.State)
	require.Len(t, result.Bounded, 1)
	assert.Contains(t, result.Bounded[0], "explored for at most 2 iterations")

	plain := New(&scriptedBackend{}, cfg, zap.NewNop()).Verify(context.Background(), parseClass(t, counterSource, "Counter"))
	assert.Empty(t, plain.Bounded)
}

func TestVerifySkipsIneligibleClass(t *testing.T) {
	class := parseClass(t, "class A { string S; public void M() { } }", "A")
	class.IsVerified = true
	backend := &scriptedBackend{}

	result := New(backend, DefaultConfig(), nil).Verify(context.Background(), class)

	assert.Equal(t, Skipped, result.State)
	assert.Zero(t, backend.runs())

	Apply(class, result)
	assert.True(t, class.IsVerified, "skipped results leave outputs untouched")
}

func TestVerifyRecordsExceptions(t *testing.T) {
	class := parseClass(t, counterSource, "Counter")
	backend := &scriptedBackend{err: errors.New("solver crashed")}
	cfg := DefaultConfig()
	cfg.MaxDepth = 1

	result := New(backend, cfg, zap.NewNop()).Verify(context.Background(), class)

	assert.Equal(t, Safe, result.State)
	assert.Len(t, result.Exceptions, 3)
	assert.Contains(t, result.Exceptions[0], "solver crashed")

	Apply(class, result)
	assert.False(t, class.IsVerified)
}

func TestVerifyCancelled(t *testing.T) {
	class := parseClass(t, counterSource, "Counter")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := New(&scriptedBackend{}, DefaultConfig(), zap.NewNop()).Verify(ctx, class)
	assert.Equal(t, Safe, result.State)
	assert.True(t, result.HasExceptions())
	assert.Zero(t, result.Sequences)
}

func TestApply(t *testing.T) {
	class := model.NewClassModel("A")
	class.EnsureViolations = []model.Violation{{Kind: model.EnsureViolation}}

	Apply(class, &Result{State: ViolationFound, Violations: []model.Violation{
		{Kind: model.InvariantViolation, Text: "X > 0"},
		{Kind: model.AssumeViolation, Text: "a / b"},
	}})

	assert.True(t, class.IsVerified)
	assert.True(t, class.IsInvariantViolated)
	assert.Len(t, class.InvariantViolations, 1)
	assert.Len(t, class.AssumeViolations, 1)
	assert.Empty(t, class.EnsureViolations)

	Apply(class, &Result{State: Safe})
	assert.True(t, class.IsVerified)
	assert.False(t, class.IsInvariantViolated)
	assert.Empty(t, class.Violations())

	class.IsVerified = false
	Apply(class, &Result{State: Running})
	assert.False(t, class.IsVerified, "unfinished results are ignored")
}

func TestFormatReport(t *testing.T) {
	safe := model.NewClassModel("Shop.Counter")
	broken := model.NewClassModel("Shop.Cart")
	skipped := model.NewClassModel("Shop.Legacy")
	skipped.Unsupported.Reject(model.UnsupportedField, "string Name", model.Location{Line: 3, Column: 5}, "")

	reports := BuildReport([]*model.ClassModel{safe, broken, skipped}, []*Result{
		{ClassName: "Shop.Counter", State: Safe, Bounded: []string{"loop at 9:9 explored for at most 4 iterations"}},
		{ClassName: "Shop.Cart", State: ViolationFound, Violations: []model.Violation{{
			Kind:           model.InvariantViolation,
			Location:       model.Location{Line: 2, Column: 20},
			Text:           "Total >= 0",
			Message:        "invariant may not hold",
			Sequence:       []string{"Remove"},
			Counterexample: map[string]string{"this.Total": "-1"},
		}}},
		{ClassName: "Shop.Legacy", State: Skipped},
	})

	out := FormatReport(reports)
	assert.Contains(t, out, "Verification Report")
	assert.Contains(t, out, "VERIFIED")
	assert.Contains(t, out, "Shop.Cart:2:20 invariant violation: invariant may not hold")
	assert.Contains(t, out, "sequence: Remove")
	assert.Contains(t, out, "this.Total = -1")
	assert.Contains(t, out, "Shop.Legacy:3:5 unsupported field: string Name")
	assert.Contains(t, out, "bounded: loop at 9:9 explored for at most 4 iterations")
	assert.Contains(t, out, "Status: 1 of 3 classes verified")
	assert.Empty(t, FormatReport(nil))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "violation found", ViolationFound.String())
	assert.True(t, Skipped.IsFinal())
	assert.False(t, Running.IsFinal())
}

// --- solver-backed scenarios ---

func z3Verifier(t *testing.T) *Verifier {
	t.Helper()
	if _, err := exec.LookPath("z3"); err != nil {
		t.Skip("z3 not installed")
	}
	backend, err := smt.NewZ3Backend("", 30*time.Second)
	require.NoError(t, err)
	return New(backend, DefaultConfig(), zap.NewNop())
}

func verifySource(t *testing.T, v *Verifier, source, class string) *Result {
	t.Helper()
	c := parseClass(t, source, class)
	require.True(t, c.IsEligible(), "unexpected unsupported elements: %+v", c.Unsupported.All())
	result := v.Verify(context.Background(), c)
	require.Empty(t, result.Exceptions)
	return result
}

func TestScenarioSafeCounter(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, counterSource, "Counter")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioInvariantViolatedByDecrement(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class Counter {
    // Invariant: Count >= 0
    private int Count = 0;

    public void Inc() { Count = Count + 1; }
    public void Dec() { Count = Count - 1; }
}`, "Counter")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	v0 := result.Violations[0]
	assert.Equal(t, model.InvariantViolation, v0.Kind)
	assert.Equal(t, []string{"Dec"}, v0.Sequence)
	assert.Equal(t, "-1", v0.Counterexample["this.Count"])
}

func TestScenarioInitialStateViolation(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    // Invariant: X == 1
    private int X;
    public void M() { }
}`, "A")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	assert.Empty(t, result.Violations[0].Sequence)
	assert.Equal(t, "0", result.Violations[0].Counterexample["this.X"])
}

func TestScenarioEnsureViolation(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    // Ensure: Result > 0
    public int Get(int a) { return a; }
}`, "A")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	v0 := result.Violations[0]
	assert.Equal(t, model.EnsureViolation, v0.Kind)
	assert.Equal(t, "Get", v0.Method)
	assert.Equal(t, "Result > 0", v0.Text)
	assert.Contains(t, v0.Counterexample, "Get#1.a")
}

func TestScenarioRequireAssumedForPublicMethods(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    // Require: a > 0
    // Ensure: Result > 0
    public int Get(int a) { return a; }
}`, "A")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioInternalRequireViolation(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    private int Total;

    public void Run(int b) { Add(b); }

    // Require: amount > 0
    private void Add(int amount) { Total = Total + amount; }
}`, "A")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, model.RequireViolation, result.Violations[0].Kind)
	assert.Equal(t, "Add", result.Violations[0].Method)
}

func TestScenarioDivisionByZero(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    public int Div(int a) { return 10 / a; }
}`, "A")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	v0 := result.Violations[0]
	assert.Equal(t, model.AssumeViolation, v0.Kind)
	assert.Equal(t, "0", v0.Counterexample["Div#1.a"])
}

func TestScenarioNullDereference(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class Node { public int V; }
class Holder {
    private Node N;
    public int Get() { return N.V; }
}`, "Holder")

	require.Equal(t, ViolationFound, result.State)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, model.AssumeViolation, result.Violations[0].Kind)
	assert.Contains(t, result.Violations[0].Message, "null")
}

func TestScenarioArrayBounds(t *testing.T) {
	v := z3Verifier(t)
	unchecked := verifySource(t, v, `class A {
    private int[] Xs = new int[3];
    public int At(int i) { return Xs[i]; }
}`, "A")
	require.Equal(t, ViolationFound, unchecked.State)
	assert.Equal(t, model.AssumeViolation, unchecked.Violations[0].Kind)

	checked := verifySource(t, v, `class A {
    private int[] Xs = new int[3];
    // Require: i >= 0 && i < 3
    public int At(int i) { return Xs[i]; }
}`, "A")
	assert.Equal(t, Safe, checked.State)
}

func TestScenarioEarlyReturn(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    // Ensure: Result >= 0
    public int Abs(int a) {
        if (a < 0) { return -a; }
        return a;
    }
}`, "A")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioLoop(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class A {
    // Require: n >= 0 && n <= 3
    // Ensure: Result == n * 2
    public int Twice(int n) {
        int s = 0;
        for (int i = 0; i < n; i++) { s = s + 2; }
        return s;
    }
}`, "A")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioShortCircuitGuardsDereference(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class Node { public int V; }
class Holder {
    private Node N;
    public bool Positive() {
        if (N != null && N.V > 0) { return true; }
        return false;
    }
}`, "Holder")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioDoubleWidening(t *testing.T) {
	v := z3Verifier(t)
	result := verifySource(t, v, `class Account {
    // Invariant: Rate >= 0
    private double Rate = 1.5;
    // Require: n >= 0
    public void Raise(int n) { Rate = Rate + n; }
}`, "Account")
	assert.Equal(t, Safe, result.State)
}

func TestScenarioConditionalMerge(t *testing.T) {
	v := z3Verifier(t)
	covered := verifySource(t, v, `class A {
    // Invariant: X == 0 || X == 1 || X == 2
    private int X = 0;
    public void Step() {
        if (X == 0) { X = 1; } else { X = 2; }
    }
}`, "A")
	assert.Equal(t, Safe, covered.State)

	missed := verifySource(t, v, `class A {
    // Invariant: X == 0 || X == 1
    private int X = 0;
    public void Step() {
        if (X == 0) { X = 1; } else { X = 2; }
    }
}`, "A")
	require.Equal(t, ViolationFound, missed.State)
	require.Len(t, missed.Violations, 1)
	assert.Equal(t, model.InvariantViolation, missed.Violations[0].Kind)
	assert.Equal(t, "2", missed.Violations[0].Counterexample["this.X"])
}

func TestScenarioPreconditionGate(t *testing.T) {
	v := z3Verifier(t)
	open := verifySource(t, v, `class A {
    // Invariant: X == 0
    private int X = 0;
    public void Write(int x) { X = x; }
}`, "A")
	require.Equal(t, ViolationFound, open.State)
	assert.Equal(t, model.InvariantViolation, open.Violations[0].Kind)
	assert.Equal(t, []string{"Write"}, open.Violations[0].Sequence)

	gated := verifySource(t, v, `class A {
    // Invariant: X == 0
    private int X = 0;
    // Require: x == 0
    public void Write(int x) { X = x; }
}`, "A")
	assert.Equal(t, Safe, gated.State)
}
