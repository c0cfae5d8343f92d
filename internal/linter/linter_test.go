package linter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/boundcheck/internal/checker"
	"github.com/lhaig/boundcheck/internal/parser"
)

func parseAndLint(t *testing.T, source string) []string {
	t.Helper()
	p := parser.New(source)
	classes := p.Parse()
	require.False(t, p.Diagnostics().HasErrors(), p.Diagnostics().Format("test"))
	checker.Check(classes)

	diag := Lint(classes)
	assert.False(t, diag.HasErrors(), "the linter only warns")
	var warnings []string
	for _, d := range diag.All() {
		warnings = append(warnings, d.Message)
	}
	return warnings
}

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

const tidy = `class Counter {
    // Invariant: Count >= 0
    private int Count;
    // Require: n > 0
    // Ensure: Result > 0
    public int Add(int n) {
        Count = Count + n;
        return Count;
    }
}`

func TestCleanClassHasNoWarnings(t *testing.T) {
	assert.Empty(t, parseAndLint(t, tidy))
}

func TestRules(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		warning string
	}{
		{
			name: "no invariant",
			source: `class A {
    private int X;
    // Ensure: Result == X
    public int Get() { return X; }
}`,
			warning: "class 'A' has members but no invariant",
		},
		{
			name: "empty body",
			source: `class A {
    // Require: true
    public void Nothing() { }
}`,
			warning: "method 'A.Nothing' has an empty body",
		},
		{
			name: "missing contracts",
			source: `class A {
    // Invariant: X >= 0
    private int X;
    public void Bump() { X = X + 1; }
}`,
			warning: "method 'A.Bump' has no Require or Ensure contracts",
		},
		{
			name: "method naming",
			source: `class A {
    // Ensure: Result == 1
    public int one() { return 1; }
}`,
			warning: "method 'one' should use PascalCase naming",
		},
		{
			name: "parameter naming",
			source: `class A {
    // Ensure: Result == Amount
    public int Echo(int Amount) { return Amount; }
}`,
			warning: "parameter 'Amount' in 'Echo' should use camelCase naming",
		},
		{
			name: "unused parameter",
			source: `class A {
    // Ensure: Result == 1
    public int One(int unused) { return 1; }
}`,
			warning: "parameter 'unused' in 'One' is never used",
		},
		{
			name: "unused local",
			source: `class A {
    // Ensure: Result == 1
    public int One() {
        int spare = 2;
        return 1;
    }
}`,
			warning: "variable 'spare' is declared but never used",
		},
		{
			name: "write-only field",
			source: `class A {
    // Invariant: true
    private int Hidden;
    // Require: v > 0
    public void Store(int v) { Hidden = v; }
}`,
			warning: "private field 'Hidden' is never read",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := parseAndLint(t, tt.source)
			assert.True(t, containsWarning(warnings, tt.warning), "expected %q in %v", tt.warning, warnings)
		})
	}
}

func TestParameterReadOnlyInContract(t *testing.T) {
	warnings := parseAndLint(t, `class A {
    // Invariant: true
    // Require: n > 0
    public void Check(int n) { }
}`)
	assert.False(t, containsWarning(warnings, "never used"), "got %v", warnings)
}

func TestPrivateMethodsNeedNoContracts(t *testing.T) {
	warnings := parseAndLint(t, `class A {
    // Invariant: X >= 0
    private int X;
    // Require: true
    public void Run() { Step(); }
    private void Step() { X = X + 1; }
}`)
	assert.False(t, containsWarning(warnings, "'A.Step' has no"), "got %v", warnings)
}

func TestNamingHelpers(t *testing.T) {
	assert.True(t, isPascalCase("Counter"))
	assert.False(t, isPascalCase("counter"))
	assert.False(t, isPascalCase("Big_Counter"))
	assert.False(t, isPascalCase(""))
	assert.True(t, isCamelCase("amount"))
	assert.False(t, isCamelCase("Amount"))
	assert.False(t, isCamelCase("my_amount"))
}
