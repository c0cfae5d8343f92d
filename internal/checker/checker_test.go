package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/parser"
)

func parseAndCheck(t *testing.T, source string) []*model.ClassModel {
	t.Helper()
	p := parser.New(source)
	classes := p.Parse()
	require.False(t, p.Diagnostics().HasErrors(), p.Diagnostics().Format("test"))
	Check(classes)
	return classes
}

func categories(c *model.ClassModel) []model.Category {
	var out []model.Category
	for _, el := range c.Unsupported.All() {
		out = append(out, el.Category)
	}
	return out
}

func TestValidClass(t *testing.T) {
	source := `namespace Bank {
    class Account {
        // Invariant: Balance >= 0
        private int Balance = 0;
        private double Rate = 1;
        private int[] History = new int[4];

        // Require: amount > 0
        // Require: amount <= Balance
        // Ensure: Result == Balance
        public int Withdraw(int amount) {
            Balance = Balance - amount;
            Rate = Rate * 2;
            History[0] = amount;
            Record(amount);
            return Balance;
        }

        private void Record(int amount) {
            for (int i = 0; i < History.Length; i++) {
                if (History[i] == 0) { History[i] = amount; }
            }
        }
    }
}`
	classes := parseAndCheck(t, source)
	require.Len(t, classes, 1)
	c := classes[0]
	assert.True(t, c.IsEligible(), "unexpected unsupported elements: %+v", c.Unsupported.All())

	withdraw := c.Method("Withdraw")
	require.NotNil(t, withdraw)
	call, ok := withdraw.Body[3].(*model.MethodCall)
	require.True(t, ok)
	assert.Same(t, c.Method("Record"), call.Callee)

	ref, ok := withdraw.Requires[1].Expr.(*model.Comparison).Right.(*model.VariableRef)
	require.True(t, ok)
	assert.Same(t, c.Member("Balance"), ref.Var)
}

func TestCheckRejections(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		category model.Category
	}{
		{"assign bool to int", "class A { int X; void M() { X = true; } }", model.UnsupportedStatement},
		{"non-bool condition", "class A { int X; void M() { if (X) { X = 1; } } }", model.UnsupportedExpression},
		{"unknown name", "class A { void M() { Y = 1; } }", model.UnsupportedExpression},
		{"unknown method", "class A { void M() { N(); } }", model.UnsupportedStatement},
		{"argument count", "class A { void N(int a) { } void M() { N(); } }", model.UnsupportedStatement},
		{"void call result", "class A { int X; void N() { } void M() { X = N(); } }", model.UnsupportedStatement},
		{"result in body", "class A { int M() { Result = 1; return 1; } }", model.UnsupportedExpression},
		{"result in require", "class A {\n// Require: Result > 0\nint M() { return 1; } }", model.UnsupportedRequire},
		{"local in ensure", "class A {\n// Ensure: y > 0\nvoid M() { int y = 1; } }", model.UnsupportedEnsure},
		{"non-bool invariant", "class A {\n// Invariant: X + 1\nint X; }", model.UnsupportedInvariant},
		{"float remainder", "class A { double D; void M() { D = D % 2; } }", model.UnsupportedExpression},
		{"unknown class", "class A { B Other; }", model.UnsupportedField},
		{"object array", "class A { A[] Others; }", model.UnsupportedField},
		{"duplicate name", "class A { int X; void M(int X) { } }", model.UnsupportedParameter},
		{"overload", "class A { void M() { } void M(int a) { } }", model.UnsupportedMethod},
		{"computed initializer", "class A { int X = 1 + 2; }", model.UnsupportedField},
		{"initializer cycle", "class A { A Next = new A(); }", model.UnsupportedField},
		{"unreachable code", "class A { int X; void M() { return; X = 1; } }", model.UnsupportedStatement},
		{"loop index assigned", "class A { void M() { for (int i = 0; i < 3; i++) { i = 2; } } }", model.UnsupportedStatement},
		{"array length assigned", "class A { int[] Xs = new int[2]; void M() { Xs.Length = 3; } }", model.UnsupportedStatement},
		{"static uses member", "class A { int X; static void M() { X = 1; } }", model.UnsupportedExpression},
		{"new in contract", "class A {\n// Require: new A() != null\nvoid M() { } }", model.UnsupportedRequire},
		{"untyped null", "class A { bool M() { return null == null; } }", model.UnsupportedExpression},
		{"missing return value", "class A { int M() { return; } }", model.UnsupportedStatement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classes := parseAndCheck(t, tt.source)
			require.Len(t, classes, 1)
			c := classes[0]
			assert.False(t, c.IsEligible())
			assert.Contains(t, categories(c), tt.category)
		})
	}
}

func TestCheckAcceptsWideningAndNull(t *testing.T) {
	classes := parseAndCheck(t, `class Node {
    Node Next = null;
    double Weight = 2;
    bool IsLast() { return Next == null; }
    void Link(Node other) { Next = other; Weight = 3; }
    void Clear() { Link(null); }
}`)
	c := classes[0]
	assert.True(t, c.IsEligible(), "unexpected unsupported elements: %+v", c.Unsupported.All())

	null, ok := c.Member("Next").Initializer.(*model.NullLiteral)
	require.True(t, ok)
	assert.Equal(t, "Node", null.Of.ClassName)
}

func TestCheckCanonicalizesClassNames(t *testing.T) {
	classes := parseAndCheck(t, `namespace Shop {
    class Item { int Price = 1; }
    class Cart {
        Item First = new Item();
        int Total() { return First.Price; }
    }
}`)
	require.Len(t, classes, 2)
	cart := classes[1]
	assert.True(t, cart.IsEligible(), "unexpected unsupported elements: %+v", cart.Unsupported.All())

	first := cart.Member("First")
	assert.Equal(t, "Shop.Item", first.Type.ClassName)
	assert.Equal(t, "Shop.Item", first.Initializer.(*model.NewObject).ClassName)
}

func TestCheckDependencyEligibility(t *testing.T) {
	classes := parseAndCheck(t, `class Item { string Label; }
class Cart { Item First; }`)
	require.Len(t, classes, 2)

	cart := classes[1]
	assert.False(t, cart.IsEligible())
	require.Len(t, cart.Unsupported.Declaration, 1)
	assert.Equal(t, "Item", cart.Unsupported.Declaration[0].Text)
}

func TestCheckDiagnostics(t *testing.T) {
	p := parser.New("class A {\n    void M() {\n        while (true) { }\n        Y = 1;\n    }\n}")
	classes := p.Parse()
	diags := Check(classes)

	require.Equal(t, 2, diags.WarningCount())
	all := diags.All()
	assert.Equal(t, 3, all[0].Line)
	assert.Equal(t, 4, all[1].Line)
	assert.Equal(t, "A", all[1].Class)
	assert.Contains(t, all[1].Message, `unknown name "Y"`)
	assert.False(t, diags.HasErrors())
}

func TestScope(t *testing.T) {
	outer := NewScope(nil)
	x := &model.Variable{Name: "x", Kind: model.FieldVar, Type: model.TypeInt}
	require.NoError(t, outer.Define(x))
	require.NoError(t, outer.Define(x))

	inner := NewScope(outer)
	assert.Same(t, x, inner.Resolve("x"))
	assert.Nil(t, inner.ResolveLocal("x"))

	dup := &model.Variable{Name: "x", Kind: model.LocalVar, Type: model.TypeBool}
	assert.Error(t, inner.Define(dup))
}
