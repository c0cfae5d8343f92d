package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhaig/boundcheck/internal/model"
)

const counterSource = `namespace Shop {
    class Counter {
        // Invariant: Count >= 0
        private int Count = 0;
        public int Limit { get; set; }

        // Require: amount > 0
        // Ensure: Count >= amount
        public void Add(int amount) {
            if (Count + amount <= Limit) { Count = Count + amount; } else { Count = amount; }
        }

        private int Twice(int x) {
            int y = x * 2;
            return y;
        }
    }
}`

func parseOne(t *testing.T, source string) *model.ClassModel {
	t.Helper()
	p := New(source)
	classes := p.Parse()
	require.False(t, p.Diagnostics().HasErrors(), p.Diagnostics().Format("test"))
	require.Len(t, classes, 1)
	return classes[0]
}

func TestParseClass(t *testing.T) {
	c := parseOne(t, counterSource)

	assert.Equal(t, "Shop.Counter", c.Name)
	assert.True(t, c.Unsupported.IsEmpty(), "unexpected unsupported elements: %+v", c.Unsupported.All())

	require.Len(t, c.Fields, 1)
	count := c.Fields[0]
	assert.Equal(t, "Count", count.Name)
	assert.Equal(t, model.FieldVar, count.Kind)
	assert.False(t, count.IsPublic)
	assert.Equal(t, &model.IntLiteral{Value: 0, Location: model.Location{Line: 4, Column: 29}}, count.Initializer)

	require.Len(t, c.Properties, 1)
	assert.Equal(t, "Limit", c.Properties[0].Name)
	assert.True(t, c.Properties[0].IsPublic)

	require.Len(t, c.Invariants, 1)
	assert.Equal(t, "Count >= 0", c.Invariants[0].Text)

	require.Len(t, c.Methods, 2)
	add := c.Methods[0]
	assert.Equal(t, "Add", add.Name)
	assert.True(t, add.IsPublic())
	assert.Nil(t, add.Result())
	require.Len(t, add.Parameters, 1)
	assert.Equal(t, "Shop.Counter::Add-amount", add.Parameters[0].ScopedName(1))
	require.Len(t, add.Requires, 1)
	assert.Equal(t, "amount > 0", add.Requires[0].Text)
	require.Len(t, add.Ensures, 1)
	assert.Equal(t, "Count >= amount", add.Ensures[0].Text)

	require.Len(t, add.Body, 1)
	cond, ok := add.Body[0].(*model.Conditional)
	require.True(t, ok)
	assert.Equal(t, "(Count + amount) <= Limit", model.Render(cond.Condition))
	assert.Len(t, cond.Then, 1)
	assert.Len(t, cond.Else, 1)

	twice := c.Methods[1]
	assert.False(t, twice.IsPublic())
	require.NotNil(t, twice.Result())
	assert.Equal(t, model.TypeInt, twice.Result().Type)
	assert.NotNil(t, twice.Lookup("y"))
	require.Len(t, twice.Body, 2)
	decl, ok := twice.Body[0].(*model.Assignment)
	require.True(t, ok)
	assert.True(t, decl.IsDeclaration)
	assert.IsType(t, &model.Return{}, twice.Body[1])
}

func TestParseContractLocations(t *testing.T) {
	c := parseOne(t, "class A {\n// Invariant: X > 0\nint X;\n}")

	require.Len(t, c.Invariants, 1)
	inv := c.Invariants[0]
	assert.Equal(t, model.Location{Line: 2, Column: 15}, inv.Location)
	assert.Equal(t, model.Location{Line: 2, Column: 15}, inv.Expr.Loc())

	cmp, ok := inv.Expr.(*model.Comparison)
	require.True(t, ok)
	assert.Equal(t, model.Location{Line: 2, Column: 19}, cmp.Right.Loc())
}

func TestParseStatements(t *testing.T) {
	c := parseOne(t, `class A {
    int X;
    void M(int n) {
        X += n;
        X++;
        for (int i = 0; i <= n; i++) { X = X - 1; }
    }
}`)
	m := c.Method("M")
	require.NotNil(t, m)
	require.Len(t, m.Body, 3)

	inc, ok := m.Body[0].(*model.Assignment)
	require.True(t, ok)
	assert.Equal(t, "X + n", model.Render(inc.Value))

	post, ok := m.Body[1].(*model.Assignment)
	require.True(t, ok)
	assert.Equal(t, "X + 1", model.Render(post.Value))

	loop, ok := m.Body[2].(*model.ForLoop)
	require.True(t, ok)
	assert.Equal(t, "i", loop.Index.Name)
	assert.True(t, loop.Inclusive)
	assert.Len(t, loop.Body, 1)
	assert.NotNil(t, m.Lookup("i"))
}

func TestParseCalls(t *testing.T) {
	c := parseOne(t, `class A {
    int F(int a) { return a; }
    void G() { }
    void M() {
        int r = F(2);
        r = F(r);
        this.G();
    }
}`)
	m := c.Method("M")
	require.NotNil(t, m)
	require.Len(t, m.Body, 4)

	first, ok := m.Body[1].(*model.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "F", first.Method)
	assert.Equal(t, "r", model.Render(first.Dest))
	require.Len(t, first.Args, 1)

	last, ok := m.Body[3].(*model.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "G", last.Method)
	assert.Nil(t, last.Dest)
}

func TestParseUnsupported(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		category model.Category
	}{
		{"while loop", "class A { void M() { while (true) { } } }", model.UnsupportedStatement},
		{"foreach loop", "class A { void M() { foreach (var x in xs) { } } }", model.UnsupportedStatement},
		{"string field", "class A { string S; }", model.UnsupportedField},
		{"static field", "class A { static int X; }", model.UnsupportedField},
		{"constructor", "class A { public A() { } }", model.UnsupportedMethod},
		{"protected method", "class A { protected void M() { } }", model.UnsupportedMethod},
		{"require on field", "class A {\n// Require: X > 0\nint X;\n}", model.UnsupportedRequire},
		{"generic class", "class A<T> { }", model.UnsupportedDeclaration},
		{"inheritance", "class A : B { }", model.UnsupportedDeclaration},
		{"ref parameter", "class A { void M(ref int x) { } }", model.UnsupportedParameter},
		{"conditional expression", "class A { int M(bool b) { return b ? 1 : 2; } }", model.UnsupportedExpression},
		{"call inside expression", "class A { int F() { return 1; } int M() { int x = F() + 1; return x; } }", model.UnsupportedExpression},
		{"bitwise operator", "class A { int M(int x) { return x | 1; } }", model.UnsupportedExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := parseOne(t, tt.source)
			assert.False(t, c.IsEligible())

			var categories []model.Category
			for _, el := range c.Unsupported.All() {
				categories = append(categories, el.Category)
				assert.True(t, el.Location.IsValid(), "element %q has no location", el.Text)
			}
			assert.Contains(t, categories, tt.category)
		})
	}
}

func TestParseUnsupportedKeepsText(t *testing.T) {
	c := parseOne(t, "class A {\n    void M() {\n        while (true) { }\n    }\n}")
	require.Len(t, c.Unsupported.Statements, 1)
	el := c.Unsupported.Statements[0]
	assert.Equal(t, "while (true) { }", el.Text)
	assert.Equal(t, model.Location{Line: 3, Column: 9}, el.Location)
}

func TestParseSyntaxError(t *testing.T) {
	p := New("class A { int X = ; }")
	classes := p.Parse()

	assert.True(t, p.Diagnostics().HasErrors())
	require.Len(t, classes, 1)
	assert.True(t, classes[0].Unsupported.InvalidDeclaration)
}

func TestParseDependencies(t *testing.T) {
	p := New(`namespace Shop {
    class Item { int Price; }
    class Cart { Item First; }
}`)
	classes := p.Parse()
	require.Len(t, classes, 2)

	cart := classes[1]
	require.Len(t, cart.Dependencies, 1)
	assert.Equal(t, "Shop.Item", cart.Dependencies[0].Name)
	assert.Nil(t, cart.Dependencies[0].Dependencies)
	assert.Same(t, cart.Dependencies[0], cart.Class("Item"))
}

func TestParseExpression(t *testing.T) {
	expr, err := ParseExpression("a + b * 2", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "a + (b * 2)", model.Render(expr))

	bin, ok := expr.(*model.Binary)
	require.True(t, ok)
	assert.Equal(t, model.Location{Line: 1, Column: 3}, bin.Location)

	_, err = ParseExpression("a + ", 1, 1)
	assert.Error(t, err)

	_, err = ParseExpression("a b", 1, 1)
	assert.Error(t, err)

	_, err = ParseExpression("x ? 1 : 2", 1, 1)
	assert.EqualError(t, err, "conditional expressions are not supported")
}
