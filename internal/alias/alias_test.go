package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableAliasString(t *testing.T) {
	a := VariableAlias{Key: "Shop.Counter#1:Count", Version: 3}
	assert.Equal(t, "Shop.Counter#1:Count_3", a.String())
}

func TestAddAndIncrement(t *testing.T) {
	table := NewTable()

	first := table.AddVariable("x")
	assert.Equal(t, VariableAlias{Key: "x", Version: 0}, first)
	assert.True(t, table.Has("x"))

	second := table.IncrementAlias("x")
	assert.Equal(t, 1, second.Version)
	assert.Equal(t, second, table.Alias("x"))

	third := table.AddOrIncrement("x")
	assert.Equal(t, 2, third.Version)

	fresh := table.AddOrIncrement("y")
	assert.Equal(t, 0, fresh.Version)
	assert.Equal(t, []string{"x", "y"}, table.Keys())
}

func TestUnregisteredKeyPanics(t *testing.T) {
	table := NewTable()
	assert.Panics(t, func() { table.Alias("missing") })
	assert.Panics(t, func() { table.IncrementAlias("missing") })

	table.AddVariable("x")
	assert.Panics(t, func() { table.AddVariable("x") })
}

func TestCloneSharesVersionCounters(t *testing.T) {
	root := NewTable()
	root.AddVariable("x")

	left := root.Clone()
	right := root.Clone()
	l := left.IncrementAlias("x")
	r := right.IncrementAlias("x")

	assert.NotEqual(t, l, r, "versions allocated on different branches must differ")
	assert.Equal(t, 0, root.Alias("x").Version, "clones must not affect the original")
}

func TestGetAliasDifference(t *testing.T) {
	root := NewTable()
	root.AddVariable("x")

	branch := root.Clone()
	branch.AddVariable("tmp")
	branch.IncrementAlias("x")

	assert.Equal(t, []string{"tmp"}, branch.GetAliasDifference(root))
	assert.Empty(t, root.GetAliasDifference(branch))
}

func TestMerge(t *testing.T) {
	root := NewTable()
	root.AddVariable("same")
	root.AddVariable("changed")
	root.AddVariable("both")

	thenT := root.Clone()
	elseT := root.Clone()
	thenT.IncrementAlias("changed")
	thenT.IncrementAlias("both")
	elseT.IncrementAlias("both")
	elseT.AddVariable("extra")

	before := thenT.Clone()
	updated := thenT.Merge(elseT)

	assert.Equal(t, []string{"changed", "both"}, updated)
	assert.Equal(t, root.Alias("same"), thenT.Alias("same"), "untouched variables keep their version")

	for _, key := range updated {
		merged := thenT.Alias(key).Version
		assert.NotEqual(t, before.Alias(key).Version, merged)
		assert.NotEqual(t, elseT.Alias(key).Version, merged)
	}
	require.True(t, thenT.Has("extra"))
	assert.Equal(t, elseT.Alias("extra"), thenT.Alias("extra"))
}

func TestMergeIdenticalBranches(t *testing.T) {
	root := NewTable()
	root.AddVariable("x")
	root.IncrementAlias("x")

	thenT := root.Clone()
	elseT := root.Clone()
	assert.Empty(t, thenT.Merge(elseT))
}

func TestRestore(t *testing.T) {
	table := NewTable()
	saved := table.AddVariable("p")
	table.IncrementAlias("p")

	table.Restore(saved)
	assert.Equal(t, saved, table.Alias("p"))

	next := table.IncrementAlias("p")
	assert.Equal(t, 2, next.Version, "restoring must not reuse versions")
}
