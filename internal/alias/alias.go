// Package alias tracks the current SSA version of every variable that takes part in
// one solver session.
package alias

import (
	"fmt"
	"slices"
)

// VariableAlias is one version of a variable. Its string form is the name of the
// solver constant holding that version.
type VariableAlias struct {
	Key     string
	Version int
}

// String returns "{Key}_{Version}"
func (a VariableAlias) String() string {
	return fmt.Sprintf("%s_%d", a.Key, a.Version)
}

// counters hands out versions. It is shared by every clone of a root table so a
// version allocated on one branch is never reused on another.
type counters struct {
	next map[string]int
}

func (c *counters) allocate(key string) int {
	v := c.next[key]
	c.next[key] = v + 1
	return v
}

// Table maps variable keys to their current version
type Table struct {
	versions map[string]int
	keys     []string // registration order
	counters *counters
}

// NewTable returns an empty root table
func NewTable() *Table {
	return &Table{
		versions: make(map[string]int),
		counters: &counters{next: make(map[string]int)},
	}
}

// AddVariable registers the first version of key in this table.
// Registering a key twice is a programming error and panics.
func (t *Table) AddVariable(key string) VariableAlias {
	if t.Has(key) {
		panic(fmt.Sprintf("alias: variable %q is already registered", key))
	}
	t.versions[key] = t.counters.allocate(key)
	t.keys = append(t.keys, key)
	return t.Alias(key)
}

// AddOrIncrement registers key, or gives it a new version when it is already present.
// Parameters and locals of a method that is entered again use this.
func (t *Table) AddOrIncrement(key string) VariableAlias {
	if t.Has(key) {
		return t.IncrementAlias(key)
	}
	return t.AddVariable(key)
}

// IncrementAlias gives key a new version, distinct from every version handed out so
// far on any branch
func (t *Table) IncrementAlias(key string) VariableAlias {
	t.mustHave(key)
	t.versions[key] = t.counters.allocate(key)
	return t.Alias(key)
}

// Restore makes a an earlier version of its key current again. It is used when an
// inlined call returns and the caller's parameters come back into scope.
func (t *Table) Restore(a VariableAlias) {
	t.mustHave(a.Key)
	t.versions[a.Key] = a.Version
}

// Alias returns the current version of key. Reading an unregistered key panics.
func (t *Table) Alias(key string) VariableAlias {
	t.mustHave(key)
	return VariableAlias{Key: key, Version: t.versions[key]}
}

// Has reports whether key is registered
func (t *Table) Has(key string) bool {
	_, ok := t.versions[key]
	return ok
}

// Keys returns the registered keys in registration order
func (t *Table) Keys() []string {
	return slices.Clone(t.keys)
}

// Len returns the number of registered keys
func (t *Table) Len() int {
	return len(t.keys)
}

// Clone returns a snapshot that evolves independently but keeps allocating versions
// from the same counters
func (t *Table) Clone() *Table {
	versions := make(map[string]int, len(t.versions))
	for k, v := range t.versions {
		versions[k] = v
	}
	return &Table{
		versions: versions,
		keys:     slices.Clone(t.keys),
		counters: t.counters,
	}
}

// GetAliasDifference returns the keys registered in t but not in other, in
// registration order
func (t *Table) GetAliasDifference(other *Table) []string {
	var diff []string
	for _, k := range t.keys {
		if !other.Has(k) {
			diff = append(diff, k)
		}
	}
	return diff
}

// Merge joins the table of the other branch into t. Every key present on both sides
// at different versions gets a fresh version in t and is returned as updated; the
// caller asserts the branch-conditional equalities that define it. Keys only known
// to other are adopted at other's version.
func (t *Table) Merge(other *Table) (updated []string) {
	for _, k := range t.keys {
		ov, ok := other.versions[k]
		if !ok || ov == t.versions[k] {
			continue
		}
		t.versions[k] = t.counters.allocate(k)
		updated = append(updated, k)
	}
	for _, k := range other.keys {
		if !t.Has(k) {
			t.versions[k] = other.versions[k]
			t.keys = append(t.keys, k)
		}
	}
	return updated
}

func (t *Table) mustHave(key string) {
	if !t.Has(key) {
		panic(fmt.Sprintf("alias: variable %q is not registered", key))
	}
}
