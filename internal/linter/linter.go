package linter

import (
	"strings"
	"unicode"

	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/model"
)

// Linter performs style and contract-coverage checks on checked class models.
// It reports warnings (never errors) using the diagnostic system.
type Linter struct {
	class *model.ClassModel
	diag  *diagnostic.Diagnostics
}

// Lint runs all lint rules on the given classes and returns diagnostics.
// Classes must have gone through the checker so that references are resolved.
func Lint(classes []*model.ClassModel) *diagnostic.Diagnostics {
	diag := diagnostic.New()
	for _, c := range classes {
		l := &Linter{class: c, diag: diag}
		l.lintClass()
	}
	diag.Sort()
	return diag
}

func (l *Linter) lintClass() {
	c := l.class
	l.checkTypeNaming()
	l.checkClassWithoutInvariant()

	reads := make(map[*model.Variable]bool)
	for _, inv := range c.Invariants {
		collectReads(inv.Expr, reads)
	}
	for _, m := range c.Methods {
		for _, a := range m.Requires {
			collectReads(a.Expr, reads)
		}
		for _, a := range m.Ensures {
			collectReads(a.Expr, reads)
		}
		collectStmtReads(m.Body, reads)
	}
	for _, v := range c.Members() {
		collectReads(v.Initializer, reads)
	}

	for _, m := range c.Methods {
		l.checkEmptyBody(m)
		l.checkMissingContracts(m)
		l.checkMethodNaming(m)
		l.checkUnusedParams(m, reads)
		l.checkUnusedLocals(m, reads)
	}
	l.checkUnusedPrivateFields(reads)
}

// --- Lint rules ---

// checkClassWithoutInvariant warns if a class has members but no invariant.
func (l *Linter) checkClassWithoutInvariant() {
	c := l.class
	if len(c.Members()) > 0 && len(c.Invariants) == 0 {
		l.diag.Warningf(c.Location.Line, c.Location.Column,
			"class '%s' has members but no invariant", c.Name)
	}
}

// checkEmptyBody warns if a method body has no statements.
func (l *Linter) checkEmptyBody(m *model.Method) {
	if len(m.Body) == 0 {
		l.diag.Warningf(m.Location.Line, m.Location.Column,
			"method '%s.%s' has an empty body", l.class.Name, m.Name)
	}
}

// checkMissingContracts warns if a public method has no Require or Ensure comments.
// Private methods inherit the obligations of their callers and are not reported.
func (l *Linter) checkMissingContracts(m *model.Method) {
	if !m.IsPublic() {
		return
	}
	if len(m.Requires) == 0 && len(m.Ensures) == 0 {
		l.diag.Warningf(m.Location.Line, m.Location.Column,
			"method '%s.%s' has no Require or Ensure contracts", l.class.Name, m.Name)
	}
}

func (l *Linter) checkTypeNaming() {
	c := l.class
	name := c.Name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if !isPascalCase(name) {
		l.diag.Warningf(c.Location.Line, c.Location.Column,
			"class '%s' should use PascalCase naming", name)
	}
	for _, v := range c.Members() {
		if v.IsPublic && !isPascalCase(v.Name) {
			l.diag.Warningf(v.Location.Line, v.Location.Column,
				"public %s '%s' should use PascalCase naming", v.Kind, v.Name)
		}
	}
}

// checkMethodNaming warns if a method is not PascalCase or a parameter not camelCase.
func (l *Linter) checkMethodNaming(m *model.Method) {
	if !isPascalCase(m.Name) {
		l.diag.Warningf(m.Location.Line, m.Location.Column,
			"method '%s' should use PascalCase naming", m.Name)
	}
	for _, p := range m.Parameters {
		if !isCamelCase(p.Name) {
			l.diag.Warningf(p.Location.Line, p.Location.Column,
				"parameter '%s' in '%s' should use camelCase naming", p.Name, m.Name)
		}
	}
}

// checkUnusedParams warns about parameters that are never read in the body or contracts.
func (l *Linter) checkUnusedParams(m *model.Method, reads map[*model.Variable]bool) {
	for _, p := range m.Parameters {
		if !reads[p] {
			l.diag.Warningf(p.Location.Line, p.Location.Column,
				"parameter '%s' in '%s' is never used", p.Name, m.Name)
		}
	}
}

// checkUnusedLocals warns about locals that are declared but never read.
func (l *Linter) checkUnusedLocals(m *model.Method, reads map[*model.Variable]bool) {
	for _, v := range m.Locals {
		if v.IsResult || reads[v] {
			continue
		}
		l.diag.Warningf(v.Location.Line, v.Location.Column,
			"variable '%s' is declared but never used", v.Name)
	}
}

// checkUnusedPrivateFields warns about private members nothing reads. Public members
// are read by clients and never reported.
func (l *Linter) checkUnusedPrivateFields(reads map[*model.Variable]bool) {
	for _, v := range l.class.Members() {
		if v.IsPublic || reads[v] {
			continue
		}
		l.diag.Warningf(v.Location.Line, v.Location.Column,
			"private %s '%s' is never read", v.Kind, v.Name)
	}
}

// --- Read collection ---

// collectStmtReads records every variable whose value a statement list reads.
// Plain assignment targets are writes; the object and index of an element or member
// target are reads.
func collectStmtReads(stmts []model.Statement, reads map[*model.Variable]bool) {
	for _, stmt := range stmts {
		switch s := stmt.(type) {
		case *model.Assignment:
			collectTargetReads(s.Target, reads)
			collectReads(s.Value, reads)
		case *model.Conditional:
			collectReads(s.Condition, reads)
			collectStmtReads(s.Then, reads)
			collectStmtReads(s.Else, reads)
		case *model.Return:
			collectReads(s.Value, reads)
		case *model.MethodCall:
			for _, a := range s.Args {
				collectReads(a, reads)
			}
			collectTargetReads(s.Dest, reads)
		case *model.ForLoop:
			collectReads(s.From, reads)
			collectReads(s.To, reads)
			if s.Index != nil && s.Index.Var != nil {
				reads[s.Index.Var] = true
			}
			collectStmtReads(s.Body, reads)
		}
	}
}

func collectTargetReads(target model.Expression, reads map[*model.Variable]bool) {
	switch t := target.(type) {
	case *model.MemberAccess:
		collectReads(t.Object, reads)
	case *model.ElementAccess:
		collectReads(t.Array, reads)
		collectReads(t.Index, reads)
	}
}

func collectReads(expr model.Expression, reads map[*model.Variable]bool) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *model.VariableRef:
		if e.Var != nil {
			reads[e.Var] = true
		}
	case *model.Paren:
		collectReads(e.Inner, reads)
	case *model.Unary:
		collectReads(e.Operand, reads)
	case *model.Binary:
		collectReads(e.Left, reads)
		collectReads(e.Right, reads)
	case *model.Comparison:
		collectReads(e.Left, reads)
		collectReads(e.Right, reads)
	case *model.Logical:
		collectReads(e.Left, reads)
		collectReads(e.Right, reads)
	case *model.NewArray:
		collectReads(e.Length, reads)
	case *model.MemberAccess:
		if e.Var != nil {
			reads[e.Var] = true
		}
		collectReads(e.Object, reads)
	case *model.ElementAccess:
		collectReads(e.Array, reads)
		collectReads(e.Index, reads)
	}
}

// --- Naming convention helpers ---

// isPascalCase returns true if the name starts with an uppercase letter
// and contains no underscores.
func isPascalCase(name string) bool {
	if len(name) == 0 {
		return false
	}
	runes := []rune(name)
	if !unicode.IsUpper(runes[0]) {
		return false
	}
	return !strings.ContainsRune(name, '_')
}

// isCamelCase returns true if the name starts with a lowercase letter
// and contains no underscores.
func isCamelCase(name string) bool {
	if len(name) == 0 {
		return false
	}
	runes := []rune(name)
	if !unicode.IsLower(runes[0]) {
		return false
	}
	return !strings.ContainsRune(name, '_')
}
