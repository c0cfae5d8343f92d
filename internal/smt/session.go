package smt

import (
	"context"
	"fmt"
	"strings"
)

// Check is one check-sat in a script. Values are evaluated in the model when the
// check is satisfiable.
type Check struct {
	Label  string
	Values []Expr
}

// Session accumulates one SMT-LIB script: declarations, assertions and scoped checks.
// A session is owned by a single sequence and is not safe for concurrent use.
type Session struct {
	body     strings.Builder
	declared map[string]Sort
	checks   []Check
	depth    int
	asserts  int
}

// NewSession returns an empty session
func NewSession() *Session {
	return &Session{declared: make(map[string]Sort)}
}

// Declare declares the constant name once and returns it. Declaring the same name
// with another sort panics.
func (s *Session) Declare(name string, sort Sort) Expr {
	if prev, ok := s.declared[name]; ok {
		if !prev.Equal(sort) {
			panic(fmt.Sprintf("smt: %s redeclared as %v, was %v", name, sort, prev))
		}
		return Const(name, sort)
	}
	s.declared[name] = sort
	fmt.Fprintf(&s.body, "(declare-const %s %s)\n", Quote(name), sort)
	return Const(name, sort)
}

// IsDeclared reports whether name has been declared
func (s *Session) IsDeclared(name string) bool {
	_, ok := s.declared[name]
	return ok
}

// Assert adds e to the current scope
func (s *Session) Assert(e BoolExpr) {
	if e.IsTrue() {
		return
	}
	s.asserts++
	fmt.Fprintf(&s.body, "(assert %s)\n", e)
}

// Comment writes a comment line into the script
func (s *Session) Comment(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintf(&s.body, "; %s\n", strings.ReplaceAll(line, "\n", " "))
}

// Push opens an assertion scope
func (s *Session) Push() {
	s.depth++
	s.body.WriteString("(push 1)\n")
}

// Pop closes the innermost assertion scope
func (s *Session) Pop() {
	if s.depth == 0 {
		panic("smt: pop without push")
	}
	s.depth--
	s.body.WriteString("(pop 1)\n")
}

// CheckSat appends a check and returns its index in the results
func (s *Session) CheckSat(label string, values ...Expr) int {
	s.body.WriteString("(check-sat)\n")
	if len(values) > 0 {
		terms := make([]string, len(values))
		for i, v := range values {
			terms[i] = v.String()
		}
		fmt.Fprintf(&s.body, "(get-value (%s))\n", strings.Join(terms, " "))
	}
	s.checks = append(s.checks, Check{Label: label, Values: values})
	return len(s.checks) - 1
}

// Refute checks whether claim can be false where it is reached. The check is scoped
// so the negation does not leak into later checks.
func (s *Session) Refute(label string, branch, claim BoolExpr, values ...Expr) int {
	s.Push()
	s.Assert(And(branch, Not(claim)))
	idx := s.CheckSat(label, values...)
	s.Pop()
	return idx
}

// Checks returns the checks in script order
func (s *Session) Checks() []Check {
	return s.checks
}

// Stats reports the number of declarations and assertions
func (s *Session) Stats() (declarations, assertions int) {
	return len(s.declared), s.asserts
}

// Script returns the complete script
func (s *Session) Script() string {
	var b strings.Builder
	b.WriteString("(set-option :produce-models true)\n")
	b.WriteString("(set-logic ALL)\n")
	b.WriteString(s.body.String())
	b.WriteString("(exit)\n")
	return b.String()
}

// Solve runs the script on backend and parses one result per check
func (s *Session) Solve(ctx context.Context, backend Backend) ([]CheckResult, error) {
	if len(s.checks) == 0 {
		return nil, nil
	}
	out, err := backend.Run(ctx, s.Script())
	if err != nil {
		return nil, err
	}
	return ParseResults(out, s.checks)
}

// AddToSolver asserts e, guarded by branch when branch is not trivially true
func AddToSolver(s *Session, branch, e BoolExpr) {
	s.Assert(Implies(branch, e))
}
