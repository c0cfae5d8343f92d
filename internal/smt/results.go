package smt

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Status is the answer to one check-sat
type Status int

const (
	Unknown Status = iota
	Sat
	Unsat
)

// String returns the solver spelling
func (s Status) String() string {
	switch s {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of one Check. Values holds the rendered model values of the
// check's terms when Status is Sat.
type CheckResult struct {
	Status Status
	Values []string
}

// ErrSolver reports an error message printed by the solver
var ErrSolver = errors.New("solver error")

// ParseResults reads solver output for checks. Output that ends early, as when the
// solver hits its time limit, leaves the remaining checks Unknown.
func ParseResults(output string, checks []Check) ([]CheckResult, error) {
	r := &sexprReader{src: output}
	results := make([]CheckResult, len(checks))
	for i, c := range checks {
		tok, err := r.next()
		if err != nil {
			return nil, err
		}
		if tok == nil {
			break
		}
		if e, ok := errorMessage(tok); ok {
			return nil, fmt.Errorf("%w: %s", ErrSolver, e)
		}
		switch tok.atom {
		case "sat":
			results[i].Status = Sat
		case "unsat":
			results[i].Status = Unsat
		case "unknown", "timeout":
			results[i].Status = Unknown
		default:
			return nil, fmt.Errorf("%w: unexpected output %q for check %s", ErrSolver, tok, c.Label)
		}
		if len(c.Values) == 0 {
			continue
		}
		vals, err := r.next()
		if err != nil {
			return nil, err
		}
		if vals == nil {
			break
		}
		if e, ok := errorMessage(vals); ok {
			// no model after unsat or unknown
			if results[i].Status == Sat {
				return nil, fmt.Errorf("%w: %s", ErrSolver, e)
			}
			continue
		}
		if len(vals.list) != len(c.Values) {
			return nil, fmt.Errorf("%w: expected %d values for check %s, got %q", ErrSolver, len(c.Values), c.Label, vals)
		}
		for j, pair := range vals.list {
			if len(pair.list) != 2 {
				return nil, fmt.Errorf("%w: malformed value %q", ErrSolver, pair)
			}
			results[i].Values = append(results[i].Values, FormatValue(pair.list[1], c.Values[j].Sort()))
		}
	}
	return results, nil
}

func errorMessage(n *sexpr) (string, bool) {
	if len(n.list) == 2 && n.list[0].atom == "error" {
		return strings.Trim(n.list[1].atom, `"`), true
	}
	return "", false
}

// FormatValue renders a model value the way the source language would print it
func FormatValue(n *sexpr, s Sort) string {
	switch s.Kind {
	case IntSort:
		if v, ok := evalNumber(n); ok {
			return v.RatString()
		}
	case RefSort:
		if v, ok := evalNumber(n); ok {
			if v.Sign() == 0 {
				return "null"
			}
			return "object#" + v.RatString()
		}
	case RealSort:
		if v, ok := evalNumber(n); ok {
			f, _ := v.Float64()
			return fmt.Sprintf("%g", f)
		}
	}
	return n.String()
}

func evalNumber(n *sexpr) (*big.Rat, bool) {
	if n.list == nil {
		v, ok := new(big.Rat).SetString(n.atom)
		return v, ok
	}
	if len(n.list) == 2 && n.list[0].atom == "-" {
		v, ok := evalNumber(n.list[1])
		if !ok {
			return nil, false
		}
		return v.Neg(v), true
	}
	if len(n.list) == 3 && n.list[0].atom == "/" {
		num, ok1 := evalNumber(n.list[1])
		den, ok2 := evalNumber(n.list[2])
		if !ok1 || !ok2 || den.Sign() == 0 {
			return nil, false
		}
		return num.Quo(num, den), true
	}
	return nil, false
}

// sexpr is an atom or a list
type sexpr struct {
	atom string
	list []*sexpr
}

func (n *sexpr) String() string {
	if n.list == nil {
		return n.atom
	}
	parts := make([]string, len(n.list))
	for i, c := range n.list {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

type sexprReader struct {
	src string
	pos int
}

// next returns the next top-level expression, or nil at the end of input
func (r *sexprReader) next() (*sexpr, error) {
	r.skip()
	if r.pos >= len(r.src) {
		return nil, nil
	}
	return r.read()
}

func (r *sexprReader) skip() {
	for r.pos < len(r.src) {
		switch c := r.src[r.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			r.pos++
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		default:
			return
		}
	}
}

func (r *sexprReader) read() (*sexpr, error) {
	r.skip()
	if r.pos >= len(r.src) {
		return nil, fmt.Errorf("%w: unexpected end of output", ErrSolver)
	}
	switch r.src[r.pos] {
	case '(':
		r.pos++
		n := &sexpr{list: []*sexpr{}}
		for {
			r.skip()
			if r.pos >= len(r.src) {
				return nil, fmt.Errorf("%w: unterminated list", ErrSolver)
			}
			if r.src[r.pos] == ')' {
				r.pos++
				return n, nil
			}
			child, err := r.read()
			if err != nil {
				return nil, err
			}
			n.list = append(n.list, child)
		}
	case ')':
		return nil, fmt.Errorf("%w: unbalanced ')' at offset %d", ErrSolver, r.pos)
	case '"':
		return r.delimited('"'), nil
	case '|':
		return r.delimited('|'), nil
	default:
		start := r.pos
		for r.pos < len(r.src) && !strings.ContainsRune(" \t\r\n()", rune(r.src[r.pos])) {
			r.pos++
		}
		return &sexpr{atom: r.src[start:r.pos]}, nil
	}
}

// delimited reads a string literal or quoted symbol, keeping the delimiters.
// A doubled quote inside a string is an escaped quote.
func (r *sexprReader) delimited(q byte) *sexpr {
	start := r.pos
	r.pos++
	for r.pos < len(r.src) {
		if r.src[r.pos] == q {
			if q == '"' && r.pos+1 < len(r.src) && r.src[r.pos+1] == '"' {
				r.pos += 2
				continue
			}
			r.pos++
			break
		}
		r.pos++
	}
	return &sexpr{atom: r.src[start:r.pos]}
}
