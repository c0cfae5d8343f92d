// Package smt builds SMT-LIB 2 terms and scripts and runs them against a solver.
// Terms are typed by sort so that sort mismatches surface where the term is built
// rather than as solver errors.
package smt

import (
	"fmt"
	"strconv"
	"strings"
)

// SortKind is the solver sort of a term
type SortKind int

const (
	BoolSort SortKind = iota
	IntSort
	RealSort
	RefSort
	ArraySort
)

// Sort is a solver sort. Elem is set for arrays, which are always indexed by Int.
type Sort struct {
	Kind SortKind
	Elem *Sort
}

// Predefined sorts
var (
	Bool = Sort{Kind: BoolSort}
	Int  = Sort{Kind: IntSort}
	Real = Sort{Kind: RealSort}
	Ref  = Sort{Kind: RefSort}
)

// ArrayOf returns the sort of Int-indexed arrays holding elem
func ArrayOf(elem Sort) Sort {
	return Sort{Kind: ArraySort, Elem: &elem}
}

// String returns the SMT-LIB spelling. References are object indices and use Int.
func (s Sort) String() string {
	switch s.Kind {
	case BoolSort:
		return "Bool"
	case IntSort, RefSort:
		return "Int"
	case RealSort:
		return "Real"
	case ArraySort:
		return fmt.Sprintf("(Array Int %s)", s.Elem)
	default:
		return fmt.Sprintf("Sort(%d)", int(s.Kind))
	}
}

// Equal reports whether two sorts are identical
func (s Sort) Equal(other Sort) bool {
	if s.Kind != other.Kind {
		return false
	}
	if s.Kind == ArraySort {
		return s.Elem.Equal(*other.Elem)
	}
	return true
}

// IsNumeric reports whether arithmetic applies to the sort
func (s Sort) IsNumeric() bool {
	return s.Kind == IntSort || s.Kind == RealSort
}

// Expr is a typed SMT-LIB term
type Expr interface {
	Sort() Sort
	String() string
}

// BoolExpr is a Bool term. The zero value is the absent branch condition and
// behaves like true.
type BoolExpr struct{ term string }

// IntExpr is an Int term
type IntExpr struct{ term string }

// RealExpr is a Real term
type RealExpr struct{ term string }

// RefExpr is an object index. 0 is null.
type RefExpr struct{ term string }

// ArrayExpr is an Int-indexed array term
type ArrayExpr struct {
	term string
	elem Sort
}

func (e BoolExpr) Sort() Sort  { return Bool }
func (e IntExpr) Sort() Sort   { return Int }
func (e RealExpr) Sort() Sort  { return Real }
func (e RefExpr) Sort() Sort   { return Ref }
func (e ArrayExpr) Sort() Sort { return ArrayOf(e.elem) }

func (e BoolExpr) String() string {
	if e.term == "" {
		return "true"
	}
	return e.term
}
func (e IntExpr) String() string   { return e.term }
func (e RealExpr) String() string  { return e.term }
func (e RefExpr) String() string   { return e.term }
func (e ArrayExpr) String() string { return e.term }

// IsTrue reports whether the term is the literal true
func (e BoolExpr) IsTrue() bool { return e.term == "" || e.term == "true" }

// IsFalse reports whether the term is the literal false
func (e BoolExpr) IsFalse() bool { return e.term == "false" }

// Literals
var (
	True     = BoolExpr{"true"}
	False    = BoolExpr{"false"}
	Null     = RefExpr{"0"}
	Zero     = IntExpr{"0"}
	RealZero = RealExpr{"0.0"}
)

// Wrap types a raw term with sort s
func Wrap(s Sort, term string) Expr {
	switch s.Kind {
	case BoolSort:
		return BoolExpr{term}
	case IntSort:
		return IntExpr{term}
	case RealSort:
		return RealExpr{term}
	case RefSort:
		return RefExpr{term}
	case ArraySort:
		return ArrayExpr{term: term, elem: *s.Elem}
	default:
		panic(fmt.Sprintf("smt: unknown sort %v", s))
	}
}

// Const returns the constant named name. The name is quoted as a symbol.
func Const(name string, s Sort) Expr {
	return Wrap(s, Quote(name))
}

// Quote returns name as an SMT-LIB quoted symbol
func Quote(name string) string {
	return "|" + strings.NewReplacer("|", "_", `\`, "_").Replace(name) + "|"
}

// BoolVal returns the literal b
func BoolVal(b bool) BoolExpr {
	if b {
		return True
	}
	return False
}

// IntVal returns the literal v
func IntVal(v int64) IntExpr {
	if v < 0 {
		return IntExpr{fmt.Sprintf("(- %d)", -v)}
	}
	return IntExpr{strconv.FormatInt(v, 10)}
}

// RealVal returns the literal v
func RealVal(v float64) RealExpr {
	if v < 0 {
		return RealExpr{fmt.Sprintf("(- %s)", decimal(-v))}
	}
	return RealExpr{decimal(v)}
}

func decimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// RefVal returns the index of object i
func RefVal(i int) RefExpr {
	return RefExpr{strconv.Itoa(i)}
}

// Default returns the zero value of a sort: false, 0, 0.0, null, or the constant
// array of the element default
func Default(s Sort) Expr {
	switch s.Kind {
	case BoolSort:
		return False
	case IntSort:
		return Zero
	case RealSort:
		return RealZero
	case RefSort:
		return Null
	case ArraySort:
		return ConstArray(*s.Elem, Default(*s.Elem))
	default:
		panic(fmt.Sprintf("smt: unknown sort %v", s))
	}
}

// ConstArray returns the array mapping every index to v
func ConstArray(elem Sort, v Expr) ArrayExpr {
	v = Coerce(v, elem)
	return ArrayExpr{term: fmt.Sprintf("((as const %s) %s)", ArrayOf(elem), v), elem: elem}
}

func app(op string, args ...Expr) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(op)
	for _, a := range args {
		b.WriteString(" ")
		b.WriteString(a.String())
	}
	b.WriteString(")")
	return b.String()
}

// Not negates e
func Not(e BoolExpr) BoolExpr {
	switch {
	case e.IsTrue():
		return False
	case e.IsFalse():
		return True
	}
	return BoolExpr{app("not", e)}
}

// And conjoins its arguments, dropping literal true
func And(es ...BoolExpr) BoolExpr {
	var args []Expr
	for _, e := range es {
		if e.IsFalse() {
			return False
		}
		if !e.IsTrue() {
			args = append(args, e)
		}
	}
	switch len(args) {
	case 0:
		return True
	case 1:
		return args[0].(BoolExpr)
	}
	return BoolExpr{app("and", args...)}
}

// Or disjoins its arguments, dropping literal false
func Or(es ...BoolExpr) BoolExpr {
	var args []Expr
	for _, e := range es {
		if e.IsTrue() {
			return True
		}
		if !e.IsFalse() {
			args = append(args, e)
		}
	}
	switch len(args) {
	case 0:
		return False
	case 1:
		return args[0].(BoolExpr)
	}
	return BoolExpr{app("or", args...)}
}

// Implies returns a => b
func Implies(a, b BoolExpr) BoolExpr {
	if a.IsTrue() {
		return b
	}
	if a.IsFalse() || b.IsTrue() {
		return True
	}
	return BoolExpr{app("=>", a, b)}
}

// Ite returns if c then a else b. Int and Real arms are unified to Real.
func Ite(c BoolExpr, a, b Expr) Expr {
	if c.IsTrue() {
		return a
	}
	if c.IsFalse() {
		return b
	}
	a, b = unify(a, b)
	return Wrap(a.Sort(), app("ite", c, a, b))
}

// ToReal converts an Int term to Real
func ToReal(e IntExpr) RealExpr {
	return RealExpr{app("to_real", e)}
}

// Coerce widens e to s when e is Int and s is Real. Other terms are returned as-is.
func Coerce(e Expr, s Sort) Expr {
	if i, ok := e.(IntExpr); ok && s.Kind == RealSort {
		return ToReal(i)
	}
	return e
}

func unify(a, b Expr) (Expr, Expr) {
	as, bs := a.Sort(), b.Sort()
	if as.Kind == IntSort && bs.Kind == RealSort {
		return Coerce(a, Real), b
	}
	if as.Kind == RealSort && bs.Kind == IntSort {
		return a, Coerce(b, Real)
	}
	if !as.Equal(bs) && !(isIndex(as) && isIndex(bs)) {
		panic(fmt.Sprintf("smt: sort mismatch %v and %v", as, bs))
	}
	return a, b
}

// Int and Ref share the solver sort Int
func isIndex(s Sort) bool {
	return s.Kind == IntSort || s.Kind == RefSort
}

// Eq returns a = b
func Eq(a, b Expr) BoolExpr {
	a, b = unify(a, b)
	return BoolExpr{app("=", a, b)}
}

// Distinct returns a != b
func Distinct(a, b Expr) BoolExpr {
	a, b = unify(a, b)
	return BoolExpr{app("distinct", a, b)}
}

func compare(op string, a, b Expr) BoolExpr {
	a, b = unify(a, b)
	return BoolExpr{app(op, a, b)}
}

// Lt returns a < b
func Lt(a, b Expr) BoolExpr { return compare("<", a, b) }

// Le returns a <= b
func Le(a, b Expr) BoolExpr { return compare("<=", a, b) }

// Gt returns a > b
func Gt(a, b Expr) BoolExpr { return compare(">", a, b) }

// Ge returns a >= b
func Ge(a, b Expr) BoolExpr { return compare(">=", a, b) }

func arith(op string, a, b Expr) Expr {
	a, b = unify(a, b)
	return Wrap(a.Sort(), app(op, a, b))
}

// Add returns a + b
func Add(a, b Expr) Expr { return arith("+", a, b) }

// Sub returns a - b
func Sub(a, b Expr) Expr { return arith("-", a, b) }

// Mul returns a * b
func Mul(a, b Expr) Expr { return arith("*", a, b) }

// Neg returns -a
func Neg(a Expr) Expr {
	return Wrap(a.Sort(), app("-", a))
}

// Div divides a by b. Real division is exact; integer division truncates toward
// zero, unlike the SMT-LIB div which rounds toward negative infinity for negative
// divisors.
func Div(a, b Expr) Expr {
	a, b = unify(a, b)
	if a.Sort().Kind == RealSort {
		return RealExpr{app("/", a, b)}
	}
	q := app("div", IntExpr{app("abs", a)}, IntExpr{app("abs", b)})
	sameSign := app("=", BoolExpr{app(">=", a, Zero)}, BoolExpr{app(">=", b, Zero)})
	return IntExpr{fmt.Sprintf("(ite %s %s (- %s))", sameSign, q, q)}
}

// Rem returns the integer remainder of a by b. The result takes the sign of the
// dividend.
func Rem(a, b Expr) Expr {
	a, b = unify(a, b)
	r := app("mod", IntExpr{app("abs", a)}, IntExpr{app("abs", b)})
	return IntExpr{fmt.Sprintf("(ite (>= %s 0) %s (- %s))", a, r, r)}
}

// Select reads arr[i]
func Select(arr ArrayExpr, i Expr) Expr {
	return Wrap(arr.elem, app("select", arr, i))
}

// Store returns arr with arr[i] replaced by v
func Store(arr ArrayExpr, i Expr, v Expr) ArrayExpr {
	v = Coerce(v, arr.elem)
	return ArrayExpr{term: app("store", arr, i, v), elem: arr.elem}
}

// AsBool narrows e to a Bool term
func AsBool(e Expr) BoolExpr {
	b, ok := e.(BoolExpr)
	if !ok {
		panic(fmt.Sprintf("smt: %s has sort %v, not Bool", e, e.Sort()))
	}
	return b
}

// AsArray narrows e to an array term
func AsArray(e Expr) ArrayExpr {
	a, ok := e.(ArrayExpr)
	if !ok {
		panic(fmt.Sprintf("smt: %s has sort %v, not Array", e, e.Sort()))
	}
	return a
}
