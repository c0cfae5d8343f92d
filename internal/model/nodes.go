package model

// Expression is the closed set of expression nodes. Every consumer switches over the
// concrete types listed in this file.
type Expression interface {
	Loc() Location
	Type() *Type
	exprNode()
}

// Statement is the closed set of statement nodes
type Statement interface {
	Loc() Location
	stmtNode()
}

// ArithOp is a binary arithmetic operator
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
)

// String returns the operator symbol
func (op ArithOp) String() string {
	return [...]string{"+", "-", "*", "/", "%"}[op]
}

// UnaryOp is a prefix operator
type UnaryOp int

const (
	Negate UnaryOp = iota
	Not
)

// String returns the operator symbol
func (op UnaryOp) String() string {
	if op == Not {
		return "!"
	}
	return "-"
}

// CompareOp is an equality or ordering operator
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// String returns the operator symbol
func (op CompareOp) String() string {
	return [...]string{"==", "!=", "<", "<=", ">", ">="}[op]
}

// LogicOp is a binary boolean connective
type LogicOp int

const (
	And LogicOp = iota
	Or
)

// String returns the operator symbol
func (op LogicOp) String() string {
	if op == Or {
		return "||"
	}
	return "&&"
}

// --- Expressions ---

// BoolLiteral is true or false
type BoolLiteral struct {
	Value    bool
	Location Location
}

// IntLiteral is an integer constant
type IntLiteral struct {
	Value    int64
	Location Location
}

// FloatLiteral is a floating point constant. Text keeps the source spelling.
type FloatLiteral struct {
	Value    float64
	Text     string
	Location Location
}

// NullLiteral is the null reference. Its type is assigned by the checker from context.
type NullLiteral struct {
	Location Location
	Of       *Type
}

// VariableRef names a variable in scope. ViaThis is set for this.Name.
type VariableRef struct {
	Name     string
	ViaThis  bool
	Var      *Variable
	Location Location
}

// Paren is a parenthesized expression
type Paren struct {
	Inner    Expression
	Location Location
}

// Unary applies - or ! to its operand
type Unary struct {
	Op       UnaryOp
	Operand  Expression
	Location Location
}

// Binary is an arithmetic expression
type Binary struct {
	Op       ArithOp
	Left     Expression
	Right    Expression
	Location Location
}

// Comparison is an equality or ordering test
type Comparison struct {
	Op       CompareOp
	Left     Expression
	Right    Expression
	Location Location
}

// Logical is a conjunction or disjunction
type Logical struct {
	Op       LogicOp
	Left     Expression
	Right    Expression
	Location Location
}

// NewObject allocates an instance of ClassName with its declared field initializers
type NewObject struct {
	ClassName string
	Location  Location
}

// NewArray allocates an array of Length zero-initialized elements
type NewArray struct {
	Elem     *Type
	Length   Expression
	Location Location
}

// MemberAccess reads Member on the object Object evaluates to.
// Var is the resolved member; it is nil for the Length of an array.
type MemberAccess struct {
	Object   Expression
	Member   string
	Var      *Variable
	Location Location
}

// ElementAccess reads Array[Index]
type ElementAccess struct {
	Array    Expression
	Index    Expression
	Location Location
}

func (e *BoolLiteral) Loc() Location   { return e.Location }
func (e *IntLiteral) Loc() Location    { return e.Location }
func (e *FloatLiteral) Loc() Location  { return e.Location }
func (e *NullLiteral) Loc() Location   { return e.Location }
func (e *VariableRef) Loc() Location   { return e.Location }
func (e *Paren) Loc() Location         { return e.Location }
func (e *Unary) Loc() Location         { return e.Location }
func (e *Binary) Loc() Location        { return e.Location }
func (e *Comparison) Loc() Location    { return e.Location }
func (e *Logical) Loc() Location       { return e.Location }
func (e *NewObject) Loc() Location     { return e.Location }
func (e *NewArray) Loc() Location      { return e.Location }
func (e *MemberAccess) Loc() Location  { return e.Location }
func (e *ElementAccess) Loc() Location { return e.Location }

func (*BoolLiteral) exprNode()   {}
func (*IntLiteral) exprNode()    {}
func (*FloatLiteral) exprNode()  {}
func (*NullLiteral) exprNode()   {}
func (*VariableRef) exprNode()   {}
func (*Paren) exprNode()         {}
func (*Unary) exprNode()         {}
func (*Binary) exprNode()        {}
func (*Comparison) exprNode()    {}
func (*Logical) exprNode()       {}
func (*NewObject) exprNode()     {}
func (*NewArray) exprNode()      {}
func (*MemberAccess) exprNode()  {}
func (*ElementAccess) exprNode() {}

func (*BoolLiteral) Type() *Type  { return TypeBool }
func (*IntLiteral) Type() *Type   { return TypeInt }
func (*FloatLiteral) Type() *Type { return TypeFloat }
func (*Comparison) Type() *Type   { return TypeBool }
func (*Logical) Type() *Type      { return TypeBool }

func (e *NullLiteral) Type() *Type { return e.Of }

func (e *VariableRef) Type() *Type {
	if e.Var == nil {
		return nil
	}
	return e.Var.Type
}

func (e *Paren) Type() *Type { return e.Inner.Type() }

func (e *Unary) Type() *Type {
	if e.Op == Not {
		return TypeBool
	}
	return e.Operand.Type()
}

func (e *Binary) Type() *Type {
	lt, rt := e.Left.Type(), e.Right.Type()
	if lt == nil || rt == nil {
		return nil
	}
	if lt.Kind == FloatingPoint || rt.Kind == FloatingPoint {
		return TypeFloat
	}
	return lt
}

func (e *NewObject) Type() *Type { return RefType(e.ClassName) }
func (e *NewArray) Type() *Type  { return ArrayOf(e.Elem) }

func (e *MemberAccess) Type() *Type {
	if e.Var != nil {
		return e.Var.Type
	}
	if ot := e.Object.Type(); ot != nil && ot.Kind == Array && e.Member == "Length" {
		return TypeInt
	}
	return nil
}

func (e *ElementAccess) Type() *Type {
	at := e.Array.Type()
	if at == nil || at.Kind != Array {
		return nil
	}
	return at.Elem
}

// IsArrayLength reports whether the access reads the length of an array
func (e *MemberAccess) IsArrayLength() bool {
	return e.Var == nil && e.Member == "Length"
}

// IsSimple reports whether an expression never needs parentheses when nested
func IsSimple(e Expression) bool {
	switch e.(type) {
	case *BoolLiteral, *IntLiteral, *FloatLiteral, *NullLiteral, *VariableRef:
		return true
	default:
		return false
	}
}

// --- Statements ---

// Assignment stores Value into Target. Target is a VariableRef, MemberAccess or
// ElementAccess. IsDeclaration marks the initializing assignment of a local.
type Assignment struct {
	Target        Expression
	Value         Expression
	IsDeclaration bool
	Location      Location
}

// Conditional executes Then or Else depending on Condition
type Conditional struct {
	Condition Expression
	Then      []Statement
	Else      []Statement
	Location  Location
}

// Return ends the enclosing block. Value is nil in void methods.
type Return struct {
	Value    Expression
	Location Location
}

// MethodCall invokes a method of the same instance. Dest optionally receives the result.
type MethodCall struct {
	Method   string
	Callee   *Method
	Args     []Expression
	Dest     Expression
	Location Location
}

// ForLoop runs Body for Index from From while Index < To (or <= To when Inclusive),
// incrementing Index by one after every iteration.
type ForLoop struct {
	Index     *VariableRef
	From      Expression
	To        Expression
	Inclusive bool
	Body      []Statement
	Location  Location
}

func (s *Assignment) Loc() Location  { return s.Location }
func (s *Conditional) Loc() Location { return s.Location }
func (s *Return) Loc() Location      { return s.Location }
func (s *MethodCall) Loc() Location  { return s.Location }
func (s *ForLoop) Loc() Location     { return s.Location }

func (*Assignment) stmtNode()  {}
func (*Conditional) stmtNode() {}
func (*Return) stmtNode()      {}
func (*MethodCall) stmtNode()  {}
func (*ForLoop) stmtNode()     {}
