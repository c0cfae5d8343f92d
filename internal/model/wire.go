package model

import (
	"encoding/json"
	"fmt"
)

// node is the kind-tagged envelope every expression and statement is encoded as
type node struct {
	Kind   string   `json:"k"`
	Loc    Location `json:"loc"`
	Op     string   `json:"op,omitempty"`
	Name   string   `json:"name,omitempty"`
	This   bool     `json:"this,omitempty"`
	Bool   bool     `json:"bool,omitempty"`
	Int    int64    `json:"int,omitempty"`
	Float  float64  `json:"float,omitempty"`
	Text   string   `json:"text,omitempty"`
	Type   *Type    `json:"type,omitempty"`
	Flag   bool     `json:"flag,omitempty"`
	A      *node    `json:"a,omitempty"`
	B      *node    `json:"b,omitempty"`
	C      *node    `json:"c,omitempty"`
	Args   []*node  `json:"args,omitempty"`
	Then   []*node  `json:"then,omitempty"`
	Else   []*node  `json:"else,omitempty"`
}

// EncodeClass serializes a class model as self-describing JSON
func EncodeClass(c *ClassModel) ([]byte, error) {
	return json.Marshal(c)
}

// DecodeClass parses a serialized class model and re-binds its names
func DecodeClass(data []byte) (*ClassModel, error) {
	var c ClassModel
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode class model: %w", err)
	}
	if c.Unsupported == nil {
		c.Unsupported = &Unsupported{}
	}
	if err := c.Link(); err != nil {
		return nil, err
	}
	return &c, nil
}

// MarshalJSON encodes the initializer alongside the variable
func (v *Variable) MarshalJSON() ([]byte, error) {
	type plain Variable
	return json.Marshal(struct {
		*plain
		Init *node `json:"init,omitempty"`
	}{(*plain)(v), encodeExpr(v.Initializer)})
}

// UnmarshalJSON decodes a variable and its initializer
func (v *Variable) UnmarshalJSON(data []byte) error {
	type plain Variable
	aux := struct {
		*plain
		Init *node `json:"init,omitempty"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	init, err := decodeExpr(aux.Init)
	if err != nil {
		return fmt.Errorf("variable %s: %w", v.Name, err)
	}
	v.Initializer = init
	return nil
}

// MarshalJSON encodes the body alongside the method
func (m *Method) MarshalJSON() ([]byte, error) {
	type plain Method
	return json.Marshal(struct {
		*plain
		Body []*node `json:"body"`
	}{(*plain)(m), encodeStmts(m.Body)})
}

// UnmarshalJSON decodes a method and its body
func (m *Method) UnmarshalJSON(data []byte) error {
	type plain Method
	aux := struct {
		*plain
		Body []*node `json:"body"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	body, err := decodeStmts(aux.Body)
	if err != nil {
		return fmt.Errorf("method %s: %w", m.Name, err)
	}
	m.Body = body
	return nil
}

// MarshalJSON encodes the parsed expression alongside the assertion text
func (a *Assertion) MarshalJSON() ([]byte, error) {
	type plain Assertion
	return json.Marshal(struct {
		*plain
		Expr *node `json:"expr"`
	}{(*plain)(a), encodeExpr(a.Expr)})
}

// UnmarshalJSON decodes an assertion and its expression
func (a *Assertion) UnmarshalJSON(data []byte) error {
	type plain Assertion
	aux := struct {
		*plain
		Expr *node `json:"expr"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e, err := decodeExpr(aux.Expr)
	if err != nil {
		return fmt.Errorf("assertion %q: %w", a.Text, err)
	}
	a.Expr = e
	return nil
}

func encodeExpr(e Expression) *node {
	if e == nil {
		return nil
	}
	n := &node{Loc: e.Loc()}
	switch x := e.(type) {
	case *BoolLiteral:
		n.Kind, n.Bool = "bool", x.Value
	case *IntLiteral:
		n.Kind, n.Int = "int", x.Value
	case *FloatLiteral:
		n.Kind, n.Float, n.Text = "float", x.Value, x.Text
	case *NullLiteral:
		n.Kind, n.Type = "null", x.Of
	case *VariableRef:
		n.Kind, n.Name, n.This = "var", x.Name, x.ViaThis
	case *Paren:
		n.Kind, n.A = "paren", encodeExpr(x.Inner)
	case *Unary:
		n.Kind, n.Op, n.A = "unary", x.Op.String(), encodeExpr(x.Operand)
	case *Binary:
		n.Kind, n.Op, n.A, n.B = "binary", x.Op.String(), encodeExpr(x.Left), encodeExpr(x.Right)
	case *Comparison:
		n.Kind, n.Op, n.A, n.B = "compare", x.Op.String(), encodeExpr(x.Left), encodeExpr(x.Right)
	case *Logical:
		n.Kind, n.Op, n.A, n.B = "logical", x.Op.String(), encodeExpr(x.Left), encodeExpr(x.Right)
	case *NewObject:
		n.Kind, n.Name = "new", x.ClassName
	case *NewArray:
		n.Kind, n.Type, n.A = "newarray", x.Elem, encodeExpr(x.Length)
	case *MemberAccess:
		n.Kind, n.Name, n.A = "member", x.Member, encodeExpr(x.Object)
	case *ElementAccess:
		n.Kind, n.A, n.B = "element", encodeExpr(x.Array), encodeExpr(x.Index)
	}
	return n
}

var (
	arithOps   = map[string]ArithOp{"+": Add, "-": Sub, "*": Mul, "/": Div, "%": Rem}
	compareOps = map[string]CompareOp{"==": Eq, "!=": Ne, "<": Lt, "<=": Le, ">": Gt, ">=": Ge}
	logicOps   = map[string]LogicOp{"&&": And, "||": Or}
	unaryOps   = map[string]UnaryOp{"-": Negate, "!": Not}
)

func decodeExpr(n *node) (Expression, error) {
	if n == nil {
		return nil, nil
	}
	var a, b Expression
	var err error
	if a, err = decodeExpr(n.A); err != nil {
		return nil, err
	}
	if b, err = decodeExpr(n.B); err != nil {
		return nil, err
	}
	switch n.Kind {
	case "bool":
		return &BoolLiteral{Value: n.Bool, Location: n.Loc}, nil
	case "int":
		return &IntLiteral{Value: n.Int, Location: n.Loc}, nil
	case "float":
		return &FloatLiteral{Value: n.Float, Text: n.Text, Location: n.Loc}, nil
	case "null":
		return &NullLiteral{Of: n.Type, Location: n.Loc}, nil
	case "var":
		return &VariableRef{Name: n.Name, ViaThis: n.This, Location: n.Loc}, nil
	case "paren":
		return &Paren{Inner: a, Location: n.Loc}, nil
	case "unary":
		op, ok := unaryOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("unknown unary operator %q", n.Op)
		}
		return &Unary{Op: op, Operand: a, Location: n.Loc}, nil
	case "binary":
		op, ok := arithOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("unknown arithmetic operator %q", n.Op)
		}
		return &Binary{Op: op, Left: a, Right: b, Location: n.Loc}, nil
	case "compare":
		op, ok := compareOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("unknown comparison operator %q", n.Op)
		}
		return &Comparison{Op: op, Left: a, Right: b, Location: n.Loc}, nil
	case "logical":
		op, ok := logicOps[n.Op]
		if !ok {
			return nil, fmt.Errorf("unknown logical operator %q", n.Op)
		}
		return &Logical{Op: op, Left: a, Right: b, Location: n.Loc}, nil
	case "new":
		return &NewObject{ClassName: n.Name, Location: n.Loc}, nil
	case "newarray":
		return &NewArray{Elem: n.Type, Length: a, Location: n.Loc}, nil
	case "member":
		return &MemberAccess{Object: a, Member: n.Name, Location: n.Loc}, nil
	case "element":
		return &ElementAccess{Array: a, Index: b, Location: n.Loc}, nil
	default:
		return nil, fmt.Errorf("unknown expression kind %q", n.Kind)
	}
}

func encodeStmts(stmts []Statement) []*node {
	out := make([]*node, 0, len(stmts))
	for _, s := range stmts {
		n := &node{Loc: s.Loc()}
		switch x := s.(type) {
		case *Assignment:
			n.Kind, n.A, n.B, n.Flag = "assign", encodeExpr(x.Target), encodeExpr(x.Value), x.IsDeclaration
		case *Conditional:
			n.Kind, n.A = "if", encodeExpr(x.Condition)
			n.Then, n.Else = encodeStmts(x.Then), encodeStmts(x.Else)
		case *Return:
			n.Kind, n.A = "return", encodeExpr(x.Value)
		case *MethodCall:
			n.Kind, n.Name, n.A = "call", x.Method, encodeExpr(x.Dest)
			for _, arg := range x.Args {
				n.Args = append(n.Args, encodeExpr(arg))
			}
		case *ForLoop:
			n.Kind, n.A, n.B, n.C, n.Flag = "for", encodeExpr(x.Index), encodeExpr(x.From), encodeExpr(x.To), x.Inclusive
			n.Then = encodeStmts(x.Body)
		}
		out = append(out, n)
	}
	return out
}

func decodeStmts(nodes []*node) ([]Statement, error) {
	out := make([]Statement, 0, len(nodes))
	for _, n := range nodes {
		a, err := decodeExpr(n.A)
		if err != nil {
			return nil, err
		}
		b, err := decodeExpr(n.B)
		if err != nil {
			return nil, err
		}
		switch n.Kind {
		case "assign":
			out = append(out, &Assignment{Target: a, Value: b, IsDeclaration: n.Flag, Location: n.Loc})
		case "if":
			then, err := decodeStmts(n.Then)
			if err != nil {
				return nil, err
			}
			els, err := decodeStmts(n.Else)
			if err != nil {
				return nil, err
			}
			out = append(out, &Conditional{Condition: a, Then: then, Else: els, Location: n.Loc})
		case "return":
			out = append(out, &Return{Value: a, Location: n.Loc})
		case "call":
			call := &MethodCall{Method: n.Name, Dest: a, Location: n.Loc}
			for _, arg := range n.Args {
				e, err := decodeExpr(arg)
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, e)
			}
			out = append(out, call)
		case "for":
			index, ok := a.(*VariableRef)
			if !ok {
				return nil, fmt.Errorf("for loop at %s: index is not a variable", n.Loc.ID())
			}
			to, err := decodeExpr(n.C)
			if err != nil {
				return nil, err
			}
			body, err := decodeStmts(n.Then)
			if err != nil {
				return nil, err
			}
			out = append(out, &ForLoop{Index: index, From: b, To: to, Inclusive: n.Flag, Body: body, Location: n.Loc})
		default:
			return nil, fmt.Errorf("unknown statement kind %q", n.Kind)
		}
	}
	return out, nil
}
