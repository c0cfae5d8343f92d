package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Render returns the source text of an expression. Non-simple operands of an operator
// are wrapped in parentheses so the rendering re-parses to the same tree.
func Render(e Expression) string {
	if e == nil {
		return ""
	}
	switch n := e.(type) {
	case *BoolLiteral:
		return strconv.FormatBool(n.Value)
	case *IntLiteral:
		return strconv.FormatInt(n.Value, 10)
	case *FloatLiteral:
		if n.Text != "" {
			return n.Text
		}
		return strconv.FormatFloat(n.Value, 'g', -1, 64)
	case *NullLiteral:
		return "null"
	case *VariableRef:
		if n.ViaThis {
			return "this." + n.Name
		}
		return n.Name
	case *Paren:
		return "(" + Render(n.Inner) + ")"
	case *Unary:
		return n.Op.String() + operand(n.Operand)
	case *Binary:
		return operand(n.Left) + " " + n.Op.String() + " " + operand(n.Right)
	case *Comparison:
		return operand(n.Left) + " " + n.Op.String() + " " + operand(n.Right)
	case *Logical:
		return operand(n.Left) + " " + n.Op.String() + " " + operand(n.Right)
	case *NewObject:
		return "new " + n.ClassName + "()"
	case *NewArray:
		return fmt.Sprintf("new %s[%s]", n.Elem, Render(n.Length))
	case *MemberAccess:
		return operand(n.Object) + "." + n.Member
	case *ElementAccess:
		return operand(n.Array) + "[" + Render(n.Index) + "]"
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

func operand(e Expression) string {
	switch e.(type) {
	case *Paren, *MemberAccess, *ElementAccess, *NewObject:
		return Render(e)
	}
	if IsSimple(e) {
		return Render(e)
	}
	return "(" + Render(e) + ")"
}

// RenderStatements returns an indented source rendering of a statement list
func RenderStatements(stmts []Statement, indent int) string {
	var sb strings.Builder
	for _, s := range stmts {
		renderStatement(&sb, s, indent)
	}
	return sb.String()
}

func renderStatement(sb *strings.Builder, s Statement, indent int) {
	prefix := strings.Repeat("    ", indent)
	switch n := s.(type) {
	case *Assignment:
		decl := ""
		if n.IsDeclaration {
			decl = n.Target.Type().String() + " "
		}
		fmt.Fprintf(sb, "%s%s%s = %s;\n", prefix, decl, Render(n.Target), Render(n.Value))
	case *Conditional:
		fmt.Fprintf(sb, "%sif (%s) {\n", prefix, Render(n.Condition))
		renderBlock(sb, n.Then, indent+1)
		if len(n.Else) > 0 {
			fmt.Fprintf(sb, "%s} else {\n", prefix)
			renderBlock(sb, n.Else, indent+1)
		}
		fmt.Fprintf(sb, "%s}\n", prefix)
	case *Return:
		if n.Value == nil {
			fmt.Fprintf(sb, "%sreturn;\n", prefix)
		} else {
			fmt.Fprintf(sb, "%sreturn %s;\n", prefix, Render(n.Value))
		}
	case *MethodCall:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = Render(a)
		}
		dest := ""
		if n.Dest != nil {
			dest = Render(n.Dest) + " = "
		}
		fmt.Fprintf(sb, "%s%s%s(%s);\n", prefix, dest, n.Method, strings.Join(args, ", "))
	case *ForLoop:
		cmp := "<"
		if n.Inclusive {
			cmp = "<="
		}
		fmt.Fprintf(sb, "%sfor (int %s = %s; %s %s %s; %s++) {\n", prefix,
			n.Index.Name, Render(n.From), n.Index.Name, cmp, Render(n.To), n.Index.Name)
		renderBlock(sb, n.Body, indent+1)
		fmt.Fprintf(sb, "%s}\n", prefix)
	}
}

func renderBlock(sb *strings.Builder, stmts []Statement, indent int) {
	for _, s := range stmts {
		renderStatement(sb, s, indent)
	}
}
