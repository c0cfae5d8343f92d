package model

// Category names what kind of element was rejected
type Category int

const (
	UnsupportedField Category = iota
	UnsupportedProperty
	UnsupportedMethod
	UnsupportedParameter
	UnsupportedRequire
	UnsupportedEnsure
	UnsupportedLocal
	UnsupportedStatement
	UnsupportedExpression
	UnsupportedInvariant
	UnsupportedDeclaration
)

// String returns the string representation of the category
func (c Category) String() string {
	switch c {
	case UnsupportedField:
		return "field"
	case UnsupportedProperty:
		return "property"
	case UnsupportedMethod:
		return "method"
	case UnsupportedParameter:
		return "parameter"
	case UnsupportedRequire:
		return "require"
	case UnsupportedEnsure:
		return "ensure"
	case UnsupportedLocal:
		return "local"
	case UnsupportedStatement:
		return "statement"
	case UnsupportedExpression:
		return "expression"
	case UnsupportedInvariant:
		return "invariant"
	case UnsupportedDeclaration:
		return "declaration"
	default:
		return "unknown"
	}
}

// UnsupportedElement records something the engine cannot model. Only the text and the
// location are kept; the element is never approximated.
type UnsupportedElement struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
	Location Location `json:"loc"`
	Reason   string   `json:"reason,omitempty"`
}

// Unsupported accumulates every rejected element of one class.
// A class is eligible for verification only while IsEmpty returns true.
type Unsupported struct {
	Fields      []UnsupportedElement `json:"fields,omitempty"`
	Properties  []UnsupportedElement `json:"properties,omitempty"`
	Methods     []UnsupportedElement `json:"methods,omitempty"`
	Parameters  []UnsupportedElement `json:"parameters,omitempty"`
	Requires    []UnsupportedElement `json:"requires,omitempty"`
	Ensures     []UnsupportedElement `json:"ensures,omitempty"`
	Locals      []UnsupportedElement `json:"locals,omitempty"`
	Statements  []UnsupportedElement `json:"statements,omitempty"`
	Expressions []UnsupportedElement `json:"expressions,omitempty"`
	Invariants  []UnsupportedElement `json:"invariants,omitempty"`
	Declaration []UnsupportedElement `json:"declaration,omitempty"`

	InvalidDeclaration   bool `json:"invalid_declaration,omitempty"`
	HasUnsupportedMember bool `json:"has_unsupported_member,omitempty"`
}

// Add files an element under its category
func (u *Unsupported) Add(el UnsupportedElement) {
	switch el.Category {
	case UnsupportedField:
		u.Fields = append(u.Fields, el)
		u.HasUnsupportedMember = true
	case UnsupportedProperty:
		u.Properties = append(u.Properties, el)
		u.HasUnsupportedMember = true
	case UnsupportedMethod:
		u.Methods = append(u.Methods, el)
		u.HasUnsupportedMember = true
	case UnsupportedParameter:
		u.Parameters = append(u.Parameters, el)
	case UnsupportedRequire:
		u.Requires = append(u.Requires, el)
	case UnsupportedEnsure:
		u.Ensures = append(u.Ensures, el)
	case UnsupportedLocal:
		u.Locals = append(u.Locals, el)
	case UnsupportedStatement:
		u.Statements = append(u.Statements, el)
	case UnsupportedExpression:
		u.Expressions = append(u.Expressions, el)
	case UnsupportedInvariant:
		u.Invariants = append(u.Invariants, el)
	case UnsupportedDeclaration:
		u.Declaration = append(u.Declaration, el)
		u.InvalidDeclaration = true
	}
}

// Reject is shorthand for Add
func (u *Unsupported) Reject(c Category, text string, loc Location, reason string) {
	u.Add(UnsupportedElement{Category: c, Text: text, Location: loc, Reason: reason})
}

// IsEmpty reports whether nothing was rejected
func (u *Unsupported) IsEmpty() bool {
	if u == nil {
		return true
	}
	return !u.InvalidDeclaration && !u.HasUnsupportedMember && len(u.All()) == 0
}

// All returns every rejected element in category order
func (u *Unsupported) All() []UnsupportedElement {
	if u == nil {
		return nil
	}
	var all []UnsupportedElement
	for _, group := range [][]UnsupportedElement{
		u.Fields, u.Properties, u.Methods, u.Parameters, u.Requires,
		u.Ensures, u.Locals, u.Statements, u.Expressions, u.Invariants, u.Declaration,
	} {
		all = append(all, group...)
	}
	return all
}

// Clone returns an independent copy
func (u *Unsupported) Clone() *Unsupported {
	if u == nil {
		return &Unsupported{}
	}
	c := *u
	c.Fields = append([]UnsupportedElement(nil), u.Fields...)
	c.Properties = append([]UnsupportedElement(nil), u.Properties...)
	c.Methods = append([]UnsupportedElement(nil), u.Methods...)
	c.Parameters = append([]UnsupportedElement(nil), u.Parameters...)
	c.Requires = append([]UnsupportedElement(nil), u.Requires...)
	c.Ensures = append([]UnsupportedElement(nil), u.Ensures...)
	c.Locals = append([]UnsupportedElement(nil), u.Locals...)
	c.Statements = append([]UnsupportedElement(nil), u.Statements...)
	c.Expressions = append([]UnsupportedElement(nil), u.Expressions...)
	c.Invariants = append([]UnsupportedElement(nil), u.Invariants...)
	c.Declaration = append([]UnsupportedElement(nil), u.Declaration...)
	return &c
}
