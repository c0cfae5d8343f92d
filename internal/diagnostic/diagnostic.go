package diagnostic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lhaig/boundcheck/internal/model"
)

// Severity represents the severity level of a diagnostic message
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Diagnostic is a single front-end error, warning or info message.
// Syntax errors are errors; elements the verifier cannot model are warnings.
type Diagnostic struct {
	Severity Severity
	Message  string
	Line     int
	Column   int
	File     string // optional file path when several sources are checked together
	Class    string // optional class the message belongs to
	Hint     string // optional suggestion
}

// Diagnostics manages a collection of diagnostic messages
type Diagnostics struct {
	items []Diagnostic
}

// New creates a new empty Diagnostics collection
func New() *Diagnostics {
	return &Diagnostics{
		items: make([]Diagnostic, 0),
	}
}

func (d *Diagnostics) add(sev Severity, line, col int, msg string) {
	d.items = append(d.items, Diagnostic{
		Severity: sev,
		Message:  msg,
		Line:     line,
		Column:   col,
	})
}

// Errorf adds an error diagnostic with formatted message
func (d *Diagnostics) Errorf(line, col int, format string, args ...any) {
	d.add(Error, line, col, fmt.Sprintf(format, args...))
}

// Warningf adds a warning diagnostic with formatted message
func (d *Diagnostics) Warningf(line, col int, format string, args ...any) {
	d.add(Warning, line, col, fmt.Sprintf(format, args...))
}

// Infof adds an info diagnostic with formatted message
func (d *Diagnostics) Infof(line, col int, format string, args ...any) {
	d.add(Info, line, col, fmt.Sprintf(format, args...))
}

// Unsupported adds a warning for an element the verifier excludes from the class
func (d *Diagnostics) Unsupported(class string, el model.UnsupportedElement) {
	msg := fmt.Sprintf("unsupported %s %q", el.Category, el.Text)
	if el.Reason != "" {
		msg += ": " + el.Reason
	}
	d.items = append(d.items, Diagnostic{
		Severity: Warning,
		Message:  msg,
		Line:     el.Location.Line,
		Column:   el.Location.Column,
		Class:    class,
		Hint:     "the class is skipped until the element is removed or rewritten",
	})
}

// Merge appends every diagnostic of other, stamping file on those without one
func (d *Diagnostics) Merge(other *Diagnostics, file string) {
	for _, item := range other.items {
		if item.File == "" {
			item.File = file
		}
		d.items = append(d.items, item)
	}
}

// HasErrors returns true if there are any error-level diagnostics
func (d *Diagnostics) HasErrors() bool {
	return d.ErrorCount() > 0
}

// Errors returns only the error-level diagnostics
func (d *Diagnostics) Errors() []Diagnostic {
	return d.filter(Error)
}

// Warnings returns only the warning-level diagnostics
func (d *Diagnostics) Warnings() []Diagnostic {
	return d.filter(Warning)
}

func (d *Diagnostics) filter(sev Severity) []Diagnostic {
	out := make([]Diagnostic, 0)
	for _, item := range d.items {
		if item.Severity == sev {
			out = append(out, item)
		}
	}
	return out
}

// All returns all diagnostics regardless of severity
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Count returns the total number of diagnostics
func (d *Diagnostics) Count() int {
	return len(d.items)
}

// ErrorCount returns the number of error-level diagnostics
func (d *Diagnostics) ErrorCount() int {
	return len(d.filter(Error))
}

// WarningCount returns the number of warning-level diagnostics
func (d *Diagnostics) WarningCount() int {
	return len(d.filter(Warning))
}

// Sort orders diagnostics by file, then position
func (d *Diagnostics) Sort() {
	sort.SliceStable(d.items, func(i, j int) bool {
		a, b := d.items[i], d.items[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// Format returns human-readable messages
// Output format:
//
//	error[filename:3:10]: expected SEMICOLON, got IDENT
//	warning[filename:5:9]: unsupported statement "while (x) { }"
//	  hint: the class is skipped until the element is removed or rewritten
func (d *Diagnostics) Format(filename string) string {
	lines := make([]string, 0, len(d.items))
	for _, item := range d.items {
		file := filename
		if item.File != "" {
			file = item.File
		}
		line := fmt.Sprintf("%s[%s:%d:%d]: %s", item.Severity, file, item.Line, item.Column, item.Message)
		if item.Hint != "" {
			line += "\n  hint: " + item.Hint
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
