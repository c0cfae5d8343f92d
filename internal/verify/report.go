package verify

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/lhaig/boundcheck/internal/model"
)

// ClassReport summarizes the verification of one class for display
type ClassReport struct {
	Class       string
	State       State
	Violations  []model.Violation
	Unsupported []model.UnsupportedElement
	Exceptions  []string
	Bounded     []string
	Sequences   int
}

// AllVerified reports whether the class was checked without findings
func (r *ClassReport) AllVerified() bool {
	return r.State == Safe && len(r.Exceptions) == 0
}

// BuildReport pairs each class with its result. Classes without a result are
// reported as not started.
func BuildReport(classes []*model.ClassModel, results []*Result) []*ClassReport {
	byClass := make(map[string]*Result, len(results))
	for _, r := range results {
		byClass[r.ClassName] = r
	}

	var reports []*ClassReport
	for _, c := range classes {
		report := &ClassReport{Class: c.Name, State: NotStarted}
		if r, ok := byClass[c.Name]; ok {
			report.State = r.State
			report.Violations = r.Violations
			report.Exceptions = r.Exceptions
			report.Bounded = r.Bounded
			report.Sequences = r.Sequences
		}
		if report.State == Skipped {
			report.Unsupported = c.Unsupported.All()
		}
		reports = append(reports, report)
	}
	return reports
}

// statusLabel returns the upper-case status column for a report
func statusLabel(r *ClassReport) string {
	switch {
	case r.State == ViolationFound:
		return "VIOLATED"
	case r.State == Skipped:
		return "SKIPPED"
	case r.State == Safe && len(r.Exceptions) > 0:
		return "INCOMPLETE"
	case r.State == Safe:
		return "VERIFIED"
	default:
		return strings.ToUpper(r.State.String())
	}
}

// FormatReport produces human-readable output for class reports
func FormatReport(reports []*ClassReport) string {
	if len(reports) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("Verification Report\n")
	sb.WriteString("===================\n\n")

	verified := 0
	for _, report := range reports {
		fmt.Fprintf(&sb, "%-40s %s\n", report.Class, statusLabel(report))
		if report.AllVerified() {
			verified++
		}

		for _, v := range report.Violations {
			fmt.Fprintf(&sb, "  %s:%s %s violation: %s\n", report.Class, v.Location.ID(), v.Kind, v.Message)
			if v.Text != "" {
				fmt.Fprintf(&sb, "    %s\n", v.Text)
			}
			if len(v.Sequence) > 0 {
				fmt.Fprintf(&sb, "    sequence: %s\n", strings.Join(v.Sequence, " -> "))
			}
			for _, k := range slices.Sorted(maps.Keys(v.Counterexample)) {
				fmt.Fprintf(&sb, "    %s = %s\n", k, v.Counterexample[k])
			}
		}
		for _, el := range report.Unsupported {
			fmt.Fprintf(&sb, "  %s:%s unsupported %s: %s\n", report.Class, el.Location.ID(), el.Category, el.Text)
		}
		for _, e := range report.Exceptions {
			fmt.Fprintf(&sb, "  error: %s\n", e)
		}
		for _, b := range report.Bounded {
			fmt.Fprintf(&sb, "  bounded: %s\n", b)
		}
	}

	sb.WriteString("\n")
	if verified == len(reports) {
		fmt.Fprintf(&sb, "Status: all %d classes verified\n", len(reports))
	} else {
		fmt.Fprintf(&sb, "Status: %d of %d classes verified\n", verified, len(reports))
	}
	return sb.String()
}
