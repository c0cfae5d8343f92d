package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/verify"
)

var (
	errorStyle    = color.New(color.FgRed, color.Bold)
	warningStyle  = color.New(color.FgHiYellow, color.Bold)
	verifiedStyle = color.New(color.FgGreen, color.Bold)
	skippedStyle  = color.New(color.FgYellow)
	headerStyle   = color.New(color.FgCyan, color.Bold)
	detailStyle   = color.New(color.FgHiBlack)
)

// statusStyles colors the status column of the report
var statusStyles = map[string]*color.Color{
	"VERIFIED":   verifiedStyle,
	"VIOLATED":   errorStyle,
	"INCOMPLETE": warningStyle,
	"SKIPPED":    skippedStyle,
}

// printReport writes the verification report, coloring the status of each class
func printReport(w io.Writer, reports []*verify.ClassReport) {
	text := verify.FormatReport(reports)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintln(w, colorLine(line))
	}
}

func colorLine(line string) string {
	switch {
	case strings.HasPrefix(line, "Verification Report"), strings.HasPrefix(line, "====="):
		return headerStyle.Sprint(line)
	case strings.HasPrefix(line, "Status: all"):
		return verifiedStyle.Sprint(line)
	case strings.HasPrefix(line, "Status:"):
		return errorStyle.Sprint(line)
	case strings.HasPrefix(line, "    "):
		return detailStyle.Sprint(line)
	case strings.HasPrefix(line, "  "):
		return line
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return line
	}
	status := fields[len(fields)-1]
	if style, ok := statusStyles[status]; ok {
		return strings.TrimSuffix(line, status) + style.Sprint(status)
	}
	return line
}

// printDiagnostics writes errors and warnings in the compiler's format
func printDiagnostics(w io.Writer, diag *diagnostic.Diagnostics) {
	for _, d := range diag.All() {
		label := warningStyle.Sprint(d.Severity.String())
		if d.Severity == diagnostic.Error {
			label = errorStyle.Sprint(d.Severity.String())
		}
		fmt.Fprintf(w, "%s[%s:%d:%d]: %s\n", label, d.File, d.Line, d.Column, d.Message)
		if d.Hint != "" {
			fmt.Fprintf(w, "  %s %s\n", detailStyle.Sprint("hint:"), d.Hint)
		}
	}
}
