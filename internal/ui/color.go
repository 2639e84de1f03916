// Package ui provides terminal output helpers for dxnodes.
package ui

import (
	"strings"
	"unicode"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Color functions for styled output.
var (
	// Success is used for committed fulfillments and passing checks (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for failed operations (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for non-fatal problems (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for informational messages (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for emphasis.
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for secondary information.
	Dim = color.New(color.Faint).SprintFunc()
	// Header is used for section headers (bold cyan).
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
)

func status(sym string, paint func(...any) string, msg string) string {
	if msg == "" {
		return paint(sym)
	}
	return paint(sym) + " " + msg
}

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string { return status(SymbolSuccess, Success, msg) }

// StatusError returns a red X with optional message.
func StatusError(msg string) string { return status(SymbolError, Error, msg) }

// StatusWarning returns a yellow warning with optional message.
func StatusWarning(msg string) string { return status(SymbolWarning, Warning, msg) }

// StatusSkipped returns a dimmed skip symbol with optional message.
func StatusSkipped(msg string) string { return status(SymbolSkipped, Dim, msg) }

// DiagnosticLine colors a "[Level] message" diagnostics line by its level.
func DiagnosticLine(line string) string {
	switch {
	case strings.HasPrefix(line, "[Error]"):
		return Error(line)
	case strings.HasPrefix(line, "[Warning]"):
		return Warning(line)
	case strings.HasPrefix(line, "[Debug]"):
		return Dim(line)
	default:
		return line
	}
}

var titleCaser = cases.Title(language.English)

// FieldLabel turns a camelCase result field name into a title-cased label,
// e.g. "geometryCount" becomes "Geometry Count".
func FieldLabel(name string) string {
	var words []string
	var cur []rune
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) && len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return titleCaser.String(strings.Join(words, " "))
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}
