// Package diag implements the stable diagnostic taxonomy of spec §4.2/§4.6/§7:
// every diagnostic carries a stable code, a source range, and a severity, and
// compiles never abort on the first error.
package diag

import (
	"fmt"
	"strings"

	"tsnc/internal/source"
)

type Severity int

const (
	Info Severity = iota
	Warn
	Error
	Debug
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	case Debug:
		return "debug"
	default:
		return "?"
	}
}

// Code is a stable diagnostic code, grouped by layer per spec §4.6.
type Code string

const (
	// Lexer
	CodeUnknownChar      Code = "lex.unknown_char"
	CodeUnterminatedStr  Code = "lex.unterminated_string"

	// Parser
	CodeUnexpectedToken Code = "parse.unexpected_token"
	CodeTrailingComma   Code = "parse.trailing_comma"

	// Identifier resolution
	CodeNotFound       Code = "resolve.not_found"
	CodeAmbiguous      Code = "resolve.ambiguous"
	CodeNotAType       Code = "resolve.not_a_type"

	// Template
	CodeTemplateArity    Code = "template.arity"
	CodeNotATemplate     Code = "template.not_a_template"
	CodeTemplateDepth    Code = "template.depth_exceeded"

	// Visibility
	CodePrivateAccess  Code = "visibility.private"
	CodeNotStatic      Code = "visibility.not_static"
	CodeNotWritable    Code = "visibility.not_writable"

	// Function matching
	CodeNoMatch         Code = "overload.no_match"
	CodeOverloadAmbiguous Code = "overload.ambiguous"
	CodeWrongArity      Code = "overload.wrong_arity"
	CodeConversionNote  Code = "overload.conversion_note"

	// Control flow
	CodeBreakOutsideLoop    Code = "flow.break_outside_loop"
	CodeContinueOutsideLoop Code = "flow.continue_outside_loop"
	CodeReturnValueMissing  Code = "flow.return_value_missing"
	CodeReturnValueForbidden Code = "flow.return_value_forbidden"

	// Class layout
	CodePropertyAlreadyInit Code = "class.property_already_initialized"
	CodeNoDefaultCtor       Code = "class.no_default_constructor"
	CodeDestructorExists    Code = "class.destructor_already_exists"

	// Module graph
	CodeCyclicImports Code = "module.cyclic_imports"
	CodeModuleNotFound Code = "module.not_found"

	// Internal
	CodeInternal Code = "internal.assert"
)

// Diagnostic is one reported condition.
type Diagnostic struct {
	Code     Code
	Severity Severity
	Message  string
	Location source.Location
	Source   string // snippet line, filled in by WithSnippet
	Notes    []Diagnostic
}

func (d Diagnostic) Error() string { return d.String() }

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%d: %s: %s", d.Location.File, d.Location.Line, d.Location.Column, d.Severity, d.Message)
	if d.Source != "" {
		fmt.Fprintf(&b, "\n  %d | %s\n  %s^", d.Location.Line, d.Source, strings.Repeat(" ", len(fmt.Sprintf("%d | ", d.Location.Line))+max(d.Location.Column-1, 0)))
	}
	for _, n := range d.Notes {
		fmt.Fprintf(&b, "\n  note: %s", n.Message)
	}
	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func New(code Code, sev Severity, loc source.Location, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...), Location: loc}
}

// WithSnippet attaches the source line Location points at, so String()
// renders the caret line spec §6.2 requires. The CLI driver calls this
// after re-reading the offending file, since a Logger deals only in
// diagnostics and never holds a source.Buffer itself.
func (d Diagnostic) WithSnippet(line string) Diagnostic {
	d.Source = line
	return d
}

// Logger batches diagnostics. The parser's transactional cursor shares one
// Logger and uses Mark/Revert on it so that reverting a production discards
// the diagnostics it logged (spec §4.2).
type Logger struct {
	diags []Diagnostic
}

func (l *Logger) Add(d Diagnostic) { l.diags = append(l.diags, d) }

func (l *Logger) Errorf(code Code, loc source.Location, format string, args ...interface{}) {
	l.Add(New(code, Error, loc, format, args...))
}

func (l *Logger) Warnf(code Code, loc source.Location, format string, args ...interface{}) {
	l.Add(New(code, Warn, loc, format, args...))
}

func (l *Logger) Infof(code Code, loc source.Location, format string, args ...interface{}) {
	l.Add(New(code, Info, loc, format, args...))
}

func (l *Logger) All() []Diagnostic { return l.diags }

func (l *Logger) HasErrors() bool {
	for _, d := range l.diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Mark returns a save point for transactional discard.
func (l *Logger) Mark() int { return len(l.diags) }

// Revert truncates back to a previously taken Mark, discarding everything
// recorded since — this is what lets a parser production attempt an
// alternative grammar rule without polluting the user-visible diagnostic set.
func (l *Logger) Revert(mark int) { l.diags = l.diags[:mark] }

// Append merges another logger's diagnostics in (used to fold a child
// Pipeline's log into its parent's).
func (l *Logger) Append(other *Logger) { l.diags = append(l.diags, other.diags...) }
