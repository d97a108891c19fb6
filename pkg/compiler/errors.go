// Package compiler turns palette script source into programs.
// This file defines the CompileError type for structured error reporting.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zurustar/palscript/pkg/compiler/parser"
)

// Error kinds. A *CompileError unwraps to one of these, so callers can test
// with errors.Is.
var (
	ErrEmptySource       = parser.ErrEmptySource
	ErrSyntax            = parser.ErrSyntax
	ErrUnknownOperation  = parser.ErrUnknownOperation
	ErrInvalidArgument   = parser.ErrInvalidArgument
	ErrArgumentCount     = parser.ErrArgumentCount
	ErrInvalidLabel      = parser.ErrInvalidLabel
	ErrDuplicateLabel    = parser.ErrDuplicateLabel
	ErrUndeclaredLabel   = parser.ErrUndeclaredLabel
	ErrTooManyReferences = parser.ErrTooManyReferences
)

// Registration errors.
var (
	ErrInvalidName = errors.New("invalid name")
	ErrNameTaken   = errors.New("name already registered")
	ErrCustomIndex = errors.New("custom register index out of range")
)

// CompileError represents a structured compilation error with location information.
// It implements the error interface and provides detailed context about where
// the error occurred in the source code.
type CompileError struct {
	// Script is the name the source was compiled under.
	Script string

	// Message is the human-readable error description.
	Message string

	// Line is the 1-indexed line number where the error occurred.
	Line int

	// Column is the 1-indexed column number where the error occurred.
	Column int

	// LineText is the trimmed text of the offending line.
	LineText string

	// Context contains the source code around the error location.
	// This includes 2 lines before and after the error line,
	// with a pointer (^) indicating the error column.
	Context string

	// Kind is one of the Err* values above.
	Kind error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.Script != "" {
		fmt.Fprintf(&sb, "script %q: ", e.Script)
	}
	fmt.Fprintf(&sb, "error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	if e.LineText != "" {
		fmt.Fprintf(&sb, " in line: '%s'", e.LineText)
	}
	if e.Context != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Context)
	}
	return sb.String()
}

func (e *CompileError) Unwrap() error {
	return e.Kind
}

// newCompileError converts a parser error and attaches source context.
func newCompileError(script, source string, pe *parser.ParserError) *CompileError {
	return &CompileError{
		Script:   script,
		Message:  pe.Message,
		Line:     pe.Line,
		Column:   pe.Column,
		LineText: pe.LineText,
		Context:  GenerateErrorContext(source, pe.Line, pe.Column),
		Kind:     pe.Kind,
	}
}

// GenerateErrorContext generates source code context around an error location.
// It includes 2 lines before and 2 lines after the error line, with line numbers
// and a pointer (^) indicating the error column.
//
// Example output:
//
//	  2 | set r0 health;
//	  3 | test r0 0;
//	> 4 | skip_eq nowhere;
//	    |         ^
//	  5 | ret r0;
func GenerateErrorContext(source string, line, column int) string {
	if source == "" || line <= 0 {
		return ""
	}

	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return ""
	}

	start := max(line-3, 0)
	end := min(line+2, len(lines))

	var buf strings.Builder

	lineNumWidth := len(fmt.Sprintf("%d", end))

	for i := start; i < end; i++ {
		lineNum := i + 1
		lineContent := strings.TrimRight(lines[i], "\r")

		if lineNum != line {
			fmt.Fprintf(&buf, "  %*d | %s\n", lineNumWidth, lineNum, lineContent)
			continue
		}
		fmt.Fprintf(&buf, "> %*d | %s\n", lineNumWidth, lineNum, lineContent)
		// "> " + lineNumWidth + " | "
		pointerIndent := 2 + lineNumWidth + 3
		if column > 0 {
			pointerIndent += column - 1
		}
		fmt.Fprintf(&buf, "%s^\n", strings.Repeat(" ", pointerIndent))
	}

	return buf.String()
}

// IsCompileError checks if an error is a CompileError and returns it.
func IsCompileError(err error) (*CompileError, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
