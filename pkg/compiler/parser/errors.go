package parser

import (
	"errors"
	"fmt"
)

// Error kinds. Every *ParserError unwraps to exactly one of these.
var (
	ErrEmptySource       = errors.New("empty source")
	ErrSyntax            = errors.New("syntax error")
	ErrUnknownOperation  = errors.New("unknown operation")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrArgumentCount     = errors.New("wrong number of arguments")
	ErrInvalidLabel      = errors.New("invalid label")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrUndeclaredLabel   = errors.New("undeclared label")
	ErrTooManyReferences = errors.New("too many references")
)

// ParserError describes why a script was rejected.
type ParserError struct {
	Kind     error
	Message  string
	Line     int
	Column   int
	LineText string
}

func (e *ParserError) Error() string {
	if e.LineText != "" {
		return fmt.Sprintf("line %d, column %d: %s in line: '%s'", e.Line, e.Column, e.Message, e.LineText)
	}
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func (e *ParserError) Unwrap() error {
	return e.Kind
}
