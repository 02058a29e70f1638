// internal/errors/errors.go
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ErrorType represents the category of a loop core error
type ErrorType string

const (
	RuntimeError           ErrorType = "RuntimeError"
	AllocatorExhausted     ErrorType = "AllocatorExhausted"
	CompilationUnsupported ErrorType = "CompilationUnsupported"
	CompilationInternal    ErrorType = "CompilationInternal"
	NestingTooDeep         ErrorType = "NestingTooDeep"
)

// SourceLocation represents a location in source code
type SourceLocation struct {
	Line   int
	Column int
}

// LoopFrame is one enclosing loop the error travelled through
type LoopFrame struct {
	Loop   string
	Line   int
	Column int
}

// LoopError is an error with a category, source location and the chain of
// loops it propagated out of.
type LoopError struct {
	Type      ErrorType
	Message   string
	Location  SourceLocation
	LoopStack []LoopFrame
	Source    string // the source line where the error occurred, if known

	cause error
}

// Error implements the error interface
func (e *LoopError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))

	if e.Location.Line > 0 {
		sb.WriteString(fmt.Sprintf("\n  at %d:%d", e.Location.Line, e.Location.Column))

		if e.Source != "" {
			sb.WriteString(fmt.Sprintf("\n\n  %d | %s\n", e.Location.Line, e.Source))
			sb.WriteString(fmt.Sprintf("  %s", strings.Repeat(" ", len(fmt.Sprintf("%d | ", e.Location.Line)))))
			if e.Location.Column > 0 {
				sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			}
			sb.WriteString("^")
		}
	}

	if len(e.LoopStack) > 0 {
		sb.WriteString("\nLoop Stack:")
		for _, f := range e.LoopStack {
			sb.WriteString(fmt.Sprintf("\n  in loop %s (%d:%d)", f.Loop, f.Line, f.Column))
		}
	}

	return sb.String()
}

// Unwrap exposes the underlying cause to errors.Is and errors.As
func (e *LoopError) Unwrap() error { return e.cause }

// Cause implements github.com/pkg/errors causer
func (e *LoopError) Cause() error { return e.cause }

// New creates an error of type t without an underlying cause
func New(t ErrorType, message string, line, column int) *LoopError {
	return &LoopError{
		Type:     t,
		Message:  message,
		Location: SourceLocation{Line: line, Column: column},
		cause:    pkgerrors.New(message),
	}
}

// Wrap attaches a type and location to cause. A cause that already is a
// LoopError is returned unchanged so the innermost location wins.
func Wrap(t ErrorType, cause error, line, column int) *LoopError {
	if cause == nil {
		return nil
	}
	var le *LoopError
	if pkgerrors.As(cause, &le) {
		return le
	}
	return &LoopError{
		Type:     t,
		Message:  cause.Error(),
		Location: SourceLocation{Line: line, Column: column},
		cause:    pkgerrors.WithStack(cause),
	}
}

// NewRuntimeError wraps a fault raised while executing a loop body
func NewRuntimeError(cause error, line, column int) *LoopError {
	return Wrap(RuntimeError, cause, line, column)
}

// WithSource adds source code context to the error
func (e *LoopError) WithSource(source string) *LoopError {
	e.Source = source
	return e
}

// AddLoopFrame records an enclosing loop the error propagated through
func (e *LoopError) AddLoopFrame(loop string, line, column int) *LoopError {
	e.LoopStack = append(e.LoopStack, LoopFrame{Loop: loop, Line: line, Column: column})
	return e
}

// TypeOf returns the category of err, or "" when err carries none.
func TypeOf(err error) ErrorType {
	var le *LoopError
	if pkgerrors.As(err, &le) {
		return le.Type
	}
	return ""
}

// Is reports whether err is a LoopError of type t.
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
