package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

// CompileError is one reported diagnostic. Line is 1-based; Lexeme is the
// source text of the token the parser was sitting on.
type CompileError struct {
	Line    int
	Lexeme  string
	Message string
}

func (e CompileError) String() string {
	return fmt.Sprintf("[Line %d] Error on '%s': %s", e.Line, e.Lexeme, e.Message)
}

// ErrorList is the error returned by Compile when any diagnostic was
// reported. The parser never stops at the first error, so the list usually
// carries everything wrong with the file.
type ErrorList struct {
	Errors []CompileError
}

func (e *ErrorList) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].String()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d compile errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n\t")
		b.WriteString(err.String())
	}
	return b.String()
}
