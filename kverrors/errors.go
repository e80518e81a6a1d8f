// Package kverrors defines the client-facing error taxonomy of
// spec.md §7: short-coded errors that surface to the client without
// mutating server state.
package kverrors

import "fmt"

// Code classifies a client-facing error.
type Code string

const (
	CodeWrongType  Code = "WRONGTYPE"
	CodeSyntax     Code = "ERR"
	CodeOutOfRange Code = "ERR"
	CodeNoSuchKey  Code = "ERR"
	CodeExecAbort  Code = "EXECABORT"
	CodeBadCursor  Code = "ERR"
	CodeNotInteger Code = "ERR"
	CodeNotFloat   Code = "ERR"
)

// Error is a typed client error: a short code plus message, built
// with the fmt.Errorf("...: %w", err) wrapping idiom so
// callers can still errors.Is/errors.As through it.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a client error of the given code.
func New(code Code, msg string) *Error { return &Error{Code: code, Msg: msg} }

// Wrongtype is shorthand for the WRONGTYPE error spec.md §4.3 mandates
// on any type-mismatched access.
func Wrongtype() *Error {
	return New(CodeWrongType, "Operation against a key holding the wrong kind of value")
}

// Syntaxf builds a generic ERR syntax/argument error.
func Syntaxf(format string, args ...interface{}) *Error {
	return New(CodeSyntax, fmt.Sprintf(format, args...))
}

// ExecAbort is returned by EXEC when the queue was marked dirty by a
// queuing-time error (spec.md §4.10).
func ExecAbort() *Error {
	return New(CodeExecAbort, "Transaction discarded because of previous errors.")
}
