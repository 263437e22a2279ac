package interp

import "fmt"

// Runtime error codes carried by RuntimeError. These are the evaluator's
// own codes, not wire stats; the gateway forwards them negated so the
// session layer can tell a runtime failure apart from a parse status.
const (
	CodeEvalError       = 1
	CodeObjectNotFound  = 2
	CodeUnknownFunction = 3
	CodeInvalidArgument = 4
)

// RuntimeError is an evaluation failure with a stable numeric code.
type RuntimeError struct {
	Code int
	msg  string
}

func (e *RuntimeError) Error() string { return e.msg }

func runtimeErr(code int, format string, args ...any) error {
	return &RuntimeError{Code: code, msg: fmt.Sprintf(format, args...)}
}
