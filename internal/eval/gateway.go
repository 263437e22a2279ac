// Package eval is the narrow façade over the embedded interpreter:
// parse source text, evaluate in the shared global
// environment, and report parse status / runtime errors the same way the
// session handler reports any other stat. Nothing about internal/eval/interp
// leaks past this package.
package eval

import (
	"errors"

	"github.com/marmos91/rserved/internal/eval/interp"
	"github.com/marmos91/rserved/internal/wire/xt"
)

// Parse-status codes. Positive values in 0x00-0x3f are reserved for
// evaluator-specific parse statuses; runtime failures are reported
// separately, as the negated interp.RuntimeError code, so the session
// handler can tell the two kinds apart when folding them into the stat
// byte of a response.
const (
	StatusOK          = 1
	StatusSyntaxError = 2
)

// Gateway is a single shared evaluation context. It is NOT thread-safe:
// callers must serialize access the same way the session
// handler already serializes everything else reachable from one evaluator.
type Gateway struct {
	env *interp.Env
}

// New returns a Gateway with a fresh global environment.
func New() *Gateway {
	return &Gateway{env: interp.NewEnv()}
}

// ResetParseBuffer clears any residual parser input. This interpreter
// keeps no cross-call parse buffer (each Parse call is self-contained),
// so this is a no-op kept to preserve the three-operation gateway
// contract.
func (g *Gateway) ResetParseBuffer() {}

// Parse tokenizes and parses source. lineCount is accepted for parity with
// the documented gateway contract but unused: this
// implementation has no incremental/streaming parse state that needs a
// line budget.
func (g *Gateway) Parse(source string, lineCount int) (status int, ast *interp.Program, ok bool) {
	_ = lineCount
	prog, err := interp.Parse(source)
	if err != nil {
		return StatusSyntaxError, nil, false
	}
	return StatusOK, prog, true
}

// Eval evaluates ast in the shared global environment and converts the
// result to an XT value tree ready for serialization. errFlag is zero on
// success and negative on a runtime failure: the evaluator's own error
// code, negated, so it never collides with the positive parse statuses.
func (g *Gateway) Eval(ast *interp.Program) (errFlag int, result xt.Value) {
	v, err := g.env.Run(ast)
	if err != nil {
		var re *interp.RuntimeError
		if errors.As(err, &re) {
			return -re.Code, xt.Null()
		}
		return -interp.CodeEvalError, xt.Null()
	}
	return 0, toXT(v)
}

// toXT converts an interpreter result into the wire value-tree
// representation. A length-1 result uses the scalar/elided forms; longer
// vectors use the array forms. Integer vectors have no scalar form.
func toXT(v interp.Value) xt.Value {
	switch v.Kind {
	case interp.KindNull:
		return xt.Null()

	case interp.KindInt:
		return xt.Int(v.Ints...)

	case interp.KindDouble:
		return xt.Double(v.Doubles...)

	case interp.KindString:
		return xt.StringVector(v.Strings...)

	case interp.KindBool:
		bools := make([]xt.NABool, len(v.Bools))
		for i, b := range v.Bools {
			bools[i] = toXTBool(b)
		}
		return xt.Bool(bools...)

	default:
		return xt.Null()
	}
}

func toXTBool(b interp.Bool) xt.NABool {
	switch b {
	case interp.BoolTrue:
		return xt.BoolTrue
	case interp.BoolFalse:
		return xt.BoolFalse
	default:
		return xt.BoolNA
	}
}
