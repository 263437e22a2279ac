package interp

import "fmt"

// Env is the interpreter's global variable environment. It is not
// safe for concurrent use; internal/eval does not lock it either, so the
// callers of internal/eval are responsible for serializing access.
type Env struct {
	vars map[string]Value
}

func NewEnv() *Env {
	return &Env{vars: make(map[string]Value)}
}

// Run evaluates every statement in prog in order and returns the value of
// the last one, matching top-level "last expression is the result"
// semantics. An empty program evaluates to Null.
func (e *Env) Run(prog *Program) (Value, error) {
	result := Null()
	for _, stmt := range prog.Stmts {
		v, err := e.eval(stmt)
		if err != nil {
			return Value{}, err
		}
		result = v
	}
	return result, nil
}

func (e *Env) eval(n Node) (Value, error) {
	switch node := n.(type) {
	case NumberLit:
		return Double(node.Value), nil

	case StringLit:
		return String(node.Value), nil

	case Ident:
		v, ok := e.vars[node.Name]
		if !ok {
			return Value{}, runtimeErr(CodeObjectNotFound, "object %q not found", node.Name)
		}
		return v, nil

	case Assign:
		v, err := e.eval(node.X)
		if err != nil {
			return Value{}, err
		}
		e.vars[node.Name] = v
		return v, nil

	case Unary:
		x, err := e.eval(node.X)
		if err != nil {
			return Value{}, err
		}
		if node.Op == "+" {
			return x, nil
		}
		return negate(x)

	case Binary:
		x, err := e.eval(node.X)
		if err != nil {
			return Value{}, err
		}
		y, err := e.eval(node.Y)
		if err != nil {
			return Value{}, err
		}
		return applyBinary(node.Op, x, y)

	case Call:
		return e.evalCall(node)

	default:
		return Value{}, runtimeErr(CodeEvalError, "unhandled node type %T", n)
	}
}

func (e *Env) evalCall(c Call) (Value, error) {
	switch c.Func {
	case "c":
		return evalConcat(e, c.Args)
	default:
		return Value{}, runtimeErr(CodeUnknownFunction, "could not find function %q", c.Func)
	}
}

// evalConcat implements c(...): concatenates its arguments into a single
// vector. Mixing strings with anything else coerces the whole result to
// character, matching the usual "most general type wins" combine rule;
// all-integer arguments stay integer, and any other mix of numeric and
// logical arguments combines as doubles.
func evalConcat(e *Env, args []Node) (Value, error) {
	vals := make([]Value, len(args))
	for i, a := range args {
		v, err := e.eval(a)
		if err != nil {
			return Value{}, err
		}
		vals[i] = v
	}

	anyString, anyDouble := false, false
	allInt := len(vals) > 0
	for _, v := range vals {
		switch v.Kind {
		case KindString:
			anyString = true
		case KindDouble:
			anyDouble = true
		}
		if v.Kind != KindInt {
			allInt = false
		}
	}

	if anyString {
		var out []string
		for _, v := range vals {
			out = append(out, asStrings(v)...)
		}
		return String(out...), nil
	}

	if allInt && !anyDouble {
		var out []int32
		for _, v := range vals {
			out = append(out, v.Ints...)
		}
		return Int(out...), nil
	}

	var out []float64
	for _, v := range vals {
		out = append(out, asDoubles(v)...)
	}
	return Double(out...), nil
}

func asStrings(v Value) []string {
	switch v.Kind {
	case KindString:
		return v.Strings
	case KindInt:
		out := make([]string, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = fmt.Sprintf("%d", n)
		}
		return out
	case KindDouble:
		out := make([]string, len(v.Doubles))
		for i, d := range v.Doubles {
			out[i] = fmt.Sprintf("%g", d)
		}
		return out
	default:
		return nil
	}
}

func asDoubles(v Value) []float64 {
	switch v.Kind {
	case KindDouble:
		return v.Doubles
	case KindInt:
		out := make([]float64, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = float64(n)
		}
		return out
	case KindBool:
		out := make([]float64, len(v.Bools))
		for i, b := range v.Bools {
			if b == BoolTrue {
				out[i] = 1
			} else if b == BoolNA {
				out[i] = nanValue
			}
		}
		return out
	default:
		return nil
	}
}

var nanValue = func() float64 {
	var zero float64
	return zero / zero
}()

func negate(v Value) (Value, error) {
	if v.Kind == KindInt {
		out := make([]int32, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = -n
		}
		return Int(out...), nil
	}
	if v.Kind != KindDouble {
		return Value{}, runtimeErr(CodeInvalidArgument, "invalid argument to unary operator")
	}
	out := make([]float64, len(v.Doubles))
	for i, d := range v.Doubles {
		out[i] = -d
	}
	return Double(out...), nil
}

// applyBinary implements arithmetic and comparison with R-style recycling:
// the shorter operand's elements repeat to match the longer one's length.
func applyBinary(op string, x, y Value) (Value, error) {
	switch op {
	case "+", "-", "*", "/":
		return arith(op, x, y)
	case ":":
		return seq(x, y)
	case "==", "!=", "<", ">", "<=", ">=":
		return compare(op, x, y)
	default:
		return Value{}, runtimeErr(CodeEvalError, "unknown operator %q", op)
	}
}

// seq implements from:to, yielding an integer vector counting up or down
// by one. Non-integral endpoints are truncated toward zero first.
func seq(x, y Value) (Value, error) {
	a, b := asDoubles(x), asDoubles(y)
	if len(a) == 0 || len(b) == 0 {
		return Value{}, runtimeErr(CodeInvalidArgument, "argument of length 0 in sequence")
	}
	from, to := int32(a[0]), int32(b[0])
	var out []int32
	if from <= to {
		for n := from; n <= to; n++ {
			out = append(out, n)
		}
	} else {
		for n := from; n >= to; n-- {
			out = append(out, n)
		}
	}
	return Int(out...), nil
}

func arith(op string, x, y Value) (Value, error) {
	if op == "+" && (x.Kind == KindString || y.Kind == KindString) {
		return Value{}, runtimeErr(CodeInvalidArgument, "non-numeric argument to binary operator")
	}
	a, b := asDoubles(x), asDoubles(y)
	if len(a) == 0 || len(b) == 0 {
		return Value{}, runtimeErr(CodeInvalidArgument, "non-numeric argument to binary operator")
	}
	n := recycleLen(len(a), len(b))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		av, bv := a[i%len(a)], b[i%len(b)]
		switch op {
		case "+":
			out[i] = av + bv
		case "-":
			out[i] = av - bv
		case "*":
			out[i] = av * bv
		case "/":
			out[i] = av / bv
		}
	}
	return Double(out...), nil
}

func compare(op string, x, y Value) (Value, error) {
	if x.Kind == KindString || y.Kind == KindString {
		a, b := asStrings(x), asStrings(y)
		n := recycleLen(len(a), len(b))
		out := make([]Bool, n)
		for i := 0; i < n; i++ {
			out[i] = boolFromCmp(op, strCmp(a[i%len(a)], b[i%len(b)]))
		}
		return BoolVec(out...), nil
	}
	a, b := asDoubles(x), asDoubles(y)
	n := recycleLen(len(a), len(b))
	out := make([]Bool, n)
	for i := 0; i < n; i++ {
		av, bv := a[i%len(a)], b[i%len(b)]
		out[i] = boolFromCmp(op, numCmp(av, bv))
	}
	return BoolVec(out...), nil
}

func numCmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func strCmp(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolFromCmp(op string, cmp int) Bool {
	var result bool
	switch op {
	case "==":
		result = cmp == 0
	case "!=":
		result = cmp != 0
	case "<":
		result = cmp < 0
	case ">":
		result = cmp > 0
	case "<=":
		result = cmp <= 0
	case ">=":
		result = cmp >= 0
	}
	if result {
		return BoolTrue
	}
	return BoolFalse
}

func recycleLen(a, b int) int {
	if a > b {
		return a
	}
	return b
}
