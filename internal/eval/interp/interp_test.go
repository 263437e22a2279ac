package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, env *Env, src string) Value {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	v, err := env.Run(prog)
	require.NoError(t, err)
	return v
}

func TestArithmeticScalar(t *testing.T) {
	v := run(t, NewEnv(), "1+1\n")
	assert.Equal(t, KindDouble, v.Kind)
	assert.Equal(t, []float64{2}, v.Doubles)
}

func TestOperatorPrecedence(t *testing.T) {
	v := run(t, NewEnv(), "2+3*4\n")
	assert.Equal(t, []float64{14}, v.Doubles)
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	v := run(t, NewEnv(), "(2+3)*4\n")
	assert.Equal(t, []float64{20}, v.Doubles)
}

func TestUnaryMinus(t *testing.T) {
	v := run(t, NewEnv(), "-5+2\n")
	assert.Equal(t, []float64{-3}, v.Doubles)
}

func TestStringLiteral(t *testing.T) {
	v := run(t, NewEnv(), `"hi"` + "\n")
	assert.Equal(t, KindString, v.Kind)
	assert.Equal(t, []string{"hi"}, v.Strings)
}

func TestAssignmentAndLookup(t *testing.T) {
	env := NewEnv()
	run(t, env, "x <- 10\n")
	v := run(t, env, "x*2\n")
	assert.Equal(t, []float64{20}, v.Doubles)
}

func TestConcatNumeric(t *testing.T) {
	v := run(t, NewEnv(), "c(1, 2, 3)\n")
	assert.Equal(t, []float64{1, 2, 3}, v.Doubles)
}

func TestConcatCoercesToString(t *testing.T) {
	v := run(t, NewEnv(), `c(1, "a")` + "\n")
	assert.Equal(t, KindString, v.Kind)
	assert.Equal(t, []string{"1", "a"}, v.Strings)
}

func TestSequenceProducesIntegerVector(t *testing.T) {
	v := run(t, NewEnv(), "1:5\n")
	assert.Equal(t, KindInt, v.Kind)
	assert.Equal(t, []int32{1, 2, 3, 4, 5}, v.Ints)
}

func TestSequenceCountsDown(t *testing.T) {
	v := run(t, NewEnv(), "3:-1\n")
	assert.Equal(t, []int32{3, 2, 1, 0, -1}, v.Ints)
}

func TestSequenceBindsTighterThanArithmetic(t *testing.T) {
	v := run(t, NewEnv(), "1:3 + 1\n")
	assert.Equal(t, KindDouble, v.Kind)
	assert.Equal(t, []float64{2, 3, 4}, v.Doubles)
}

func TestConcatAllIntegerStaysInteger(t *testing.T) {
	v := run(t, NewEnv(), "c(1:2, 5:6)\n")
	assert.Equal(t, KindInt, v.Kind)
	assert.Equal(t, []int32{1, 2, 5, 6}, v.Ints)
}

func TestComparisonProducesBool(t *testing.T) {
	v := run(t, NewEnv(), "1 < 2\n")
	assert.Equal(t, KindBool, v.Kind)
	assert.Equal(t, []Bool{BoolTrue}, v.Bools)
}

func TestRecyclingShorterOperand(t *testing.T) {
	v := run(t, NewEnv(), "c(1,2,3,4) + c(10,20)\n")
	assert.Equal(t, []float64{11, 22, 13, 24}, v.Doubles)
}

func TestMultiStatementLastValueWins(t *testing.T) {
	v := run(t, NewEnv(), "1+1\n2+2\n3+3\n")
	assert.Equal(t, []float64{6}, v.Doubles)
}

func TestUndefinedIdentifierIsError(t *testing.T) {
	prog, err := Parse("nope\n")
	require.NoError(t, err)
	_, err = NewEnv().Run(prog)
	assert.Error(t, err)
}

func TestUnknownFunctionIsError(t *testing.T) {
	prog, err := Parse("nope(1)\n")
	require.NoError(t, err)
	_, err = NewEnv().Run(prog)
	assert.Error(t, err)
}

func TestSyntaxErrorUnterminatedParen(t *testing.T) {
	_, err := Parse("(1+1\n")
	assert.Error(t, err)
}

func TestEnvPersistsAcrossRuns(t *testing.T) {
	env := NewEnv()
	run(t, env, "a <- 1\n")
	run(t, env, "b <- 2\n")
	v := run(t, env, "a+b\n")
	assert.Equal(t, []float64{3}, v.Doubles)
}
