package expression

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Literals(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{input: "42", expected: int64(42)},
		{input: "-7", expected: int64(-7)},
		{input: "3.5", expected: 3.5},
		{input: "'x'", expected: "x"},
		{input: "false", expected: false},
		{input: "null", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ast, err := ParseExpression(tt.input)
			require.NoError(t, err)
			lit, ok := ast.Root.(*LiteralNode)
			require.True(t, ok, "expected literal, got %T", ast.Root)
			assert.Equal(t, tt.expected, lit.Value)
		})
	}
}

func TestParser_MemberChain(t *testing.T) {
	ast, err := ParseExpression("task.t1.output")
	require.NoError(t, err)

	outer, ok := ast.Root.(*MemberNode)
	require.True(t, ok)
	assert.Equal(t, "output", outer.Field)

	inner, ok := outer.Object.(*MemberNode)
	require.True(t, ok)
	assert.Equal(t, "t1", inner.Field)
	assert.Equal(t, &VariableNode{Name: "task"}, inner.Object)
}

func TestParser_Precedence(t *testing.T) {
	// a OR b AND c parses as a OR (b AND c)
	ast, err := ParseExpression("a OR b AND c")
	require.NoError(t, err)
	or, ok := ast.Root.(*LogicalNode)
	require.True(t, ok)
	assert.Equal(t, "OR", or.Operator)
	and, ok := or.Right.(*LogicalNode)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Operator)

	// NOT binds looser than comparison
	ast, err = ParseExpression("NOT x == 1")
	require.NoError(t, err)
	not, ok := ast.Root.(*NotNode)
	require.True(t, ok)
	_, ok = not.Operand.(*ComparisonNode)
	assert.True(t, ok)

	// + binds tighter than comparison
	ast, err = ParseExpression("a + 1 > b")
	require.NoError(t, err)
	cmp, ok := ast.Root.(*ComparisonNode)
	require.True(t, ok)
	_, ok = cmp.Left.(*ArithmeticNode)
	assert.True(t, ok)
}

func TestParser_CallsAndLists(t *testing.T) {
	ast, err := ParseExpression("range(1, 4)")
	require.NoError(t, err)
	call, ok := ast.Root.(*CallNode)
	require.True(t, ok)
	assert.Equal(t, "range", call.Name)
	assert.Len(t, call.Args, 2)

	ast, err = ParseExpression("[1, 'a', [true],]")
	require.NoError(t, err)
	list, ok := ast.Root.(*ListNode)
	require.True(t, ok)
	assert.Len(t, list.Elements, 3)

	ast, err = ParseExpression("[]")
	require.NoError(t, err)
	assert.Empty(t, ast.Root.(*ListNode).Elements)
}

func TestParser_VarRefIsTransparent(t *testing.T) {
	a, err := ParseExpression("${task.t1.output}")
	require.NoError(t, err)
	b, err := ParseExpression("task.t1.output")
	require.NoError(t, err)
	assert.Equal(t, b.Root, a.Root)
}

func TestParser_Errors(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"1 +",
		"(a",
		"a ==",
		"1 < 2 < 3",
		"[1, 2",
		"a.",
		"'open",
		"f(1 2)",
		"a = b",
		"${}",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := ParseExpression(input)
			require.Error(t, err)
			var exprErr *ExpressionError
			assert.True(t, errors.As(err, &exprErr))
			assert.Equal(t, input, exprErr.Expr)
		})
	}
}
