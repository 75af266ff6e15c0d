package expression

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

// TestExpressionEvaluationProperty: comparison and logical operators agree with Go.
func TestExpressionEvaluationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("integer comparison operators are correct", prop.ForAll(
		func(left, right int, op string) bool {
			ctx := NewEvaluationContext().WithVariables(map[string]any{
				"a": left,
				"b": right,
			})

			result, err := Evaluate(fmt.Sprintf("a %s b", op), ctx)
			if err != nil {
				return false
			}
			return result == computeIntComparison(left, right, op)
		},
		gen.Int(),
		gen.Int(),
		gen.OneConstOf("==", "!=", "<", ">", "<=", ">="),
	))

	properties.Property("AND/OR follow boolean logic", prop.ForAll(
		func(left, right bool) bool {
			ctx := NewEvaluationContext().WithVariables(map[string]any{
				"a": left,
				"b": right,
			})

			and, err := Evaluate("a AND b", ctx)
			if err != nil {
				return false
			}
			or, err := Evaluate("a || b", ctx)
			if err != nil {
				return false
			}
			not, err := Evaluate("NOT a", ctx)
			if err != nil {
				return false
			}
			return and == (left && right) && or == (left || right) && not == !left
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func computeIntComparison(left, right int, op string) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	case "<":
		return left < right
	case ">":
		return left > right
	case "<=":
		return left <= right
	case ">=":
		return left >= right
	default:
		return false
	}
}

// Integer literals, sums and list membership round trip through the evaluator.
func TestEvaluator_RapidArithmeticAndMembership(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "a")
		b := rapid.Int64Range(-1_000_000, 1_000_000).Draw(t, "b")

		got, err := EvaluateValue(fmt.Sprintf("%d + %d - %d", a, b, b), NewEvaluationContext())
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got != a {
			t.Fatalf("expected %d, got %v", a, got)
		}

		items := rapid.SliceOfN(rapid.IntRange(0, 20), 0, 8).Draw(t, "items")
		x := rapid.IntRange(0, 20).Draw(t, "x")
		parts := make([]string, len(items))
		for i, v := range items {
			parts[i] = fmt.Sprint(v)
		}
		ctx := NewEvaluationContext().WithVariables(map[string]any{"x": x})
		in, err := Evaluate("x in ["+strings.Join(parts, ", ")+"]", ctx)
		if err != nil {
			t.Fatalf("evaluate membership: %v", err)
		}
		if in != slices.Contains(items, x) {
			t.Fatalf("membership of %d in %v: got %v", x, items, in)
		}
	})
}

// Any string literal survives quoting and escaping.
func TestEvaluator_RapidStringLiterals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9 _'"\\\n\t-]{0,16}`).Draw(t, "s")
		quoted := "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\t", `\t`).Replace(s) + "'"

		ctx := NewEvaluationContext().WithVariables(map[string]any{"s": s})
		eq, err := Evaluate(quoted+" == s", ctx)
		if err != nil {
			t.Fatalf("evaluate %s: %v", quoted, err)
		}
		if !eq {
			t.Fatalf("literal %s did not equal %q", quoted, s)
		}
	})
}
