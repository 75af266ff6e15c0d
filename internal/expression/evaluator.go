package expression

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Scope resolves names that are not in EvaluationContext.Variables.
type Scope interface {
	Lookup(name string) (any, bool)
}

// ScopeFunc adapts a function to Scope.
type ScopeFunc func(name string) (any, bool)

// Lookup implements Scope.
func (f ScopeFunc) Lookup(name string) (any, bool) { return f(name) }

// EvaluationContext holds the context for expression evaluation.
type EvaluationContext struct {
	// Variables holds values that shadow Scope.
	Variables map[string]any
	// Scope is consulted when a name is not in Variables.
	Scope Scope
}

// NewEvaluationContext creates a new EvaluationContext.
func NewEvaluationContext() *EvaluationContext {
	return &EvaluationContext{
		Variables: make(map[string]any),
	}
}

// WithVariables sets the variables map.
func (c *EvaluationContext) WithVariables(vars map[string]any) *EvaluationContext {
	c.Variables = vars
	return c
}

// WithScope sets the fallback scope.
func (c *EvaluationContext) WithScope(s Scope) *EvaluationContext {
	c.Scope = s
	return c
}

// Set sets a variable value.
func (c *EvaluationContext) Set(name string, value any) {
	if c.Variables == nil {
		c.Variables = make(map[string]any)
	}
	c.Variables[name] = value
}

func (c *EvaluationContext) lookup(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.Variables[name]; ok {
		return v, true
	}
	if c.Scope != nil {
		return c.Scope.Lookup(name)
	}
	return nil, false
}

// ExpressionEvaluator evaluates expressions.
type ExpressionEvaluator interface {
	// Parse parses an expression string into an AST.
	Parse(expr string) (*ExpressionAST, error)

	// Evaluate evaluates an AST to a boolean.
	Evaluate(ast *ExpressionAST, ctx *EvaluationContext) (bool, error)

	// EvaluateString parses and evaluates an expression string to a boolean.
	EvaluateString(expr string, ctx *EvaluationContext) (bool, error)

	// EvaluateValue parses and evaluates an expression string to a value.
	EvaluateValue(expr string, ctx *EvaluationContext) (any, error)
}

// DefaultEvaluator is the default implementation of ExpressionEvaluator.
// Parsed ASTs are cached, so loop bodies do not re-parse their expressions.
type DefaultEvaluator struct {
	cache sync.Map // string -> *ExpressionAST
}

// NewEvaluator creates a new DefaultEvaluator.
func NewEvaluator() *DefaultEvaluator {
	return &DefaultEvaluator{}
}

// Parse parses an expression string into an AST.
func (e *DefaultEvaluator) Parse(expr string) (*ExpressionAST, error) {
	if cached, ok := e.cache.Load(expr); ok {
		return cached.(*ExpressionAST), nil
	}
	ast, err := ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	e.cache.Store(expr, ast)
	return ast, nil
}

// Evaluate evaluates an AST to a boolean.
func (e *DefaultEvaluator) Evaluate(ast *ExpressionAST, ctx *EvaluationContext) (bool, error) {
	val, err := e.evaluateAST(ast, ctx)
	if err != nil {
		return false, err
	}
	b, err := toBool(val)
	if err != nil {
		return false, NewExpressionError(ast.Source, -1, err.Error(), err)
	}
	return b, nil
}

// EvaluateString parses and evaluates an expression string to a boolean.
func (e *DefaultEvaluator) EvaluateString(expr string, ctx *EvaluationContext) (bool, error) {
	ast, err := e.Parse(expr)
	if err != nil {
		return false, err
	}
	return e.Evaluate(ast, ctx)
}

// EvaluateValue parses and evaluates an expression string to a value.
func (e *DefaultEvaluator) EvaluateValue(expr string, ctx *EvaluationContext) (any, error) {
	ast, err := e.Parse(expr)
	if err != nil {
		return nil, err
	}
	return e.evaluateAST(ast, ctx)
}

func (e *DefaultEvaluator) evaluateAST(ast *ExpressionAST, ctx *EvaluationContext) (any, error) {
	if ast == nil || ast.Root == nil {
		return nil, NewExpressionError("", -1, "nil AST", nil)
	}
	val, err := e.evaluateNode(ast.Root, ctx)
	if err != nil {
		return nil, NewExpressionError(ast.Source, -1, err.Error(), err)
	}
	return val, nil
}

// evaluateNode evaluates a single AST node.
func (e *DefaultEvaluator) evaluateNode(node Node, ctx *EvaluationContext) (any, error) {
	switch n := node.(type) {
	case *LiteralNode:
		return n.Value, nil

	case *VariableNode:
		if val, ok := ctx.lookup(n.Name); ok {
			return val, nil
		}
		return nil, NewVariableNotFoundError(n.Name)

	case *MemberNode:
		obj, err := e.evaluateNode(n.Object, ctx)
		if err != nil {
			return nil, err
		}
		val, err := getField(obj, n.Field)
		if err != nil {
			return nil, NewEvaluationError(fmt.Sprintf("cannot resolve '%s'", describe(n)), err)
		}
		return val, nil

	case *IndexNode:
		obj, err := e.evaluateNode(n.Object, ctx)
		if err != nil {
			return nil, err
		}
		idx, err := e.evaluateNode(n.Index, ctx)
		if err != nil {
			return nil, err
		}
		return getIndex(obj, idx)

	case *ListNode:
		out := make([]any, len(n.Elements))
		for i, el := range n.Elements {
			v, err := e.evaluateNode(el, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *CallNode:
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			v, err := e.evaluateNode(a, ctx)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return callBuiltin(n.Name, args)

	case *ComparisonNode:
		return e.evaluateComparison(n, ctx)

	case *ArithmeticNode:
		left, err := e.evaluateNode(n.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := e.evaluateNode(n.Right, ctx)
		if err != nil {
			return nil, err
		}
		return arithmetic(left, right, n.Operator)

	case *NegateNode:
		v, err := e.evaluateNode(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		return arithmetic(int64(0), v, "-")

	case *LogicalNode:
		return e.evaluateLogical(n, ctx)

	case *NotNode:
		val, err := e.evaluateNode(n.Operand, ctx)
		if err != nil {
			return false, err
		}
		b, err := toBool(val)
		if err != nil {
			return false, err
		}
		return !b, nil

	default:
		return nil, NewEvaluationError(fmt.Sprintf("unknown node type: %T", node), nil)
	}
}

// describe renders a member chain back to dotted form for error messages.
func describe(n Node) string {
	switch v := n.(type) {
	case *VariableNode:
		return v.Name
	case *MemberNode:
		return describe(v.Object) + "." + v.Field
	case *IndexNode:
		return describe(v.Object) + "[...]"
	default:
		return "<expr>"
	}
}

// getField gets a field from a value (map or struct).
func getField(v any, field string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot get field '%s' from nil", field)
	}

	if m, ok := v.(map[string]any); ok {
		if val, exists := m[field]; exists {
			return val, nil
		}
		return nil, NewVariableNotFoundError(field)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		mv := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !mv.IsValid() {
			return nil, NewVariableNotFoundError(field)
		}
		return mv.Interface(), nil
	case reflect.Struct:
		fv := rv.FieldByName(field)
		if fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), nil
		}
		for i := 0; i < rv.NumField(); i++ {
			if strings.EqualFold(rv.Type().Field(i).Name, field) && rv.Field(i).CanInterface() {
				return rv.Field(i).Interface(), nil
			}
		}
		return nil, NewVariableNotFoundError(field)
	case reflect.Slice, reflect.Array:
		// items.0
		if idx, err := strconv.Atoi(field); err == nil {
			return getIndex(v, int64(idx))
		}
	}

	return nil, fmt.Errorf("cannot get field '%s' from type %T", field, v)
}

// getIndex indexes lists and strings by integer and maps by key.
func getIndex(v any, idx any) (any, error) {
	if key, ok := idx.(string); ok {
		return getField(v, key)
	}
	i, ok := toInt64(idx)
	if !ok {
		return nil, NewTypeMismatchError("integer index", idx)
	}

	if s, ok := v.(string); ok {
		if i < 0 {
			i += int64(len(s))
		}
		if i < 0 || i >= int64(len(s)) {
			return nil, NewEvaluationError(fmt.Sprintf("index %d out of bounds (length %d)", i, len(s)), nil)
		}
		return string(s[i]), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := int64(rv.Len())
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, NewEvaluationError(fmt.Sprintf("index %d out of bounds (length %d)", i, n), nil)
		}
		return rv.Index(int(i)).Interface(), nil
	default:
		return nil, NewEvaluationError(fmt.Sprintf("cannot index type %T", v), nil)
	}
}

// evaluateComparison evaluates a comparison expression.
func (e *DefaultEvaluator) evaluateComparison(node *ComparisonNode, ctx *EvaluationContext) (bool, error) {
	left, err := e.evaluateNode(node.Left, ctx)
	if err != nil {
		return false, err
	}

	right, err := e.evaluateNode(node.Right, ctx)
	if err != nil {
		return false, err
	}

	if node.Operator == "IN" {
		return contains(right, left)
	}
	return compare(left, right, node.Operator)
}

// evaluateLogical evaluates a logical expression (AND, OR).
func (e *DefaultEvaluator) evaluateLogical(node *LogicalNode, ctx *EvaluationContext) (bool, error) {
	leftVal, err := e.evaluateNode(node.Left, ctx)
	if err != nil {
		return false, err
	}

	leftBool, err := toBool(leftVal)
	if err != nil {
		return false, err
	}

	// Short-circuit evaluation
	switch node.Operator {
	case "AND":
		if !leftBool {
			return false, nil
		}
	case "OR":
		if leftBool {
			return true, nil
		}
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown logical operator: %s", node.Operator), nil)
	}

	rightVal, err := e.evaluateNode(node.Right, ctx)
	if err != nil {
		return false, err
	}

	return toBool(rightVal)
}

// Equal reports whether two values are equal under expression semantics:
// numbers compare by value regardless of width, everything else must have
// the same dynamic type. Strings never equal numbers.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return ai == bi
		}
	}
	an, aNum := toFloat64(a)
	bn, bNum := toFloat64(b)
	if aNum || bNum {
		return aNum && bNum && an == bn
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		al, aList := toList(a)
		bl, bList := toList(b)
		if aList && bList {
			return listEqual(al, bl)
		}
		return false
	}
	if al, ok := toList(a); ok {
		bl, _ := toList(b)
		return listEqual(al, bl)
	}
	return reflect.DeepEqual(a, b)
}

func listEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// compare compares two values with the given operator.
func compare(left, right any, op string) (bool, error) {
	switch op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	}

	if left == nil || right == nil {
		return false, NewEvaluationError(fmt.Sprintf("cannot compare nil with operator %s", op), nil)
	}

	if li, ok := toInt64(left); ok {
		if ri, ok := toInt64(right); ok {
			return ordered(li, ri, op)
		}
	}

	leftNum, leftIsNum := toFloat64(left)
	rightNum, rightIsNum := toFloat64(right)
	if leftIsNum && rightIsNum {
		return ordered(leftNum, rightNum, op)
	}

	leftStr, leftIsStr := left.(string)
	rightStr, rightIsStr := right.(string)
	if leftIsStr && rightIsStr {
		return ordered(leftStr, rightStr, op)
	}

	return false, NewEvaluationError(fmt.Sprintf("cannot compare %T with %T using %s", left, right, op), nil)
}

func ordered[T int64 | float64 | string](left, right T, op string) (bool, error) {
	switch op {
	case "<":
		return left < right, nil
	case ">":
		return left > right, nil
	case "<=":
		return left <= right, nil
	case ">=":
		return left >= right, nil
	default:
		return false, NewEvaluationError(fmt.Sprintf("unknown comparison operator: %s", op), nil)
	}
}

// contains implements the IN operator.
func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, NewTypeMismatchError("string", item)
		}
		return strings.Contains(c, s), nil
	case map[string]any:
		key, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, exists := c[key]
		return exists, nil
	}
	if list, ok := toList(container); ok {
		for _, el := range list {
			if Equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, NewTypeMismatchError("list, map or string", container)
}

// arithmetic implements + and -.
func arithmetic(left, right any, op string) (any, error) {
	if op == "+" {
		ls, lok := left.(string)
		rs, rok := right.(string)
		if lok && rok {
			return ls + rs, nil
		}
		ll, lok := left.([]any)
		rl, rok := right.([]any)
		if lok && rok {
			out := make([]any, 0, len(ll)+len(rl))
			return append(append(out, ll...), rl...), nil
		}
	}

	li, lInt := toInt64(left)
	ri, rInt := toInt64(right)
	if lInt && rInt {
		if op == "+" {
			return li + ri, nil
		}
		return li - ri, nil
	}

	lf, lNum := toFloat64(left)
	rf, rNum := toFloat64(right)
	if !lNum || !rNum {
		return nil, NewEvaluationError(fmt.Sprintf("unsupported operand types for %s: %T and %T", op, left, right), nil)
	}
	if op == "+" {
		return lf + rf, nil
	}
	return lf - rf, nil
}

// toInt64 converts integer kinds to int64. Floats and strings are not converted.
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	default:
		return 0, false
	}
}

// toFloat64 converts numeric kinds to float64. Strings are not numbers.
func toFloat64(v any) (float64, bool) {
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	default:
		return 0, false
	}
}

// toList converts slices and arrays to []any.
func toList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toBool converts a value to bool.
func toBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		lower := strings.ToLower(val)
		if lower == "true" || lower == "1" {
			return true, nil
		}
		if lower == "false" || lower == "0" || lower == "" {
			return false, nil
		}
		return true, nil
	case nil:
		return false, nil
	}
	if f, ok := toFloat64(v); ok {
		return f != 0, nil
	}
	if l, ok := toList(v); ok {
		return len(l) > 0, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		return rv.Len() > 0, nil
	}
	return false, NewTypeMismatchError("bool", v)
}

// ToList converts an evaluated iterable into an ordered list:
// lists as is, strings by character, maps by sorted key, and integer n to 0..n-1.
func ToList(v any) ([]any, error) {
	switch val := v.(type) {
	case string:
		out := make([]any, 0, len(val))
		for _, r := range val {
			out = append(out, string(r))
		}
		return out, nil
	case nil:
		return nil, NewTypeMismatchError("iterable", v)
	}
	if l, ok := toList(v); ok {
		return l, nil
	}
	if n, ok := toInt64(v); ok {
		return rangeList(0, n), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	}
	return nil, NewTypeMismatchError("iterable", v)
}

// Evaluate is a convenience function to evaluate an expression string to a boolean.
func Evaluate(expr string, ctx *EvaluationContext) (bool, error) {
	return NewEvaluator().EvaluateString(expr, ctx)
}

// EvaluateValue is a convenience function to evaluate an expression string to a value.
func EvaluateValue(expr string, ctx *EvaluationContext) (any, error) {
	return NewEvaluator().EvaluateValue(expr, ctx)
}
