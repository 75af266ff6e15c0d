package expression

import (
	"fmt"
	"strconv"
	"strings"
)

// builtinFunc is a function callable from expressions.
type builtinFunc func(args []any) (any, error)

var builtins = map[string]builtinFunc{
	"range": builtinRange,
	"len":   builtinLen,
	"str":   builtinStr,
	"int":   builtinInt,
	"float": builtinFloat,
	"keys":  builtinKeys,
}

func callBuiltin(name string, args []any) (any, error) {
	fn, ok := builtins[name]
	if !ok {
		return nil, NewEvaluationError(fmt.Sprintf("unknown function: %s", name), nil)
	}
	return fn(args)
}

// range(n) and range(a, b)
func builtinRange(args []any) (any, error) {
	switch len(args) {
	case 1:
		n, ok := toInt64(args[0])
		if !ok {
			return nil, NewTypeMismatchError("integer", args[0])
		}
		return rangeList(0, n), nil
	case 2:
		a, ok := toInt64(args[0])
		if !ok {
			return nil, NewTypeMismatchError("integer", args[0])
		}
		b, ok := toInt64(args[1])
		if !ok {
			return nil, NewTypeMismatchError("integer", args[1])
		}
		return rangeList(a, b), nil
	default:
		return nil, NewEvaluationError(fmt.Sprintf("range expects 1 or 2 arguments, got %d", len(args)), nil)
	}
}

func rangeList(from, to int64) []any {
	if to <= from {
		return []any{}
	}
	out := make([]any, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func builtinLen(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(fmt.Sprintf("len expects 1 argument, got %d", len(args)), nil)
	}
	switch v := args[0].(type) {
	case string:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	}
	if l, ok := toList(args[0]); ok {
		return int64(len(l)), nil
	}
	return nil, NewTypeMismatchError("list, map or string", args[0])
}

func builtinStr(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(fmt.Sprintf("str expects 1 argument, got %d", len(args)), nil)
	}
	if args[0] == nil {
		return "", nil
	}
	return fmt.Sprintf("%v", args[0]), nil
}

func builtinInt(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(fmt.Sprintf("int expects 1 argument, got %d", len(args)), nil)
	}
	switch v := args[0].(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, NewEvaluationError(fmt.Sprintf("cannot convert %q to int", v), err)
		}
		return i, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	if i, ok := toInt64(args[0]); ok {
		return i, nil
	}
	if f, ok := toFloat64(args[0]); ok {
		return int64(f), nil
	}
	return nil, NewTypeMismatchError("number or string", args[0])
}

func builtinFloat(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(fmt.Sprintf("float expects 1 argument, got %d", len(args)), nil)
	}
	if s, ok := args[0].(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, NewEvaluationError(fmt.Sprintf("cannot convert %q to float", s), err)
		}
		return f, nil
	}
	if f, ok := toFloat64(args[0]); ok {
		return f, nil
	}
	return nil, NewTypeMismatchError("number or string", args[0])
}

// keys returns the sorted keys of a map.
func builtinKeys(args []any) (any, error) {
	if len(args) != 1 {
		return nil, NewEvaluationError(fmt.Sprintf("keys expects 1 argument, got %d", len(args)), nil)
	}
	if _, ok := args[0].(string); ok {
		return nil, NewTypeMismatchError("map", args[0])
	}
	if _, ok := toList(args[0]); ok {
		return nil, NewTypeMismatchError("map", args[0])
	}
	return ToList(args[0])
}
