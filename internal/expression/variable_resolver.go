package expression

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

// VariableResolver 变量解析器, interpolates ${...} references inside strings.
type VariableResolver struct {
	ctx       *EvaluationContext
	evaluator ExpressionEvaluator
}

// NewVariableResolver 创建新的变量解析器
func NewVariableResolver(ctx *EvaluationContext) *VariableResolver {
	return &VariableResolver{ctx: ctx, evaluator: NewEvaluator()}
}

// WithEvaluator shares an evaluator (and its AST cache) with the resolver.
func (r *VariableResolver) WithEvaluator(e ExpressionEvaluator) *VariableResolver {
	if e != nil {
		r.evaluator = e
	}
	return r
}

// 变量引用正则表达式
var (
	// ${variable} 或 ${task.t1.output} 或 ${items[0]}
	varRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)
	// ${env.VAR_NAME}
	envVarPattern = regexp.MustCompile(`^env\.(.+)$`)
	// ${file:path/to/file}
	fileRefPattern = regexp.MustCompile(`^file:(.+)$`)
)

// ResolveString 解析字符串中的所有变量引用.
// References that cannot be resolved are left untouched, so shell
// expansions like ${HOME} reach the shell intact. The returned error
// lists them; the string is usable either way.
func (r *VariableResolver) ResolveString(s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var unresolved error
	result := varRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		// 去掉 ${ 和 }
		expr := match[2 : len(match)-1]

		val, err := r.ResolveExpression(expr)
		if err != nil {
			unresolved = multierr.Append(unresolved, fmt.Errorf("%s: %w", match, err))
			return match // 保持原样
		}
		if val == nil {
			return ""
		}
		return fmt.Sprintf("%v", val)
	})

	return result, unresolved
}

// ResolveExpression 解析单个变量表达式
func (r *VariableResolver) ResolveExpression(expr string) (any, error) {
	expr = strings.TrimSpace(expr)

	// 检查环境变量引用
	if matches := envVarPattern.FindStringSubmatch(expr); len(matches) == 2 {
		if _, found := r.ctx.lookup("env"); !found {
			return r.resolveEnvVar(matches[1])
		}
	}

	// 检查文件引用
	if matches := fileRefPattern.FindStringSubmatch(expr); len(matches) == 2 {
		return r.resolveFileRef(matches[1])
	}

	if r.ctx == nil {
		return nil, fmt.Errorf("no context available")
	}
	return r.evaluator.EvaluateValue(expr, r.ctx)
}

// resolveEnvVar 解析环境变量
func (r *VariableResolver) resolveEnvVar(name string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", NewVariableNotFoundError("env." + name)
	}
	return val, nil
}

// resolveFileRef 解析文件引用
func (r *VariableResolver) resolveFileRef(path string) (string, error) {
	content, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("failed to read file '%s': %w", path, err)
	}
	return string(content), nil
}

// HasVariableReference reports whether s contains a ${...} reference.
func HasVariableReference(s string) bool {
	return varRefPattern.MatchString(s)
}
