// Package backend holds helpers shared by the execution and validation backends.
package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yqhp/jobflow/internal/expression"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/scope"
)

// VarPrefix marks a target that names a workflow variable holding the file path.
const VarPrefix = scope.VarRoot + "."

// ResolveFile decides whether target refers to a file and finds it.
//
// A target ending in ext is a path: absolute or relative to the working
// directory first, then relative to dir. A target starting with "var." is
// looked up in ns and the value treated the same way; an empty value means
// the target is not a file. Anything else is an inline body and ok is false.
func ResolveFile(task, target, ext, dir string, ns *scope.Namespace) (path string, ok bool, err error) {
	name := strings.TrimSpace(target)
	switch {
	case strings.HasSuffix(name, ext):
	case strings.HasPrefix(name, VarPrefix):
		if ns != nil {
			v, evalErr := expression.NewEvaluator().EvaluateValue(name,
				expression.NewEvaluationContext().WithScope(ns))
			if evalErr == nil {
				if v == nil || fmt.Sprint(v) == "" {
					return "", false, nil
				}
				name = fmt.Sprint(v)
			}
		}
	default:
		return "", false, nil
	}

	if isFile(name) {
		return name, true, nil
	}
	if dir == "" {
		dir = "."
	}
	rel := filepath.Join(dir, name)
	if !filepath.IsAbs(name) && isFile(rel) {
		return rel, true, nil
	}
	return "", false, interpreter.NewConfigurationError(task, interpreter.ErrFileNotFound,
		fmt.Sprintf("file not found: %q", name), nil)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
