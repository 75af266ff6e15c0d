package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/jobflow/internal/backend/validator"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/parser"
	"yqhp/jobflow/internal/transport"
)

func newValidateCmd(opts *options) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "validate <job.yaml>",
		Short: "校验作业而不执行",
		Long: `遍历作业但不执行任何任务：检查服务与 HTTP 地址可达、脚本文件存在、
任务名唯一且合法。条件表达式只能引用 inputs 和变量。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := parser.NewYAMLParser().ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("解析作业失败: %w", err)
			}
			if err := applyVars(wf, vars); err != nil {
				return err
			}

			backend := validator.New(transport.NewHTTPClient(opts.cfg.HTTP))
			if err := interpreter.New(backend).Run(context.Background(), wf); err != nil {
				return fmt.Errorf("校验失败: %w", err)
			}
			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", wf.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "覆盖作业变量 (可多次指定)，格式: key=value")
	return cmd
}
