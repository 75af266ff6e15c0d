package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/jobflow/internal/graph"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/parser"
)

// stdout 作为 -o 的值时输出到标准输出
const stdout = "-"

func newGraphCmd(opts *options) *cobra.Command {
	var output, format string
	cmd := &cobra.Command{
		Use:   "graph <job.yaml>",
		Short: "渲染作业的控制流图",
		Long: `把作业的控制流渲染为 Graphviz DOT 或 JSON。
默认输出到作业文件旁边，扩展名替换为 .dot / .json。`,
		Example: `  jobflow graph job.yaml
  jobflow graph --format json -o - job.yaml
  jobflow graph job.yaml && dot -Tsvg job.dot > job.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := graph.ParseFormat(format)
			if err != nil {
				return err
			}
			wf, err := parser.NewYAMLParser().ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("解析作业失败: %w", err)
			}

			emitter := graph.NewEmitter()
			if err := interpreter.New(emitter).Run(context.Background(), wf); err != nil {
				return fmt.Errorf("生成控制流图失败: %w", err)
			}
			data, err := graph.Render(emitter.Graph(), f)
			if err != nil {
				return err
			}

			if output == stdout {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + f.Ext()
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("写入控制流图失败: %w", err)
			}
			if !opts.quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "graph written to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，- 表示标准输出")
	cmd.Flags().StringVar(&format, "format", string(graph.FormatDOT), "输出格式 (dot, json)")
	return cmd
}
