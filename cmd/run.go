package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/jobflow/internal/backend/executor"
	"yqhp/jobflow/internal/interpreter"
	"yqhp/jobflow/internal/ledger"
	"yqhp/jobflow/internal/parser"
	"yqhp/jobflow/internal/transport"
	"yqhp/jobflow/pkg/logger"
	"yqhp/jobflow/pkg/types"
)

// runFlags 是 run 命令的 flags
type runFlags struct {
	ledgerPath string
	vars       []string
	timeout    time.Duration
}

func newRunCmd(opts *options) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "执行作业",
		Long: `按顺序执行作业中的每个步骤，任意任务失败即中止。

每个完成的任务都会写入审计账本，指定 --ledger 时写入 JSON lines 文件。`,
		Example: `  # 基本执行
  jobflow run job.yaml

  # 覆盖作业变量并限制单个任务耗时
  jobflow run --var env=staging --var retries=3 --timeout 30s job.yaml

  # 写入审计账本
  jobflow run --ledger /var/log/jobflow/ledger.jsonl job.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, opts, flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.ledgerPath, "ledger", "", "审计账本文件路径 (覆盖 ledger.path)")
	cmd.Flags().StringArrayVar(&flags.vars, "var", nil, "覆盖作业变量 (可多次指定)，格式: key=value")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "单个任务的默认超时 (覆盖 executor.default_timeout)")
	return cmd
}

func runJob(cmd *cobra.Command, opts *options, flags *runFlags, path string) error {
	cfg := opts.cfg

	wf, err := parser.NewYAMLParser().ParseFile(path)
	if err != nil {
		return fmt.Errorf("解析作业失败: %w", err)
	}
	if err := applyVars(wf, flags.vars); err != nil {
		return err
	}

	ledgerCfg := cfg.Ledger
	if flags.ledgerPath != "" {
		ledgerCfg.Path = flags.ledgerPath
	}
	var l ledger.Ledger = ledger.NewMemoryLedger()
	if ledgerCfg.Path != "" {
		if l, err = ledger.NewFileLedger(ledgerCfg, logger.Named("ledger")); err != nil {
			return err
		}
	}

	timeout := cfg.Executor.DefaultTimeout
	if flags.timeout > 0 {
		timeout = flags.timeout
	}

	backend := executor.New(cfg.Executor,
		executor.WithLedger(l),
		executor.WithHTTPClient(transport.NewHTTPClient(cfg.HTTP)),
		executor.WithLogger(logger.Named("executor")),
	)
	in := interpreter.New(backend, interpreter.WithTaskTimeout(timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	runErr := in.Run(ctx, wf)
	logger.Info("job finished",
		zap.String("job", wf.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(runErr))

	if !opts.quiet {
		status := "ok"
		if runErr != nil {
			status = "failed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", wf.Name, status, l.Summary())
	}
	if runErr != nil {
		return fmt.Errorf("执行失败: %w", runErr)
	}
	return nil
}

// applyVars 用 --var 覆盖作业变量，值按 YAML 标量解析
func applyVars(wf *types.Workflow, vars []string) error {
	pairs, err := parsePairs(vars)
	if err != nil {
		return fmt.Errorf("--var: %w", err)
	}
	if len(pairs) == 0 {
		return nil
	}
	if wf.Variables == nil {
		wf.Variables = make(map[string]any, len(pairs))
	}
	for k, v := range pairs {
		wf.Variables[k] = parser.ParseValue(v)
	}
	return nil
}
