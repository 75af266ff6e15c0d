// Package cmd 提供 jobflow CLI 的命令实现
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/jobflow/internal/config"
	"yqhp/jobflow/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
     _       _      __ _
    (_) ___ | |__  / _| | _____      __
    | |/ _ \| '_ \| |_| |/ _ \ \ /\ / /
    | | (_) | |_) |  _| | (_) \ V  V /   %s
   _/ |\___/|_.__/|_| |_|\___/ \_/\_/
  |__/
`
)

// options 保存全局 flags 和加载后的配置
type options struct {
	cfgFile string
	debug   bool
	quiet   bool
	sets    []string

	cfg *config.Config
}

// NewRootCmd 创建根命令及全部子命令
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "jobflow",
		Short: "作业流控制解释器",
		Long: `jobflow 解释由 task / if / for / switch / fork 组成的 YAML 作业，
同一份作业可以真实执行、只做校验，或者渲染成控制流图。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "静默模式")
	rootCmd.PersistentFlags().StringArrayVar(&opts.sets, "set", nil, "覆盖配置项 (可多次指定)，格式: executor.shell=/bin/bash")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newValidateCmd(opts),
		newGraphCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// load 加载配置并初始化日志
func (o *options) load() error {
	sets, err := parsePairs(o.sets)
	if err != nil {
		return fmt.Errorf("--set: %w", err)
	}

	cfg, err := config.NewLoader().WithConfigPath(o.cfgFile).WithCmdArgs(sets).Load()
	if err != nil {
		return err
	}
	switch {
	case o.debug:
		cfg.Log.Level = "debug"
	case o.quiet:
		cfg.Log.Level = "error"
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger.Init(&cfg.Log)
	o.cfg = cfg
	return nil
}

// parsePairs 解析 key=value 形式的参数
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid pair %q, expected key=value", pair)
		}
		out[k] = v
	}
	return out, nil
}
