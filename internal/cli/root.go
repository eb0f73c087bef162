// Package cli file: internal/cli/root.go
//
// cli 包实现 queryaegis 命令行：运维服务与离线的 SQL 检查、过滤条件翻译。
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// Version 由构建参数覆盖
var Version = "v0.1.0"

// RootOptions 所有子命令共享的全局参数
type RootOptions struct {
	Output string // "json" | "yaml"
}

// ValidOutputs 允许的输出格式
var ValidOutputs = []string{"json", "yaml"}

// NewRootCommand 创建 queryaegis 根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "queryaegis",
		Short:   "QueryAegis - 带权限与审计的多后端查询内核",
		Long:    "统一的过滤 DSL、SQL 安全检查和多后端适配器，附带运维 HTTP 接口。",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return fmt.Errorf("invalid output %q: must be one of %v", opts.Output, ValidOutputs)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "json", "output format (json|yaml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewCheckSQLCommand(opts))
	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewCapabilitiesCommand(opts))
	return cmd
}
