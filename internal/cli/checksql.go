// Package cli file: internal/cli/checksql.go
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"QueryAegis/internal/core/guard"

	"github.com/spf13/cobra"
)

// NewCheckSQLCommand 创建 check-sql 命令：对一条语句做静态安全检查，不连接数据库。
func NewCheckSQLCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		params   []string
		allowDDL bool
	)
	cmd := &cobra.Command{
		Use:   "check-sql <statement>",
		Short: "Check a raw SQL statement without executing it",
		Long: `Run the SQL safety checker against a statement.

Parameters are given as --param name=value; values are parsed as JSON when possible
and fall back to plain strings. Exit code 1 means the statement was rejected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bound map[string]any
			if cmd.Flags().Changed("param") {
				var err error
				if bound, err = parseParams(params); err != nil {
					return &ExitError{Code: ExitCommandError, Message: "invalid --param", Err: err}
				}
			}
			verdict := guard.CheckSQL(args[0], bound, allowDDL)
			if err := write(cmd.OutOrStdout(), rootOpts.Output, verdict); err != nil {
				return err
			}
			if !verdict.IsSafe {
				return &ExitError{Code: ExitFailure, Message: verdict.Reason}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "named parameter (name=value), repeatable")
	cmd.Flags().BoolVar(&allowDDL, "allow-ddl", false, "allow schema-changing statements")
	return cmd
}

func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[name] = v
	}
	return out, nil
}
