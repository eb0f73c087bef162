// Package cli file: internal/cli/translate.go
package cli

import (
	"encoding/json"
	"strings"

	"QueryAegis/internal/core/filter"

	"github.com/spf13/cobra"
)

// NewTranslateCommand 创建 translate 命令：预览过滤条件在某个后端上的原生形式。
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "translate <filters-json>",
		Short: "Translate a filter mapping into a backend's native query",
		Long: `Translate a filter mapping such as '{"age__gte": 18, "name__contains": "al"}'
into the native representation of one backend.

Supported backends: ` + strings.Join(filter.PreviewBackends, ", ") + `.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m filter.Mapping
			if err := json.Unmarshal([]byte(args[0]), &m); err != nil {
				return &ExitError{Code: ExitCommandError, Message: "filters must be a JSON object", Err: err}
			}
			out, err := filter.Preview(backend, m)
			if err != nil {
				return &ExitError{Code: ExitFailure, Message: "translation failed", Err: err}
			}
			return write(cmd.OutOrStdout(), rootOpts.Output, out)
		},
	}
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "target backend")
	_ = cmd.MarkFlagRequired("backend")
	return cmd
}
