// Package cli file: internal/cli/capabilities.go
package cli

import (
	"QueryAegis/internal/adapter/factory"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/core/port"
	"QueryAegis/internal/service"

	"github.com/spf13/cobra"
)

// NewCapabilitiesCommand 创建 capabilities 命令：按连接串报告后端类型与能力，不建立连接。
func NewCapabilitiesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		rawURL  string
		backend string
	)
	cmd := &cobra.Command{
		Use:           "capabilities",
		Short:         "Show the adapter type and capabilities for a connection string",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := domain.NewDatabaseConfig(rawURL)
			cfg.Backend = backend
			ds, err := factory.New(cfg)
			if err != nil {
				return &ExitError{Code: ExitCommandError, Message: "unsupported connection string", Err: err}
			}
			defer ds.Close()

			svc, err := service.NewDatabaseService(ds, service.Options{Policy: port.StaticPolicy{}})
			if err != nil {
				return err
			}
			caps, err := svc.Capabilities(cmd.Context())
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), rootOpts.Output, map[string]any{
				"backend":      svc.Backend(),
				"capabilities": caps,
			})
		},
	}
	cmd.Flags().StringVar(&rawURL, "url", "", "database connection string")
	cmd.Flags().StringVar(&backend, "backend", "", "explicit backend (opensearch, postgrest, ...)")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}
