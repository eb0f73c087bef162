// Package cli file: internal/cli/serve.go
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"QueryAegis/aegconf"
	"QueryAegis/internal/adapter/factory"
	"QueryAegis/internal/aegobserve"
	"QueryAegis/internal/core/domain"
	"QueryAegis/internal/service"
	"QueryAegis/internal/transport/http/router"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand 创建 serve 命令：连接数据库并启动运维 HTTP 服务。
func NewServeCommand(_ *RootOptions) *cobra.Command {
	var (
		configPath string
		envFiles   []string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Connect to the configured database and serve the ops HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath, envFiles, watch)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file (optional)")
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files loaded before reading the environment")
	cmd.Flags().BoolVar(&watch, "watch", true, "reload permissions when the config file changes")
	return cmd
}

func runServe(ctx context.Context, configPath string, envFiles []string, watch bool) error {
	if err := aegconf.LoadDotEnv(envFiles...); err != nil {
		return err
	}
	settings, err := aegconf.Load(configPath)
	if err != nil {
		return err
	}
	levelVar := aegobserve.InitLogger(settings.Server.LogLevel, nil)
	slog.Info("QueryAegis 正在启动...", "version", Version, "database", settings.Database.RedactedURL())

	ds, err := factory.New(settings.Database)
	if err != nil {
		return err
	}
	connectCtx, cancel := context.WithTimeout(ctx, settings.Database.ConnectTimeout)
	err = ds.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}

	policy := aegconf.NewPolicy(settings.Permissions)
	opts := service.Options{Policy: policy}
	if rl := settings.RateLimit; rl.PerSecond > 0 || rl.PerTablePerSecond > 0 {
		opts.RateLimit = &rl
	}
	if settings.Server.MetricsEnabled {
		opts.Metrics = aegobserve.NewMetrics(nil)
	}
	if settings.Audit.Enabled {
		f, err := aegobserve.OpenAuditFile(settings.Audit.Path)
		if err != nil {
			_ = ds.Close()
			return err
		}
		defer closeQuietly(f)
		opts.AuditLogger = aegobserve.NewAuditLogger(f)
		slog.Info("审计日志已开启", "path", settings.Audit.Path)
	}

	svc, err := service.NewDatabaseService(ds, opts)
	if err != nil {
		_ = ds.Close()
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Warn("关闭数据库连接时发生错误", "error", err)
		}
	}()

	if watch && configPath != "" {
		onReload := func(s domain.Settings) { levelVar.Set(aegobserve.ParseLevel(s.Server.LogLevel)) }
		if err := aegconf.Watch(ctx, configPath, policy, onReload); err != nil {
			slog.Warn("配置热更新未启用", "error", err)
		}
	}
	aegobserve.EnablePprof(ctx, settings.Server.PprofAddr)

	handler := router.New(router.Dependencies{
		Backend:      svc,
		AllowDDL:     settings.Database.AllowDDL,
		Metrics:      opts.Metrics,
		AllowOrigins: settings.Server.CORSOrigins,
	})
	server := &http.Server{
		Addr:              settings.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("QueryAegis 启动成功，开始监听HTTP请求...", "address", server.Addr, "backend", svc.Backend())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP服务启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("收到停机信号，准备优雅关闭...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP服务优雅关闭失败: %w", err)
	}
	slog.Info("HTTP服务已成功关闭。")
	return nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("关闭文件失败", "error", err)
	}
}
