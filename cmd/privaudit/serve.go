package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/privaudit/privaudit/internal/audit"
	"github.com/privaudit/privaudit/internal/config"
	"github.com/privaudit/privaudit/internal/logging"
	"github.com/privaudit/privaudit/internal/metrics"
	"github.com/privaudit/privaudit/internal/report"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Run the report HTTP server and re-audit on an interval.",
	Args:        cobra.NoArgs,
	Annotations: structuredLogging(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.CommandPath())
	},
}

func runServe(commandPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: commandPath})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, opts, auth, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}

	holder := report.NewHolder()
	go auditLoop(ctx, cfg, logger, runner, opts, auth, holder)

	_, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)

	srv := report.NewServer(holder)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("report server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-metricsErrCh:
		return err
	}
}

// auditLoop runs one audit immediately, then again every AuditInterval.
// A failed run keeps the previous report served; serve never exits on
// audit errors.
func auditLoop(ctx context.Context, cfg config.Config, logger *slog.Logger, runner *audit.Runner, opts audit.Options, auth audit.AuthContext, holder *report.Holder) {
	runOnce := func() {
		result, err := runner.Run(ctx, auth, opts)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("scheduled audit failed", "error", err)
			}
			return
		}
		holder.Set(result.Report)
		if err := report.WriteFile(cfg.OutputPath, result.Report); err != nil {
			logger.Error("report write failed", "path", cfg.OutputPath, "error", err)
		}
	}

	runOnce()

	ticker := time.NewTicker(cfg.AuditInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
