package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/audit"
	"github.com/privaudit/privaudit/internal/collectors"
	"github.com/privaudit/privaudit/internal/config"
	"github.com/privaudit/privaudit/internal/dedupe"
	"github.com/privaudit/privaudit/internal/graph"
	"github.com/privaudit/privaudit/internal/identity"
	"github.com/privaudit/privaudit/internal/logging"
	"github.com/privaudit/privaudit/internal/report"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:         "audit",
	Short:       "Run a one-off privileged-role audit and write the report JSON.",
	Args:        cobra.NoArgs,
	Annotations: structuredLogging(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit(cmd.CommandPath())
	},
}

func runAudit(commandPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: commandPath})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner, opts, auth, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}

	result, runErr := runner.Run(ctx, auth, opts)
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return &exitError{code: 130, err: runErr, silent: true}
		}
		return &exitError{code: 1, err: runErr, silent: false}
	}

	if err := report.WriteFile(cfg.OutputPath, result.Report); err != nil {
		return err
	}
	logger.Info("report written", "path", cfg.OutputPath)

	report.PrintSummary(os.Stdout, result.Report, result.PartialSummary())
	return nil
}

// buildRunner wires the Graph client, principal resolver, and collector
// registry into an audit runner. Shared by the audit and serve commands.
func buildRunner(cfg config.Config, logger *slog.Logger) (*audit.Runner, audit.Options, audit.AuthContext, error) {
	client, err := graph.NewWithOptions(graph.Credentials{
		TenantID:        cfg.TenantID,
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		CertificatePath: cfg.CertificatePath,
	}, graph.Options{
		GraphBaseURL:     cfg.GraphBaseURL,
		AuthorityBaseURL: cfg.AuthorityBaseURL,
	})
	if err != nil {
		return nil, audit.Options{}, audit.AuthContext{}, err
	}

	reg := collectors.Default()

	services, err := servicesForKinds(reg, cfg.Services)
	if err != nil {
		return nil, audit.Options{}, audit.AuthContext{}, err
	}

	mode, err := dedupe.ParseMode(cfg.DedupMode)
	if err != nil {
		return nil, audit.Options{}, audit.AuthContext{}, err
	}

	deps := collectors.Deps{
		Graph:              client,
		Resolver:           identity.NewResolver(client),
		SharePoint:         sharePointLister(cfg, logger),
		Logger:             logger,
		IncludeOverarching: cfg.IncludeOverarching,
	}

	opts := audit.Options{
		Services:           services,
		Dedup:              dedupe.Options{Mode: mode, PreferAzureADSource: cfg.PreferAzureAD},
		Detailed:           cfg.DetailedStats,
		IncludeOverarching: cfg.IncludeOverarching,
		Workers:            cfg.Workers,
		AuditVersion:       version,
	}

	auth := audit.AuthContext{
		TenantID:         cfg.TenantID,
		ClientID:         cfg.ClientID,
		OrganizationName: cfg.OrganizationName,
		AuthType:         cfg.AuthType(),
	}

	return audit.NewRunner(reg, deps, logger), opts, auth, nil
}

// sharePointLister builds the SharePoint REST client when an admin site
// is configured. REST access is optional; the SharePoint collector still
// reports directory roles without it.
func sharePointLister(cfg config.Config, logger *slog.Logger) collectors.SharePointLister {
	if cfg.SharePointAdminURL == "" {
		return nil
	}
	sp, err := collectors.NewSharePointClient(collectors.SharePointConfig{
		SiteURL:         cfg.SharePointAdminURL,
		TenantID:        cfg.TenantID,
		ClientID:        cfg.ClientID,
		CertificatePath: cfg.CertificatePath,
		CertificatePass: cfg.CertificatePass,
	})
	if err != nil {
		logger.Warn("sharepoint rest disabled", "error", err)
		return nil
	}
	return sp
}

func servicesForKinds(reg *collectors.Registry, kinds []string) ([]assignment.Service, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	services := make([]assignment.Service, 0, len(kinds))
	for _, kind := range kinds {
		c, ok := reg.Get(kind)
		if !ok {
			return nil, fmt.Errorf("unknown service %q (known: %s)", kind, strings.Join(registeredKinds(reg), ", "))
		}
		services = append(services, c.Service())
	}
	return services, nil
}

func registeredKinds(reg *collectors.Registry) []string {
	all := reg.All()
	kinds := make([]string, 0, len(all))
	for _, c := range all {
		kinds = append(kinds, c.Kind())
	}
	return kinds
}
