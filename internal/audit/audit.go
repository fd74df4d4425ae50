// Package audit orchestrates a full privileged-role audit: parallel
// collection across the service collectors, deduplication, statistics
// aggregation and report building.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/privaudit/privaudit/internal/analysis"
	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/collectors"
	"github.com/privaudit/privaudit/internal/dedupe"
	"github.com/privaudit/privaudit/internal/metrics"
	"github.com/privaudit/privaudit/internal/stats"
)

const defaultWorkers = 4

// AuthContext describes how the run authenticated. It is a value type
// passed down the pipeline; nothing mutates it after construction.
type AuthContext struct {
	TenantID         string
	ClientID         string
	OrganizationName string
	AuthType         string
}

// CertificateAuthUsed reports whether the run authenticated with a
// certificate rather than a client secret.
func (a AuthContext) CertificateAuthUsed() bool {
	return a.AuthType == analysis.AuthCertificate
}

type Options struct {
	Services           []assignment.Service
	Dedup              dedupe.Options
	Detailed           bool
	IncludeOverarching bool
	Workers            int
	AuditVersion       string
}

// Result is the full outcome of one audit run.
type Result struct {
	Report   analysis.Report
	Records  []assignment.Record
	Removed  []dedupe.Removed
	Snapshot stats.Snapshot

	ServicesRequested int
	ServicesReturned  int
	CollectionErrors  []string
}

// PartialSummary renders the collection outcome, e.g.
// "6 of 8 services returned data".
func (r Result) PartialSummary() string {
	return fmt.Sprintf("%d of %d services returned data", r.ServicesReturned, r.ServicesRequested)
}

type Runner struct {
	registry *collectors.Registry
	deps     collectors.Deps
	logger   *slog.Logger
}

func NewRunner(reg *collectors.Registry, deps collectors.Deps, logger *slog.Logger) *Runner {
	if reg == nil {
		reg = collectors.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Runner{registry: reg, deps: deps, logger: logger}
}

// Run executes the audit. Collector failures do not fail the run: the
// failing service contributes an error marker record and the report
// carries the partial-success counts. Run errors only on invalid call
// contracts, e.g. an unknown deduplication mode.
func (r *Runner) Run(ctx context.Context, auth AuthContext, opts Options) (Result, error) {
	start := time.Now()
	selected := r.registry.ForServices(opts.Services)

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	type outcome struct {
		collector collectors.Collector
		records   []assignment.Record
		err       error
	}

	var (
		g, gctx  = errgroup.WithContext(ctx)
		mu       sync.Mutex
		outcomes = make([]outcome, 0, len(selected))
	)
	g.SetLimit(workers)

	for _, c := range selected {
		g.Go(func() error {
			kind := c.Kind()
			service := string(c.Service())
			collectStart := time.Now()

			records, err := c.Collect(gctx, r.deps)
			metrics.CollectDuration.WithLabelValues(kind, service).Observe(time.Since(collectStart).Seconds())

			status := "success"
			if err != nil {
				status = "failure"
				r.logger.Error("collection failed", "collector", kind, "service", service, "err", err)
			} else {
				metrics.CollectedRecords.WithLabelValues(kind, service).Set(float64(len(records)))
				r.logger.Info("collection finished", "collector", kind, "service", service, "records", len(records))
			}
			metrics.CollectRunsTotal.WithLabelValues(kind, service, status).Inc()

			mu.Lock()
			outcomes = append(outcomes, outcome{collector: c, records: records, err: err})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	// Deterministic order regardless of collector completion order.
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].collector.Kind() < outcomes[j].collector.Kind()
	})

	var (
		collected        []assignment.Record
		collectionErrors []string
		returned         int
	)
	for _, o := range outcomes {
		if o.err != nil {
			collectionErrors = append(collectionErrors, fmt.Sprintf("%s: %v", o.collector.Service(), o.err))
			collected = append(collected, errorRecord(o.collector.Service(), o.err))
			continue
		}
		if len(o.records) > 0 {
			returned++
		}
		collected = append(collected, o.records...)
	}

	kept, removed, err := dedupe.Deduplicate(collected, opts.Dedup)
	if err != nil {
		metrics.AuditRunsTotal.WithLabelValues("failure").Inc()
		return Result{}, err
	}
	metrics.DuplicatesRemoved.WithLabelValues(string(opts.Dedup.Mode)).Set(float64(len(removed)))

	snap := stats.Aggregate(kept, opts.Detailed)
	metrics.UniquePrivilegedUsers.Set(float64(snap.UniqueUsers))

	meta := analysis.OrganizationMetadata{
		OrganizationName:     auth.OrganizationName,
		AuditVersion:         opts.AuditVersion,
		AuthTypes:            map[string]int{auth.AuthType: len(selected) - len(collectionErrors)},
		AuthenticationType:   auth.AuthType,
		ServicesRequested:    len(selected),
		ServicesReturned:     returned,
		CollectionErrors:     collectionErrors,
		ExchangeDataEnhanced: hasEnhancedExchangeData(kept),
	}
	report := analysis.BuildReport(snap, kept, removed, meta)

	metrics.AuditDuration.Observe(time.Since(start).Seconds())
	metrics.AuditRunsTotal.WithLabelValues("success").Inc()
	metrics.AuditLastSuccessTimestamp.Set(float64(time.Now().Unix()))

	result := Result{
		Report:            report,
		Records:           kept,
		Removed:           removed,
		Snapshot:          snap,
		ServicesRequested: len(selected),
		ServicesReturned:  returned,
		CollectionErrors:  collectionErrors,
	}
	r.logger.Info("audit finished",
		"records", len(kept),
		"duplicates_removed", len(removed),
		"unique_users", snap.UniqueUsers,
		"services", result.PartialSummary(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// errorRecord marks a failed service in the assignment list itself, so
// the report shows the gap instead of silently under-reporting.
func errorRecord(service assignment.Service, err error) assignment.Record {
	return assignment.Record{
		Service:           service,
		UserPrincipalName: assignment.SystemGenerated,
		DisplayName:       fmt.Sprintf("Collection failed: %v", err),
		RoleName:          "Collection Error",
		RoleScope:         assignment.ScopeServiceSpecific,
		AssignmentType:    assignment.TypeError,
		PrincipalType:     assignment.PrincipalUnknown,
	}
}

func hasEnhancedExchangeData(records []assignment.Record) bool {
	for _, rec := range records {
		if rec.Service != assignment.ServiceExchange {
			continue
		}
		if rec.RoleGroupDescription != "" || rec.ManagementScope != "" || rec.RecipientType != "" {
			return true
		}
	}
	return false
}
