// Package collectors gathers privileged role assignments from each
// Microsoft 365 service and normalizes them into assignment records.
package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
	"github.com/privaudit/privaudit/internal/identity"
)

// GraphAPI is the slice of the Graph client collectors consume.
type GraphAPI interface {
	ListRoleDefinitions(ctx context.Context, provider graph.RBACProvider) ([]graph.UnifiedRoleDefinition, error)
	ListRoleAssignments(ctx context.Context, provider graph.RBACProvider) ([]graph.UnifiedRoleAssignment, error)
	ListRoleEligibilityScheduleInstances(ctx context.Context) ([]graph.RoleScheduleInstance, error)
	ListRoleAssignmentScheduleInstances(ctx context.Context) ([]graph.RoleScheduleInstance, error)
}

// PrincipalResolver resolves principal ids and expands groups.
type PrincipalResolver interface {
	Resolve(ctx context.Context, ids []string) (map[string]identity.Principal, error)
	ExpandGroup(ctx context.Context, groupID string) ([]identity.Principal, error)
}

// SharePointLister lists site collection administrators. Nil when
// SharePoint REST access is not configured.
type SharePointLister interface {
	ListSiteAdmins(ctx context.Context) ([]SiteAdmin, error)
}

// Deps carries the shared clients a collector pulls from. Collectors
// never share mutable state beyond the resolver's internal cache.
type Deps struct {
	Graph      GraphAPI
	Resolver   PrincipalResolver
	SharePoint SharePointLister
	Logger     *slog.Logger

	// IncludeOverarching makes service collectors also report
	// tenant-wide directory roles that grant authority in their service.
	IncludeOverarching bool
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Collector produces the assignment records of one service.
type Collector interface {
	Kind() string
	Service() assignment.Service
	Collect(ctx context.Context, deps Deps) ([]assignment.Record, error)
}

// Registry is the central registry for all collectors.
type Registry struct {
	collectors map[string]Collector
	order      []string // Display order
}

func NewRegistry() *Registry {
	return &Registry{
		collectors: make(map[string]Collector),
		order:      make([]string, 0),
	}
}

// Register adds a collector to the registry.
func (r *Registry) Register(c Collector) error {
	kind := strings.ToLower(strings.TrimSpace(c.Kind()))
	if kind == "" {
		return fmt.Errorf("collector kind cannot be empty")
	}
	if _, exists := r.collectors[kind]; exists {
		return fmt.Errorf("collector kind %q already registered", kind)
	}
	r.collectors[kind] = c
	r.order = append(r.order, kind)
	return nil
}

// Get retrieves a collector by kind.
func (r *Registry) Get(kind string) (Collector, bool) {
	c, ok := r.collectors[strings.ToLower(strings.TrimSpace(kind))]
	return c, ok
}

// All returns all registered collectors in order.
func (r *Registry) All() []Collector {
	out := make([]Collector, 0, len(r.order))
	for _, kind := range r.order {
		out = append(out, r.collectors[kind])
	}
	return out
}

// ForServices filters the registry down to the requested services. An
// empty request selects every registered collector.
func (r *Registry) ForServices(services []assignment.Service) []Collector {
	if len(services) == 0 {
		return r.All()
	}
	want := make(map[assignment.Service]struct{}, len(services))
	for _, s := range services {
		want[s] = struct{}{}
	}
	out := make([]Collector, 0, len(services))
	for _, kind := range r.order {
		c := r.collectors[kind]
		if _, ok := want[c.Service()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Default returns a registry with every service collector registered.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range []Collector{
		&AzureADCollector{},
		&SharePointCollector{},
		&ExchangeCollector{},
		&PurviewCollector{},
		&TeamsCollector{},
		&DefenderCollector{},
		&IntuneCollector{},
		&PowerPlatformCollector{},
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}
