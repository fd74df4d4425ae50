package collectors

import (
	"context"

	"github.com/privaudit/privaudit/internal/assignment"
)

// The compliance, collaboration and security services grant privilege
// through Azure AD directory roles scoped to their workloads. Each
// collector filters the directory view down to its own role family so
// the report can attribute the authority to the service it lands in.

// PurviewCollector reports compliance and information-governance roles.
type PurviewCollector struct{}

func (c *PurviewCollector) Kind() string { return "purview" }

func (c *PurviewCollector) Service() assignment.Service { return assignment.ServicePurview }

func (c *PurviewCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	match := nameContainsAny("compliance", "information protection", "ediscovery", "records management")
	return collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
}

// TeamsCollector reports Teams administration roles.
type TeamsCollector struct{}

func (c *TeamsCollector) Kind() string { return "teams" }

func (c *TeamsCollector) Service() assignment.Service { return assignment.ServiceTeams }

func (c *TeamsCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	match := nameContainsAny("teams")
	return collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
}

// DefenderCollector reports security-portal roles.
type DefenderCollector struct{}

func (c *DefenderCollector) Kind() string { return "defender" }

func (c *DefenderCollector) Service() assignment.Service { return assignment.ServiceDefender }

func (c *DefenderCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	match := nameContainsAny("security administrator", "security operator", "security reader", "defender")
	return collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
}

// PowerPlatformCollector reports Power Platform, Dynamics 365 and Fabric
// administration roles. Service principals holding these roles are kept
// as-is; reporting surfaces them as a compliance gap.
type PowerPlatformCollector struct{}

func (c *PowerPlatformCollector) Kind() string { return "powerplatform" }

func (c *PowerPlatformCollector) Service() assignment.Service { return assignment.ServicePowerPlatform }

func (c *PowerPlatformCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	match := nameContainsAny("power platform", "dynamics 365", "power bi", "fabric administrator")
	return collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
}
