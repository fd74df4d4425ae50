package collectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
)

// ExchangeCollector reads the Exchange Online RBAC provider. Assignments
// land on role groups, so group principals are expanded to their user
// members and reported as role group memberships.
type ExchangeCollector struct{}

func (c *ExchangeCollector) Kind() string { return "exchange" }

func (c *ExchangeCollector) Service() assignment.Service { return assignment.ServiceExchange }

func (c *ExchangeCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	records, err := collectRBACProvider(ctx, deps, c.Service(), graph.ProviderExchange)
	if err != nil {
		return nil, err
	}

	if deps.IncludeOverarching {
		overarching, err := collectDirectoryRoles(ctx, deps, c.Service(), func(string) bool { return false }, assignment.TypeAzureADRole)
		if err != nil {
			return nil, err
		}
		records = append(records, overarching...)
	}
	return records, nil
}

// collectRBACProvider turns a unified RBAC provider's assignments into
// records. Group principals become one record per expanded user member;
// users and service principals are reported directly.
func collectRBACProvider(ctx context.Context, deps Deps, service assignment.Service, provider graph.RBACProvider) ([]assignment.Record, error) {
	defs, err := deps.Graph.ListRoleDefinitions(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("list %s role definitions: %w", provider, err)
	}
	roleNames := roleNameIndex(defs)
	roleDescriptions := make(map[string]string, len(defs))
	for _, def := range defs {
		roleDescriptions[def.ID] = strings.TrimSpace(def.Description)
	}

	assignments, err := deps.Graph.ListRoleAssignments(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("list %s role assignments: %w", provider, err)
	}

	var principalIDs []string
	for _, ra := range assignments {
		principalIDs = append(principalIDs, ra.PrincipalID)
	}
	principals, err := deps.Resolver.Resolve(ctx, principalIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve principals: %w", err)
	}

	var records []assignment.Record
	for _, ra := range assignments {
		roleName, ok := roleNames[ra.RoleDefinitionID]
		if !ok {
			continue
		}
		description := roleDescriptions[ra.RoleDefinitionID]
		scope := managementScope(ra.DirectoryScopeID, ra.AppScopeID)

		p := principalOrPlaceholder(principals, ra.PrincipalID)
		if p.Type == assignment.PrincipalGroup {
			members, err := deps.Resolver.ExpandGroup(ctx, p.ID)
			if err != nil {
				deps.logger().Warn("role group expansion failed", "service", service, "group", p.ID, "error", err)
			}
			memberCount := intPtr(len(members))
			for _, member := range members {
				rec := recordForPrincipal(service, member, roleName, assignment.TypeRoleGroupMember)
				rec.RoleGroupDescription = description
				rec.ManagementScope = scope
				rec.GroupMemberCount = memberCount
				records = append(records, rec)
			}
			if len(members) > 0 {
				continue
			}
			// Empty or unexpandable group: keep the group record so
			// the grant itself is not lost.
			rec := recordForPrincipal(service, p, roleName, assignment.TypeRoleGroupMember)
			rec.RoleGroupDescription = description
			rec.ManagementScope = scope
			rec.GroupMemberCount = memberCount
			records = append(records, rec)
			continue
		}

		rec := recordForPrincipal(service, p, roleName, assignment.TypeRoleGroupMember)
		rec.RoleGroupDescription = description
		rec.ManagementScope = scope
		records = append(records, rec)
	}
	return records, nil
}

func managementScope(directoryScopeID, appScopeID string) string {
	if scope := strings.TrimSpace(appScopeID); scope != "" && scope != "/" {
		return scope
	}
	scope := strings.TrimSpace(directoryScopeID)
	if scope == "" || scope == "/" {
		return "Organization"
	}
	return scope
}
