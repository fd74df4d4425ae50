package collectors

import (
	"context"
	"fmt"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
)

// IntuneCollector reports both privilege surfaces of Intune: the
// deviceManagement RBAC provider and the Azure AD directory roles that
// grant Intune authority. The two views are deliberately kept distinct
// so reporting can flag an imbalance between them.
type IntuneCollector struct{}

func (c *IntuneCollector) Kind() string { return "intune" }

func (c *IntuneCollector) Service() assignment.Service { return assignment.ServiceIntune }

func (c *IntuneCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	records, err := c.collectRBAC(ctx, deps)
	if err != nil {
		return nil, err
	}

	match := nameContainsAny("intune")
	directory, err := collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
	if err != nil {
		return nil, err
	}
	return append(records, directory...), nil
}

func (c *IntuneCollector) collectRBAC(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	defs, err := deps.Graph.ListRoleDefinitions(ctx, graph.ProviderDeviceManagement)
	if err != nil {
		return nil, fmt.Errorf("list deviceManagement role definitions: %w", err)
	}
	roleNames := roleNameIndex(defs)
	roleTypes := make(map[string]string, len(defs))
	for _, def := range defs {
		roleTypes[def.ID] = rbacRoleType(def.IsBuiltIn)
	}
	builtIn := make(map[string]*bool, len(defs))
	for _, def := range defs {
		builtIn[def.ID] = def.IsBuiltIn
	}

	assignments, err := deps.Graph.ListRoleAssignments(ctx, graph.ProviderDeviceManagement)
	if err != nil {
		return nil, fmt.Errorf("list deviceManagement role assignments: %w", err)
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
		p := principalOrPlaceholder(principals, ra.PrincipalID)
		rec := recordForPrincipal(c.Service(), p, roleName, assignment.TypeIntuneRBAC)
		rec.RoleType = roleTypes[ra.RoleDefinitionID]
		rec.IsBuiltIn = builtIn[ra.RoleDefinitionID]
		rec.ManagementScope = managementScope(ra.DirectoryScopeID, ra.AppScopeID)
		records = append(records, rec)
	}
	return records, nil
}

func rbacRoleType(isBuiltIn *bool) string {
	if isBuiltIn == nil {
		return ""
	}
	if *isBuiltIn {
		return "BuiltIn"
	}
	return "Custom"
}
