package collectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
)

// AzureADCollector reports every directory role assignment: permanent
// assignments, PIM-eligible grants and activated PIM grants. PIM data is
// optional; tenants without the entitlement still get the permanent view.
type AzureADCollector struct{}

func (c *AzureADCollector) Kind() string { return "azuread" }

func (c *AzureADCollector) Service() assignment.Service { return assignment.ServiceAzureAD }

func (c *AzureADCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	defs, err := deps.Graph.ListRoleDefinitions(ctx, graph.ProviderDirectory)
	if err != nil {
		return nil, fmt.Errorf("list directory role definitions: %w", err)
	}
	roleNames := roleNameIndex(defs)

	assignments, err := deps.Graph.ListRoleAssignments(ctx, graph.ProviderDirectory)
	if err != nil {
		return nil, fmt.Errorf("list directory role assignments: %w", err)
	}

	// activeKey collapses the overlapping standing views: a permanent
	// assignment and an activated PIM grant for the same principal, role
	// and scope are one grant, and the PIM view is the more precise one.
	type activeEntry struct {
		record   assignment.Record
		priority int
	}
	active := make(map[string]*activeEntry)
	var activeOrder []string
	putActive := func(key string, rec assignment.Record, priority int) {
		if existing, ok := active[key]; ok {
			if priority > existing.priority {
				existing.record = rec
				existing.priority = priority
			}
			return
		}
		active[key] = &activeEntry{record: rec, priority: priority}
		activeOrder = append(activeOrder, key)
	}

	var principalIDs []string
	for _, ra := range assignments {
		principalIDs = append(principalIDs, ra.PrincipalID)
	}

	eligible, err := deps.Graph.ListRoleEligibilityScheduleInstances(ctx)
	if err != nil {
		deps.logger().Warn("pim eligibility data unavailable", "collector", c.Kind(), "error", err)
		eligible = nil
	}
	scheduled, err := deps.Graph.ListRoleAssignmentScheduleInstances(ctx)
	if err != nil {
		deps.logger().Warn("pim assignment schedule data unavailable", "collector", c.Kind(), "error", err)
		scheduled = nil
	}
	for _, inst := range eligible {
		principalIDs = append(principalIDs, inst.PrincipalID)
	}
	for _, inst := range scheduled {
		principalIDs = append(principalIDs, inst.PrincipalID)
	}

	principals, err := deps.Resolver.Resolve(ctx, principalIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve principals: %w", err)
	}

	for _, ra := range assignments {
		roleName, ok := roleNames[ra.RoleDefinitionID]
		if !ok {
			continue
		}
		p := principalOrPlaceholder(principals, ra.PrincipalID)
		rec := recordForPrincipal(c.Service(), p, roleName, assignment.TypeActive)
		putActive(activeKey(ra.PrincipalID, ra.RoleDefinitionID, ra.DirectoryScopeID), rec, 0)
	}

	for _, inst := range scheduled {
		roleName, ok := roleNames[inst.RoleDefinitionID]
		if !ok {
			continue
		}
		p := principalOrPlaceholder(principals, inst.PrincipalID)

		assignmentType := ""
		priority := 0
		switch {
		case strings.EqualFold(inst.AssignmentType, "Activated"):
			assignmentType = assignment.TypeActivePIM
			priority = 2
		case strings.TrimSpace(inst.EndDateTime) != "":
			assignmentType = assignment.TypeTimeBoundRBAC
			priority = 1
		default:
			// A permanent "Assigned" instance mirrors the role
			// assignment list entry already captured above.
			continue
		}

		rec := recordForPrincipal(c.Service(), p, roleName, assignmentType)
		rec.PIMStartDateTime = parseGraphTime(inst.StartDateTime)
		rec.PIMEndDateTime = parseGraphTime(inst.EndDateTime)
		rec.AssignedDateTime = rec.PIMStartDateTime
		putActive(activeKey(inst.PrincipalID, inst.RoleDefinitionID, inst.DirectoryScopeID), rec, priority)
	}

	records := make([]assignment.Record, 0, len(activeOrder)+len(eligible))
	for _, key := range activeOrder {
		records = append(records, active[key].record)
	}

	for _, inst := range eligible {
		roleName, ok := roleNames[inst.RoleDefinitionID]
		if !ok {
			continue
		}
		p := principalOrPlaceholder(principals, inst.PrincipalID)
		rec := recordForPrincipal(c.Service(), p, roleName, assignment.TypeEligiblePIM)
		rec.PIMStartDateTime = parseGraphTime(inst.StartDateTime)
		rec.PIMEndDateTime = parseGraphTime(inst.EndDateTime)
		rec.AssignedDateTime = rec.PIMStartDateTime
		records = append(records, rec)
	}

	// Annotate group principals with their member count so reporting can
	// flag large groups holding directory roles.
	for i := range records {
		if records[i].PrincipalType != assignment.PrincipalGroup {
			continue
		}
		members, err := deps.Resolver.ExpandGroup(ctx, records[i].PrincipalID)
		if err != nil {
			deps.logger().Warn("group expansion failed", "collector", c.Kind(), "group", records[i].PrincipalID, "error", err)
			continue
		}
		records[i].GroupMemberCount = intPtr(len(members))
	}

	return records, nil
}

func activeKey(principalID, roleDefinitionID, scopeID string) string {
	return strings.ToLower(strings.TrimSpace(principalID)) + "|" +
		strings.ToLower(strings.TrimSpace(roleDefinitionID)) + "|" +
		strings.ToLower(strings.TrimSpace(scopeID))
}
