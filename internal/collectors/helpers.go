package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
	"github.com/privaudit/privaudit/internal/identity"
)

// recordForPrincipal builds the base record for a resolved principal.
// Non-user principals get placeholder principal names so downstream
// user statistics do not count them as people.
func recordForPrincipal(service assignment.Service, p identity.Principal, roleName, assignmentType string) assignment.Record {
	rec := assignment.Record{
		Service:           service,
		DisplayName:       p.DisplayName,
		PrincipalID:       p.ID,
		RoleName:          roleName,
		RoleScope:         assignment.ScopeForRole(roleName),
		AssignmentType:    assignmentType,
		UserEnabled:       p.Enabled,
		PrincipalType:     p.Type,
		UserPrincipalName: assignment.UnknownPrincipal,

		OnPremisesSyncEnabled: p.OnPremSynced,
	}

	switch p.Type {
	case assignment.PrincipalUser:
		if upn := strings.TrimSpace(p.UPN); upn != "" {
			rec.UserPrincipalName = upn
		}
	case assignment.PrincipalGroup, assignment.PrincipalServicePrincipal:
		rec.UserPrincipalName = assignment.SystemGenerated
	}

	return rec
}

// rolePredicate decides whether a directory role belongs to a service
// collector's view.
type rolePredicate func(roleName string) bool

func nameContainsAny(substrings ...string) rolePredicate {
	lowered := make([]string, len(substrings))
	for i, s := range substrings {
		lowered[i] = strings.ToLower(s)
	}
	return func(roleName string) bool {
		name := strings.ToLower(roleName)
		for _, s := range lowered {
			if strings.Contains(name, s) {
				return true
			}
		}
		return false
	}
}

// collectDirectoryRoles lists the tenant's directory role assignments and
// keeps the ones whose role matches the predicate, emitting them under
// the given service and assignment type. With IncludeOverarching set,
// tenant-wide roles pass the predicate regardless of their name.
func collectDirectoryRoles(ctx context.Context, deps Deps, service assignment.Service, match rolePredicate, assignmentType string) ([]assignment.Record, error) {
	defs, err := deps.Graph.ListRoleDefinitions(ctx, graph.ProviderDirectory)
	if err != nil {
		return nil, fmt.Errorf("list directory role definitions: %w", err)
	}
	roleNames := roleNameIndex(defs)

	assignments, err := deps.Graph.ListRoleAssignments(ctx, graph.ProviderDirectory)
	if err != nil {
		return nil, fmt.Errorf("list directory role assignments: %w", err)
	}

	type hit struct {
		principalID string
		roleName    string
	}
	var hits []hit
	var principalIDs []string
	for _, ra := range assignments {
		roleName, ok := roleNames[ra.RoleDefinitionID]
		if !ok {
			continue
		}
		if !match(roleName) && !(deps.IncludeOverarching && assignment.IsOverarchingRole(roleName)) {
			continue
		}
		hits = append(hits, hit{principalID: ra.PrincipalID, roleName: roleName})
		principalIDs = append(principalIDs, ra.PrincipalID)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	principals, err := deps.Resolver.Resolve(ctx, principalIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve principals: %w", err)
	}

	records := make([]assignment.Record, 0, len(hits))
	for _, h := range hits {
		p := principalOrPlaceholder(principals, h.principalID)
		records = append(records, recordForPrincipal(service, p, h.roleName, assignmentType))
	}
	return records, nil
}

func roleNameIndex(defs []graph.UnifiedRoleDefinition) map[string]string {
	index := make(map[string]string, len(defs))
	for _, def := range defs {
		name := strings.TrimSpace(def.DisplayName)
		if def.ID == "" || name == "" {
			continue
		}
		index[def.ID] = name
	}
	return index
}

func principalOrPlaceholder(principals map[string]identity.Principal, id string) identity.Principal {
	if p, ok := principals[strings.TrimSpace(id)]; ok {
		return p
	}
	return identity.Principal{
		ID:          strings.TrimSpace(id),
		Type:        assignment.PrincipalUnknown,
		DisplayName: assignment.UnknownPrincipal,
	}
}

func parseGraphTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func intPtr(v int) *int { return &v }
