package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// RBACProvider names a Graph roleManagement provider segment.
type RBACProvider string

const (
	ProviderDirectory        RBACProvider = "directory"
	ProviderDeviceManagement RBACProvider = "deviceManagement"
	// Exchange RBAC is only exposed on the beta endpoint.
	ProviderExchange RBACProvider = "exchange"
)

type UnifiedRoleDefinition struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	IsBuiltIn   *bool  `json:"isBuiltIn"`
	TemplateID  string `json:"templateId"`
}

type UnifiedRoleAssignment struct {
	ID               string `json:"id"`
	PrincipalID      string `json:"principalId"`
	RoleDefinitionID string `json:"roleDefinitionId"`
	DirectoryScopeID string `json:"directoryScopeId"`
	AppScopeID       string `json:"appScopeId"`
}

// RoleScheduleInstance is a PIM eligibility or assignment schedule
// instance. AssignmentType is populated only for assignment instances
// ("Assigned" or "Activated").
type RoleScheduleInstance struct {
	ID               string `json:"id"`
	PrincipalID      string `json:"principalId"`
	RoleDefinitionID string `json:"roleDefinitionId"`
	DirectoryScopeID string `json:"directoryScopeId"`
	AssignmentType   string `json:"assignmentType"`
	StartDateTime    string `json:"startDateTime"`
	EndDateTime      string `json:"endDateTime"`
}

func (c *Client) providerBase(provider RBACProvider) string {
	if provider == ProviderExchange {
		return c.graphBetaURL
	}
	return c.graphBaseURL
}

// ListRoleDefinitions returns the role definitions of a roleManagement
// provider, following @odata.nextLink pages.
func (c *Client) ListRoleDefinitions(ctx context.Context, provider RBACProvider) ([]UnifiedRoleDefinition, error) {
	query := url.Values{}
	query.Set("$select", "id,displayName,description,isBuiltIn,templateId")

	endpoint, err := c.graphURL(c.providerBase(provider), fmt.Sprintf("/roleManagement/%s/roleDefinitions", provider), query)
	if err != nil {
		return nil, err
	}
	items, err := c.listPagedRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	out := make([]UnifiedRoleDefinition, 0, len(items))
	for _, raw := range items {
		var def UnifiedRoleDefinition
		if err := json.Unmarshal(raw, &def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// ListRoleAssignments returns the active role assignments of a
// roleManagement provider.
func (c *Client) ListRoleAssignments(ctx context.Context, provider RBACProvider) ([]UnifiedRoleAssignment, error) {
	query := url.Values{}
	query.Set("$select", "id,principalId,roleDefinitionId,directoryScopeId,appScopeId")

	endpoint, err := c.graphURL(c.providerBase(provider), fmt.Sprintf("/roleManagement/%s/roleAssignments", provider), query)
	if err != nil {
		return nil, err
	}
	items, err := c.listPagedRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	out := make([]UnifiedRoleAssignment, 0, len(items))
	for _, raw := range items {
		var ra UnifiedRoleAssignment
		if err := json.Unmarshal(raw, &ra); err != nil {
			return nil, err
		}
		out = append(out, ra)
	}
	return out, nil
}

// ListRoleEligibilityScheduleInstances returns the current PIM eligible
// assignments for directory roles.
func (c *Client) ListRoleEligibilityScheduleInstances(ctx context.Context) ([]RoleScheduleInstance, error) {
	return c.listScheduleInstances(ctx, "roleEligibilityScheduleInstances", "id,principalId,roleDefinitionId,directoryScopeId,startDateTime,endDateTime")
}

// ListRoleAssignmentScheduleInstances returns the current PIM assignment
// schedule instances, including activated eligible assignments.
func (c *Client) ListRoleAssignmentScheduleInstances(ctx context.Context) ([]RoleScheduleInstance, error) {
	return c.listScheduleInstances(ctx, "roleAssignmentScheduleInstances", "id,principalId,roleDefinitionId,directoryScopeId,assignmentType,startDateTime,endDateTime")
}

func (c *Client) listScheduleInstances(ctx context.Context, resource, selectFields string) ([]RoleScheduleInstance, error) {
	query := url.Values{}
	query.Set("$select", selectFields)

	endpoint, err := c.graphURL(c.graphBaseURL, "/roleManagement/directory/"+resource, query)
	if err != nil {
		return nil, err
	}
	items, err := c.listPagedRaw(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	out := make([]RoleScheduleInstance, 0, len(items))
	for _, raw := range items {
		var inst RoleScheduleInstance
		if err := json.Unmarshal(raw, &inst); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
