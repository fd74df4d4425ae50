// Package assignment defines the canonical role-assignment record that every
// service collector normalizes into, plus the shared classification helpers
// used by deduplication, statistics and reporting.
package assignment

import (
	"strings"
	"time"
)

// Service identifies the Microsoft 365 service a record was collected from.
type Service string

const (
	ServiceAzureAD       Service = "Azure AD/Entra ID"
	ServiceIntune        Service = "Microsoft Intune"
	ServiceSharePoint    Service = "SharePoint Online"
	ServiceExchange      Service = "Exchange Online"
	ServicePurview       Service = "Microsoft Purview"
	ServiceTeams         Service = "Microsoft Teams"
	ServiceDefender      Service = "Microsoft Defender"
	ServicePowerPlatform Service = "Power Platform"
)

// serviceRanks orders services by how authoritative their view of a role
// assignment is. Azure AD is the source of truth for directory roles; the
// further a service is from the directory, the lower it ranks.
var serviceRanks = map[Service]int{
	ServiceAzureAD:       10,
	ServiceIntune:        9,
	ServiceSharePoint:    8,
	ServiceExchange:      7,
	ServicePurview:       6,
	ServiceTeams:         5,
	ServiceDefender:      4,
	ServicePowerPlatform: 3,
}

// Rank returns the service-authority rank used by service-preference
// deduplication. Unlisted services rank 1.
func (s Service) Rank() int {
	if r, ok := serviceRanks[s]; ok {
		return r
	}
	return 1
}

// AllServices lists every supported service in collection order.
func AllServices() []Service {
	return []Service{
		ServiceAzureAD,
		ServiceSharePoint,
		ServiceExchange,
		ServicePurview,
		ServiceTeams,
		ServiceDefender,
		ServiceIntune,
		ServicePowerPlatform,
	}
}

// RoleScope says whether a role's authority spans beyond the reporting
// service or is confined to it.
type RoleScope string

const (
	ScopeOverarching     RoleScope = "Overarching"
	ScopeServiceSpecific RoleScope = "Service-Specific"
)

// PrincipalType is the directory object type behind an assignment.
type PrincipalType string

const (
	PrincipalUser             PrincipalType = "User"
	PrincipalGroup            PrincipalType = "Group"
	PrincipalServicePrincipal PrincipalType = "ServicePrincipal"
	PrincipalUnknown          PrincipalType = "Unknown"
)

// Assignment type values shared across collectors.
const (
	TypeActive          = "Active"
	TypeEligiblePIM     = "Eligible (PIM)"
	TypeActivePIM       = "Active (PIM)"
	TypeRoleGroupMember = "Role Group Member"
	TypeAzureADRole     = "Azure AD Role"
	TypeIntuneRBAC      = "Intune RBAC"
	TypeTimeBoundRBAC   = "Time-bound RBAC"
	TypeError           = "Error"
)

// Placeholder principal names emitted when resolution could not produce a
// real user principal name.
const (
	UnknownPrincipal = "Unknown"
	SystemGenerated  = "System Generated"
)

// Record is one observed grant of a role to a principal in one service.
// Pointer fields are nullable: nil means the source could not supply the
// value, which is distinct from a zero value.
type Record struct {
	Service           Service       `json:"service"`
	UserPrincipalName string        `json:"userPrincipalName"`
	DisplayName       string        `json:"displayName"`
	PrincipalID       string        `json:"principalId,omitempty"`
	RoleName          string        `json:"roleName"`
	RoleScope         RoleScope     `json:"roleScope"`
	AssignmentType    string        `json:"assignmentType"`
	AssignedDateTime  *time.Time    `json:"assignedDateTime,omitempty"`
	UserEnabled       *bool         `json:"userEnabled,omitempty"`
	PrincipalType     PrincipalType `json:"principalType"`

	OnPremisesSyncEnabled *bool      `json:"onPremisesSyncEnabled,omitempty"`
	PIMStartDateTime      *time.Time `json:"pimStartDateTime,omitempty"`
	PIMEndDateTime        *time.Time `json:"pimEndDateTime,omitempty"`

	// Service-specific extras; zero values mean not applicable.
	GroupMemberCount     *int     `json:"groupMemberCount,omitempty"`
	RoleGroupDescription string   `json:"roleGroupDescription,omitempty"`
	OrganizationalUnit   string   `json:"organizationalUnit,omitempty"`
	ManagementScope      string   `json:"managementScope,omitempty"`
	RecipientType        string   `json:"recipientType,omitempty"`
	SiteTitle            string   `json:"siteTitle,omitempty"`
	StorageUsedMB        *float64 `json:"storageUsedMB,omitempty"`
	Template             string   `json:"template,omitempty"`
	RoleType             string   `json:"roleType,omitempty"`
	IsBuiltIn            *bool    `json:"isBuiltIn,omitempty"`
}

// overarchingRoles is the fixed set of role names whose authority spans
// services regardless of which service reported them.
var overarchingRoles = map[string]struct{}{
	"global administrator":                    {},
	"company administrator":                   {},
	"global reader":                           {},
	"security administrator":                  {},
	"security reader":                         {},
	"cloud application administrator":         {},
	"application administrator":               {},
	"privileged authentication administrator": {},
	"privileged role administrator":           {},
	"conditional access administrator":        {},
	"hybrid identity administrator":           {},
	"partner tier2 support":                   {},
	"directory writers":                       {},
}

// IsOverarchingRole reports whether the role name is on the fixed
// tenant-wide list. Matching is case-insensitive on the trimmed name.
func IsOverarchingRole(roleName string) bool {
	_, ok := overarchingRoles[strings.ToLower(strings.TrimSpace(roleName))]
	return ok
}

// ScopeForRole maps a role name to its scope annotation.
func ScopeForRole(roleName string) RoleScope {
	if IsOverarchingRole(roleName) {
		return ScopeOverarching
	}
	return ScopeServiceSpecific
}

// IsPIMEligible reports whether an assignment type describes a PIM-eligible
// (not yet activated) grant.
func IsPIMEligible(assignmentType string) bool {
	return strings.Contains(assignmentType, "Eligible")
}

// IsPIMActive reports whether an assignment type describes a PIM-activated
// grant, e.g. "Active (PIM)" or "Active (PIM, expires ...)".
func IsPIMActive(assignmentType string) bool {
	return strings.HasPrefix(assignmentType, "Active (PIM")
}

// IsPermanent reports whether an assignment type describes a standing grant
// with no activation step.
func IsPermanent(assignmentType string) bool {
	switch assignmentType {
	case TypeActive, TypeAzureADRole, TypeIntuneRBAC, TypeRoleGroupMember:
		return true
	}
	return false
}

// HasUsableUPN reports whether the record's principal name identifies a real
// principal rather than a resolution placeholder.
func HasUsableUPN(r Record) bool {
	upn := strings.TrimSpace(r.UserPrincipalName)
	return upn != "" && upn != UnknownPrincipal
}
