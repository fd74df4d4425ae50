// Package analysis turns a statistics snapshot into security alerts,
// compliance findings and the final audit report payload. Everything here is
// a pure transformation: no I/O, no external calls, and an empty input set
// produces a valid all-zero report.
package analysis

import (
	"time"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/dedupe"
	"github.com/privaudit/privaudit/internal/stats"
)

// Auth type labels as reported by the orchestration layer.
const (
	AuthCertificate  = "Certificate"
	AuthClientSecret = "ClientSecret"
)

// OrganizationMetadata is supplied by the calling orchestration layer, not
// computed here.
type OrganizationMetadata struct {
	OrganizationName string
	AuditVersion     string
	// AuthTypes is the distribution of authentication methods used during
	// collection, e.g. {"Certificate": 6, "ClientSecret": 2}.
	AuthTypes map[string]int
	// AuthenticationType stamps formatted assignments with the method the
	// run used overall.
	AuthenticationType string
	// ServicesRequested / ServicesReturned support partial-success
	// reporting ("4 of 8 services returned data").
	ServicesRequested int
	ServicesReturned  int
	CollectionErrors  []string
	// ExchangeDataEnhanced marks runs where the Exchange collector returned
	// its extended role-group attributes.
	ExchangeDataEnhanced bool
	GeneratedAt          time.Time
}

// ReportMetadata is the report header block.
type ReportMetadata struct {
	OrganizationName          string `json:"organizationName"`
	GeneratedDate             string `json:"generatedDate"`
	AuditVersion              string `json:"auditVersion"`
	ReportType                string `json:"reportType"`
	TotalAssignments          int    `json:"totalAssignments"`
	UniqueUsers               int    `json:"uniqueUsers"`
	ServicesAudited           int    `json:"servicesAudited"`
	ServicesRequested         int    `json:"servicesRequested,omitempty"`
	CertificateAuthUsed       bool   `json:"certificateAuthUsed"`
	PIMEnabled                bool   `json:"pimEnabled"`
	HybridEnvironmentDetected bool   `json:"hybridEnvironmentDetected"`
	ExchangeDataEnhanced      bool   `json:"exchangeDataEnhanced"`
}

// ServiceBreakdownEntry is one service's share of the deduplicated set.
type ServiceBreakdownEntry struct {
	Service    string  `json:"service"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AssignmentTypeEntry is one assignment mechanism's share of the set.
type AssignmentTypeEntry struct {
	Type       string  `json:"type"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ReportSummary is the headline rollup.
type ReportSummary struct {
	ServiceBreakdown   []ServiceBreakdownEntry `json:"serviceBreakdown"`
	TopRoles           []stats.RoleUsage       `json:"topRoles"`
	UsersWithMostRoles []stats.UserRoles       `json:"usersWithMostRoles"`
	AssignmentTypes    []AssignmentTypeEntry   `json:"assignmentTypes"`
}

// ExchangeSecurityAlerts is the optional Exchange-specific nested block.
type ExchangeSecurityAlerts struct {
	OrganizationManagementMembers int      `json:"organizationManagementMembers"`
	Alerts                        []string `json:"alerts"`
}

// SecurityAlerts groups alert strings by severity with supporting counts.
type SecurityAlerts struct {
	Critical []string `json:"critical"`
	High     []string `json:"high"`
	Medium   []string `json:"medium"`
	Low      []string `json:"low"`

	GlobalAdminCount       int `json:"globalAdminCount"`
	DisabledUsersWithRoles int `json:"disabledUsersWithRoles"`
	CertificateBasedAuth   int `json:"certificateBasedAuth"`
	ClientSecretAuth       int `json:"clientSecretAuth"`

	ExchangeSecurityAlerts *ExchangeSecurityAlerts `json:"exchangeSecurityAlerts,omitempty"`
}

// ComplianceRule is one binary compliant/non-compliant check with its
// observed value and threshold.
type ComplianceRule struct {
	Compliant bool `json:"compliant"`
	Current   int  `json:"current"`
	Threshold int  `json:"threshold"`
}

// ComplianceAnalysis holds the per-rule triples.
type ComplianceAnalysis struct {
	GlobalAdminLimit        ComplianceRule `json:"globalAdminLimit"`
	DisabledAccountHygiene  ComplianceRule `json:"disabledAccountHygiene"`
	PIMAdoption             ComplianceRule `json:"pimAdoption"`
	CertificateAuth         ComplianceRule `json:"certificateAuth"`
	IntuneAdminLimit        ComplianceRule `json:"intuneAdminLimit"`
	PowerPlatformAdminLimit ComplianceRule `json:"powerPlatformAdminLimit"`
	OrganizationManagement  ComplianceRule `json:"organizationManagement"`
}

// Gap is a compliance-gap finding. Immutable once created.
type Gap struct {
	Category       string               `json:"category"`
	Issue          string               `json:"issue"`
	Details        string               `json:"details"`
	Severity       assignment.RiskLevel `json:"severity"`
	Recommendation string               `json:"recommendation"`
	AffectedUsers  []string             `json:"affectedUsers,omitempty"`
	Frameworks     []string             `json:"frameworks,omitempty"`
	Remediation    []string             `json:"remediation,omitempty"`
}

// ServiceAnalysis is the per-service report section.
type ServiceAnalysis struct {
	Service         string            `json:"service"`
	AssignmentCount int               `json:"assignmentCount"`
	UniqueUsers     int               `json:"uniqueUsers"`
	RoleBreakdown   map[string]int    `json:"roleBreakdown"`
	PIMAdoption     stats.PIMAdoption `json:"pimAdoption"`
}

// PIMAnalysis is the just-in-time posture section.
type PIMAnalysis struct {
	EligibleCount        int                                      `json:"eligibleCount"`
	ActiveCount          int                                      `json:"activeCount"`
	PermanentCount       int                                      `json:"permanentCount"`
	OverallAdoptionRate  float64                                  `json:"overallAdoptionRate"`
	AdoptionByService    map[assignment.Service]stats.PIMAdoption `json:"adoptionByService"`
	ExpiringWithin30Days int                                      `json:"expiringWithin30Days"`
}

// PrincipalAnalysis is the who-holds-the-roles section.
type PrincipalAnalysis struct {
	ByType            map[assignment.PrincipalType]int `json:"byType"`
	GroupAssignments  int                              `json:"groupAssignments"`
	ServicePrincipals int                              `json:"servicePrincipals"`
}

// CrossServiceAnalysis is the cross-service exposure section.
type CrossServiceAnalysis struct {
	UsersWithMultipleServices   int                      `json:"usersWithMultipleServices"`
	ExchangeAzureADCombinations int                      `json:"exchangeAzureADCombinations"`
	Users                       []stats.CrossServiceUser `json:"users"`
}

// FormattedAssignment is the stable public projection of one record.
type FormattedAssignment struct {
	Service            string     `json:"service"`
	UserPrincipalName  string     `json:"userPrincipalName"`
	DisplayName        string     `json:"displayName"`
	RoleName           string     `json:"roleName"`
	RoleScope          string     `json:"roleScope"`
	AssignmentType     string     `json:"assignmentType"`
	AssignedDateTime   *time.Time `json:"assignedDateTime,omitempty"`
	UserEnabled        *bool      `json:"userEnabled,omitempty"`
	AuthenticationType string     `json:"authenticationType,omitempty"`

	PIMStartDateTime     *time.Time `json:"pimStartDateTime,omitempty"`
	PIMEndDateTime       *time.Time `json:"pimEndDateTime,omitempty"`
	GroupMemberCount     *int       `json:"groupMemberCount,omitempty"`
	RoleGroupDescription string     `json:"roleGroupDescription,omitempty"`
	OrganizationalUnit   string     `json:"organizationalUnit,omitempty"`
	ManagementScope      string     `json:"managementScope,omitempty"`
	RecipientType        string     `json:"recipientType,omitempty"`
	SiteTitle            string     `json:"siteTitle,omitempty"`
	StorageUsedMB        *float64   `json:"storageUsedMB,omitempty"`
}

// Report is the full audit payload handed to the serializer.
type Report struct {
	ReportID             string                     `json:"reportId"`
	Metadata             ReportMetadata             `json:"metadata"`
	Summary              ReportSummary              `json:"summary"`
	ServiceAnalysis      map[string]ServiceAnalysis `json:"serviceAnalysis"`
	PIMAnalysis          PIMAnalysis                `json:"pimAnalysis"`
	PrincipalAnalysis    PrincipalAnalysis          `json:"principalAnalysis"`
	CrossServiceAnalysis CrossServiceAnalysis       `json:"crossServiceAnalysis"`
	SecurityAlerts       SecurityAlerts             `json:"securityAlerts"`
	Recommendations      []string                   `json:"recommendations"`
	ComplianceAnalysis   ComplianceAnalysis         `json:"complianceAnalysis"`
	ComplianceGaps       []Gap                      `json:"complianceGaps"`
	FormattedAssignments []FormattedAssignment      `json:"assignments"`
	DuplicatesRemoved    []dedupe.Removed           `json:"duplicatesRemoved,omitempty"`
	CollectionErrors     []string                   `json:"collectionErrors,omitempty"`
}
