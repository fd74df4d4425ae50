package analysis

import (
	"fmt"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/stats"
)

// Alert and compliance thresholds. These are deliberately fixed: the point
// of the audit is a stable yardstick, not a tunable one.
const (
	GlobalAdminThreshold        = 5
	OrgManagementThreshold      = 10
	IntuneAdminThreshold        = 3
	PowerPlatformAdminThreshold = 5
	IntuneVolumeThreshold       = 10
)

// BuildAlerts applies the deterministic alert rules to a snapshot.
func BuildAlerts(snap stats.Snapshot, meta OrganizationMetadata) SecurityAlerts {
	alerts := SecurityAlerts{
		Critical: []string{},
		High:     []string{},
		Medium:   []string{},
		Low:      []string{},

		GlobalAdminCount:       len(snap.GlobalAdmins),
		DisabledUsersWithRoles: len(snap.DisabledUsers),
		CertificateBasedAuth:   meta.AuthTypes[AuthCertificate],
		ClientSecretAuth:       meta.AuthTypes[AuthClientSecret],
	}

	if len(snap.GlobalAdmins) > GlobalAdminThreshold {
		alerts.Critical = append(alerts.Critical, fmt.Sprintf(
			"Excessive Global Administrators: %d accounts hold Global Administrator (recommended maximum %d)",
			len(snap.GlobalAdmins), GlobalAdminThreshold))
	}

	if len(snap.DisabledUsers) > 0 {
		alerts.High = append(alerts.High, fmt.Sprintf(
			"%d disabled accounts still hold privileged roles", len(snap.DisabledUsers)))
	}

	if alerts.ClientSecretAuth > 0 {
		alerts.Medium = append(alerts.Medium, fmt.Sprintf(
			"%d service connections authenticate with a client secret; migrate to certificate-based authentication",
			alerts.ClientSecretAuth))
	}

	if len(snap.PIMEligible) == 0 && snap.TotalAssignments > 0 {
		alerts.Medium = append(alerts.Medium,
			"No PIM-eligible assignments found; all privileged access is standing access. Adopt Privileged Identity Management.")
	}

	if members := organizationManagementMembers(snap); members > 0 {
		exchange := &ExchangeSecurityAlerts{
			OrganizationManagementMembers: members,
			Alerts:                        []string{},
		}
		if members > OrgManagementThreshold {
			msg := fmt.Sprintf(
				"Organization Management role group has %d members (recommended maximum %d)",
				members, OrgManagementThreshold)
			exchange.Alerts = append(exchange.Alerts, msg)
			alerts.Medium = append(alerts.Medium, msg)
		}
		alerts.ExchangeSecurityAlerts = exchange
	}

	return alerts
}

// BuildCompliance evaluates the binary compliance rules.
func BuildCompliance(snap stats.Snapshot, meta OrganizationMetadata) ComplianceAnalysis {
	clientSecrets := meta.AuthTypes[AuthClientSecret]
	pimCompliant := len(snap.PIMEligible) > 0 || snap.TotalAssignments == 0

	return ComplianceAnalysis{
		GlobalAdminLimit: ComplianceRule{
			Compliant: len(snap.GlobalAdmins) <= GlobalAdminThreshold,
			Current:   len(snap.GlobalAdmins),
			Threshold: GlobalAdminThreshold,
		},
		DisabledAccountHygiene: ComplianceRule{
			Compliant: len(snap.DisabledUsers) == 0,
			Current:   len(snap.DisabledUsers),
			Threshold: 0,
		},
		PIMAdoption: ComplianceRule{
			Compliant: pimCompliant,
			Current:   len(snap.PIMEligible),
			Threshold: 1,
		},
		CertificateAuth: ComplianceRule{
			Compliant: clientSecrets == 0,
			Current:   clientSecrets,
			Threshold: 0,
		},
		IntuneAdminLimit: ComplianceRule{
			Compliant: len(snap.ByRole["Intune Service Administrator"]) <= IntuneAdminThreshold,
			Current:   len(snap.ByRole["Intune Service Administrator"]),
			Threshold: IntuneAdminThreshold,
		},
		PowerPlatformAdminLimit: ComplianceRule{
			Compliant: len(snap.ByRole["Power Platform Administrator"]) <= PowerPlatformAdminThreshold,
			Current:   len(snap.ByRole["Power Platform Administrator"]),
			Threshold: PowerPlatformAdminThreshold,
		},
		OrganizationManagement: ComplianceRule{
			Compliant: organizationManagementMembers(snap) <= OrgManagementThreshold,
			Current:   organizationManagementMembers(snap),
			Threshold: OrgManagementThreshold,
		},
	}
}

// BuildGaps derives the service-specific compliance-gap findings.
func BuildGaps(snap stats.Snapshot) []Gap {
	var gaps []Gap

	intuneAdmins := snap.ByRole["Intune Service Administrator"]
	if len(intuneAdmins) > IntuneAdminThreshold {
		gaps = append(gaps, Gap{
			Category: "Intune",
			Issue:    "Excessive Intune Service Administrators",
			Details: fmt.Sprintf("%d accounts hold Intune Service Administrator (recommended maximum %d)",
				len(intuneAdmins), IntuneAdminThreshold),
			Severity:       assignment.RiskMedium,
			Recommendation: "Reduce standing Intune Service Administrator assignments; use scoped Intune RBAC roles instead",
			AffectedUsers:  principalNames(intuneAdmins),
			Frameworks:     []string{"CIS Microsoft 365 1.1.3"},
			Remediation: []string{
				"Review each Intune Service Administrator assignment for business need",
				"Move device-management staff to scoped Intune RBAC roles",
			},
		})
	}

	intune := snap.ByService[assignment.ServiceIntune]
	if len(intune) > IntuneVolumeThreshold {
		azureADRole := 0
		intuneRBAC := 0
		for _, r := range intune {
			switch r.AssignmentType {
			case assignment.TypeAzureADRole:
				azureADRole++
			case assignment.TypeIntuneRBAC:
				intuneRBAC++
			}
		}
		if azureADRole > intuneRBAC {
			gaps = append(gaps, Gap{
				Category: "Intune",
				Issue:    "Directory roles outnumber Intune RBAC roles",
				Details: fmt.Sprintf("%d Intune assignments come from Azure AD directory roles against %d from Intune RBAC",
					azureADRole, intuneRBAC),
				Severity:       assignment.RiskLow,
				Recommendation: "Prefer Intune RBAC with scope tags over broad directory roles for device management",
			})
		}
	}
	if len(intune) > 0 && !anyPolicyOwnerTracked(intune) {
		gaps = append(gaps, Gap{
			Category:       "Intune",
			Issue:          "No policy-owner tracking on Intune assignments",
			Details:        "None of the collected Intune assignments carry a role type, so policy ownership cannot be attributed",
			Severity:       assignment.RiskLow,
			Recommendation: "Enable Intune RBAC collection so role types and policy ownership are tracked",
		})
	}

	powerPlatform := snap.ByService[assignment.ServicePowerPlatform]
	if sps := servicePrincipals(powerPlatform); len(sps) > 0 {
		gaps = append(gaps, Gap{
			Category: "Power Platform",
			Issue:    "Service principals hold Power Platform admin roles",
			Details: fmt.Sprintf("%d Power Platform admin assignments are held by service principals",
				len(sps)),
			Severity:       assignment.RiskMedium,
			Recommendation: "Review application access to Power Platform; service principals bypass user conditional access",
			AffectedUsers:  principalNames(sps),
		})
	}
	ppAdmins := snap.ByRole["Power Platform Administrator"]
	if len(ppAdmins) > PowerPlatformAdminThreshold {
		gaps = append(gaps, Gap{
			Category: "Power Platform",
			Issue:    "Excessive Power Platform Administrators",
			Details: fmt.Sprintf("%d accounts hold Power Platform Administrator (recommended maximum %d)",
				len(ppAdmins), PowerPlatformAdminThreshold),
			Severity:       assignment.RiskMedium,
			Recommendation: "Scope environment administration with environment-level security roles",
			AffectedUsers:  principalNames(ppAdmins),
		})
	}

	return gaps
}

// BuildRecommendations derives remediation guidance from the non-compliant
// rules, most severe first.
func BuildRecommendations(compliance ComplianceAnalysis, snap stats.Snapshot) []string {
	var out []string

	if !compliance.GlobalAdminLimit.Compliant {
		out = append(out, fmt.Sprintf(
			"Reduce Global Administrator count from %d to %d or fewer; use scoped admin roles for day-to-day work",
			compliance.GlobalAdminLimit.Current, compliance.GlobalAdminLimit.Threshold))
	}
	if !compliance.DisabledAccountHygiene.Compliant {
		out = append(out, fmt.Sprintf(
			"Remove privileged roles from %d disabled accounts", compliance.DisabledAccountHygiene.Current))
	}
	if !compliance.PIMAdoption.Compliant {
		out = append(out, "Adopt Privileged Identity Management: convert standing assignments to PIM-eligible ones")
	}
	if !compliance.CertificateAuth.Compliant {
		out = append(out, "Replace client-secret authentication with certificate-based app-only authentication")
	}
	if !compliance.OrganizationManagement.Compliant {
		out = append(out, fmt.Sprintf(
			"Trim the Exchange Organization Management role group from %d to %d members or fewer",
			compliance.OrganizationManagement.Current, compliance.OrganizationManagement.Threshold))
	}
	if len(snap.OnPremSynced) > 0 {
		out = append(out, fmt.Sprintf(
			"%d privileged accounts are synchronized from on-premises; use cloud-only accounts for privileged access",
			len(snap.OnPremSynced)))
	}

	return out
}

func organizationManagementMembers(snap stats.Snapshot) int {
	count := 0
	for _, r := range snap.ByService[assignment.ServiceExchange] {
		if r.RoleName == "Organization Management" {
			count++
		}
	}
	return count
}

func servicePrincipals(records []assignment.Record) []assignment.Record {
	var out []assignment.Record
	for _, r := range records {
		if r.PrincipalType == assignment.PrincipalServicePrincipal {
			out = append(out, r)
		}
	}
	return out
}

func anyPolicyOwnerTracked(records []assignment.Record) bool {
	for _, r := range records {
		if r.RoleType != "" {
			return true
		}
	}
	return false
}

func principalNames(records []assignment.Record) []string {
	seen := make(map[string]struct{}, len(records))
	var out []string
	for _, r := range records {
		name := r.UserPrincipalName
		if name == "" {
			name = r.DisplayName
		}
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
