package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/dedupe"
	"github.com/privaudit/privaudit/internal/stats"
)

const (
	reportType          = "M365 Privileged Role Audit"
	defaultAuditVersion = "dev"
)

// BuildReport assembles the full report payload from a snapshot and the
// deduplicated record set. It is a pure transformation; everything
// wall-clock or identity related comes in through meta.
func BuildReport(snap stats.Snapshot, records []assignment.Record, removed []dedupe.Removed, meta OrganizationMetadata) Report {
	generatedAt := meta.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	version := meta.AuditVersion
	if version == "" {
		version = defaultAuditVersion
	}

	report := Report{
		ReportID: uuid.NewString(),
		Metadata: ReportMetadata{
			OrganizationName:          meta.OrganizationName,
			GeneratedDate:             generatedAt.UTC().Format(time.RFC3339),
			AuditVersion:              version,
			ReportType:                reportType,
			TotalAssignments:          snap.TotalAssignments,
			UniqueUsers:               snap.UniqueUsers,
			ServicesAudited:           snap.ServicesAudited,
			ServicesRequested:         meta.ServicesRequested,
			CertificateAuthUsed:       meta.AuthTypes[AuthCertificate] > 0,
			PIMEnabled:                len(snap.PIMEligible) > 0 || len(snap.PIMActive) > 0,
			HybridEnvironmentDetected: len(snap.OnPremSynced) > 0,
			ExchangeDataEnhanced:      meta.ExchangeDataEnhanced,
		},
		Summary:              buildSummary(snap),
		ServiceAnalysis:      buildServiceAnalysis(snap),
		PrincipalAnalysis:    buildPrincipalAnalysis(snap),
		CrossServiceAnalysis: buildCrossServiceAnalysis(snap),
		PIMAnalysis:          buildPIMAnalysis(snap),
		SecurityAlerts:       BuildAlerts(snap, meta),
		ComplianceAnalysis:   BuildCompliance(snap, meta),
		ComplianceGaps:       BuildGaps(snap),
		FormattedAssignments: formatAssignments(records, meta.AuthenticationType),
		DuplicatesRemoved:    removed,
		CollectionErrors:     meta.CollectionErrors,
	}
	report.Recommendations = BuildRecommendations(report.ComplianceAnalysis, snap)
	return report
}

func buildSummary(snap stats.Snapshot) ReportSummary {
	summary := ReportSummary{
		ServiceBreakdown: make([]ServiceBreakdownEntry, 0, len(snap.ByService)),
		AssignmentTypes:  make([]AssignmentTypeEntry, 0, len(snap.ByAssignmentType)),
	}

	for service, records := range snap.ByService {
		summary.ServiceBreakdown = append(summary.ServiceBreakdown, ServiceBreakdownEntry{
			Service:    string(service),
			Count:      len(records),
			Percentage: percentage(len(records), snap.TotalAssignments),
		})
	}
	sort.Slice(summary.ServiceBreakdown, func(i, j int) bool {
		if summary.ServiceBreakdown[i].Count != summary.ServiceBreakdown[j].Count {
			return summary.ServiceBreakdown[i].Count > summary.ServiceBreakdown[j].Count
		}
		return summary.ServiceBreakdown[i].Service < summary.ServiceBreakdown[j].Service
	})

	for typ, records := range snap.ByAssignmentType {
		summary.AssignmentTypes = append(summary.AssignmentTypes, AssignmentTypeEntry{
			Type:       typ,
			Count:      len(records),
			Percentage: percentage(len(records), snap.TotalAssignments),
		})
	}
	sort.Slice(summary.AssignmentTypes, func(i, j int) bool {
		if summary.AssignmentTypes[i].Count != summary.AssignmentTypes[j].Count {
			return summary.AssignmentTypes[i].Count > summary.AssignmentTypes[j].Count
		}
		return summary.AssignmentTypes[i].Type < summary.AssignmentTypes[j].Type
	})

	if snap.Detailed != nil {
		summary.TopRoles = snap.Detailed.TopRoles
		summary.UsersWithMostRoles = snap.Detailed.TopUsers
	}
	if summary.TopRoles == nil {
		summary.TopRoles = []stats.RoleUsage{}
	}
	if summary.UsersWithMostRoles == nil {
		summary.UsersWithMostRoles = []stats.UserRoles{}
	}
	return summary
}

func buildServiceAnalysis(snap stats.Snapshot) map[string]ServiceAnalysis {
	out := make(map[string]ServiceAnalysis, len(snap.ByService))
	for service, records := range snap.ByService {
		analysis := ServiceAnalysis{
			Service:         string(service),
			AssignmentCount: len(records),
			RoleBreakdown:   make(map[string]int),
		}
		users := make(map[string]struct{})
		eligible, permanent := 0, 0
		for _, r := range records {
			analysis.RoleBreakdown[r.RoleName]++
			if assignment.HasUsableUPN(r) {
				users[r.UserPrincipalName] = struct{}{}
			}
			if assignment.IsPIMEligible(r.AssignmentType) {
				eligible++
			}
			if assignment.IsPermanent(r.AssignmentType) {
				permanent++
			}
		}
		analysis.UniqueUsers = len(users)
		analysis.PIMAdoption = stats.PIMAdoption{
			Eligible:  eligible,
			Permanent: permanent,
			Rate:      rate(eligible, permanent),
		}
		out[string(service)] = analysis
	}
	return out
}

func buildPrincipalAnalysis(snap stats.Snapshot) PrincipalAnalysis {
	out := PrincipalAnalysis{
		ByType: make(map[assignment.PrincipalType]int, len(snap.ByPrincipalType)),
	}
	for typ, records := range snap.ByPrincipalType {
		out.ByType[typ] = len(records)
	}
	out.GroupAssignments = out.ByType[assignment.PrincipalGroup]
	out.ServicePrincipals = out.ByType[assignment.PrincipalServicePrincipal]
	return out
}

func buildCrossServiceAnalysis(snap stats.Snapshot) CrossServiceAnalysis {
	out := CrossServiceAnalysis{Users: []stats.CrossServiceUser{}}
	if snap.Detailed == nil {
		return out
	}
	out.UsersWithMultipleServices = snap.Detailed.UsersWithMultipleServices
	out.ExchangeAzureADCombinations = snap.Detailed.ExchangeAzureADCombinations
	if snap.Detailed.CrossServiceUsers != nil {
		out.Users = snap.Detailed.CrossServiceUsers
	}
	return out
}

func buildPIMAnalysis(snap stats.Snapshot) PIMAnalysis {
	out := PIMAnalysis{
		EligibleCount:       len(snap.PIMEligible),
		ActiveCount:         len(snap.PIMActive),
		PermanentCount:      len(snap.PermanentActive),
		OverallAdoptionRate: rate(len(snap.PIMEligible), len(snap.PermanentActive)),
		AdoptionByService:   map[assignment.Service]stats.PIMAdoption{},
	}
	if snap.Detailed != nil {
		out.AdoptionByService = snap.Detailed.PIMAdoptionByService
		out.ExpiringWithin30Days = len(snap.Detailed.ExpiringSoon)
	}
	return out
}

func formatAssignments(records []assignment.Record, authType string) []FormattedAssignment {
	out := make([]FormattedAssignment, 0, len(records))
	for _, r := range records {
		out = append(out, FormattedAssignment{
			Service:            string(r.Service),
			UserPrincipalName:  r.UserPrincipalName,
			DisplayName:        r.DisplayName,
			RoleName:           r.RoleName,
			RoleScope:          string(r.RoleScope),
			AssignmentType:     r.AssignmentType,
			AssignedDateTime:   r.AssignedDateTime,
			UserEnabled:        r.UserEnabled,
			AuthenticationType: authType,

			PIMStartDateTime:     r.PIMStartDateTime,
			PIMEndDateTime:       r.PIMEndDateTime,
			GroupMemberCount:     r.GroupMemberCount,
			RoleGroupDescription: r.RoleGroupDescription,
			OrganizationalUnit:   r.OrganizationalUnit,
			ManagementScope:      r.ManagementScope,
			RecipientType:        r.RecipientType,
			SiteTitle:            r.SiteTitle,
			StorageUsedMB:        r.StorageUsedMB,
		})
	}
	return out
}

func percentage(part, total int) float64 {
	return rateOf(part, total)
}

// rate is eligible/(eligible+permanent) as a rounded percentage, matching
// the statistics aggregator's division-safe semantics.
func rate(eligible, permanent int) float64 {
	return rateOf(eligible, eligible+permanent)
}

func rateOf(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
