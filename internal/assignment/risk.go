package assignment

import "strings"

// RiskLevel grades how much damage a role can do if misused.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// highRiskRoles are named administrator roles that fall short of tenant
// takeover but control an entire service surface.
var highRiskRoles = []string{
	"security administrator",
	"exchange administrator",
	"sharepoint administrator",
	"intune service administrator",
	"power platform administrator",
}

// ClassifyRiskLevel maps a role name to a risk level. Matching is
// case-insensitive substring matching, first match wins:
// Global/Company Administrator, then the named high-privilege roles, then
// any Administrator/Admin, then Reader/Viewer, then LOW.
func ClassifyRiskLevel(roleName string) RiskLevel {
	name := strings.ToLower(strings.TrimSpace(roleName))

	if strings.Contains(name, "global administrator") || strings.Contains(name, "company administrator") {
		return RiskCritical
	}
	for _, role := range highRiskRoles {
		if strings.Contains(name, role) {
			return RiskHigh
		}
	}
	if strings.Contains(name, "administrator") || strings.Contains(name, "admin") {
		return RiskMedium
	}
	if strings.Contains(name, "reader") || strings.Contains(name, "viewer") {
		return RiskLow
	}
	return RiskLow
}

// SeverityOrder returns a numeric priority for sorting risk levels, lower
// being more severe.
func SeverityOrder(level RiskLevel) int {
	switch level {
	case RiskCritical:
		return 0
	case RiskHigh:
		return 1
	case RiskMedium:
		return 2
	case RiskLow:
		return 3
	default:
		return 4
	}
}
