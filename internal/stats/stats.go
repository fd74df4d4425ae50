// Package stats computes a read-only statistics snapshot over a
// deduplicated assignment set. A snapshot is recomputed fresh per audit run
// and never mutated incrementally.
package stats

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/privaudit/privaudit/internal/assignment"
)

const (
	topListSize   = 15
	expiryHorizon = 30 * 24 * time.Hour
)

// Snapshot is the always-computed basic tier plus an optional detailed tier.
type Snapshot struct {
	TotalAssignments int `json:"totalAssignments"`
	UniqueUsers      int `json:"uniqueUsers"`
	ServicesAudited  int `json:"servicesAudited"`

	ByService        map[assignment.Service][]assignment.Record       `json:"-"`
	ByRole           map[string][]assignment.Record                   `json:"-"`
	ByUser           map[string][]assignment.Record                   `json:"-"`
	ByAssignmentType map[string][]assignment.Record                   `json:"-"`
	ByPrincipalType  map[assignment.PrincipalType][]assignment.Record `json:"-"`

	GlobalAdmins    []assignment.Record `json:"-"`
	DisabledUsers   []assignment.Record `json:"-"`
	PIMEligible     []assignment.Record `json:"-"`
	PIMActive       []assignment.Record `json:"-"`
	PermanentActive []assignment.Record `json:"-"`
	OnPremSynced    []assignment.Record `json:"-"`

	Detailed *Detailed `json:"detailed,omitempty"`
}

// PIMAdoption is the eligible-versus-standing split for one service.
type PIMAdoption struct {
	Eligible  int     `json:"eligible"`
	Permanent int     `json:"permanent"`
	Rate      float64 `json:"rate"`
}

// RoleUsage is one role's aggregate across services.
type RoleUsage struct {
	RoleName  string               `json:"roleName"`
	Count     int                  `json:"assignmentCount"`
	RiskLevel assignment.RiskLevel `json:"riskLevel"`
	Services  []string             `json:"services"`
}

// UserRoles is one principal's aggregate across services.
type UserRoles struct {
	UserPrincipalName string   `json:"userPrincipalName"`
	DisplayName       string   `json:"displayName"`
	RoleCount         int      `json:"roleCount"`
	Enabled           *bool    `json:"isEnabled"`
	OnPremisesSynced  *bool    `json:"onPremisesSynced"`
	Services          []string `json:"services"`
}

// CrossServiceUser is a principal holding roles in more than one service.
type CrossServiceUser struct {
	UserPrincipalName string   `json:"userPrincipalName"`
	Services          []string `json:"services"`
	RoleCount         int      `json:"roleCount"`
}

// Detailed is the expensive tier: it re-groups the full set several times,
// so it is only computed when asked for.
type Detailed struct {
	PIMAdoptionByService map[assignment.Service]PIMAdoption `json:"pimAdoptionByService"`

	TopRoles []RoleUsage `json:"topRoles"`
	TopUsers []UserRoles `json:"usersWithMostRoles"`

	CrossServiceUsers           []CrossServiceUser `json:"crossServiceUsers"`
	UsersWithMultipleServices   int                `json:"usersWithMultipleServices"`
	ExchangeAzureADCombinations int                `json:"exchangeAzureADCombinations"`

	// ExpiringSoon holds PIM grants whose end time falls within the next 30
	// days. This is the one wall-clock-dependent field: two calls at
	// different times may legitimately disagree.
	ExpiringSoon []assignment.Record `json:"-"`
}

// Aggregate computes a snapshot relative to the current wall clock.
func Aggregate(records []assignment.Record, detailed bool) Snapshot {
	return AggregateAt(records, detailed, time.Now())
}

// AggregateAt computes a snapshot relative to now. Apart from the
// expiring-soon window it is a pure function of its inputs. An empty input
// yields a zero-valued snapshot with empty groupings, never an error.
func AggregateAt(records []assignment.Record, detailed bool, now time.Time) Snapshot {
	snap := Snapshot{
		TotalAssignments: len(records),
		ByService:        make(map[assignment.Service][]assignment.Record),
		ByRole:           make(map[string][]assignment.Record),
		ByUser:           make(map[string][]assignment.Record),
		ByAssignmentType: make(map[string][]assignment.Record),
		ByPrincipalType:  make(map[assignment.PrincipalType][]assignment.Record),
	}

	users := make(map[string]struct{})
	for _, r := range records {
		snap.ByService[r.Service] = append(snap.ByService[r.Service], r)
		snap.ByRole[r.RoleName] = append(snap.ByRole[r.RoleName], r)
		snap.ByAssignmentType[r.AssignmentType] = append(snap.ByAssignmentType[r.AssignmentType], r)
		snap.ByPrincipalType[r.PrincipalType] = append(snap.ByPrincipalType[r.PrincipalType], r)

		upn := strings.ToLower(strings.TrimSpace(r.UserPrincipalName))
		snap.ByUser[upn] = append(snap.ByUser[upn], r)
		if assignment.HasUsableUPN(r) {
			users[upn] = struct{}{}
		}

		if r.RoleName == "Global Administrator" {
			snap.GlobalAdmins = append(snap.GlobalAdmins, r)
		}
		if r.UserEnabled != nil && !*r.UserEnabled {
			snap.DisabledUsers = append(snap.DisabledUsers, r)
		}
		if assignment.IsPIMEligible(r.AssignmentType) {
			snap.PIMEligible = append(snap.PIMEligible, r)
		}
		if assignment.IsPIMActive(r.AssignmentType) {
			snap.PIMActive = append(snap.PIMActive, r)
		}
		if assignment.IsPermanent(r.AssignmentType) {
			snap.PermanentActive = append(snap.PermanentActive, r)
		}
		if r.OnPremisesSyncEnabled != nil && *r.OnPremisesSyncEnabled {
			snap.OnPremSynced = append(snap.OnPremSynced, r)
		}
	}
	snap.UniqueUsers = len(users)
	snap.ServicesAudited = len(snap.ByService)

	if detailed {
		snap.Detailed = computeDetailed(snap, now)
	}
	return snap
}

func computeDetailed(snap Snapshot, now time.Time) *Detailed {
	d := &Detailed{
		PIMAdoptionByService: make(map[assignment.Service]PIMAdoption, len(snap.ByService)),
	}

	for service, records := range snap.ByService {
		var adoption PIMAdoption
		for _, r := range records {
			if assignment.IsPIMEligible(r.AssignmentType) {
				adoption.Eligible++
			}
			if assignment.IsPermanent(r.AssignmentType) {
				adoption.Permanent++
			}
		}
		adoption.Rate = adoptionRate(adoption.Eligible, adoption.Permanent)
		d.PIMAdoptionByService[service] = adoption
	}

	d.TopRoles = topRoles(snap.ByRole)
	d.TopUsers = topUsers(snap.ByUser)
	d.CrossServiceUsers, d.ExchangeAzureADCombinations = crossServiceUsers(snap.ByUser)
	d.UsersWithMultipleServices = len(d.CrossServiceUsers)

	horizon := now.Add(expiryHorizon)
	for _, records := range snap.ByService {
		for _, r := range records {
			if r.PIMEndDateTime == nil {
				continue
			}
			if r.PIMEndDateTime.After(now) && r.PIMEndDateTime.Before(horizon) {
				d.ExpiringSoon = append(d.ExpiringSoon, r)
			}
		}
	}

	return d
}

// adoptionRate is eligible/(eligible+permanent) as a percentage rounded to
// two decimals, 0 when there is nothing to divide by.
func adoptionRate(eligible, permanent int) float64 {
	total := eligible + permanent
	if total == 0 {
		return 0
	}
	rate := float64(eligible) / float64(total) * 100
	return math.Round(rate*100) / 100
}

func topRoles(byRole map[string][]assignment.Record) []RoleUsage {
	out := make([]RoleUsage, 0, len(byRole))
	for role, records := range byRole {
		out = append(out, RoleUsage{
			RoleName:  role,
			Count:     len(records),
			RiskLevel: assignment.ClassifyRiskLevel(role),
			Services:  distinctServices(records),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RoleName < out[j].RoleName
	})
	if len(out) > topListSize {
		out = out[:topListSize]
	}
	return out
}

func topUsers(byUser map[string][]assignment.Record) []UserRoles {
	out := make([]UserRoles, 0, len(byUser))
	for upn, records := range byUser {
		if upn == "" || strings.EqualFold(upn, assignment.UnknownPrincipal) {
			continue
		}
		user := UserRoles{
			UserPrincipalName: records[0].UserPrincipalName,
			RoleCount:         len(records),
			Services:          distinctServices(records),
		}
		for _, r := range records {
			if user.DisplayName == "" {
				user.DisplayName = r.DisplayName
			}
			if user.Enabled == nil {
				user.Enabled = r.UserEnabled
			}
			if user.OnPremisesSynced == nil {
				user.OnPremisesSynced = r.OnPremisesSyncEnabled
			}
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoleCount != out[j].RoleCount {
			return out[i].RoleCount > out[j].RoleCount
		}
		return out[i].UserPrincipalName < out[j].UserPrincipalName
	})
	if len(out) > topListSize {
		out = out[:topListSize]
	}
	return out
}

func crossServiceUsers(byUser map[string][]assignment.Record) ([]CrossServiceUser, int) {
	var out []CrossServiceUser
	exchangeAzureAD := 0
	for upn, records := range byUser {
		if upn == "" ||
			strings.EqualFold(upn, assignment.UnknownPrincipal) ||
			strings.EqualFold(upn, assignment.SystemGenerated) {
			continue
		}
		services := distinctServices(records)
		if len(services) < 2 {
			continue
		}
		out = append(out, CrossServiceUser{
			UserPrincipalName: records[0].UserPrincipalName,
			Services:          services,
			RoleCount:         len(records),
		})
		if containsService(services, assignment.ServiceExchange) && containsService(services, assignment.ServiceAzureAD) {
			exchangeAzureAD++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Services) != len(out[j].Services) {
			return len(out[i].Services) > len(out[j].Services)
		}
		return out[i].UserPrincipalName < out[j].UserPrincipalName
	})
	return out, exchangeAzureAD
}

func distinctServices(records []assignment.Record) []string {
	seen := make(map[assignment.Service]struct{}, len(records))
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Service]; ok {
			continue
		}
		seen[r.Service] = struct{}{}
		out = append(out, string(r.Service))
	}
	sort.Strings(out)
	return out
}

func containsService(services []string, service assignment.Service) bool {
	for _, s := range services {
		if s == string(service) {
			return true
		}
	}
	return false
}
