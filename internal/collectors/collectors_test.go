package collectors

import (
	"context"
	"testing"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/graph"
	"github.com/privaudit/privaudit/internal/identity"
)

type graphStub struct {
	definitions map[graph.RBACProvider][]graph.UnifiedRoleDefinition
	assignments map[graph.RBACProvider][]graph.UnifiedRoleAssignment
	eligible    []graph.RoleScheduleInstance
	scheduled   []graph.RoleScheduleInstance

	eligibleErr  error
	scheduledErr error
}

func (s *graphStub) ListRoleDefinitions(_ context.Context, provider graph.RBACProvider) ([]graph.UnifiedRoleDefinition, error) {
	return s.definitions[provider], nil
}

func (s *graphStub) ListRoleAssignments(_ context.Context, provider graph.RBACProvider) ([]graph.UnifiedRoleAssignment, error) {
	return s.assignments[provider], nil
}

func (s *graphStub) ListRoleEligibilityScheduleInstances(context.Context) ([]graph.RoleScheduleInstance, error) {
	return s.eligible, s.eligibleErr
}

func (s *graphStub) ListRoleAssignmentScheduleInstances(context.Context) ([]graph.RoleScheduleInstance, error) {
	return s.scheduled, s.scheduledErr
}

type resolverStub struct {
	principals map[string]identity.Principal
	members    map[string][]identity.Principal
}

func (s *resolverStub) Resolve(_ context.Context, ids []string) (map[string]identity.Principal, error) {
	out := make(map[string]identity.Principal, len(ids))
	for _, id := range ids {
		if p, ok := s.principals[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *resolverStub) ExpandGroup(_ context.Context, groupID string) ([]identity.Principal, error) {
	return s.members[groupID], nil
}

func user(id, name, upn string, enabled bool) identity.Principal {
	e := enabled
	return identity.Principal{ID: id, Type: assignment.PrincipalUser, DisplayName: name, UPN: upn, Enabled: &e}
}

func globalAdminDirectory() *graphStub {
	return &graphStub{
		definitions: map[graph.RBACProvider][]graph.UnifiedRoleDefinition{
			graph.ProviderDirectory: {
				{ID: "rd-ga", DisplayName: "Global Administrator"},
				{ID: "rd-ta", DisplayName: "Teams Administrator"},
			},
		},
		assignments: map[graph.RBACProvider][]graph.UnifiedRoleAssignment{
			graph.ProviderDirectory: {
				{ID: "ra-1", PrincipalID: "u1", RoleDefinitionID: "rd-ga", DirectoryScopeID: "/"},
				{ID: "ra-2", PrincipalID: "u2", RoleDefinitionID: "rd-ta", DirectoryScopeID: "/"},
			},
		},
	}
}

func TestAzureADCollectorMergesActivatedPIM(t *testing.T) {
	t.Parallel()

	g := globalAdminDirectory()
	g.scheduled = []graph.RoleScheduleInstance{
		// Activated grant for the same principal/role/scope as ra-1.
		{ID: "si-1", PrincipalID: "u1", RoleDefinitionID: "rd-ga", DirectoryScopeID: "/", AssignmentType: "Activated", StartDateTime: "2026-08-01T08:00:00Z", EndDateTime: "2026-08-01T16:00:00Z"},
	}
	g.eligible = []graph.RoleScheduleInstance{
		{ID: "ei-1", PrincipalID: "u1", RoleDefinitionID: "rd-ga", DirectoryScopeID: "/", StartDateTime: "2026-01-01T00:00:00Z"},
	}

	deps := Deps{
		Graph: g,
		Resolver: &resolverStub{principals: map[string]identity.Principal{
			"u1": user("u1", "Alice", "alice@contoso.com", true),
			"u2": user("u2", "Bob", "bob@contoso.com", true),
		}},
	}

	records, err := (&AzureADCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records)=%d want 3", len(records))
	}

	var aliceActive *assignment.Record
	var eligibleCount int
	for i := range records {
		if records[i].UserPrincipalName == "alice@contoso.com" && records[i].AssignmentType != assignment.TypeEligiblePIM {
			aliceActive = &records[i]
		}
		if records[i].AssignmentType == assignment.TypeEligiblePIM {
			eligibleCount++
		}
	}
	if aliceActive == nil {
		t.Fatalf("no standing record for alice")
	}
	if aliceActive.AssignmentType != assignment.TypeActivePIM {
		t.Fatalf("assignmentType=%q want %q", aliceActive.AssignmentType, assignment.TypeActivePIM)
	}
	if aliceActive.PIMEndDateTime == nil {
		t.Fatalf("expected pim end time on activated record")
	}
	if aliceActive.RoleScope != assignment.ScopeOverarching {
		t.Fatalf("roleScope=%q want %q", aliceActive.RoleScope, assignment.ScopeOverarching)
	}
	if eligibleCount != 1 {
		t.Fatalf("eligibleCount=%d want 1", eligibleCount)
	}
}

func TestAzureADCollectorToleratesMissingPIM(t *testing.T) {
	t.Parallel()

	g := globalAdminDirectory()
	g.eligibleErr = context.DeadlineExceeded
	g.scheduledErr = context.DeadlineExceeded

	deps := Deps{
		Graph: g,
		Resolver: &resolverStub{principals: map[string]identity.Principal{
			"u1": user("u1", "Alice", "alice@contoso.com", true),
			"u2": user("u2", "Bob", "bob@contoso.com", true),
		}},
	}

	records, err := (&AzureADCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2", len(records))
	}
	for _, rec := range records {
		if rec.AssignmentType != assignment.TypeActive {
			t.Fatalf("assignmentType=%q want %q", rec.AssignmentType, assignment.TypeActive)
		}
	}
}

func TestAzureADCollectorUnresolvedPrincipalPlaceholder(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Graph:    globalAdminDirectory(),
		Resolver: &resolverStub{principals: map[string]identity.Principal{}},
	}

	records, err := (&AzureADCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2", len(records))
	}
	if records[0].UserPrincipalName != assignment.UnknownPrincipal {
		t.Fatalf("upn=%q want %q", records[0].UserPrincipalName, assignment.UnknownPrincipal)
	}
	if records[0].PrincipalType != assignment.PrincipalUnknown {
		t.Fatalf("principalType=%q want %q", records[0].PrincipalType, assignment.PrincipalUnknown)
	}
}

func TestTeamsCollectorFiltersDirectoryRoles(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Graph: globalAdminDirectory(),
		Resolver: &resolverStub{principals: map[string]identity.Principal{
			"u1": user("u1", "Alice", "alice@contoso.com", true),
			"u2": user("u2", "Bob", "bob@contoso.com", true),
		}},
	}

	records, err := (&TeamsCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records)=%d want 1", len(records))
	}
	if records[0].RoleName != "Teams Administrator" {
		t.Fatalf("roleName=%q", records[0].RoleName)
	}
	if records[0].Service != assignment.ServiceTeams {
		t.Fatalf("service=%q", records[0].Service)
	}
	if records[0].AssignmentType != assignment.TypeAzureADRole {
		t.Fatalf("assignmentType=%q want %q", records[0].AssignmentType, assignment.TypeAzureADRole)
	}

	// With the overarching flag the tenant-wide global admin shows up in
	// the Teams view too.
	deps.IncludeOverarching = true
	records, err = (&TeamsCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2 with overarching roles", len(records))
	}
}

func TestExchangeCollectorExpandsRoleGroups(t *testing.T) {
	t.Parallel()

	g := &graphStub{
		definitions: map[graph.RBACProvider][]graph.UnifiedRoleDefinition{
			graph.ProviderExchange: {
				{ID: "rg-om", DisplayName: "Organization Management", Description: "Members have access to the entire Exchange organization"},
			},
		},
		assignments: map[graph.RBACProvider][]graph.UnifiedRoleAssignment{
			graph.ProviderExchange: {
				{ID: "ra-1", PrincipalID: "g1", RoleDefinitionID: "rg-om", DirectoryScopeID: "/"},
			},
		},
	}
	deps := Deps{
		Graph: g,
		Resolver: &resolverStub{
			principals: map[string]identity.Principal{
				"g1": {ID: "g1", Type: assignment.PrincipalGroup, DisplayName: "Organization Management"},
			},
			members: map[string][]identity.Principal{
				"g1": {
					user("u1", "Alice", "alice@contoso.com", true),
					user("u2", "Bob", "bob@contoso.com", false),
				},
			},
		},
	}

	records, err := (&ExchangeCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2", len(records))
	}
	for _, rec := range records {
		if rec.AssignmentType != assignment.TypeRoleGroupMember {
			t.Fatalf("assignmentType=%q want %q", rec.AssignmentType, assignment.TypeRoleGroupMember)
		}
		if rec.RoleGroupDescription == "" {
			t.Fatalf("expected role group description")
		}
		if rec.ManagementScope != "Organization" {
			t.Fatalf("managementScope=%q want Organization", rec.ManagementScope)
		}
		if rec.GroupMemberCount == nil || *rec.GroupMemberCount != 2 {
			t.Fatalf("groupMemberCount=%v want 2", rec.GroupMemberCount)
		}
	}
	if records[1].UserEnabled == nil || *records[1].UserEnabled {
		t.Fatalf("expected disabled member to stay disabled")
	}
}

func TestIntuneCollectorRBACAndDirectoryViews(t *testing.T) {
	t.Parallel()

	builtIn := true
	g := &graphStub{
		definitions: map[graph.RBACProvider][]graph.UnifiedRoleDefinition{
			graph.ProviderDirectory: {
				{ID: "rd-isa", DisplayName: "Intune Service Administrator"},
			},
			graph.ProviderDeviceManagement: {
				{ID: "dm-hd", DisplayName: "Help Desk Operator", IsBuiltIn: &builtIn},
			},
		},
		assignments: map[graph.RBACProvider][]graph.UnifiedRoleAssignment{
			graph.ProviderDirectory: {
				{ID: "ra-1", PrincipalID: "u1", RoleDefinitionID: "rd-isa", DirectoryScopeID: "/"},
			},
			graph.ProviderDeviceManagement: {
				{ID: "ra-2", PrincipalID: "u2", RoleDefinitionID: "dm-hd", DirectoryScopeID: "/"},
			},
		},
	}
	deps := Deps{
		Graph: g,
		Resolver: &resolverStub{principals: map[string]identity.Principal{
			"u1": user("u1", "Alice", "alice@contoso.com", true),
			"u2": user("u2", "Bob", "bob@contoso.com", true),
		}},
	}

	records, err := (&IntuneCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2", len(records))
	}

	rbac := records[0]
	if rbac.AssignmentType != assignment.TypeIntuneRBAC {
		t.Fatalf("assignmentType=%q want %q", rbac.AssignmentType, assignment.TypeIntuneRBAC)
	}
	if rbac.RoleType != "BuiltIn" {
		t.Fatalf("roleType=%q want BuiltIn", rbac.RoleType)
	}
	if records[1].AssignmentType != assignment.TypeAzureADRole {
		t.Fatalf("assignmentType=%q want %q", records[1].AssignmentType, assignment.TypeAzureADRole)
	}
}

type siteAdminStub struct {
	admins []SiteAdmin
}

func (s *siteAdminStub) ListSiteAdmins(context.Context) ([]SiteAdmin, error) {
	return s.admins, nil
}

func TestSharePointCollector(t *testing.T) {
	t.Parallel()

	deps := Deps{
		Graph:    globalAdminDirectory(),
		Resolver: &resolverStub{principals: map[string]identity.Principal{}},
		SharePoint: &siteAdminStub{admins: []SiteAdmin{
			{LoginName: "i:0#.f|membership|carol@contoso.com", Title: "Carol", SiteTitle: "Intranet"},
			{LoginName: "SHAREPOINT\\system", Title: "System Account", SiteTitle: "Intranet"},
		}},
	}

	records, err := (&SharePointCollector{}).Collect(context.Background(), deps)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records)=%d want 2", len(records))
	}

	carol := records[0]
	if carol.UserPrincipalName != "carol@contoso.com" {
		t.Fatalf("upn=%q want carol@contoso.com", carol.UserPrincipalName)
	}
	if carol.RoleName != "Site Collection Administrator" {
		t.Fatalf("roleName=%q", carol.RoleName)
	}
	if carol.SiteTitle != "Intranet" {
		t.Fatalf("siteTitle=%q want Intranet", carol.SiteTitle)
	}

	system := records[1]
	if system.UserPrincipalName != assignment.SystemGenerated {
		t.Fatalf("upn=%q want %q", system.UserPrincipalName, assignment.SystemGenerated)
	}
	if system.PrincipalType != assignment.PrincipalServicePrincipal {
		t.Fatalf("principalType=%q", system.PrincipalType)
	}
}

func TestUPNFromLoginName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"i:0#.f|membership|alice@contoso.com", "alice@contoso.com"},
		{"alice@contoso.com", "alice@contoso.com"},
		{"SHAREPOINT\\system", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := upnFromLoginName(tc.in); got != tc.want {
			t.Fatalf("upnFromLoginName(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := Default()
	if got := len(r.All()); got != 8 {
		t.Fatalf("len(All)=%d want 8", got)
	}
	if _, ok := r.Get("AzureAD"); !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
	if err := r.Register(&AzureADCollector{}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	subset := r.ForServices([]assignment.Service{assignment.ServiceTeams, assignment.ServiceExchange})
	if len(subset) != 2 {
		t.Fatalf("len(subset)=%d want 2", len(subset))
	}
	if subset[0].Service() != assignment.ServiceExchange {
		t.Fatalf("subset[0]=%q want exchange first (registry order)", subset[0].Service())
	}
}
