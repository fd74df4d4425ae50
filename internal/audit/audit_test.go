package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/collectors"
	"github.com/privaudit/privaudit/internal/dedupe"
)

type fakeCollector struct {
	kind    string
	service assignment.Service
	records []assignment.Record
	err     error
}

func (f *fakeCollector) Kind() string { return f.kind }

func (f *fakeCollector) Service() assignment.Service { return f.service }

func (f *fakeCollector) Collect(context.Context, collectors.Deps) ([]assignment.Record, error) {
	return f.records, f.err
}

func record(service assignment.Service, upn, role, assignmentType string, enabled bool) assignment.Record {
	e := enabled
	return assignment.Record{
		Service:           service,
		UserPrincipalName: upn,
		DisplayName:       upn,
		RoleName:          role,
		RoleScope:         assignment.ScopeForRole(role),
		AssignmentType:    assignmentType,
		UserEnabled:       &e,
		PrincipalType:     assignment.PrincipalUser,
	}
}

func testRegistry(t *testing.T, cs ...collectors.Collector) *collectors.Registry {
	t.Helper()
	r := collectors.NewRegistry()
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return r
}

func TestRunPartialFailureTolerated(t *testing.T) {
	reg := testRegistry(t,
		&fakeCollector{kind: "azuread", service: assignment.ServiceAzureAD, records: []assignment.Record{
			record(assignment.ServiceAzureAD, "alice@contoso.com", "Global Administrator", assignment.TypeActive, true),
		}},
		&fakeCollector{kind: "exchange", service: assignment.ServiceExchange, err: errors.New("throttled")},
		&fakeCollector{kind: "teams", service: assignment.ServiceTeams},
	)

	runner := NewRunner(reg, collectors.Deps{}, nil)
	result, err := runner.Run(context.Background(), AuthContext{OrganizationName: "Contoso", AuthType: "Certificate"}, Options{
		Dedup: dedupe.Options{Mode: dedupe.ModeStrict},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ServicesRequested != 3 {
		t.Fatalf("servicesRequested=%d want 3", result.ServicesRequested)
	}
	// Teams returned successfully but empty; only Azure AD returned data.
	if result.ServicesReturned != 1 {
		t.Fatalf("servicesReturned=%d want 1", result.ServicesReturned)
	}
	if got := result.PartialSummary(); got != "1 of 3 services returned data" {
		t.Fatalf("PartialSummary=%q", got)
	}
	if len(result.CollectionErrors) != 1 {
		t.Fatalf("len(collectionErrors)=%d want 1", len(result.CollectionErrors))
	}

	// The failed service leaves an error marker record.
	var errorRecords int
	for _, rec := range result.Records {
		if rec.AssignmentType == assignment.TypeError {
			errorRecords++
			if rec.Service != assignment.ServiceExchange {
				t.Fatalf("error record service=%q want exchange", rec.Service)
			}
		}
	}
	if errorRecords != 1 {
		t.Fatalf("errorRecords=%d want 1", errorRecords)
	}

	// Azure AD contributed data and the Exchange error marker keeps the
	// failed service visible in the per-service breakdown.
	if result.Report.Metadata.ServicesAudited != 2 {
		t.Fatalf("report servicesAudited=%d want 2", result.Report.Metadata.ServicesAudited)
	}
	if !result.Report.Metadata.CertificateAuthUsed {
		t.Fatalf("expected certificate auth in report metadata")
	}
}

func TestRunDeduplicatesAcrossServices(t *testing.T) {
	reg := testRegistry(t,
		&fakeCollector{kind: "azuread", service: assignment.ServiceAzureAD, records: []assignment.Record{
			record(assignment.ServiceAzureAD, "alice@contoso.com", "Global Administrator", assignment.TypeActive, true),
		}},
		&fakeCollector{kind: "exchange", service: assignment.ServiceExchange, records: []assignment.Record{
			record(assignment.ServiceExchange, "alice@contoso.com", "Global Administrator", assignment.TypeActive, true),
		}},
	)

	runner := NewRunner(reg, collectors.Deps{}, nil)
	result, err := runner.Run(context.Background(), AuthContext{AuthType: "ClientSecret"}, Options{
		Dedup:    dedupe.Options{Mode: dedupe.ModeServicePreference},
		Detailed: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("len(records)=%d want 1", len(result.Records))
	}
	if result.Records[0].Service != assignment.ServiceAzureAD {
		t.Fatalf("kept service=%q want azure ad", result.Records[0].Service)
	}
	if len(result.Removed) != 1 {
		t.Fatalf("len(removed)=%d want 1", len(result.Removed))
	}
	if result.Snapshot.UniqueUsers != 1 {
		t.Fatalf("uniqueUsers=%d want 1", result.Snapshot.UniqueUsers)
	}
	if result.Snapshot.Detailed == nil {
		t.Fatalf("expected detailed stats")
	}
}

func TestRunRejectsUnknownDedupMode(t *testing.T) {
	reg := testRegistry(t, &fakeCollector{kind: "azuread", service: assignment.ServiceAzureAD})
	runner := NewRunner(reg, collectors.Deps{}, nil)

	_, err := runner.Run(context.Background(), AuthContext{}, Options{
		Dedup: dedupe.Options{Mode: dedupe.Mode("fuzzy")},
	})
	if err == nil {
		t.Fatalf("expected error for unknown dedup mode")
	}
}

func TestRunServiceSubset(t *testing.T) {
	var collectedKinds []string
	mk := func(kind string, service assignment.Service) collectors.Collector {
		return &trackingCollector{kind: kind, service: service, seen: &collectedKinds}
	}
	reg := testRegistry(t,
		mk("azuread", assignment.ServiceAzureAD),
		mk("exchange", assignment.ServiceExchange),
	)

	runner := NewRunner(reg, collectors.Deps{}, nil)
	result, err := runner.Run(context.Background(), AuthContext{}, Options{
		Services: []assignment.Service{assignment.ServiceExchange},
		Dedup:    dedupe.Options{Mode: dedupe.ModeStrict},
		Workers:  1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ServicesRequested != 1 {
		t.Fatalf("servicesRequested=%d want 1", result.ServicesRequested)
	}
	if len(collectedKinds) != 1 || collectedKinds[0] != "exchange" {
		t.Fatalf("collected=%v want [exchange]", collectedKinds)
	}
}

type trackingCollector struct {
	kind    string
	service assignment.Service
	seen    *[]string
}

func (c *trackingCollector) Kind() string { return c.kind }

func (c *trackingCollector) Service() assignment.Service { return c.service }

func (c *trackingCollector) Collect(context.Context, collectors.Deps) ([]assignment.Record, error) {
	*c.seen = append(*c.seen, c.kind)
	return nil, nil
}

func TestAuthContextCertificateAuthUsed(t *testing.T) {
	if (AuthContext{AuthType: "ClientSecret"}).CertificateAuthUsed() {
		t.Fatalf("client secret should not report certificate auth")
	}
	if !(AuthContext{AuthType: "Certificate"}).CertificateAuthUsed() {
		t.Fatalf("certificate auth not detected")
	}
}
