package report

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/privaudit/privaudit/internal/analysis"
	"github.com/privaudit/privaudit/internal/assignment"
	"github.com/privaudit/privaudit/internal/dedupe"
	"github.com/privaudit/privaudit/internal/stats"
)

func sampleReport(t *testing.T) analysis.Report {
	t.Helper()

	enabled := true
	records := []assignment.Record{
		{
			Service:           assignment.ServiceAzureAD,
			UserPrincipalName: "alice@contoso.com",
			DisplayName:       "Alice",
			RoleName:          "Global Administrator",
			RoleScope:         assignment.ScopeOverarching,
			AssignmentType:    assignment.TypeActive,
			UserEnabled:       &enabled,
			PrincipalType:     assignment.PrincipalUser,
		},
	}
	snap := stats.Aggregate(records, true)
	return analysis.BuildReport(snap, records, nil, analysis.OrganizationMetadata{
		OrganizationName:   "Contoso",
		AuthenticationType: analysis.AuthClientSecret,
		AuthTypes:          map[string]int{analysis.AuthClientSecret: 1},
		ServicesRequested:  8,
		ServicesReturned:   1,
	})
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	rep := sampleReport(t)
	path := filepath.Join(t.TempDir(), "reports", "audit.json")

	if err := WriteFile(path, rep); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded analysis.Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode written report: %v", err)
	}
	if decoded.ReportID != rep.ReportID {
		t.Fatalf("reportId=%q want %q", decoded.ReportID, rep.ReportID)
	}
	if !bytes.Contains(data, []byte("\n  ")) {
		t.Fatalf("expected indented output")
	}
}

func TestHolder(t *testing.T) {
	t.Parallel()

	h := NewHolder()
	if _, _, ok := h.Latest(); ok {
		t.Fatalf("expected empty holder")
	}

	rep := sampleReport(t)
	h.Set(rep)

	got, updatedAt, ok := h.Latest()
	if !ok {
		t.Fatalf("expected stored report")
	}
	if got.ReportID != rep.ReportID {
		t.Fatalf("reportId=%q want %q", got.ReportID, rep.ReportID)
	}
	if updatedAt.IsZero() {
		t.Fatalf("expected update timestamp")
	}
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	holder := NewHolder()
	srv := httptest.NewServer(NewServer(holder).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/report")
	if err != nil {
		t.Fatalf("GET /api/report: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404 before first audit", resp.StatusCode)
	}

	holder.Set(sampleReport(t))

	resp, err = http.Get(srv.URL + "/api/report")
	if err != nil {
		t.Fatalf("GET /api/report: %v", err)
	}
	var rep analysis.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d want 200", resp.StatusCode)
	}
	if rep.Metadata.OrganizationName != "Contoso" {
		t.Fatalf("organizationName=%q", rep.Metadata.OrganizationName)
	}

	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if health["hasReport"] != true {
		t.Fatalf("hasReport=%v want true", health["hasReport"])
	}

	resp, err = http.Get(srv.URL + "/api/report/summary")
	if err != nil {
		t.Fatalf("GET /api/report/summary: %v", err)
	}
	var summary map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	resp.Body.Close()
	if _, ok := summary["securityAlerts"]; !ok {
		t.Fatalf("summary missing securityAlerts")
	}
}

func TestPrintSummary(t *testing.T) {
	t.Parallel()

	rep := sampleReport(t)
	rep.SecurityAlerts.High = append(rep.SecurityAlerts.High, "1 disabled users still have privileged role assignments")
	rep.DuplicatesRemoved = []dedupe.Removed{}

	var buf bytes.Buffer
	PrintSummary(&buf, rep, "1 of 8 services returned data")

	out := buf.String()
	for _, want := range []string{
		"Contoso",
		"1 of 8 services returned data",
		"HIGH (1)",
		"disabled users",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary output missing %q:\n%s", want, out)
		}
	}
}
