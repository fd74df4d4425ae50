package config

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TENANT_ID", "CLIENT_ID", "CLIENT_SECRET", "CERTIFICATE_PATH",
		"ORGANIZATION_NAME", "SERVICES", "DEDUP_MODE", "AUDIT_INTERVAL",
		"OUTPUT_PATH", "COLLECTOR_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadWithOptions_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithOptions(LoadOptions{RequireCredentials: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.DedupMode != defaultDedupMode {
		t.Fatalf("DedupMode = %q, want %q", cfg.DedupMode, defaultDedupMode)
	}
	if cfg.AuditInterval != defaultAuditInterval {
		t.Fatalf("AuditInterval = %s, want %s", cfg.AuditInterval, defaultAuditInterval)
	}
	if cfg.OutputPath != defaultOutputPath {
		t.Fatalf("OutputPath = %q, want %q", cfg.OutputPath, defaultOutputPath)
	}
	if !cfg.PreferAzureAD || !cfg.IncludeOverarching || !cfg.DetailedStats {
		t.Fatal("boolean defaults should be enabled")
	}
}

func TestLoadWithOptions_RequiresCredentials(t *testing.T) {
	clearEnv(t)

	if _, err := LoadWithOptions(LoadOptions{RequireCredentials: true}); err == nil {
		t.Fatal("expected missing TENANT_ID error")
	}

	t.Setenv("TENANT_ID", "tenant")
	t.Setenv("CLIENT_ID", "client")
	if _, err := LoadWithOptions(LoadOptions{RequireCredentials: true}); err == nil {
		t.Fatal("expected missing secret/certificate error")
	}

	t.Setenv("CLIENT_SECRET", "s3cret")
	cfg, err := LoadWithOptions(LoadOptions{RequireCredentials: true})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.AuthType() != "ClientSecret" {
		t.Fatalf("AuthType = %q, want ClientSecret", cfg.AuthType())
	}

	t.Setenv("CERTIFICATE_PATH", "/etc/privaudit/app.pfx")
	cfg, err = LoadWithOptions(LoadOptions{RequireCredentials: true})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	if cfg.AuthType() != "Certificate" {
		t.Fatalf("AuthType = %q, want Certificate", cfg.AuthType())
	}
}

func TestLoadWithOptions_ParsesServicesAndInterval(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICES", "azuread, exchange,, intune ")
	t.Setenv("AUDIT_INTERVAL", "6h")
	t.Setenv("ORGANIZATION_NAME", "")
	t.Setenv("TENANT_ID", "contoso.onmicrosoft.com")

	cfg, err := LoadWithOptions(LoadOptions{RequireCredentials: false})
	if err != nil {
		t.Fatalf("LoadWithOptions() error = %v", err)
	}
	want := []string{"azuread", "exchange", "intune"}
	if len(cfg.Services) != len(want) {
		t.Fatalf("Services = %v, want %v", cfg.Services, want)
	}
	for i := range want {
		if cfg.Services[i] != want[i] {
			t.Fatalf("Services[%d] = %q, want %q", i, cfg.Services[i], want[i])
		}
	}
	if cfg.AuditInterval.String() != "6h0m0s" {
		t.Fatalf("AuditInterval = %s, want 6h", cfg.AuditInterval)
	}
	if cfg.OrganizationName != "contoso.onmicrosoft.com" {
		t.Fatalf("OrganizationName should fall back to tenant id, got %q", cfg.OrganizationName)
	}
}
