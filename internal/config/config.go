package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr      = ":8080"
	defaultMetricsAddr   = ":9090"
	defaultAuditInterval = 24 * time.Hour
	defaultWorkers       = 4
	defaultOutputPath    = "privaudit-report.json"
	defaultDedupMode     = "strict"
)

// Config is the audit runtime configuration, loaded once per process from
// the environment (plus an optional .env file) and passed by value from
// there on. Nothing reads the environment after Load returns.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// CertificatePath switches token acquisition to certificate auth when
	// set; the audit report tracks which method was used.
	CertificatePath string
	CertificatePass string

	OrganizationName   string
	Services           []string
	DedupMode          string
	PreferAzureAD      bool
	IncludeOverarching bool
	DetailedStats      bool

	SharePointAdminURL string

	OutputPath    string
	HTTPAddr      string
	MetricsAddr   string
	AuditInterval time.Duration
	Workers       int

	GraphBaseURL     string
	AuthorityBaseURL string
}

// LoadOptions controls which settings are mandatory for the command at hand.
type LoadOptions struct {
	RequireCredentials bool
}

// Load reads configuration for commands that talk to the tenant.
func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireCredentials: true})
}

// LoadOptional reads configuration without requiring tenant credentials.
func LoadOptional() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireCredentials: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	cfg := Config{
		TenantID:        os.Getenv("TENANT_ID"),
		ClientID:        os.Getenv("CLIENT_ID"),
		ClientSecret:    os.Getenv("CLIENT_SECRET"),
		CertificatePath: os.Getenv("CERTIFICATE_PATH"),
		CertificatePass: os.Getenv("CERTIFICATE_PASSWORD"),

		OrganizationName:   os.Getenv("ORGANIZATION_NAME"),
		Services:           splitServices(os.Getenv("SERVICES")),
		DedupMode:          getenvDefault("DEDUP_MODE", defaultDedupMode),
		PreferAzureAD:      getenvBoolDefault("PREFER_AZUREAD_SOURCE", true),
		IncludeOverarching: getenvBoolDefault("INCLUDE_OVERARCHING_ROLES", true),
		DetailedStats:      getenvBoolDefault("DETAILED_STATS", true),

		SharePointAdminURL: os.Getenv("SHAREPOINT_ADMIN_URL"),

		OutputPath:    getenvDefault("OUTPUT_PATH", defaultOutputPath),
		HTTPAddr:      getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:   getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		AuditInterval: defaultAuditInterval,
		Workers:       getenvIntDefault("COLLECTOR_WORKERS", defaultWorkers),

		GraphBaseURL:     os.Getenv("GRAPH_BASE_URL"),
		AuthorityBaseURL: os.Getenv("AUTHORITY_BASE_URL"),
	}

	if v := os.Getenv("AUDIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AuditInterval = d
		}
	}

	if cfg.OrganizationName == "" {
		cfg.OrganizationName = cfg.TenantID
	}

	if opts.RequireCredentials {
		if cfg.TenantID == "" {
			return cfg, errors.New("TENANT_ID is required")
		}
		if cfg.ClientID == "" {
			return cfg, errors.New("CLIENT_ID is required")
		}
		if cfg.ClientSecret == "" && cfg.CertificatePath == "" {
			return cfg, errors.New("CLIENT_SECRET or CERTIFICATE_PATH is required")
		}
	}

	return cfg, nil
}

// AuthType reports the authentication method this configuration selects.
func (c Config) AuthType() string {
	if c.CertificatePath != "" {
		return "Certificate"
	}
	return "ClientSecret"
}

func splitServices(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}
