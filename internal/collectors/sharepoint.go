package collectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/koltyakov/gosip"
	"github.com/koltyakov/gosip/api"
	"github.com/koltyakov/gosip/auth/azurecert"

	"github.com/privaudit/privaudit/internal/assignment"
)

// SiteAdmin is one site collection administrator as reported by the
// SharePoint REST API.
type SiteAdmin struct {
	LoginName string
	Title     string
	Email     string
	SiteURL   string
	SiteTitle string
}

// SharePointCollector combines site collection administrators from the
// SharePoint REST API with the SharePoint directory roles. Without a
// configured REST client it still reports the directory view.
type SharePointCollector struct{}

func (c *SharePointCollector) Kind() string { return "sharepoint" }

func (c *SharePointCollector) Service() assignment.Service { return assignment.ServiceSharePoint }

func (c *SharePointCollector) Collect(ctx context.Context, deps Deps) ([]assignment.Record, error) {
	match := nameContainsAny("sharepoint")
	records, err := collectDirectoryRoles(ctx, deps, c.Service(), match, assignment.TypeAzureADRole)
	if err != nil {
		return nil, err
	}

	if deps.SharePoint == nil {
		deps.logger().Debug("sharepoint rest access not configured, reporting directory roles only", "collector", c.Kind())
		return records, nil
	}

	admins, err := deps.SharePoint.ListSiteAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list site collection admins: %w", err)
	}
	for _, admin := range admins {
		records = append(records, siteAdminRecord(admin))
	}
	return records, nil
}

func siteAdminRecord(admin SiteAdmin) assignment.Record {
	upn := upnFromLoginName(admin.LoginName)
	if upn == "" {
		upn = strings.TrimSpace(admin.Email)
	}

	rec := assignment.Record{
		Service:           assignment.ServiceSharePoint,
		UserPrincipalName: assignment.UnknownPrincipal,
		DisplayName:       strings.TrimSpace(admin.Title),
		RoleName:          "Site Collection Administrator",
		RoleScope:         assignment.ScopeServiceSpecific,
		AssignmentType:    assignment.TypeActive,
		PrincipalType:     assignment.PrincipalUser,
		SiteTitle:         strings.TrimSpace(admin.SiteTitle),
	}
	if upn != "" {
		rec.UserPrincipalName = upn
	}
	if rec.DisplayName == "" {
		rec.DisplayName = assignment.UnknownPrincipal
	}
	if isSystemLogin(admin.LoginName) {
		rec.UserPrincipalName = assignment.SystemGenerated
		rec.PrincipalType = assignment.PrincipalServicePrincipal
	}
	return rec
}

// upnFromLoginName strips the SharePoint claims prefix, e.g.
// "i:0#.f|membership|alice@contoso.com" yields "alice@contoso.com".
func upnFromLoginName(loginName string) string {
	loginName = strings.TrimSpace(loginName)
	if loginName == "" {
		return ""
	}
	if idx := strings.LastIndex(loginName, "|"); idx >= 0 {
		loginName = loginName[idx+1:]
	}
	if !strings.Contains(loginName, "@") {
		return ""
	}
	return loginName
}

func isSystemLogin(loginName string) bool {
	lowered := strings.ToLower(loginName)
	return strings.Contains(lowered, "sharepoint\\system") || strings.Contains(lowered, "app@sharepoint")
}

// SharePointClient lists site collection administrators through gosip.
// SharePoint app-only REST access requires certificate authentication.
type SharePointClient struct {
	sp      *api.SP
	siteURL string
}

type SharePointConfig struct {
	SiteURL         string
	TenantID        string
	ClientID        string
	CertificatePath string
	CertificatePass string
}

func NewSharePointClient(cfg SharePointConfig) (*SharePointClient, error) {
	if strings.TrimSpace(cfg.SiteURL) == "" {
		return nil, fmt.Errorf("sharepoint site url is required")
	}
	if strings.TrimSpace(cfg.CertificatePath) == "" {
		return nil, fmt.Errorf("sharepoint app-only access requires a certificate")
	}

	auth := &azurecert.AuthCnfg{
		SiteURL:  cfg.SiteURL,
		TenantID: cfg.TenantID,
		ClientID: cfg.ClientID,
		CertPath: cfg.CertificatePath,
		CertPass: cfg.CertificatePass,
	}
	client := &gosip.SPClient{AuthCnfg: auth}
	return &SharePointClient{
		sp:      api.NewSP(client),
		siteURL: strings.TrimRight(cfg.SiteURL, "/"),
	}, nil
}

func (c *SharePointClient) ListSiteAdmins(ctx context.Context) ([]SiteAdmin, error) {
	sp := c.sp.Conf(&api.RequestConfig{Context: ctx})

	webResp, err := sp.Web().Select("Title").Get()
	if err != nil {
		return nil, fmt.Errorf("get web: %w", err)
	}
	siteTitle := webResp.Data().Title

	usersResp, err := sp.Web().SiteUsers().
		Select("Id,Title,Email,LoginName,IsSiteAdmin").
		Filter("IsSiteAdmin eq true").
		Get()
	if err != nil {
		return nil, fmt.Errorf("list site users: %w", err)
	}

	users := usersResp.Data()
	admins := make([]SiteAdmin, 0, len(users))
	for _, user := range users {
		info := user.Data()
		admins = append(admins, SiteAdmin{
			LoginName: info.LoginName,
			Title:     info.Title,
			Email:     info.Email,
			SiteURL:   c.siteURL,
			SiteTitle: siteTitle,
		})
	}
	return admins, nil
}
