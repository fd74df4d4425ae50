// Package graph is a minimal Microsoft Graph client covering the role
// management surface the audit needs: directory roles, PIM schedule
// instances, unified RBAC providers and batch principal lookup. It speaks
// plain HTTP rather than pulling in the generated Graph SDK.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout    = 120 * time.Second
	maxRetriesOn429   = 5
	maxErrorBodySize  = 1 << 20 // 1 MiB
	defaultGraphBase  = "https://graph.microsoft.com/v1.0"
	defaultGraphBeta  = "https://graph.microsoft.com/beta"
	defaultAuthority  = "https://login.microsoftonline.com"
	defaultTokenScope = "https://graph.microsoft.com/.default"
	tokenExpiryLeeway = 30 * time.Second
	userAgent         = "privaudit"
)

// Credentials selects the app-only authentication method. Exactly one of
// ClientSecret or CertificatePath must be set.
type Credentials struct {
	TenantID        string
	ClientID        string
	ClientSecret    string
	CertificatePath string
}

type Options struct {
	HTTPClient       *http.Client
	GraphBaseURL     string
	GraphBetaBaseURL string
	AuthorityBaseURL string
}

type Client struct {
	tenantID string
	clientID string

	secret   string
	certPath string

	http          *http.Client
	graphBaseURL  string
	graphBetaURL  string
	authorityBase string

	mu                sync.Mutex
	cachedToken       string
	cachedTokenExpiry time.Time
}

func New(creds Credentials) (*Client, error) {
	return NewWithOptions(creds, Options{})
}

func NewWithOptions(creds Credentials, opts Options) (*Client, error) {
	tenantID := normalizeGUID(creds.TenantID)
	clientID := normalizeGUID(creds.ClientID)
	secret := strings.TrimSpace(creds.ClientSecret)
	certPath := strings.TrimSpace(creds.CertificatePath)

	if tenantID == "" {
		return nil, errors.New("graph tenant id is required")
	}
	if clientID == "" {
		return nil, errors.New("graph client id is required")
	}
	if secret == "" && certPath == "" {
		return nil, errors.New("graph client secret or certificate path is required")
	}

	graphBase := strings.TrimRight(strings.TrimSpace(opts.GraphBaseURL), "/")
	if graphBase == "" {
		graphBase = defaultGraphBase
	}
	graphBeta := strings.TrimRight(strings.TrimSpace(opts.GraphBetaBaseURL), "/")
	if graphBeta == "" {
		if graphBase == defaultGraphBase {
			graphBeta = defaultGraphBeta
		} else {
			graphBeta = graphBase
		}
	}
	authorityBase := strings.TrimRight(strings.TrimSpace(opts.AuthorityBaseURL), "/")
	if authorityBase == "" {
		authorityBase = defaultAuthority
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		tenantID:      tenantID,
		clientID:      clientID,
		secret:        secret,
		certPath:      certPath,
		http:          httpClient,
		graphBaseURL:  graphBase,
		graphBetaURL:  graphBeta,
		authorityBase: authorityBase,
	}, nil
}

// AuthType reports which app-only method this client authenticates with.
func (c *Client) AuthType() string {
	if c.certPath != "" {
		return "Certificate"
	}
	return "ClientSecret"
}

func (c *Client) listPagedRaw(ctx context.Context, endpoint string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for {
		body, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		var page struct {
			Value    []json.RawMessage `json:"value"`
			NextLink string            `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Value...)

		next := strings.TrimSpace(page.NextLink)
		if next == "" {
			break
		}
		endpoint = next
	}
	return out, nil
}

func (c *Client) graphURL(base, path string, query url.Values) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return "", errors.New("graph base url is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, endpoint, body)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetriesOn429; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout {
			respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			lastErr = formatGraphAPIError("graph api throttled", endpoint, resp, respBody)
			if attempt == maxRetriesOn429 {
				return nil, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = retryBackoff(attempt)
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
			resp.Body.Close()
			if readErr != nil {
				return nil, readErr
			}
			return nil, formatGraphAPIError("graph api failed", endpoint, resp, respBody)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		return respBody, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("graph request failed")
}

func (c *Client) token(ctx context.Context) (string, error) {
	now := time.Now()

	c.mu.Lock()
	cached := c.cachedToken
	exp := c.cachedTokenExpiry
	c.mu.Unlock()

	if strings.TrimSpace(cached) != "" && exp.After(now.Add(tokenExpiryLeeway)) {
		return cached, nil
	}

	accessToken, expiresAt, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cachedToken = accessToken
	c.cachedTokenExpiry = expiresAt
	c.mu.Unlock()

	return accessToken, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	endpoint, err := c.tokenEndpoint()
	if err != nil {
		return "", time.Time{}, err
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("scope", defaultTokenScope)
	form.Set("grant_type", "client_credentials")
	if c.certPath != "" {
		assertion, err := c.clientAssertion(endpoint)
		if err != nil {
			return "", time.Time{}, err
		}
		form.Set("client_assertion_type", "urn:ietf:params:oauth:client-assertion-type:jwt-bearer")
		form.Set("client_assertion", assertion)
	} else {
		form.Set("client_secret", c.secret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	resp.Body.Close()
	if readErr != nil {
		return "", time.Time{}, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, formatGraphAPIError("graph token request failed", endpoint, resp, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   any    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, err
	}

	accessToken := strings.TrimSpace(payload.AccessToken)
	if accessToken == "" {
		return "", time.Time{}, errors.New("graph token response missing access_token")
	}

	expiresIn, ok := parseExpiresInSeconds(payload.ExpiresIn)
	if !ok {
		expiresIn = 3600
	}
	expiresAt := time.Now().Add(time.Duration(expiresIn) * time.Second)
	return accessToken, expiresAt, nil
}

func (c *Client) tokenEndpoint() (string, error) {
	authority := strings.TrimRight(strings.TrimSpace(c.authorityBase), "/")
	if authority == "" {
		return "", errors.New("graph authority base url is required")
	}
	u, err := url.Parse(authority)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(c.tenantID) + "/oauth2/v2.0/token"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func parseExpiresInSeconds(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func retryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	wait := time.Second * time.Duration(1<<attempt)
	const max = 30 * time.Second
	if wait > max {
		wait = max
	}
	return wait
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeGUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	return strings.TrimSpace(s)
}

func formatGraphAPIError(prefix, reqURL string, resp *http.Response, body []byte) error {
	message := extractGraphAPIErrorMessage(body)
	details := formatGraphAPIErrorDetails(reqURL, resp)

	if message != "" && details != "" {
		return fmt.Errorf("%s: %s: %s (%s)", prefix, resp.Status, message, details)
	}
	if message != "" {
		return fmt.Errorf("%s: %s: %s", prefix, resp.Status, message)
	}
	if details != "" {
		return fmt.Errorf("%s: %s (%s)", prefix, resp.Status, details)
	}
	return fmt.Errorf("%s: %s", prefix, resp.Status)
}

func extractGraphAPIErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		msg := strings.TrimSpace(payload.Error.Message)
		code := strings.TrimSpace(payload.Error.Code)
		if msg != "" && code != "" {
			return code + ": " + msg
		}
		if msg != "" {
			return msg
		}
		if code != "" {
			return code
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return ""
	}
	msg = strings.Join(strings.Fields(msg), " ")
	const maxLen = 300
	if len(msg) > maxLen {
		msg = msg[:maxLen] + "…"
	}
	return msg
}

func formatGraphAPIErrorDetails(reqURL string, resp *http.Response) string {
	var parts []string
	if v := safeURL(reqURL); v != "" {
		parts = append(parts, "url="+v)
	}
	if v := strings.TrimSpace(resp.Header.Get("request-id")); v != "" {
		parts = append(parts, "request_id="+v)
	}
	if v := strings.TrimSpace(resp.Header.Get("client-request-id")); v != "" {
		parts = append(parts, "client_request_id="+v)
	}
	if v := strings.TrimSpace(resp.Header.Get("Retry-After")); v != "" {
		parts = append(parts, "retry_after="+v)
	}
	return strings.Join(parts, ", ")
}

func safeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		return u.Scheme + "://" + u.Host + u.Path + "?" + u.RawQuery
	}
	return u.Scheme + "://" + u.Host + u.Path
}
