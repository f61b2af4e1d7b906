// Package azurescan reads unhealthy Microsoft Defender for Cloud assessments
// of an Azure subscription over the management REST API.
package azurescan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

const (
	DefaultAuthorityHost      = "https://login.microsoftonline.com"
	DefaultManagementEndpoint = "https://management.azure.com"

	assessmentsAPIVersion = "2021-06-01"
	maxPages              = 100
)

type Factory struct {
	authorityHost string
	management    string
	httpClient    *http.Client
	logger        logging.Logger
}

type Option func(*Factory)

// WithEndpoints overrides the Entra ID authority and ARM endpoints, e.g. for
// sovereign clouds.
func WithEndpoints(authorityHost, management string) Option {
	return func(f *Factory) {
		if authorityHost != "" {
			f.authorityHost = strings.TrimRight(authorityHost, "/")
		}
		if management != "" {
			f.management = strings.TrimRight(management, "/")
		}
	}
}

// WithHTTPClient sets the transport used for both token and API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.httpClient = c }
}

func NewFactory(logger logging.Logger, opts ...Option) *Factory {
	f := &Factory{
		authorityHost: DefaultAuthorityHost,
		management:    DefaultManagementEndpoint,
		httpClient:    http.DefaultClient,
		logger:        logger.With("module", "azurescan"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) Provider() models.Provider { return models.ProviderAzure }

// New builds a Scanner that authenticates as the service principal in creds
// with the client credentials grant.
func (f *Factory) New(ctx context.Context, creds scanners.Credentials) (scanners.CloudScanner, error) {
	c, err := creds.Azure()
	if err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", f.authorityHost, url.PathEscape(c.TenantID)),
		Scopes:       []string{f.management + "/.default"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)

	return &Scanner{
		client:         cc.Client(tokenCtx),
		management:     f.management,
		subscriptionID: c.SubscriptionID,
		logger:         f.logger,
	}, nil
}

type Scanner struct {
	client         *http.Client
	management     string
	subscriptionID string
	logger         logging.Logger
}

type assessmentList struct {
	Value    []assessment `json:"value"`
	NextLink string       `json:"nextLink"`
}

type assessment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		DisplayName string `json:"displayName"`
		Status      struct {
			Code        string `json:"code"`
			Cause       string `json:"cause"`
			Description string `json:"description"`
		} `json:"status"`
		ResourceDetails map[string]string `json:"resourceDetails"`
		Metadata        struct {
			DisplayName            string   `json:"displayName"`
			Severity               string   `json:"severity"`
			Description            string   `json:"description"`
			RemediationDescription string   `json:"remediationDescription"`
			Categories             []string `json:"categories"`
			AssessmentType         string   `json:"assessmentType"`
		} `json:"metadata"`
	} `json:"properties"`
}

// ScanAll pages through every assessment of the subscription and returns
// the unhealthy ones. Findings are not normalized here: FindingID is left
// empty and severity keeps the casing Azure reports.
func (s *Scanner) ScanAll(ctx context.Context) ([]models.ProviderFinding, error) {
	next := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.Security/assessments?api-version=%s&$expand=metadata",
		s.management, url.PathEscape(s.subscriptionID), assessmentsAPIVersion)

	var out []models.ProviderFinding
	for page := 0; next != ""; page++ {
		if page == maxPages {
			s.logger.Warn(ctx, "assessment paging stopped", "subscription", s.subscriptionID, "pages", page)
			break
		}
		list, err := s.fetch(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, a := range list.Value {
			if !strings.EqualFold(a.Properties.Status.Code, "Unhealthy") {
				continue
			}
			out = append(out, a.toFinding())
		}
		next = list.NextLink
		if next != "" && !sameOrigin(next, s.management) {
			return nil, fmt.Errorf("list assessments: nextLink points outside %s", s.management)
		}
	}
	return out, nil
}

// sameOrigin reports whether link has the scheme and host of base. The
// client attaches a bearer token to every request it sends.
func sameOrigin(link, base string) bool {
	l, err := url.Parse(link)
	if err != nil {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return strings.EqualFold(l.Scheme, b.Scheme) && strings.EqualFold(l.Host, b.Host)
}

func (s *Scanner) fetch(ctx context.Context, u string) (*assessmentList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list assessments: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var list assessmentList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode assessments: %w", err)
	}
	return &list, nil
}

func (a assessment) toFinding() models.ProviderFinding {
	p := a.Properties

	title := p.DisplayName
	if title == "" {
		title = p.Metadata.DisplayName
	}
	desc := p.Metadata.Description
	if desc == "" {
		desc = p.Status.Description
	}
	resourceID := resourceFromAssessment(a.ID, p.ResourceDetails)

	var category string
	if len(p.Metadata.Categories) > 0 {
		category = p.Metadata.Categories[0]
	}
	severity := p.Metadata.Severity
	if severity == "" {
		severity = "Medium"
	}

	return models.ProviderFinding{
		Title:         title,
		Description:   desc,
		Severity:      severity,
		Category:      category,
		ResourceID:    resourceID,
		ResourceType:  resourceType(resourceID),
		Remediation:   p.Metadata.RemediationDescription,
		ComplianceRef: "MCSB-" + a.Name,
		Metadata: map[string]any{
			"assessmentId":   a.ID,
			"statusCause":    p.Status.Cause,
			"assessmentType": p.Metadata.AssessmentType,
		},
	}
}

// resourceFromAssessment prefers the resource id from resourceDetails and
// falls back to the assessment id without its
// /providers/Microsoft.Security/assessments/<name> suffix.
func resourceFromAssessment(assessmentID string, details map[string]string) string {
	for _, k := range []string{"Id", "id", "ResourceId", "resourceId"} {
		if v := details[k]; v != "" {
			return v
		}
	}
	if i := strings.Index(strings.ToLower(assessmentID), "/providers/microsoft.security/assessments/"); i > 0 {
		return assessmentID[:i]
	}
	return assessmentID
}

// resourceType extracts "<namespace>/<type>" from the last providers segment
// of an ARM id. Subscription-scoped ids yield "Microsoft.Resources/subscriptions".
func resourceType(id string) string {
	parts := strings.Split(strings.Trim(id, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if strings.EqualFold(parts[i], "providers") && i+2 < len(parts) {
			return parts[i+1] + "/" + parts[i+2]
		}
	}
	if len(parts) > 0 && strings.EqualFold(parts[0], "subscriptions") {
		if len(parts) >= 4 && strings.EqualFold(parts[2], "resourceGroups") {
			return "Microsoft.Resources/resourceGroups"
		}
		return "Microsoft.Resources/subscriptions"
	}
	return "Unknown"
}
