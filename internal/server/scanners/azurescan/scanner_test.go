package azurescan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

const (
	vmID       = "/subscriptions/sub-1/resourceGroups/rg/providers/Microsoft.Compute/virtualMachines/vm1"
	storageID  = "/subscriptions/sub-1/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/st1"
	assessPath = "/subscriptions/sub-1/providers/Microsoft.Security/assessments"
)

func assessmentJSON(name, code, severity, resource string) map[string]any {
	return map[string]any{
		"id":   resource + "/providers/Microsoft.Security/assessments/" + name,
		"name": name,
		"properties": map[string]any{
			"displayName": "Assessment " + name,
			"status":      map[string]any{"code": code, "cause": "OffByPolicy"},
			"resourceDetails": map[string]any{
				"Source": "Azure",
				"Id":     resource,
			},
			"metadata": map[string]any{
				"displayName":            "Assessment " + name,
				"severity":               severity,
				"description":            "desc " + name,
				"remediationDescription": "fix " + name,
				"categories":             []string{"Compute", "Data"},
				"assessmentType":         "BuiltIn",
			},
		},
	}
}

type azureStub struct {
	srv         *httptest.Server
	tokenCalls  atomic.Int32
	apiStatus   int
	pages       []map[string]any
	badAuthSeen atomic.Bool
}

func newAzureStub(t *testing.T) *azureStub {
	t.Helper()
	s := &azureStub{apiStatus: http.StatusOK}
	mux := http.NewServeMux()

	mux.HandleFunc("/tenant-1/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, s.srv.URL+"/.default", r.PostForm.Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})

	mux.HandleFunc(assessPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			s.badAuthSeen.Store(true)
		}
		assert.Equal(t, "2021-06-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "metadata", r.URL.Query().Get("$expand"))

		if s.apiStatus != http.StatusOK {
			w.WriteHeader(s.apiStatus)
			_, _ = w.Write([]byte(`{"error":{"code":"AuthorizationFailed"}}`))
			return
		}
		idx := 0
		if p := r.URL.Query().Get("page"); p == "2" {
			idx = 1
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.pages[idx])
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *azureStub) factory() *Factory {
	return NewFactory(logging.Nop(), WithEndpoints(s.srv.URL, s.srv.URL), WithHTTPClient(s.srv.Client()))
}

func validCreds() scanners.Credentials {
	return scanners.Credentials{
		"azureTenantId": "tenant-1", "clientId": "client-1",
		"clientSecret": "secret-1", "subscriptionId": "sub-1",
	}
}

func TestScanAll_ReturnsUnhealthyAcrossPages(t *testing.T) {
	stub := newAzureStub(t)
	stub.pages = []map[string]any{
		{
			"value": []any{
				assessmentJSON("a1", "Unhealthy", "High", vmID),
				assessmentJSON("a2", "Healthy", "High", vmID),
			},
			"nextLink": stub.srv.URL + assessPath + "?api-version=2021-06-01&$expand=metadata&page=2",
		},
		{
			"value": []any{
				assessmentJSON("a3", "Unhealthy", "Low", storageID),
				assessmentJSON("a4", "NotApplicable", "Medium", storageID),
			},
		},
	}

	sc, err := stub.factory().New(context.Background(), validCreds())
	require.NoError(t, err)

	got, err := sc.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, stub.badAuthSeen.Load())
	assert.Equal(t, int32(1), stub.tokenCalls.Load(), "token is reused across pages")

	first := got[0]
	assert.Empty(t, first.FindingID)
	assert.Equal(t, "Assessment a1", first.Title)
	assert.Equal(t, "High", first.Severity)
	assert.Equal(t, vmID, first.ResourceID)
	assert.Equal(t, "Microsoft.Compute/virtualMachines", first.ResourceType)
	assert.Equal(t, "Compute", first.Category)
	assert.Equal(t, "fix a1", first.Remediation)
	assert.Equal(t, "MCSB-a1", first.ComplianceRef)
	assert.Empty(t, first.Compliance)

	assert.Equal(t, "Microsoft.Storage/storageAccounts", got[1].ResourceType)
	assert.Equal(t, "Low", got[1].Severity)
}

func TestScanAll_NonOKStatus(t *testing.T) {
	stub := newAzureStub(t)
	stub.apiStatus = http.StatusForbidden

	sc, err := stub.factory().New(context.Background(), validCreds())
	require.NoError(t, err)

	_, err = sc.ScanAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
	assert.Contains(t, err.Error(), "AuthorizationFailed")
}

func TestScanAll_RefusesForeignNextLink(t *testing.T) {
	var foreignHits atomic.Int32
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits.Add(1)
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	t.Cleanup(foreign.Close)

	stub := newAzureStub(t)
	stub.pages = []map[string]any{{
		"value":    []any{assessmentJSON("a1", "Unhealthy", "High", vmID)},
		"nextLink": foreign.URL + assessPath + "?api-version=2021-06-01&$expand=metadata&page=2",
	}}

	sc, err := stub.factory().New(context.Background(), validCreds())
	require.NoError(t, err)

	_, err = sc.ScanAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nextLink points outside")
	assert.Zero(t, foreignHits.Load())
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://management.azure.com/subscriptions/s?page=2", true},
		{"HTTPS://Management.Azure.com/x", true},
		{"http://management.azure.com/x", false},
		{"https://evil.example.com/x", false},
		{"https://management.azure.com:8443/x", false},
		{"/relative/path", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			assert.Equal(t, tt.want, sameOrigin(tt.link, DefaultManagementEndpoint))
		})
	}
}

func TestFactory_InvalidCredentials(t *testing.T) {
	f := NewFactory(logging.Nop())
	assert.Equal(t, models.ProviderAzure, f.Provider())

	_, err := f.New(context.Background(), scanners.Credentials{"tenantId": "t"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestResourceFromAssessment(t *testing.T) {
	assert.Equal(t, vmID, resourceFromAssessment("x", map[string]string{"Id": vmID}))
	assert.Equal(t, vmID, resourceFromAssessment("x", map[string]string{"ResourceId": vmID}))
	assert.Equal(t, vmID, resourceFromAssessment(vmID+"/providers/Microsoft.Security/assessments/abc", nil))
	assert.Equal(t, "/subscriptions/sub-1", resourceFromAssessment("/subscriptions/sub-1/providers/Microsoft.Security/assessments/abc", nil))
}

func TestResourceType(t *testing.T) {
	tests := []struct{ in, want string }{
		{vmID, "Microsoft.Compute/virtualMachines"},
		{"/subscriptions/sub-1", "Microsoft.Resources/subscriptions"},
		{"/subscriptions/sub-1/resourceGroups/rg", "Microsoft.Resources/resourceGroups"},
		{"/subscriptions/s/resourceGroups/rg/providers/Microsoft.Sql/servers/db1/providers/Microsoft.Security/x/y", "Microsoft.Security/x"},
		{"garbage", "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resourceType(tt.in), tt.in)
	}
}

func TestToFinding_Fallbacks(t *testing.T) {
	var a assessment
	a.Name = "n1"
	a.ID = "/subscriptions/sub-1/providers/Microsoft.Security/assessments/n1"
	a.Properties.Metadata.DisplayName = "Meta title"
	a.Properties.Status.Description = "status desc"

	f := a.toFinding()
	assert.Equal(t, "Meta title", f.Title)
	assert.Equal(t, "status desc", f.Description)
	assert.Equal(t, "Medium", f.Severity)
	assert.Equal(t, "/subscriptions/sub-1", f.ResourceID)
	assert.Empty(t, f.Category)
}
