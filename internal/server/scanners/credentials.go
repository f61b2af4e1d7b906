package scanners

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
)

// DefaultAWSRegion is used when the payload names no region.
const DefaultAWSRegion = "us-east-1"

// Credentials is the decrypted credential JSON of a CloudAccount.
type Credentials map[string]any

// ParseCredentials decodes a decrypted credential payload. Anything other
// than a JSON object is rejected with common.ErrInvalidCredentials.
func ParseCredentials(plaintext string) (Credentials, error) {
	var c Credentials
	if err := json.Unmarshal([]byte(plaintext), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidCredentials, err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: payload is not an object", common.ErrInvalidCredentials)
	}
	return c, nil
}

// lookup returns the first non-empty string stored under one of keys.
func (c Credentials) lookup(keys ...string) string {
	for _, k := range keys {
		if s, ok := c[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

type AWSCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	SessionToken    string
}

// AWS reads AWS key material. Both the plain and the aws-prefixed key names
// are accepted.
func (c Credentials) AWS() (AWSCredentials, error) {
	out := AWSCredentials{
		AccessKeyID:     c.lookup("accessKeyId", "awsAccessKeyId"),
		SecretAccessKey: c.lookup("secretAccessKey", "awsSecretAccessKey"),
		Region:          c.lookup("region", "awsRegion"),
		SessionToken:    c.lookup("sessionToken", "awsSessionToken"),
	}
	if out.Region == "" {
		out.Region = DefaultAWSRegion
	}
	if err := requireKeys(map[string]string{
		"accessKeyId":     out.AccessKeyID,
		"secretAccessKey": out.SecretAccessKey,
	}); err != nil {
		return AWSCredentials{}, err
	}
	return out, nil
}

type AzureCredentials struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	SubscriptionID string
}

// Azure reads service principal material. Both the plain and the
// azure-prefixed key names are accepted.
func (c Credentials) Azure() (AzureCredentials, error) {
	out := AzureCredentials{
		TenantID:       c.lookup("tenantId", "azureTenantId"),
		ClientID:       c.lookup("clientId", "azureClientId"),
		ClientSecret:   c.lookup("clientSecret", "azureClientSecret"),
		SubscriptionID: c.lookup("subscriptionId", "azureSubscriptionId"),
	}
	if err := requireKeys(map[string]string{
		"tenantId":       out.TenantID,
		"clientId":       out.ClientID,
		"clientSecret":   out.ClientSecret,
		"subscriptionId": out.SubscriptionID,
	}); err != nil {
		return AzureCredentials{}, err
	}
	return out, nil
}

func requireKeys(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", common.ErrInvalidCredentials, strings.Join(missing, ", "))
}
