package scanners

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/cloudwarden/internal/common"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredentials(t *testing.T) {
	c, err := ParseCredentials(`{"accessKeyId":"AKIA","secretAccessKey":"s"}`)
	require.NoError(t, err)
	assert.Equal(t, "AKIA", c["accessKeyId"])

	_, err = ParseCredentials(`not-json`)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = ParseCredentials(`null`)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = ParseCredentials(`["a"]`)
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestCredentials_AWS(t *testing.T) {
	tests := []struct {
		name    string
		in      Credentials
		want    AWSCredentials
		wantErr string
	}{
		{
			name: "plain keys, default region",
			in:   Credentials{"accessKeyId": "AKIA1", "secretAccessKey": "s1"},
			want: AWSCredentials{AccessKeyID: "AKIA1", SecretAccessKey: "s1", Region: "us-east-1"},
		},
		{
			name: "prefixed aliases",
			in: Credentials{
				"awsAccessKeyId": "AKIA2", "awsSecretAccessKey": "s2",
				"awsRegion": "eu-west-1", "awsSessionToken": "tok",
			},
			want: AWSCredentials{AccessKeyID: "AKIA2", SecretAccessKey: "s2", Region: "eu-west-1", SessionToken: "tok"},
		},
		{
			name: "plain key wins over alias",
			in:   Credentials{"accessKeyId": "plain", "awsAccessKeyId": "alias", "secretAccessKey": "s", "region": "us-west-2"},
			want: AWSCredentials{AccessKeyID: "plain", SecretAccessKey: "s", Region: "us-west-2"},
		},
		{
			name: "blank plain key falls back to alias",
			in:   Credentials{"accessKeyId": "  ", "awsAccessKeyId": "alias", "secretAccessKey": "s"},
			want: AWSCredentials{AccessKeyID: "alias", SecretAccessKey: "s", Region: "us-east-1"},
		},
		{
			name:    "missing secret",
			in:      Credentials{"accessKeyId": "AKIA"},
			wantErr: "missing secretAccessKey",
		},
		{
			name:    "non-string values are ignored",
			in:      Credentials{"accessKeyId": 42, "secretAccessKey": true},
			wantErr: "missing accessKeyId, secretAccessKey",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.AWS()
			if tt.wantErr != "" {
				require.ErrorIs(t, err, common.ErrInvalidCredentials)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_Azure(t *testing.T) {
	got, err := Credentials{
		"tenantId": "t", "azureClientId": "c", "clientSecret": "s", "azureSubscriptionId": "sub",
	}.Azure()
	require.NoError(t, err)
	assert.Equal(t, AzureCredentials{TenantID: "t", ClientID: "c", ClientSecret: "s", SubscriptionID: "sub"}, got)

	_, err = Credentials{"tenantId": "t"}.Azure()
	require.ErrorIs(t, err, common.ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "missing clientId, clientSecret, subscriptionId")
}

type stubFactory struct {
	p   models.Provider
	tag string
}

func (f stubFactory) Provider() models.Provider { return f.p }
func (f stubFactory) New(context.Context, Credentials) (CloudScanner, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	reg := Registry(
		stubFactory{p: models.ProviderAWS, tag: "first"},
		stubFactory{p: models.ProviderAzure},
		stubFactory{p: models.ProviderAWS, tag: "second"},
	)
	require.Len(t, reg, 2)
	assert.Equal(t, "second", reg[models.ProviderAWS].(stubFactory).tag)
	assert.Contains(t, reg, models.ProviderAzure)
}
