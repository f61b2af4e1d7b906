// Package awsscan checks an AWS account for common CIS benchmark
// misconfigurations using the AWS SDK.
//
// Findings leave the scanner already normalized: they carry a stable
// FindingID, a lower-case severity and a Compliance list.
package awsscan

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	stssvc "github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
	"github.com/dmitrijs2005/cloudwarden/internal/server/scanners"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

type Factory struct {
	newClients clientFactory
	logger     logging.Logger
}

func NewFactory(logger logging.Logger) *Factory {
	return &Factory{newClients: newSDKClients, logger: logger.With("module", "awsscan")}
}

func (f *Factory) Provider() models.Provider { return models.ProviderAWS }

// New builds a Scanner bound to the static credentials in creds.
func (f *Factory) New(ctx context.Context, creds scanners.Credentials) (scanners.CloudScanner, error) {
	c, err := creds.AWS()
	if err != nil {
		return nil, err
	}

	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKeyID, c.SecretAccessKey, c.SessionToken,
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Scanner{clients: f.newClients(cfg), region: c.Region, logger: f.logger}, nil
}

// Scanner runs the AWS checks for one account and region. Global services
// (IAM, S3, CloudTrail) are queried through the same regional clients.
type Scanner struct {
	clients *clients
	region  string
	logger  logging.Logger
}

type check struct {
	name string
	run  func(s *Scanner, ctx context.Context, accountID string) ([]models.ProviderFinding, error)
}

var checks = []check{
	{"s3", (*Scanner).checkS3Buckets},
	{"iam-users", (*Scanner).checkIAMUsers},
	{"root", (*Scanner).checkRootAccount},
	{"security-groups", (*Scanner).checkSecurityGroups},
	{"cloudtrail", (*Scanner).checkCloudTrail},
	{"guardduty", (*Scanner).checkGuardDuty},
	{"config", (*Scanner).checkConfigRecorder},
}

// ScanAll verifies the credentials with STS and then runs every check. A
// failing STS call fails the scan; a failing check is logged and skipped.
func (s *Scanner) ScanAll(ctx context.Context) ([]models.ProviderFinding, error) {
	id, err := s.clients.STS.GetCallerIdentity(ctx, &stssvc.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("get caller identity: %w", err)
	}
	accountID := aws.ToString(id.Account)

	var out []models.ProviderFinding
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := c.run(s, ctx, accountID)
		if err != nil {
			s.logger.Warn(ctx, "aws check failed", "check", c.name, "account", accountID, "error", err)
			continue
		}
		out = append(out, found...)
	}
	return out, nil
}
