package awsscan

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	guarddutysvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"
	stssvc "github.com/aws/aws-sdk-go-v2/service/sts"
)

type s3API interface {
	ListBuckets(ctx context.Context, params *s3svc.ListBucketsInput, optFns ...func(*s3svc.Options)) (*s3svc.ListBucketsOutput, error)
	GetBucketPolicyStatus(ctx context.Context, params *s3svc.GetBucketPolicyStatusInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketPolicyStatusOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3svc.GetBucketEncryptionInput, optFns ...func(*s3svc.Options)) (*s3svc.GetBucketEncryptionOutput, error)
}

type ec2API interface {
	DescribeSecurityGroups(ctx context.Context, params *ec2svc.DescribeSecurityGroupsInput, optFns ...func(*ec2svc.Options)) (*ec2svc.DescribeSecurityGroupsOutput, error)
}

// iamAPI embeds ListUsersAPIClient so the SDK paginator can drive it.
type iamAPI interface {
	iamsvc.ListUsersAPIClient
	ListMFADevices(ctx context.Context, params *iamsvc.ListMFADevicesInput, optFns ...func(*iamsvc.Options)) (*iamsvc.ListMFADevicesOutput, error)
	GetLoginProfile(ctx context.Context, params *iamsvc.GetLoginProfileInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetLoginProfileOutput, error)
	GetAccountSummary(ctx context.Context, params *iamsvc.GetAccountSummaryInput, optFns ...func(*iamsvc.Options)) (*iamsvc.GetAccountSummaryOutput, error)
}

type cloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrailsvc.DescribeTrailsInput, optFns ...func(*cloudtrailsvc.Options)) (*cloudtrailsvc.DescribeTrailsOutput, error)
}

type guardDutyAPI interface {
	ListDetectors(ctx context.Context, params *guarddutysvc.ListDetectorsInput, optFns ...func(*guarddutysvc.Options)) (*guarddutysvc.ListDetectorsOutput, error)
	GetDetector(ctx context.Context, params *guarddutysvc.GetDetectorInput, optFns ...func(*guarddutysvc.Options)) (*guarddutysvc.GetDetectorOutput, error)
}

type configAPI interface {
	DescribeConfigurationRecorderStatus(ctx context.Context, params *configsvc.DescribeConfigurationRecorderStatusInput, optFns ...func(*configsvc.Options)) (*configsvc.DescribeConfigurationRecorderStatusOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, params *stssvc.GetCallerIdentityInput, optFns ...func(*stssvc.Options)) (*stssvc.GetCallerIdentityOutput, error)
}

// clients bundles every service client one scan needs.
type clients struct {
	S3         s3API
	EC2        ec2API
	IAM        iamAPI
	CloudTrail cloudTrailAPI
	GuardDuty  guardDutyAPI
	Config     configAPI
	STS        stsAPI
}

// clientFactory builds clients from an aws.Config. Tests swap it for fakes.
type clientFactory func(cfg aws.Config) *clients

func newSDKClients(cfg aws.Config) *clients {
	return &clients{
		S3:         s3svc.NewFromConfig(cfg),
		EC2:        ec2svc.NewFromConfig(cfg),
		IAM:        iamsvc.NewFromConfig(cfg),
		CloudTrail: cloudtrailsvc.NewFromConfig(cfg),
		GuardDuty:  guarddutysvc.NewFromConfig(cfg),
		Config:     configsvc.NewFromConfig(cfg),
		STS:        stssvc.NewFromConfig(cfg),
	}
}
