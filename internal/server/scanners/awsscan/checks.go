package awsscan

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	configsvc "github.com/aws/aws-sdk-go-v2/service/configservice"
	ec2svc "github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	guarddutysvc "github.com/aws/aws-sdk-go-v2/service/guardduty"
	guarddutytypes "github.com/aws/aws-sdk-go-v2/service/guardduty/types"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

const (
	categoryData       = "Data Protection"
	categoryIdentity   = "Identity and Access Management"
	categoryNetwork    = "Network Security"
	categoryLogging    = "Logging and Monitoring"
	categoryThreat     = "Threat Detection"
	globalRegion       = "global"
	openIPv4, openIPv6 = "0.0.0.0/0", "::/0"
)

// finding fills the fields every AWS finding shares.
func (s *Scanner) finding(id, title, desc string, sev models.Severity, category, resourceID, resourceType, region, remediation, accountID string, compliance ...string) models.ProviderFinding {
	return models.ProviderFinding{
		FindingID:    "aws-" + id,
		Title:        title,
		Description:  desc,
		Severity:     string(sev),
		Category:     category,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Region:       region,
		Remediation:  remediation,
		Compliance:   compliance,
		Metadata:     map[string]any{"awsAccountId": accountID},
	}
}

// checkS3Buckets flags buckets whose policy makes them public and buckets
// without default encryption. Policy or encryption lookups that fail are
// treated as "not public" and "encrypted" to avoid false positives.
func (s *Scanner) checkS3Buckets(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	out, err := s.clients.S3.ListBuckets(ctx, &s3svc.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	var found []models.ProviderFinding
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		arn := "arn:aws:s3:::" + name

		ps, err := s.clients.S3.GetBucketPolicyStatus(ctx, &s3svc.GetBucketPolicyStatusInput{Bucket: aws.String(name)})
		if err == nil && ps.PolicyStatus != nil && aws.ToBool(ps.PolicyStatus.IsPublic) {
			found = append(found, s.finding("s3-public-"+name,
				"S3 bucket is publicly accessible",
				fmt.Sprintf("Bucket %s has a bucket policy that grants public access.", name),
				models.SeverityCritical, categoryData, arn, "AWS::S3::Bucket", globalRegion,
				"Enable S3 Block Public Access and remove public principals from the bucket policy.",
				accountID, "CIS-2.1.5"))
		}

		if _, err := s.clients.S3.GetBucketEncryption(ctx, &s3svc.GetBucketEncryptionInput{Bucket: aws.String(name)}); err != nil && isMissingEncryption(err) {
			found = append(found, s.finding("s3-unencrypted-"+name,
				"S3 bucket default encryption is disabled",
				fmt.Sprintf("Bucket %s has no default server-side encryption configuration.", name),
				models.SeverityMedium, categoryData, arn, "AWS::S3::Bucket", globalRegion,
				"Configure default encryption with SSE-S3 or SSE-KMS.",
				accountID, "CIS-2.1.1"))
		}
	}
	return found, nil
}

func isMissingEncryption(err error) bool {
	return strings.Contains(err.Error(), "ServerSideEncryptionConfigurationNotFoundError")
}

// checkIAMUsers flags console users without an MFA device. API-only users
// have no login profile and are skipped.
func (s *Scanner) checkIAMUsers(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	var found []models.ProviderFinding

	p := iamsvc.NewListUsersPaginator(s.clients.IAM, &iamsvc.ListUsersInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		for _, u := range page.Users {
			name := aws.ToString(u.UserName)
			if _, err := s.clients.IAM.GetLoginProfile(ctx, &iamsvc.GetLoginProfileInput{UserName: aws.String(name)}); err != nil {
				continue
			}
			mfa, err := s.clients.IAM.ListMFADevices(ctx, &iamsvc.ListMFADevicesInput{UserName: aws.String(name)})
			if err == nil && len(mfa.MFADevices) > 0 {
				continue
			}
			arn := aws.ToString(u.Arn)
			if arn == "" {
				arn = fmt.Sprintf("arn:aws:iam::%s:user/%s", accountID, name)
			}
			found = append(found, s.finding("iam-user-no-mfa-"+name,
				"IAM user with console access has no MFA",
				fmt.Sprintf("User %s can sign in to the console without a second factor.", name),
				models.SeverityHigh, categoryIdentity, arn, "AWS::IAM::User", globalRegion,
				"Assign a virtual or hardware MFA device to the user.",
				accountID, "CIS-1.10"))
		}
	}
	return found, nil
}

// checkRootAccount reads the IAM account summary for root access keys and
// root MFA.
func (s *Scanner) checkRootAccount(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	out, err := s.clients.IAM.GetAccountSummary(ctx, &iamsvc.GetAccountSummaryInput{})
	if err != nil {
		return nil, fmt.Errorf("get account summary: %w", err)
	}

	root := fmt.Sprintf("arn:aws:iam::%s:root", accountID)
	var found []models.ProviderFinding
	if out.SummaryMap["AccountAccessKeysPresent"] > 0 {
		found = append(found, s.finding("root-access-keys-"+accountID,
			"Root account has active access keys",
			"The root user has programmatic access keys.",
			models.SeverityCritical, categoryIdentity, root, "AWS::IAM::Root", globalRegion,
			"Delete the root access keys and use IAM roles instead.",
			accountID, "CIS-1.4"))
	}
	if out.SummaryMap["AccountMFAEnabled"] == 0 {
		found = append(found, s.finding("root-no-mfa-"+accountID,
			"Root account MFA is not enabled",
			"The root user can sign in without a second factor.",
			models.SeverityCritical, categoryIdentity, root, "AWS::IAM::Root", globalRegion,
			"Enable hardware or virtual MFA on the root user.",
			accountID, "CIS-1.5"))
	}
	return found, nil
}

var adminPorts = map[int32]string{22: "SSH", 3389: "RDP"}

// checkSecurityGroups flags ingress rules that open SSH or RDP to the
// internet.
func (s *Scanner) checkSecurityGroups(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	out, err := s.clients.EC2.DescribeSecurityGroups(ctx, &ec2svc.DescribeSecurityGroupsInput{})
	if err != nil {
		return nil, fmt.Errorf("describe security groups in %s: %w", s.region, err)
	}

	var found []models.ProviderFinding
	for _, sg := range out.SecurityGroups {
		groupID := aws.ToString(sg.GroupId)
		arn := fmt.Sprintf("arn:aws:ec2:%s:%s:security-group/%s", s.region, accountID, groupID)

		for _, port := range []int32{22, 3389} {
			v4, v6 := false, false
			for _, perm := range sg.IpPermissions {
				if !permCoversPort(perm, port) {
					continue
				}
				for _, r := range perm.IpRanges {
					v4 = v4 || aws.ToString(r.CidrIp) == openIPv4
				}
				for _, r := range perm.Ipv6Ranges {
					v6 = v6 || aws.ToString(r.CidrIpv6) == openIPv6
				}
			}
			svc := adminPorts[port]
			if v4 {
				found = append(found, s.finding(fmt.Sprintf("sg-open-%d-v4-%s", port, groupID),
					fmt.Sprintf("Security group allows %s from 0.0.0.0/0", svc),
					fmt.Sprintf("Security group %s allows inbound port %d from any IPv4 address.", groupID, port),
					models.SeverityHigh, categoryNetwork, arn, "AWS::EC2::SecurityGroup", s.region,
					"Restrict the ingress rule to known administrative CIDR ranges.",
					accountID, "CIS-5.2"))
			}
			if v6 {
				found = append(found, s.finding(fmt.Sprintf("sg-open-%d-v6-%s", port, groupID),
					fmt.Sprintf("Security group allows %s from ::/0", svc),
					fmt.Sprintf("Security group %s allows inbound port %d from any IPv6 address.", groupID, port),
					models.SeverityHigh, categoryNetwork, arn, "AWS::EC2::SecurityGroup", s.region,
					"Restrict the ingress rule to known administrative CIDR ranges.",
					accountID, "CIS-5.3"))
			}
		}
	}
	return found, nil
}

// permCoversPort reports whether an ingress permission admits TCP traffic on
// port. Protocol "-1" means all traffic.
func permCoversPort(perm ec2types.IpPermission, port int32) bool {
	proto := aws.ToString(perm.IpProtocol)
	if proto == "-1" {
		return true
	}
	if proto != "tcp" && proto != "6" {
		return false
	}
	if perm.FromPort == nil || perm.ToPort == nil {
		return false
	}
	return aws.ToInt32(perm.FromPort) <= port && port <= aws.ToInt32(perm.ToPort)
}

func (s *Scanner) checkCloudTrail(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	out, err := s.clients.CloudTrail.DescribeTrails(ctx, &cloudtrailsvc.DescribeTrailsInput{
		IncludeShadowTrails: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("describe trails: %w", err)
	}
	for _, t := range out.TrailList {
		if aws.ToBool(t.IsMultiRegionTrail) {
			return nil, nil
		}
	}
	return []models.ProviderFinding{s.finding("cloudtrail-multiregion-"+accountID,
		"CloudTrail multi-region trail is not configured",
		"No trail in this account records API activity in all regions.",
		models.SeverityHigh, categoryLogging, "arn:aws:cloudtrail:::account/"+accountID, "AWS::CloudTrail::Trail", globalRegion,
		"Create a multi-region trail with log file validation enabled.",
		accountID, "CIS-3.1")}, nil
}

func (s *Scanner) checkGuardDuty(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	list, err := s.clients.GuardDuty.ListDetectors(ctx, &guarddutysvc.ListDetectorsInput{})
	if err != nil {
		return nil, fmt.Errorf("list detectors: %w", err)
	}

	enabled := false
	if len(list.DetectorIds) > 0 {
		det, err := s.clients.GuardDuty.GetDetector(ctx, &guarddutysvc.GetDetectorInput{DetectorId: aws.String(list.DetectorIds[0])})
		if err != nil {
			return nil, fmt.Errorf("get detector: %w", err)
		}
		enabled = det.Status == guarddutytypes.DetectorStatusEnabled
	}
	if enabled {
		return nil, nil
	}
	return []models.ProviderFinding{s.finding(fmt.Sprintf("guardduty-disabled-%s-%s", s.region, accountID),
		"GuardDuty is not enabled",
		fmt.Sprintf("No enabled GuardDuty detector in %s.", s.region),
		models.SeverityMedium, categoryThreat, fmt.Sprintf("arn:aws:guardduty:%s:%s:detector", s.region, accountID), "AWS::GuardDuty::Detector", s.region,
		"Enable GuardDuty in every region in use.",
		accountID, "FSBP-GuardDuty.1")}, nil
}

func (s *Scanner) checkConfigRecorder(ctx context.Context, accountID string) ([]models.ProviderFinding, error) {
	out, err := s.clients.Config.DescribeConfigurationRecorderStatus(ctx, &configsvc.DescribeConfigurationRecorderStatusInput{})
	if err != nil {
		return nil, fmt.Errorf("describe configuration recorder status: %w", err)
	}
	for _, st := range out.ConfigurationRecordersStatus {
		if st.Recording {
			return nil, nil
		}
	}
	return []models.ProviderFinding{s.finding(fmt.Sprintf("config-recorder-%s-%s", s.region, accountID),
		"AWS Config recorder is not recording",
		fmt.Sprintf("No AWS Config recorder is active in %s.", s.region),
		models.SeverityMedium, categoryLogging, fmt.Sprintf("arn:aws:config:%s:%s:config-recorder", s.region, accountID), "AWS::Config::ConfigurationRecorder", s.region,
		"Enable AWS Config with a recorder covering all resource types.",
		accountID, "CIS-3.5")}, nil
}
