// Package reports archives per-account scan reports as JSON objects in S3
// compatible storage and hands out presigned download links.
package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

const DefaultURLExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// Settings locate the bucket. BaseEndpoint is set for MinIO and other S3
// compatible stores and switches the client to path-style addressing.
type Settings struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// Report is the archived form of one account scan.
type Report struct {
	TenantID    string                   `json:"tenantId"`
	AccountID   string                   `json:"accountId"`
	ScanRunID   string                   `json:"scanRunId"`
	Provider    models.Provider          `json:"provider"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Counts      models.SeverityCounts    `json:"counts"`
	Findings    []models.SecurityFinding `json:"findings"`
}

// Key is the object key a report is stored under.
func Key(tenantID, accountID, scanRunID string) string {
	return fmt.Sprintf("tenants/%s/accounts/%s/scans/%s.json", tenantID, accountID, scanRunID)
}

type S3Archive struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Archive(ctx context.Context, s Settings) (*S3Archive, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.Region)}
	if s.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKey, s.SecretKey, "")))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{client: client, presign: s3.NewPresignClient(client), bucket: s.Bucket}, nil
}

// Store uploads r and returns its key.
func (a *S3Archive) Store(ctx context.Context, r Report) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := Key(r.TenantID, r.AccountID, r.ScanRunID)
	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// PresignedURL returns a time-limited GET link for key. ttl <= 0 selects
// DefaultURLExpiry.
func (a *S3Archive) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLExpiry
	}
	req, err := presignGetObject(a.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
