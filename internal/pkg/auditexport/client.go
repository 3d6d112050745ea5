package auditexport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/env"
)

// ErrDisabled is returned when audit export is switched off.
var ErrDisabled = errors.New("audit export is disabled")

// NewS3Client connects to the configured bucket. Outside production a
// missing bucket is created.
func NewS3Client(ctx context.Context, cfg config.AuditExportConfig) (*s3.Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			// S3 compatible services (MinIO, B2) want path-style URLs
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	if err := ensureBucket(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[AuditExport] S3 client ready for bucket: %s", cfg.Bucket)
	return client, nil
}

func ensureBucket(ctx context.Context, client *s3.Client, cfg config.AuditExportConfig) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err == nil {
		return nil
	}
	if env.GetEnv("APP_ENV", "dev") == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", cfg.Bucket, err)
	}

	log.Warnf("[AuditExport] Bucket %s not found, attempting to create it", cfg.Bucket)
	input := &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}
	if cfg.EndpointURL == "" && cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(cfg.Region),
		}
	}
	if _, err := client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
	}
	log.Infof("[AuditExport] Created bucket: %s", cfg.Bucket)
	return nil
}
