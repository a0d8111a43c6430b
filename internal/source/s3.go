package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultS3Region is used when neither S3Config nor the AWS environment
// names a region.
const DefaultS3Region = "us-east-1"

// S3Config configures NewS3Client.
type S3Config struct {
	// Region overrides the region resolved from the AWS environment and
	// shared config files.
	Region string

	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string

	// UsePathStyle addresses buckets as a path segment.
	UsePathStyle bool

	// Anonymous sends unsigned requests, which only works for public
	// buckets. Credentials are otherwise resolved by the SDK default chain.
	Anonymous bool
}

// NewS3Client builds an S3 client from the AWS default configuration chain:
// environment, shared config and credentials files, SSO and instance roles.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Anonymous {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = DefaultS3Region
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
