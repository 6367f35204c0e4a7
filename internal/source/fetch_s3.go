package source

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures access to the bucket uploaded contact files live in.
// Endpoint is optional and points at a MinIO deployment when set.
type S3Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// S3Fetcher resolves locators as object keys in the configured bucket.
type S3Fetcher struct {
	client *s3.Client
	bucket string
}

func NewS3Fetcher(cfg S3Config) *S3Fetcher {
	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Fetcher{client: client, bucket: cfg.Bucket}
}

func (f *S3Fetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

var _ Fetcher = (*S3Fetcher)(nil)
