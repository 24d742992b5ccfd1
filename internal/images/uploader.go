package images

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Uploader pushes image payloads to object storage and produces
// time-limited download URLs for them.
type Uploader interface {
	// Upload stores data under key.
	Upload(ctx context.Context, key string, data []byte) error

	// PresignGet returns a download URL for a previously uploaded key.
	PresignGet(ctx context.Context, key string) (string, error)
}

// Seams for tests.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
)

// S3Config holds the object-storage settings for image uploads.
type S3Config struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string

	// PresignExpiry bounds download-URL validity. Zero means 24h.
	PresignExpiry time.Duration
}

// S3Uploader implements Uploader against an S3-compatible endpoint
// (AWS S3 or MinIO).
type S3Uploader struct {
	cfg S3Config
}

// NewS3Uploader returns an uploader for the given bucket settings.
func NewS3Uploader(cfg S3Config) *S3Uploader {
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
	return &S3Uploader{cfg: cfg}
}

// NewStorageKey returns a date-partitioned object key for a fresh upload.
func NewStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("images/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (u *S3Uploader) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(u.cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			u.cfg.AccessKey, u.cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if u.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(u.cfg.BaseEndpoint)
		}
	}), nil
}

// Upload stores data under key in the configured bucket.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	client, err := u.client(ctx)
	if err != nil {
		return err
	}

	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &u.cfg.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	return err
}

// PresignGet returns a time-limited download URL for key. Signing is local,
// no network round trip.
func (u *S3Uploader) PresignGet(ctx context.Context, key string) (string, error) {
	client, err := u.client(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &u.cfg.Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(u.cfg.PresignExpiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
