package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/internal/tag"
	"github.com/srg/tagscan/pkg/config"
)

// ErrNoBucket is returned when an upload is requested without a bucket.
var ErrNoBucket = errors.New("export bucket not configured")

const keyTimeFormat = "20060102T150405Z"

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *logrus.Logger
	now    func() time.Time
}

// NewS3Uploader builds an S3 client from the default credential chain, overridden
// by static credentials, a custom endpoint and path-style addressing when configured.
func NewS3Uploader(ctx context.Context, cfg config.ExportConfig, logger *logrus.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3UploaderWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3UploaderWithClient wraps an existing client.
func NewS3UploaderWithClient(client PutObjectAPI, bucket, prefix string, logger *logrus.Logger) *S3Uploader {
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
	}
}

// Key returns the object key for an export created at t.
func (u *S3Uploader) Key(t time.Time, format Format) string {
	name := fmt.Sprintf("tags-%s.%s", t.UTC().Format(keyTimeFormat), format.Extension())
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

// Upload encodes records and stores them as one object, returning its key.
func (u *S3Uploader) Upload(ctx context.Context, records []tag.Record, format Format) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, records, format); err != nil {
		return "", err
	}

	key := u.Key(u.now(), format)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(format.ContentType()),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", u.bucket, key, err)
	}

	u.logger.WithFields(logrus.Fields{
		"bucket":    u.bucket,
		"key":       key,
		"tag_count": len(records),
		"bytes":     buf.Len(),
	}).Info("Exported tags to S3")
	return key, nil
}
