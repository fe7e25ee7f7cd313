package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/bhumitschaudhry/ConnectStorm/internal/common/stormerrors"
)

// s3Uploader writes uploads to an S3-compatible object store (AWS S3,
// Cloudflare R2, MinIO).
type s3Uploader struct {
	uploader *manager.Uploader
	config   S3Config
}

func newS3Uploader(ctx context.Context, config S3Config) (*s3Uploader, error) {
	if config.Bucket == "" {
		return nil, errors.WithStack(&stormerrors.ErrInvalidConfiguration{
			Name:    "storage.s3.bucket",
			Message: "bucket must be non-empty",
		})
	}
	region := config.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if config.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.WithMessage(err, "error loading aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		if config.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	uploaderConfig := config
	uploaderConfig.Region = region
	return &s3Uploader{uploader: manager.NewUploader(client), config: uploaderConfig}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, objectName string, contentType string, body io.Reader) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.config.Bucket),
		Key:         aws.String(objectName),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", errors.WithMessagef(err, "error uploading %s to bucket %s", objectName, u.config.Bucket)
	}
	return u.objectUrl(objectName), nil
}

func (u *s3Uploader) objectUrl(objectName string) string {
	if u.config.PublicBaseURL != "" {
		return strings.TrimRight(u.config.PublicBaseURL, "/") + "/" + objectName
	}
	if u.config.Endpoint != "" {
		return strings.TrimRight(u.config.Endpoint, "/") + "/" + u.config.Bucket + "/" + objectName
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.config.Bucket, u.config.Region, objectName)
}
