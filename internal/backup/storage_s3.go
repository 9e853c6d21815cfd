package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Uploader pushes snapshots to Amazon S3 or an S3-compatible endpoint
type S3Uploader struct {
	client *s3.S3
	bucket string
	prefix string
}

// NewS3Uploader creates a new S3 uploader. Without static keys the default AWS
// credential chain is used.
func NewS3Uploader(config S3Config, prefix string) (*S3Uploader, error) {
	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewConfigurationError("failed to create AWS session", err)
	}

	return &S3Uploader{
		client: s3.New(sess),
		bucket: config.Bucket,
		prefix: prefix,
	}, nil
}

// Upload stores the snapshot and its sidecar
func (u *S3Uploader) Upload(ctx context.Context, localPath, objectName string) error {
	return uploadWithSidecar(ctx, u.put, u.prefix, localPath, objectName)
}

func (u *S3Uploader) put(ctx context.Context, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = u.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Provider returns the cloud provider
func (u *S3Uploader) Provider() CloudProvider {
	return CloudProviderS3
}
