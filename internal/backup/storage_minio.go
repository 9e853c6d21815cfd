package backup

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOUploader pushes snapshots to a MinIO server
type MinIOUploader struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOUploader creates a new MinIO uploader
func NewMinIOUploader(config MinIOConfig, prefix string) (*MinIOUploader, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, NewConfigurationError("failed to create MinIO client", err)
	}

	return &MinIOUploader{
		client: client,
		bucket: config.Bucket,
		prefix: prefix,
	}, nil
}

// Upload stores the snapshot and its sidecar
func (u *MinIOUploader) Upload(ctx context.Context, localPath, objectName string) error {
	return uploadWithSidecar(ctx, u.put, u.prefix, localPath, objectName)
}

func (u *MinIOUploader) put(ctx context.Context, localPath, key, contentType string) error {
	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload minio://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Provider returns the cloud provider
func (u *MinIOUploader) Provider() CloudProvider {
	return CloudProviderMinIO
}
