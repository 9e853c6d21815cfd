package backup

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSUploader pushes snapshots to Google Cloud Storage
type GCSUploader struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSUploader creates a new GCS uploader
func NewGCSUploader(ctx context.Context, config GCSConfig, prefix string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	if config.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(config.ProjectID))
	}

	// default credentials come from the environment or the metadata server
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewConfigurationError("failed to create GCS client", err)
	}

	return &GCSUploader{
		client: client,
		bucket: config.Bucket,
		prefix: prefix,
	}, nil
}

// Upload stores the snapshot and its sidecar
func (u *GCSUploader) Upload(ctx context.Context, localPath, objectName string) error {
	return uploadWithSidecar(ctx, u.put, u.prefix, localPath, objectName)
}

func (u *GCSUploader) put(ctx context.Context, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	writer := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, file); err != nil {
		writer.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", u.bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", u.bucket, key, err)
	}
	return nil
}

// Provider returns the cloud provider
func (u *GCSUploader) Provider() CloudProvider {
	return CloudProviderGCS
}

// Close closes the GCS client
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
