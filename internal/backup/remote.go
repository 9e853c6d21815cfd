package backup

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// NewRemoteUploader builds the uploader for provider from the remote configuration
func NewRemoteUploader(ctx context.Context, provider CloudProvider, config RemoteConfig) (RemoteUploader, error) {
	if err := config.ValidateFor(provider); err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("remote storage for %s is not configured", provider), err)
	}

	switch provider {
	case CloudProviderS3:
		return NewS3Uploader(config.S3, config.ObjectPrefix)
	case CloudProviderGCS:
		return NewGCSUploader(ctx, config.GCS, config.ObjectPrefix)
	case CloudProviderAzure:
		return NewAzureUploader(config.Azure, config.ObjectPrefix)
	case CloudProviderMinIO:
		return NewMinIOUploader(config.MinIO, config.ObjectPrefix)
	}
	return nil, NewValidationError(fmt.Sprintf("unsupported cloud provider: %s", provider), nil)
}

// SupportedProviders lists the cloud providers an uploader exists for
func SupportedProviders() []CloudProvider {
	return []CloudProvider{CloudProviderS3, CloudProviderGCS, CloudProviderAzure, CloudProviderMinIO}
}

// objectKey joins the configured prefix and an object name
func objectKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// putFunc uploads one local file under key
type putFunc func(ctx context.Context, localPath, key, contentType string) error

// uploadWithSidecar uploads the snapshot first and its checksum sidecar second,
// so a sidecar never exists remotely without its file.
func uploadWithSidecar(ctx context.Context, put putFunc, prefix, localPath, objectName string) error {
	key := objectKey(prefix, objectName)
	if err := put(ctx, localPath, key, "application/octet-stream"); err != nil {
		return err
	}
	return put(ctx, localPath+ChecksumSuffix, key+ChecksumSuffix, "text/plain")
}
