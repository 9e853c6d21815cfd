package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureUploader pushes snapshots to Azure Blob Storage
type AzureUploader struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureUploader creates a new Azure uploader
func NewAzureUploader(config AzureConfig, prefix string) (*AzureUploader, error) {
	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, NewConfigurationError("failed to create Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName))
	if err != nil {
		return nil, NewConfigurationError("failed to parse Azure service URL", err)
	}

	return &AzureUploader{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        prefix,
	}, nil
}

// Upload stores the snapshot and its sidecar
func (u *AzureUploader) Upload(ctx context.Context, localPath, objectName string) error {
	return uploadWithSidecar(ctx, u.put, u.prefix, localPath, objectName)
}

func (u *AzureUploader) put(ctx context.Context, localPath, key, contentType string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer file.Close()

	blobURL := u.containerURL.NewBlockBlobURL(key)
	_, err = azblob.UploadFileToBlockBlob(ctx, file, blobURL, azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentType,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload azure://%s/%s: %w", u.containerName, key, err)
	}
	return nil
}

// Provider returns the cloud provider
func (u *AzureUploader) Provider() CloudProvider {
	return CloudProviderAzure
}
