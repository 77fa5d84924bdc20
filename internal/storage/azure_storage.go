package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureSourceFetcher downloads source images from Azure Blob Storage.
// Sources use the form azblob://container/path/to/image.jpg.
type AzureSourceFetcher struct {
	client *azblob.Client
}

// NewAzureSourceFetcher authenticates with a shared key credential.
func NewAzureSourceFetcher(accountName, accountKey string) (*AzureSourceFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &AzureSourceFetcher{client: client}, nil
}

func (a *AzureSourceFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid blob URL: %w", err)
	}

	container := parsed.Host
	blobName := strings.TrimPrefix(parsed.Path, "/")
	if container == "" || blobName == "" {
		return nil, fmt.Errorf("blob URL must name a container and a blob")
	}

	resp, err := a.client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}
