package archive

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog/log"
)

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	ConnectionString string
	Container        string
	Prefix           string
}

// AzureStore writes artifacts as JSON blobs at <prefix><callId>/<artifact>.json.
type AzureStore struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureStore creates a blob client from a connection string.
func NewAzureStore(cfg AzureConfig) (*AzureStore, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("azure archive: connection string is required")
	}
	if cfg.Container == "" {
		cfg.Container = "calls"
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure archive: %w", err)
	}

	log.Info().
		Str("container", cfg.Container).
		Str("prefix", cfg.Prefix).
		Msg("Azure blob archive initialized")

	return &AzureStore{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

// EnsureContainer creates the container if it does not exist yet.
func (s *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("azure archive: create container %q: %w", s.container, err)
	}
	return nil
}

// Put uploads one artifact.
func (s *AzureStore) Put(ctx context.Context, callID string, artifact Artifact, body []byte) error {
	contentType := "application/json"
	name := Path(s.prefix, callID, artifact)

	_, err := s.client.UploadBuffer(ctx, s.container, name, body, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    map[string]*string{"callId": &callID},
	})
	if err != nil {
		return fmt.Errorf("azure archive: upload %s: %w", name, err)
	}
	return nil
}
