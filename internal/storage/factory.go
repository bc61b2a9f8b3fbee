package storage

import (
	"fmt"

	"github.com/lgulliver/filehold/pkg/config"
)

// NewBlobStorage builds the blob storage backend named by the configuration.
// An empty type selects the local filesystem backend.
func NewBlobStorage(cfg *config.StorageConfig) (BlobStorage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(cfg.LocalPath)
	case "s3", "gcs", "azure":
		// TODO: wire the cloud SDK backends once a deployment needs one
		return nil, fmt.Errorf("storage type %q is not implemented", cfg.Type)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
