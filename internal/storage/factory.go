package storage

import (
	"fmt"

	"github.com/timmy/memedex/internal/config"
)

// NewContentStore creates a ContentStore from configuration.
// Parameters:
//   - cfg: storage configuration including backend type.
// Returns:
//   - ContentStore: initialized storage backend.
//   - error: non-nil if the backend cannot be created.
func NewContentStore(cfg *config.StorageConfig) (ContentStore, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStore(cfg.LocalDir, cfg.PublicURL)
	case "s3":
		return NewS3Store(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
