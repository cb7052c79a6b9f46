package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/ops-management-api/internal/config"
)

// Driver abstracts where uploaded documents live. Paths are always relative
// keys like "tenants/<id>/documents/<file>"; the driver owns URL formation.
type Driver interface {
	// Upload stores the file under path and returns the stored key and a
	// public URL when the backend has one.
	Upload(ctx context.Context, file io.Reader, path, contentType string) (storagePath string, publicURL string, err error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error

	// PublicURL returns the serving URL for a stored key.
	PublicURL(path string) string

	// Reader opens the stored file for the thumbnail worker.
	Reader(ctx context.Context, path string) (io.ReadCloser, error)
}

// New selects a driver from configuration.
func New(cfg config.StorageConfig) (Driver, error) {
	switch cfg.Driver {
	case "local", "":
		path := cfg.UploadsPath
		if path == "" {
			path = "./uploads"
		}
		return NewLocalDriver(path), nil

	case "s3":
		return NewS3Driver(cfg)

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
