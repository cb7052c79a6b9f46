package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalDriver stores files on the local filesystem, served under /uploads.
type LocalDriver struct {
	basePath string
}

func NewLocalDriver(basePath string) *LocalDriver {
	return &LocalDriver{basePath: basePath}
}

func (d *LocalDriver) Upload(ctx context.Context, file io.Reader, path, contentType string) (string, string, error) {
	fullPath := filepath.Join(d.basePath, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", "", fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}

	return path, d.PublicURL(path), nil
}

func (d *LocalDriver) Delete(ctx context.Context, path string) error {
	fullPath := filepath.Join(d.basePath, path)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	d.removeEmptyDirs(filepath.Dir(fullPath))
	return nil
}

func (d *LocalDriver) PublicURL(path string) string {
	return fmt.Sprintf("/uploads/%s", path)
}

func (d *LocalDriver) Reader(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(d.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// removeEmptyDirs walks up from dir removing empty directories, stopping at
// the base path.
func (d *LocalDriver) removeEmptyDirs(dir string) {
	rel, err := filepath.Rel(d.basePath, dir)
	if err != nil || rel == "." {
		return
	}
	if err := os.Remove(dir); err == nil {
		d.removeEmptyDirs(filepath.Dir(dir))
	}
}
