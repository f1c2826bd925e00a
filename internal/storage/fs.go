package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FSBucket stores objects in a local directory and serves them under a
// public base URL. It stands in for managed storage in development.
type FSBucket struct {
	dir     string
	baseURL string
}

// NewFSBucket creates the directory if needed.
func NewFSBucket(dir, baseURL string) (*FSBucket, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &FSBucket{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload writes data to dir/path.
func (b *FSBucket) Upload(ctx context.Context, objectPath string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkPath(objectPath); err != nil {
		return err
	}
	full := filepath.Join(b.dir, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// PublicURL returns baseURL/path.
func (b *FSBucket) PublicURL(objectPath string) string {
	return b.baseURL + "/" + objectPath
}

// Handler serves the bucket's objects.
func (b *FSBucket) Handler() http.Handler {
	return http.FileServer(http.Dir(b.dir))
}

func checkPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	if clean := path.Clean(p); clean != p || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return nil
}
