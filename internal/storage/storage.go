// Package storage writes uploaded images to managed object storage and
// hands back their public URLs.
package storage

import (
	"context"
	"errors"
)

// ErrInvalidPath is returned for object paths that escape the bucket.
var ErrInvalidPath = errors.New("invalid object path")

// Bucket is an object storage bucket.
type Bucket interface {
	// Upload stores data under path.
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	// PublicURL returns the public URL of an object.
	PublicURL(path string) string
}
