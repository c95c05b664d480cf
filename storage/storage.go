package storage

import (
	"context"
	"io"
)

type UploadResult struct {
	Key      string
	Location string
	ETag     string
}

// ObjectStore is the asset bucket behind the service: voice clips the
// bot streams into channels, plus anything handlers upload (map images,
// tournament banners).
type ObjectStore interface {
	Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*UploadResult, error)

	// Download returns the object body; the caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	GetPublicURL(key string) string
}
