package domain

import (
	"context"
	"io"
)

// BlobUploader stores an opaque blob (market media, banners) and returns a
// publicly reachable URL for it.
type BlobUploader interface {
	Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error)
}
