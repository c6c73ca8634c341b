package s3blob

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marcusleung/memecast/internal/domain"
)

// Uploader implements domain.BlobUploader against an S3-compatible backend.
// Market media and banners fit in a single PutObject; there is no multipart
// path here.
type Uploader struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// NewUploader creates an Uploader writing into the client's bucket.
func NewUploader(c *Client) *Uploader {
	return &Uploader{
		client:    c.s3,
		bucket:    c.bucket,
		publicURL: c.publicURL,
	}
}

// Upload stores the blob under key and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: put %s: %w", key, err)
	}

	publicURL, err := url.JoinPath(u.publicURL, key)
	if err != nil {
		return "", fmt.Errorf("s3blob: build url for %s: %w", key, err)
	}
	return publicURL, nil
}

// Compile-time interface check.
var _ domain.BlobUploader = (*Uploader)(nil)
