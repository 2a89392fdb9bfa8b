package storage

import (
	"context"
	"errors"
	"io"

	gcs "cloud.google.com/go/storage"

	"github.com/oksasatya/identity-service/internal/application"
	"github.com/oksasatya/identity-service/pkg/helpers"
)

// GCSAvatarStorage keeps avatars in a Google Cloud Storage bucket.
type GCSAvatarStorage struct {
	client *gcs.Client
	bucket string
}

func NewGCSAvatarStorage(client *gcs.Client, bucket string) (*GCSAvatarStorage, error) {
	if client == nil || bucket == "" {
		return nil, errors.New("avatar storage: gcs client and bucket are required")
	}
	return &GCSAvatarStorage{client: client, bucket: bucket}, nil
}

var _ application.AvatarStorage = (*GCSAvatarStorage)(nil)

func (s *GCSAvatarStorage) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	return helpers.UploadObject(ctx, s.client, s.bucket, objectPath, contentType, r)
}

// Delete ignores URLs that do not point into this bucket, such as
// provider-hosted pictures.
func (s *GCSAvatarStorage) Delete(ctx context.Context, url string) error {
	objectPath, ok := helpers.ObjectPathFromURL(s.bucket, url)
	if !ok {
		return nil
	}
	return helpers.DeleteObject(ctx, s.client, s.bucket, objectPath)
}
