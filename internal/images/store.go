// Package images serves item reference images out of object storage.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrNotFound = errors.New("image not found")

type Store struct {
	client *minio.Client
	bucket string
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Open returns a reader over the stored image and its content type. The
// caller owns closing the reader.
func (s *Store) Open(ctx context.Context, imageID string) (io.ReadCloser, string, error) {
	object, err := s.client.GetObject(ctx, s.bucket, imageID, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get image %s: %w", imageID, err)
	}
	info, err := object.Stat()
	if err != nil {
		_ = object.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("stat image %s: %w", imageID, err)
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return object, contentType, nil
}
