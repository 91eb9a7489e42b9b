package statestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBlob stores the object in a Cloud Storage bucket.
type GCSBlob struct {
	client *storage.Client
	bucket string
	key    string

	newReader func(ctx context.Context) (io.ReadCloser, error)
	newWriter func(ctx context.Context) io.WriteCloser
}

// NewGCSBlob creates a GCSBlob. credentialsFile is optional; application
// default credentials are used without it.
func NewGCSBlob(ctx context.Context, bucket, key, credentialsFile string) (*GCSBlob, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	obj := client.Bucket(bucket).Object(key)
	return &GCSBlob{
		client: client,
		bucket: bucket,
		key:    key,
		newReader: func(ctx context.Context) (io.ReadCloser, error) {
			return obj.NewReader(ctx)
		},
		newWriter: func(ctx context.Context) io.WriteCloser {
			w := obj.NewWriter(ctx)
			w.ContentType = "application/octet-stream"
			return w
		},
	}, nil
}

func (b *GCSBlob) Read(ctx context.Context) ([]byte, error) {
	r, err := b.newReader(ctx)
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBlob) Write(ctx context.Context, data []byte) error {
	w := b.newWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBlob) Location() string { return fmt.Sprintf("gs://%s/%s", b.bucket, b.key) }

func (b *GCSBlob) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
