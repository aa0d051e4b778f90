package model

import (
	"context"
	"io"
)

// BlobStorage stores encrypted attachment blobs. Data reaching this
// interface is already AEAD-encrypted; the storage never sees plaintext.
type BlobStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
