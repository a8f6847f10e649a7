package adapter

import "context"

// BlobStorageAdapter is the narrow blob-store collaborator interface: put
// bytes, get a public URL back. Deletion is an administrative concern and is
// exposed for tooling only.
type BlobStorageAdapter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, path string) error
}
