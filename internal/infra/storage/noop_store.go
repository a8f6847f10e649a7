package storage

import (
	"context"
	"strings"

	"virtual-tryon-service/internal/domain/ports/adapter"
)

var _ adapter.BlobStorageAdapter = (*NoopStore)(nil)

// NoopStore is the dev-mode blob store: nothing is persisted, Put just
// fabricates a URL so the rest of the pipeline can run locally.
type NoopStore struct {
	baseURL string
}

func NewNoopStore(baseURL string) *NoopStore {
	if baseURL == "" {
		baseURL = "http://localhost/blobs"
	}
	return &NoopStore{baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *NoopStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	return s.baseURL + "/" + strings.TrimLeft(path, "/"), nil
}

func (s *NoopStore) Delete(ctx context.Context, path string) error { return nil }
