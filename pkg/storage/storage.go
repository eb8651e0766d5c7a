package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// UploadOptions carries the per-object metadata set at upload time. Cache
// directives matter here: segments and variant playlists are immutable and
// long-cached, while the master playlist must stay revalidatable until the
// job fully completes.
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// Store is the object storage surface the pipeline writes against. Keys are
// bucket-relative; the implementation owns bucket or root placement.
type Store interface {
	// Upload writes one object under key, replacing any previous content.
	Upload(ctx context.Context, key string, body io.Reader, opts UploadOptions) error
	// Delete removes one object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// PublicURL returns the client-facing URL for key.
	PublicURL(key string) string
}

// UploadFile streams one local file into the store.
func UploadFile(ctx context.Context, s Store, localPath, key string, opts UploadOptions) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.Upload(ctx, key, f, opts)
}
