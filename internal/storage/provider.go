package storage

import (
	"context"
	"io"
)

// Provider defines where generated artifacts are mirrored after they are written locally.
type Provider interface {
	// StreamToFile returns a WriteCloser. Data written to it is streamed to the storage destination.
	// The key is the relative path of the artifact.
	// The returned channel receives a single error (or nil) when the storage operation completes.
	StreamToFile(ctx context.Context, key string) (io.WriteCloser, <-chan error)

	// OpenFile opens a mirrored artifact for reading. Mirror uses it to verify uploads.
	OpenFile(ctx context.Context, key string) (io.ReadCloser, error)

	// GetDownloadURL returns the location of the mirrored artifact.
	GetDownloadURL(key string) string
}
