package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver copies settled predictions to cold storage.
type Archiver interface {
	// ArchiveDay writes the predictions evaluated during the reference-zone
	// day starting at dayStart. It returns the number of records written, or
	// zero when the day was already archived.
	ArchiveDay(ctx context.Context, dayStart time.Time) (int, error)
}
