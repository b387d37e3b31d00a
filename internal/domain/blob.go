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

// BlobReader inspects object storage.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver exports old event-log entries to cold storage for off-chain
// indexers.
type Archiver interface {
	// ArchiveEvents uploads all events created before the cutoff and
	// returns how many were exported.
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)

	// Inventory lists the archive batches currently in cold storage.
	Inventory(ctx context.Context) ([]BlobInfo, error)
}
