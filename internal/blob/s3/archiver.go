package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vktrn/marketd/internal/domain"
)

// archivePrefix is the object-key prefix for exported event batches.
const archivePrefix = "archive/events/"

// ArchiveImpl implements domain.Archiver by exporting event-log entries to
// object storage as JSONL batches for off-chain indexers.
//
// Rows are not deleted from the primary store here: pruning is a separate,
// explicit step to be executed after the archive has been verified.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	events domain.EventStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, events domain.EventStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		events: events,
	}
}

// ArchiveEvents queries events created before the cutoff that lie past the
// archive's high-water mark, serializes them to JSONL, and uploads the batch
// to archive/events/<firstID>-<lastID>.jsonl. Each event is exported exactly
// once across passes; zero new entries means no upload. The high-water mark
// is the largest event ID named by an existing batch, so the archive itself
// is the source of truth and a fresh bucket starts from the beginning of the
// log.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	mark, err := a.highWaterMark(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive high-water mark: %w", err)
	}

	events, err := a.events.ListBefore(ctx, before, mark)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
		}
	}

	path := batchPath(events[0].ID, events[len(events)-1].ID)
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	// Confirm the batch is visible before reporting success. Pruning relies
	// on the archive being readable.
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive events verify: %s not visible after upload", path)
	}

	return int64(len(events)), nil
}

// Inventory returns metadata for every archived event batch.
func (a *ArchiveImpl) Inventory(ctx context.Context) ([]domain.BlobInfo, error) {
	infos, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive inventory: %w", err)
	}
	return infos, nil
}

// batchPath builds the object key for a batch covering the given event-ID
// range. IDs are zero-padded so keys sort in log order.
func batchPath(first, last int64) string {
	return fmt.Sprintf("%s%020d-%020d.jsonl", archivePrefix, first, last)
}

// highWaterMark returns the largest event ID covered by an existing batch,
// or zero when the archive is empty. Keys that do not match the batch naming
// scheme are ignored.
func (a *ArchiveImpl) highWaterMark(ctx context.Context) (int64, error) {
	infos, err := a.reader.List(ctx, archivePrefix)
	if err != nil {
		return 0, err
	}

	var mark int64
	for _, info := range infos {
		name := strings.TrimSuffix(strings.TrimPrefix(info.Path, archivePrefix), ".jsonl")
		_, lastStr, ok := strings.Cut(name, "-")
		if !ok {
			continue
		}
		last, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil {
			continue
		}
		if last > mark {
			mark = last
		}
	}
	return mark, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
