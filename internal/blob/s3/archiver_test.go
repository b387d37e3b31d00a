package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/vktrn/marketd/internal/domain"
)

// memBlobStore keeps uploaded objects in memory and serves both the writer
// and reader sides.
type memBlobStore struct {
	objects map[string][]byte
	putErr  error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, b := range m.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(b))})
		}
	}
	return infos, nil
}

func (m *memBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type fakeEventLog struct {
	events []domain.MarketEvent
}

func (f *fakeEventLog) Append(ctx context.Context, evt *domain.MarketEvent) error {
	evt.ID = int64(len(f.events) + 1)
	f.events = append(f.events, *evt)
	return nil
}

func (f *fakeEventLog) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	return f.events, nil
}

func (f *fakeEventLog) ListBefore(ctx context.Context, before time.Time, afterID int64) ([]domain.MarketEvent, error) {
	var out []domain.MarketEvent
	for _, e := range f.events {
		if e.ID > afterID && e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestArchiveEvents(t *testing.T) {
	ctx := context.Background()
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	log := &fakeEventLog{}
	for _, created := range []time.Time{
		cutoff.Add(-48 * time.Hour),
		cutoff.Add(-24 * time.Hour),
		cutoff.Add(24 * time.Hour), // after cutoff, must stay
	} {
		_ = log.Append(ctx, &domain.MarketEvent{
			Type:      domain.EventListed,
			OrderID:   "0xabc",
			Seller:    "0x1111111111111111111111111111111111111111",
			Price:     big.NewInt(1000).String(),
			CreatedAt: created,
		})
	}

	t.Run("uploads jsonl batch named by id range", func(t *testing.T) {
		store := newMemBlobStore()
		arch := NewArchiver(store, store, log)

		count, err := arch.ArchiveEvents(ctx, cutoff)
		if err != nil {
			t.Fatalf("ArchiveEvents: %v", err)
		}
		if count != 2 {
			t.Errorf("archived %d events, want 2", count)
		}

		body, ok := store.objects[batchPath(1, 2)]
		if !ok {
			t.Fatalf("batch object missing, have %v", store.objects)
		}

		scanner := bufio.NewScanner(bytes.NewReader(body))
		lines := 0
		for scanner.Scan() {
			var evt domain.MarketEvent
			if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
				t.Fatalf("line %d not valid JSON: %v", lines, err)
			}
			lines++
		}
		if lines != 2 {
			t.Errorf("batch has %d lines, want 2", lines)
		}
	})

	t.Run("repeat pass exports nothing new", func(t *testing.T) {
		store := newMemBlobStore()
		arch := NewArchiver(store, store, log)

		if _, err := arch.ArchiveEvents(ctx, cutoff); err != nil {
			t.Fatalf("first pass: %v", err)
		}
		count, err := arch.ArchiveEvents(ctx, cutoff)
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if count != 0 {
			t.Errorf("second pass archived %d events, want 0", count)
		}
		if len(store.objects) != 1 {
			t.Errorf("archive holds %d objects, want 1: %v", len(store.objects), store.objects)
		}
	})

	t.Run("later cutoff does not re-export", func(t *testing.T) {
		store := newMemBlobStore()
		oldLog := &fakeEventLog{}
		_ = oldLog.Append(ctx, &domain.MarketEvent{
			Type:      domain.EventListed,
			OrderID:   "0xabc",
			Seller:    "0x1111111111111111111111111111111111111111",
			Price:     "1000",
			CreatedAt: cutoff.Add(-45 * 24 * time.Hour),
		})
		arch := NewArchiver(store, store, oldLog)

		if got, err := arch.ArchiveEvents(ctx, cutoff); err != nil || got != 1 {
			t.Fatalf("first pass archived %d (%v), want 1", got, err)
		}

		// A month later with no new events the archive must stay unchanged.
		count, err := arch.ArchiveEvents(ctx, cutoff.AddDate(0, 1, 0))
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		if count != 0 {
			t.Errorf("second pass archived %d events, want 0", count)
		}
		if len(store.objects) != 1 {
			t.Errorf("archive holds %d objects, want 1: %v", len(store.objects), store.objects)
		}
	})

	t.Run("new events land in a new batch", func(t *testing.T) {
		store := newMemBlobStore()
		freshLog := &fakeEventLog{}
		for _, e := range log.events {
			freshLog.events = append(freshLog.events, e)
		}
		arch := NewArchiver(store, store, freshLog)

		if _, err := arch.ArchiveEvents(ctx, cutoff); err != nil {
			t.Fatalf("first pass: %v", err)
		}

		_ = freshLog.Append(ctx, &domain.MarketEvent{
			Type:      domain.EventCancelled,
			OrderID:   "0xdef",
			Seller:    "0x1111111111111111111111111111111111111111",
			Price:     "1000",
			CreatedAt: cutoff.Add(12 * time.Hour),
		})

		count, err := arch.ArchiveEvents(ctx, cutoff.AddDate(0, 1, 0))
		if err != nil {
			t.Fatalf("second pass: %v", err)
		}
		// Events 3 (created after the first cutoff) and 4 are new.
		if count != 2 {
			t.Errorf("second pass archived %d events, want 2", count)
		}
		if _, ok := store.objects[batchPath(3, 4)]; !ok {
			t.Errorf("incremental batch missing, have %v", store.objects)
		}
		if len(store.objects) != 2 {
			t.Errorf("archive holds %d objects, want 2: %v", len(store.objects), store.objects)
		}
	})

	t.Run("no events means no upload", func(t *testing.T) {
		store := newMemBlobStore()
		arch := NewArchiver(store, store, &fakeEventLog{})

		count, err := arch.ArchiveEvents(ctx, cutoff)
		if err != nil {
			t.Fatalf("ArchiveEvents: %v", err)
		}
		if count != 0 {
			t.Errorf("archived %d events, want 0", count)
		}
		if len(store.objects) != 0 {
			t.Errorf("unexpected uploads: %v", store.objects)
		}
	})

	t.Run("upload failure is reported", func(t *testing.T) {
		store := newMemBlobStore()
		store.putErr = io.ErrClosedPipe
		arch := NewArchiver(store, store, log)

		if _, err := arch.ArchiveEvents(ctx, cutoff); err == nil {
			t.Fatal("expected error from failed upload")
		}
	})

	t.Run("inventory lists batches", func(t *testing.T) {
		store := newMemBlobStore()
		arch := NewArchiver(store, store, log)

		if _, err := arch.ArchiveEvents(ctx, cutoff); err != nil {
			t.Fatalf("ArchiveEvents: %v", err)
		}

		infos, err := arch.Inventory(ctx)
		if err != nil {
			t.Fatalf("Inventory: %v", err)
		}
		if len(infos) != 1 {
			t.Fatalf("got %d batches, want 1", len(infos))
		}
		if infos[0].Size == 0 {
			t.Error("batch size is zero")
		}
	})
}
