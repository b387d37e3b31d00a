package events

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vktrn/marketd/internal/crypto"
	"github.com/vktrn/marketd/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type recordingBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		published: make(map[string][][]byte),
		streamed:  make(map[string][][]byte),
	}
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *recordingBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testEvent() domain.MarketEvent {
	return domain.MarketEvent{
		Type:      domain.EventListed,
		OrderID:   "0xabc",
		Seq:       1,
		Asset:     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		AssetID:   "7",
		Seller:    "0x1111111111111111111111111111111111111111",
		Price:     "1000",
		CreatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitterSign(t *testing.T) {
	t.Run("nil signer leaves event unsigned", func(t *testing.T) {
		e := NewEmitter(newRecordingBus(), nil, testLogger())

		evt := testEvent()
		if err := e.Sign(&evt); err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if evt.Signature != "" {
			t.Errorf("signature = %q, want empty", evt.Signature)
		}
	})

	t.Run("signature verifies against canonical payload", func(t *testing.T) {
		signer, err := crypto.NewEventSigner(testKeyHex)
		if err != nil {
			t.Fatalf("NewEventSigner: %v", err)
		}
		e := NewEmitter(newRecordingBus(), signer, testLogger())

		evt := testEvent()
		if err := e.Sign(&evt); err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if evt.Signature == "" {
			t.Fatal("event left unsigned")
		}

		// The store assigns an ID after signing; verification must not be
		// affected by it.
		evt.ID = 42
		payload, err := CanonicalPayload(evt)
		if err != nil {
			t.Fatalf("CanonicalPayload: %v", err)
		}
		if err := crypto.VerifySignature(payload, evt.Signature, signer.Address()); err != nil {
			t.Errorf("VerifySignature: %v", err)
		}
	})
}

func TestEmitterBroadcast(t *testing.T) {
	bus := newRecordingBus()
	e := NewEmitter(bus, nil, testLogger())

	evt := testEvent()
	e.Broadcast(context.Background(), evt)

	if got := len(bus.published[Channel]); got != 1 {
		t.Errorf("published %d on %q, want 1", got, Channel)
	}
	typed := Channel + ":" + string(evt.Type)
	if got := len(bus.published[typed]); got != 1 {
		t.Errorf("published %d on %q, want 1", got, typed)
	}
	if got := len(bus.streamed[Stream]); got != 1 {
		t.Errorf("appended %d to stream %q, want 1", got, Stream)
	}
}
