// Package events handles emission of the marketplace event feed: signing
// event payloads with the platform key and broadcasting them on the signal
// bus for live observers. Durable storage of events happens in the order
// transaction via domain.EventStore; the emitter only covers the parts that
// can safely be best-effort.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vktrn/marketd/internal/crypto"
	"github.com/vktrn/marketd/internal/domain"
)

// Channel is the signal-bus channel carrying every marketplace event.
// Type-specific channels ("events:listed" etc.) carry the same payloads
// filtered by event type.
const Channel = "events"

// Stream is the durable Redis stream mirroring the event feed.
const Stream = "stream:events"

// Emitter signs and broadcasts marketplace events.
type Emitter struct {
	bus    domain.SignalBus
	signer *crypto.EventSigner // nil disables signing
	logger *slog.Logger
}

// NewEmitter creates an Emitter. signer may be nil, in which case events are
// broadcast unsigned.
func NewEmitter(bus domain.SignalBus, signer *crypto.EventSigner, logger *slog.Logger) *Emitter {
	return &Emitter{
		bus:    bus,
		signer: signer,
		logger: logger,
	}
}

// Sign attaches the platform signature to the event. Call before the event
// is persisted so the stored row carries the signature. A nil signer is a
// no-op.
func (e *Emitter) Sign(evt *domain.MarketEvent) error {
	if e.signer == nil {
		return nil
	}

	payload, err := CanonicalPayload(*evt)
	if err != nil {
		return fmt.Errorf("events: canonical payload: %w", err)
	}

	sig, err := e.signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("events: %w: %v", domain.ErrSigningFailed, err)
	}
	evt.Signature = sig
	return nil
}

// Broadcast publishes the event on the signal bus and appends it to the
// durable stream. Broadcast failures are logged, never returned: the event
// is already committed to the store, and indexers can recover missed events
// from there.
func (e *Emitter) Broadcast(ctx context.Context, evt domain.MarketEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		e.logger.ErrorContext(ctx, "events: marshal event failed",
			slog.String("order_id", evt.OrderID),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, ch := range []string{Channel, Channel + ":" + string(evt.Type)} {
		if err := e.bus.Publish(ctx, ch, payload); err != nil {
			e.logger.WarnContext(ctx, "events: publish failed",
				slog.String("channel", ch),
				slog.String("order_id", evt.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := e.bus.StreamAppend(ctx, Stream, payload); err != nil {
		e.logger.WarnContext(ctx, "events: stream append failed",
			slog.String("order_id", evt.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// CanonicalPayload returns the bytes covered by an event signature: the JSON
// encoding of the event with the store-assigned ID and the signature itself
// zeroed. Verifiers must rebuild this exact form.
func CanonicalPayload(evt domain.MarketEvent) ([]byte, error) {
	evt.ID = 0
	evt.Signature = ""
	return json.Marshal(evt)
}
