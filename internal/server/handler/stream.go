package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vktrn/marketd/internal/domain"
	"github.com/vktrn/marketd/internal/events"
)

// StreamHandler serves replay of the durable event stream, letting indexers
// catch up on feed entries they missed while disconnected from /ws.
type StreamHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewStreamHandler creates a StreamHandler over the given signal bus.
func NewStreamHandler(bus domain.SignalBus, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		bus:    bus,
		logger: logHandler(logger, "stream"),
	}
}

// streamEntryJSON pairs a stream cursor with the event payload it carries.
// Clients pass the last ID they processed as ?after= on the next request.
type streamEntryJSON struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// Replay returns event-stream entries after the given cursor, oldest first.
// GET /api/events/stream?after=<stream id>&limit=50
func (h *StreamHandler) Replay(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0-0"
	}
	opts := parseListOpts(r)

	msgs, err := h.bus.StreamRead(r.Context(), events.Stream, after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream replay failed",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	entries := make([]streamEntryJSON, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, streamEntryJSON{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
