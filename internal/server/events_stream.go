package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
)

// allEventTypes lists every event type the bus carries, for the
// unsubscribed (no "types" query param) default stream.
var allEventTypes = []events.EventType{
	events.TradeExecuted,
	events.WorkerCrashed,
	events.WorkerRestarted,
	events.RiskAlertRaised,
	events.RetrainTriggered,
	events.VenueTransferred,
	events.GridRecentered,
	events.SentimentShifted,
	events.ErrorOccurred,
}

// EventsStreamHandler serves the unified Server-Sent Events (SSE) stream
// over the event bus.
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler builds an EventsStreamHandler.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{bus: bus, log: log.With().Str("component", "events_stream").Logger()}
}

// ServeHTTP handles GET /api/events/stream. An optional "types" query
// parameter (comma-separated event type names) restricts the stream to a
// subset; omitted, every event type is forwarded.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var subscribeTo []events.EventType
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		for _, t := range strings.Split(typesFilter, ",") {
			subscribeTo = append(subscribeTo, events.EventType(strings.TrimSpace(t)))
		}
	} else {
		subscribeTo = allEventTypes
	}

	eventChan := make(chan *events.Event, 100)
	handler := func(e *events.Event) {
		select {
		case eventChan <- e:
		default:
			h.log.Warn().Str("event_type", string(e.Type)).Msg("server: event stream channel full, dropping event")
		}
	}
	for _, t := range subscribeTo {
		h.bus.Subscribe(t, handler)
	}

	h.log.Info().Msg("server: client connected to event stream")
	fmt.Fprintf(w, "data: %s\n\n", encode(map[string]any{"type": "connected"}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Msg("server: client disconnected from event stream")
			return
		case e := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", encode(map[string]any{
				"type":      string(e.Type),
				"module":    e.Module,
				"timestamp": e.Timestamp.Format(time.RFC3339),
				"data":      e.Data,
			}))
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
