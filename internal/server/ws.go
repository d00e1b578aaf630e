package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/qforge-dev/qforge/internal/events"
)

// WSHandler streams the same event feed as the SSE endpoint over a
// websocket, for clients that want bidirectional framing or live behind
// proxies that buffer SSE.
type WSHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewWSHandler creates a websocket event stream handler.
func NewWSHandler(bus *events.Bus, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		bus: bus,
		log: log.With().Str("component", "ws_stream").Logger(),
	}
}

// wsEvent is the wire form of one streamed event.
type wsEvent struct {
	Type      string           `json:"type"`
	Source    string           `json:"source,omitempty"`
	Timestamp string           `json:"timestamp"`
	Data      events.EventData `json:"data,omitempty"`
}

// ServeHTTP handles GET /api/events/ws requests.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	jobFilter := r.URL.Query().Get("job")
	h.log.Info().Str("job_filter", jobFilter).Msg("Client connected to websocket stream")

	eventChan := make(chan *events.Event, 100)
	unsubscribe := h.bus.SubscribeAll(func(event *events.Event) {
		if jobFilter != "" && !eventMatchesJob(event, jobFilter) {
			return
		}
		select {
		case eventChan <- event:
		default:
		}
	})
	defer unsubscribe()

	ctx := r.Context()

	// Drain reads so close frames and pings are processed.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event := <-eventChan:
			if err := h.write(ctx, conn, &wsEvent{
				Type:      string(event.Type),
				Source:    event.Source,
				Timestamp: event.Timestamp.Format(time.RFC3339),
				Data:      event.Typed,
			}); err != nil {
				h.log.Info().Err(err).Msg("Websocket client disconnected")
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, &wsEvent{
				Type:      "heartbeat",
				Timestamp: time.Now().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, event *wsEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}
