package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/seoscope/keywordrun/internal/pipeline"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSubBuffer  = 64
)

// ProgressEvent is one stage progress tick pushed to stream clients.
type ProgressEvent struct {
	Batch   string    `json:"batch,omitempty"`
	Stage   string    `json:"stage"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	At      time.Time `json:"at"`
}

// ProgressHub fans pipeline progress out to WebSocket subscribers.
// Publishing never blocks: a subscriber that cannot keep up loses
// events, not the pipeline.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[chan ProgressEvent]struct{}
	log  zerolog.Logger
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		subs: make(map[chan ProgressEvent]struct{}),
		log:  logger.With().Str("component", "progress_hub").Logger(),
	}
}

// Subscribe registers a stream and returns its event channel.
func (h *ProgressHub) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, wsSubBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a stream channel.
func (h *ProgressHub) Unsubscribe(ch chan ProgressEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish fans an event out to every subscriber without blocking.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribers reports the current stream count.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// ProgressFunc adapts the hub to the pipeline's progress callback.
// The batch label identifies the run in a stream that may interleave
// several.
func (h *ProgressHub) ProgressFunc(batch string) pipeline.ProgressFunc {
	return func(stage string, current, total int) {
		h.Publish(ProgressEvent{
			Batch:   batch,
			Stage:   stage,
			Current: current,
			Total:   total,
			At:      time.Now().UTC(),
		})
	}
}

// The server binds to localhost; origin filtering happens there, not
// per connection.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Progress streams stage progress events over a WebSocket until the
// client disconnects.
func (h *Handlers) Progress(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrading progress stream")
		return
	}
	defer conn.Close()

	events := h.deps.Hub.Subscribe()
	defer h.deps.Hub.Unsubscribe(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
