package obsv

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// TransitionEvent is one status change broadcast to operators tailing the
// ops feed — a diff moving between pipeline stages, not a user-facing
// notification.
type TransitionEvent struct {
	RevID     uint64    `json:"rev_id"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// OpsFeed fans transition events out to any number of WebSocket clients.
// Adapted from the teacher's AlertHub: there, a single Redis subscription
// fed many WS clients to avoid one blocking XRead per client. Here there is
// no external broker to share — the pipeline publishes directly in-process
// — but the fan-out/non-blocking-broadcast shape is the same.
type OpsFeed struct {
	mu          sync.RWMutex
	subscribers map[chan TransitionEvent]struct{}
	logger      zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewOpsFeed builds an OpsFeed.
func NewOpsFeed(logger zerolog.Logger) *OpsFeed {
	return &OpsFeed{
		subscribers: make(map[chan TransitionEvent]struct{}),
		logger:      logger.With().Str("component", "ops-feed").Logger(),
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Publish broadcasts event to every connected subscriber. Non-blocking: a
// subscriber whose buffer is full misses the event rather than stalling
// the pipeline.
func (f *OpsFeed) Publish(event TransitionEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of future events. The caller must call
// Unsubscribe when done.
func (f *OpsFeed) Subscribe() chan TransitionEvent {
	ch := make(chan TransitionEvent, 64)
	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (f *OpsFeed) Unsubscribe(ch chan TransitionEvent) {
	f.mu.Lock()
	delete(f.subscribers, ch)
	close(ch)
	f.mu.Unlock()
}

// ServeWS upgrades the request to a WebSocket and streams transition
// events to it until the client disconnects. Read-only: the handler never
// looks at messages sent by the client.
func (f *OpsFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := f.Subscribe()
	defer f.Unsubscribe(ch)

	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
