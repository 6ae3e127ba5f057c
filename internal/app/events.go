package app

import "sync"

// Event type identifiers pushed to the UI shell.
const (
	EventAuthCodeReceived = "auth-code-received"
	EventAuthTimeout      = "auth-timeout"
)

// Event is one asynchronous notification for the UI shell.
type Event struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Hub fans events out to subscribed UI connections. Sends never block:
// a subscriber that is not draining its channel misses events rather
// than stalling the flow that published them.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function that must be called when done.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every current subscriber.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than block.
		}
	}
}
