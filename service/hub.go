package service

import "sync"

// Update is one lease-state transition pushed to watch subscribers.
type Update struct {
	Scope  string `json:"scope"`
	Key    string `json:"key"`
	Holder int    `json:"holder"`
}

// Hub fans lease-state transitions out to watch subscribers. Delivery is
// best-effort: a subscriber that falls behind loses updates rather than
// blocking claim and release processing. Polling remains the correctness
// mechanism; the hub only shortens the time to the next guard transition.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Update]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe() chan Update {
	ch := make(chan Update, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(ch chan Update) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an update to every subscriber that has buffer room.
func (h *Hub) Publish(update Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- update:
		default:
		}
	}
}
