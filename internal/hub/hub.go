// Package hub fans committed step completions out to connected observers.
// Delivery is best-effort: a slow or dead observer never blocks the
// publisher or its fellow observers.
package hub

import "sync"

const sendBuffer = 32

// Subscriber is one connected observer. Payloads arrive on C in publish
// order until the subscriber is removed, at which point C is closed.
type Subscriber struct {
	send chan []byte
}

func (s *Subscriber) C() <-chan []byte {
	return s.send
}

type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
}

func New() *Hub {
	return &Hub{subscribers: make(map[*Subscriber]struct{})}
}

func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its channel. Safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		close(sub.send)
	}
}

// Publish hands the payload to every current subscriber. A subscriber whose
// buffer is full misses the payload rather than stalling the send to others.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
