package observer

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Hub fans encoded messages out to every subscriber. Each subscriber has a
// bounded buffer; a full buffer drops the message for that subscriber only.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]chan []byte
	nextID  uint64

	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{clients: map[uint64]chan []byte{}}
}

// Subscribe registers a client with the given buffer size. cancel closes the
// returned channel and is safe to call more than once.
func (h *Hub) Subscribe(buf int) (out <-chan []byte, cancel func()) {
	if buf <= 0 {
		buf = 1
	}
	ch := make(chan []byte, buf)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.clients[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish encodes msg once and offers it to every subscriber.
func (h *Hub) Publish(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- b:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts messages not delivered to slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
