package app

import (
	"sync"

	"github.com/0xYach/liquid-pressure-chess/app/models"
)

// Subscription receives game events for one spectator.
type Subscription struct {
	ch chan models.GameEvent
}

// C is the receive side of the subscription.
func (s *Subscription) C() <-chan models.GameEvent { return s.ch }

// Hub fans game events out to spectators. Slow subscribers drop events rather
// than stalling the game loop.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	sub := &Subscription{ch: make(chan models.GameEvent, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	close(sub.ch)
}

func (h *Hub) Broadcast(event models.GameEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}
