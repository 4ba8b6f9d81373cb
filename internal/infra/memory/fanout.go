package memory

import (
	"context"
	"sync"

	"quiz-gateway/internal/domain"
)

// Fanout delivers room events to subscribers inside this process only. It is the single-instance
// counterpart of the redis fanout.
type Fanout struct {
	mu       sync.RWMutex
	handlers []func(domain.RoomEvent)
}

func NewFanout() *Fanout {
	return &Fanout{}
}

// Publish hands the event to every subscriber synchronously, in publish order.
func (f *Fanout) Publish(_ context.Context, event domain.RoomEvent) error {
	f.mu.RLock()
	handlers := append([]func(domain.RoomEvent){}, f.handlers...)
	f.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (f *Fanout) Subscribe(_ context.Context, handler func(domain.RoomEvent)) error {
	f.mu.Lock()
	f.handlers = append(f.handlers, handler)
	f.mu.Unlock()
	return nil
}

func (f *Fanout) Close() error { return nil }
