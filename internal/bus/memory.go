package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus with the same wildcard and at-least-once
// semantics as the NATS transport. Handlers run on their own goroutines so
// the publisher never waits; Flush blocks until in-flight deliveries drain,
// which keeps tests deterministic.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[int]*memorySub
	nextID   int
	inflight sync.WaitGroup
	closed   bool
}

type memorySub struct {
	bus     *MemoryBus
	id      int
	pattern string
	handler Handler
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySub)}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	var matched []Handler
	for _, sub := range b.subs {
		if MatchSubject(sub.pattern, event.Type) {
			matched = append(matched, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range matched {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			h(ctx, event)
		}(handler)
	}
	return nil
}

func (b *MemoryBus) Subscribe(pattern string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &memorySub{bus: b, id: b.nextID, pattern: pattern, handler: handler}
	b.subs[sub.id] = sub
	return sub, nil
}

// Flush blocks until every delivery started before the call has returned.
func (b *MemoryBus) Flush() {
	b.inflight.Wait()
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[int]*memorySub)
	b.mu.Unlock()
	b.inflight.Wait()
	return nil
}
