package signaling

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus. Publish blocks until every subscriber has
// taken the message, the subscriber closed, or ctx is done.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: map[string]map[*memorySub]struct{}{}}
}

type memorySub struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	done  chan struct{}
	once  sync.Once
}

func (s *memorySub) C() <-chan Message { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.topics[s.topic], s)
		if len(s.bus.topics[s.topic]) == 0 {
			delete(s.bus.topics, s.topic)
		}
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySub{bus: b, topic: topic, ch: make(chan Message, 64), done: make(chan struct{})}
	b.mu.Lock()
	if b.topics[topic] == nil {
		b.topics[topic] = map[*memorySub]struct{}{}
	}
	b.topics[topic][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	subs := make([]*memorySub, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns how many subscriptions are open on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
