package transport

import (
	"context"
	"sync"

	"ptstream/log"

	"github.com/pkg/errors"
)

const DefaultMemorySubscriptionBuffer = 128

// MemoryBus is an in-process broker. Every MemoryTransport created from the
// same bus shares its topics.
type MemoryBus struct {
	BufferLen int
	mu        sync.RWMutex
	subs      map[string]map[*memorySubscription]struct{}
	lgr       log.Logger
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		BufferLen: DefaultMemorySubscriptionBuffer,
		subs:      make(map[string]map[*memorySubscription]struct{}),
		lgr:       log.WithModule("memory-bus"),
	}
}

// publish copies payload to every subscriber. A subscriber whose buffer is
// full misses the message.
func (b *MemoryBus) publish(topic string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[topic] {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		select {
		case sub.ch <- cp:
		default:
			b.lgr.Warn("subscriber buffer full, dropping message", "topic", topic)
		}
	}
}

func (b *MemoryBus) subscribe(topic string) *memorySubscription {
	sub := &memorySubscription{
		bus:   b,
		topic: topic,
		ch:    make(chan []byte, b.BufferLen),
	}
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *MemoryBus) unsubscribe(sub *memorySubscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.topic][sub]; !ok {
		return false
	}
	delete(b.subs[sub.topic], sub)
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
	close(sub.ch)
	return true
}

// Transport returns a new client of the bus.
func (b *MemoryBus) Transport() *MemoryTransport {
	return &MemoryTransport{
		bus:  b,
		subs: make(map[*memorySubscription]struct{}),
	}
}

type MemoryTransport struct {
	bus       *MemoryBus
	mu        sync.Mutex
	connected bool
	subs      map[*memorySubscription]struct{}

	// FailPublish, when set, is returned by Publish. Tests use it to stand in
	// for an unreachable broker.
	FailPublish error
}

var _ Transport = (*MemoryTransport)(nil)

func (m *MemoryTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MemoryTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	connected := m.connected
	failErr := m.FailPublish
	m.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if failErr != nil {
		return errors.Wrap(ErrTransport, failErr.Error())
	}
	m.bus.publish(topic, payload)
	return nil
}

func (m *MemoryTransport) SetFailPublish(err error) {
	m.mu.Lock()
	m.FailPublish = err
	m.mu.Unlock()
}

func (m *MemoryTransport) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	sub := m.bus.subscribe(topic)
	sub.owner = m
	m.subs[sub] = struct{}{}
	return sub, nil
}

func (m *MemoryTransport) Disconnect() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[*memorySubscription]struct{})
	m.connected = false
	m.mu.Unlock()

	for sub := range subs {
		m.bus.unsubscribe(sub)
	}
	return nil
}

type memorySubscription struct {
	bus   *MemoryBus
	owner *MemoryTransport
	topic string
	ch    chan []byte
}

func (s *memorySubscription) Topic() string {
	return s.topic
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *memorySubscription) Close() error {
	if s.owner != nil {
		s.owner.mu.Lock()
		delete(s.owner.subs, s)
		s.owner.mu.Unlock()
	}
	s.bus.unsubscribe(s)
	return nil
}
