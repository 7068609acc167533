package sse

import (
	"sync"
	"sync/atomic"
)

// Broker fans events out to subscriber streams. Slow subscribers drop
// events rather than blocking the publisher.
type Broker struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	maxSubscribers int

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBroker creates a broker capped at maxSubscribers streams.
func NewBroker(maxSubscribers int) *Broker {
	if maxSubscribers <= 0 {
		maxSubscribers = 10000
	}
	return &Broker{
		streams:        make(map[string]*Stream),
		maxSubscribers: maxSubscribers,
	}
}

// Subscribe registers a stream under id. A nil return means the
// broker is full or the id is taken.
func (b *Broker) Subscribe(id string, bufferSize int) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.streams) >= b.maxSubscribers {
		return nil
	}
	if _, exists := b.streams[id]; exists {
		return nil
	}
	stream := NewStream(bufferSize)
	b.streams[id] = stream
	return stream
}

// Unsubscribe closes and removes the stream for id.
func (b *Broker) Unsubscribe(id string) {
	b.mu.Lock()
	stream, ok := b.streams[id]
	delete(b.streams, id)
	b.mu.Unlock()

	if ok {
		stream.Close()
	}
}

// Publish queues event on every subscribed stream.
func (b *Broker) Publish(event *Event) {
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, stream := range b.streams {
		if !stream.Send(event) {
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of live streams.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams)
}

// Stats returns publish/drop counters.
func (b *Broker) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}
