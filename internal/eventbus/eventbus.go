// Package eventbus fans out in-process events such as measurement outcomes and
// broker connection attempts to observers like the metrics collector.
package eventbus

import "sync"

const defaultBuffer = 16

// Publisher is the producer side of a bus.
type Publisher[T any] interface {
	Publish(T)
}

// Bus is a type-safe publish/subscribe bus for events of type T.
// Delivery never blocks the publisher: slow subscribers lose events.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []chan T
	buffer int
	closed bool
}

// New creates a Bus whose subscriber channels hold buffer events.
// A non-positive buffer selects the default size.
func New[T any](buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus[T]{buffer: buffer}
}

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *Bus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its channel.
func (b *Bus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus[T]) Unsubscribe(sub <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes the bus and all subscriber channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Nop discards every event.
type Nop[T any] struct{}

func (Nop[T]) Publish(T) {}
