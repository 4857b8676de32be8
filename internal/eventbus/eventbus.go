// Package eventbus provides a typed in-process publish/subscribe fan-out.
//
// The pipeline publishes lifecycle events, diagnostics, and confirmed plate
// readings; the API server, recorder, gate controller, and debug tail each
// subscribe independently. Publishing never blocks: a subscriber that has
// fallen behind misses values rather than stalling the pipeline.
package eventbus

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// Bus fans published values out to all current subscribers. The zero value
// is not usable; call New.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[string]chan T
	buffer      int
	dropped     uint64
	closed      bool
}

// New creates a bus whose subscriber channels buffer up to buffer values
// each. A buffer below 1 defaults to 16.
func New[T any](buffer int) *Bus[T] {
	if buffer < 1 {
		buffer = 16
	}
	return &Bus[T]{
		subscribers: make(map[string]chan T),
		buffer:      buffer,
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving every value published after
// this call. The returned ID identifies the channel for Unsubscribe. On a
// closed bus the returned channel is already closed.
func (b *Bus[T]) Subscribe() (string, chan T) {
	id := randomID()
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown IDs are
// ignored.
func (b *Bus[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Publish delivers v to every subscriber whose buffer has room. Slow
// subscribers are skipped so the publisher never blocks; each skip is
// counted.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			b.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Bus[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel and marks the bus closed. Further
// publishes are discarded.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
