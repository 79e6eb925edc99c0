// Package bus publishes presentation lifecycle events for downstream
// consumers. Two implementations: an in-process channel bus for single-node
// deployments and tests, and a NATS-backed one for multi-node setups.
package bus

import (
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned when a subscriber's buffer is saturated.
	// Lifecycle events are best-effort; the durable record lives in sqlite.
	ErrQueueFull = errors.New("subscriber queue is full")
)

// Message is one published lifecycle event.
type Message struct {
	Subject string
	Data    []byte
}

// Bus is the publishing surface components depend on.
type Bus interface {
	Publish(subject string, data []byte) error
	Close() error
}

// Inproc is a channel-backed bus for single-node deployments. Subscribers
// that fall behind lose messages rather than block publishers.
type Inproc struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	buffer int
	closed bool
}

// NewInproc creates an in-process bus with the given per-subscriber buffer.
func NewInproc(buffer int) *Inproc {
	if buffer <= 0 {
		buffer = 64
	}
	return &Inproc{
		subs:   make(map[string][]chan Message),
		buffer: buffer,
	}
}

// Subscribe returns a channel receiving messages for a subject. The channel
// is closed when the bus closes.
func (b *Inproc) Subscribe(subject string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, b.buffer)
	b.subs[subject] = append(b.subs[subject], ch)
	return ch
}

// Publish delivers to every subscriber of the subject. A subject with no
// subscribers is not an error.
func (b *Inproc) Publish(subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.New("bus closed")
	}

	var errFull error
	for _, ch := range b.subs[subject] {
		select {
		case ch <- Message{Subject: subject, Data: data}:
		default:
			errFull = ErrQueueFull
		}
	}
	return errFull
}

// Close closes every subscriber channel.
func (b *Inproc) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = make(map[string][]chan Message)
	return nil
}
