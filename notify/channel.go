package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelFull indicates the subscriber buffer had no room for an event.
var ErrChannelFull = errors.New("notification channel full")

// ChannelPublisher buffers events for a single in-process consumer, such as
// a streaming HTTP handler. Notify never blocks: events that do not fit in
// the buffer are dropped and reported as ErrChannelFull.
type ChannelPublisher struct {
	mu     sync.RWMutex
	events chan Event
	closed bool
}

// NewChannelPublisher creates a publisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelPublisher{events: make(chan Event, buffer)}
}

// Events returns the channel events are delivered on. It is closed by Close.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.events
}

// Notify enqueues event without blocking.
func (p *ChannelPublisher) Notify(_ context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}
	select {
	case p.events <- event:
		return nil
	default:
		return ErrChannelFull
	}
}

// Close stops delivery and closes the events channel.
func (p *ChannelPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}
