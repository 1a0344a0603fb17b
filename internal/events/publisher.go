package events

import (
	"sync"
)

// GlobalEffort is the reserved effort name for subscribing to all events.
const GlobalEffort = "*"

// Publisher is the event publishing interface.
type Publisher interface {
	// Publish sends an event to subscribers of its effort and to global
	// subscribers.
	Publish(event Event)
	// Subscribe returns a channel receiving events for the given effort.
	// Use GlobalEffort ("*") to receive everything.
	Subscribe(effort string) <-chan Event
	// Unsubscribe removes a subscription channel and closes it.
	Unsubscribe(effort string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is the in-memory Publisher used by the server.
type MemoryPublisher struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates an in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish delivers the event without blocking; subscribers with full
// buffers miss it.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[event.Effort] {
		select {
		case ch <- event:
		default:
		}
	}
	if event.Effort != GlobalEffort {
		for _, ch := range p.subscribers[GlobalEffort] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events for the given effort.
func (p *MemoryPublisher) Subscribe(effort string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[effort] = append(p.subscribers[effort], ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (p *MemoryPublisher) Unsubscribe(effort string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[effort]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[effort] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(p.subscribers[effort]) == 0 {
		delete(p.subscribers, effort)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for effort, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, effort)
	}
}

// NopPublisher discards all events. Used by one-shot CLI commands that do
// not need a live event stream.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

func (NopPublisher) Subscribe(string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

func (NopPublisher) Unsubscribe(string, <-chan Event) {}

func (NopPublisher) Close() {}
