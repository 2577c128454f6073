package feed

import "sync"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to subscribers of its topic and of TopicAll.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the topic.
	Subscribe(topic string) <-chan Event
	// Unsubscribe removes a subscription channel and closes it.
	Unsubscribe(topic string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher delivers events in-process. Delivery never blocks: a
// subscriber whose buffer is full misses the event and has to resync.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

type PublisherOption func(*MemoryPublisher)

func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	deliver(p.subscribers[event.Topic], event)
	if event.Topic != TopicAll {
		deliver(p.subscribers[TopicAll], event)
	}
}

func deliver(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (p *MemoryPublisher) Subscribe(topic string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[topic] = append(p.subscribers[topic], ch)
	return ch
}

func (p *MemoryPublisher) Unsubscribe(topic string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	if len(p.subscribers[topic]) == 0 {
		delete(p.subscribers, topic)
	}
}

func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for topic, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, topic)
	}
}

// SubscriberCount returns the number of subscribers for a topic.
func (p *MemoryPublisher) SubscriberCount(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[topic])
}
