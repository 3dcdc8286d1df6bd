package events

import (
	"sync"
	"time"
)

// Broker fans events out to subscribers. Publish assigns sequence numbers
// under the lock, so delivery order into each channel matches publish order.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Type][]chan Event
	bufferSize  int
	seq         uint64
}

// NewBroker creates an event broker. Subscriber channels are buffered; a
// slow subscriber drops events rather than blocking the core.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Type][]chan Event),
		bufferSize:  64,
	}
}

// Subscribe returns a channel receiving the given event types. With no types
// it receives everything.
func (b *Broker) Subscribe(types ...Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if len(types) == 0 {
		types = []Type{"*"}
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe removes and closes a subscription.
func (b *Broker) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var found chan Event
	for t, subs := range b.subscribers {
		for i, sub := range subs {
			if sub == ch {
				b.subscribers[t] = append(subs[:i], subs[i+1:]...)
				found = sub
				break
			}
		}
		if len(b.subscribers[t]) == 0 {
			delete(b.subscribers, t)
		}
	}
	if found != nil {
		close(found)
	}
}

// Publish delivers an event to matching and wildcard subscribers.
func (b *Broker) Publish(t Type, payload interface{}) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	ev := Event{Type: t, Payload: payload, Seq: b.seq, Timestamp: time.Now()}

	for _, ch := range b.subscribers[t] {
		select {
		case ch <- ev:
		default:
		}
	}
	for _, ch := range b.subscribers["*"] {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Close shuts down all subscriptions.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[chan Event]bool)
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				close(ch)
				seen[ch] = true
			}
		}
	}
	b.subscribers = make(map[Type][]chan Event)
}
