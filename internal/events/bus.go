package events

import (
	"log"
	"sync"
)

// Bus fans gateway events out to subscriber channels.
//
// Delivery adapts to the topic. Quote ticks are latest-wins: a lagging
// subscriber loses the oldest pending tick so the freshest price always
// lands. On every other topic a full buffer also evicts the oldest
// payload, but the lag is logged because losing order or connection
// events means the subscriber is undersized.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe registers a listener for an event. The returned function
// removes the subscription and closes the channel.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish delivers the payload to every subscriber without blocking the
// publisher. Publishers include the serialized order lane, so a slow
// subscriber must never stall a Publish call.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		if deliver(ch, payload) && e != EventQuoteTick {
			log.Printf("events: %s subscriber lagging, dropped oldest payload", e)
		}
	}
}

// deliver sends the payload, evicting the oldest pending payload when
// the buffer is full. Reports whether an eviction happened.
func deliver(ch chan any, payload any) bool {
	select {
	case ch <- payload:
		return false
	default:
	}

	select {
	case <-ch:
	default:
	}
	select {
	case ch <- payload:
	default:
		// Lost a race with another publisher; the channel carries
		// newer payloads, so dropping this one keeps freshness.
	}
	return true
}
