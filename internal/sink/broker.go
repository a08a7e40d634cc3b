package sink

import (
	"context"
	"sync"
)

// Broker fans releases out to in-process subscribers. Slow subscribers miss
// releases rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Release]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[chan Release]struct{}{}}
}

func (b *Broker) Subscribe() chan Release {
	ch := make(chan Release, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan Release) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

func (b *Broker) Publish(_ context.Context, r Release) error {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- r:
		default:
		}
	}
	b.mu.Unlock()
	return nil
}
