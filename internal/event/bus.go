package event

import "sync"

// Bus is a multi-producer/multi-consumer fan-out for core events.
//
// Publish never blocks: a subscriber whose channel is full loses the event.
// Slow consumers must not stall execution.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	seqs map[string]uint64 // per-run sequence counters
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[chan Event]struct{}),
		seqs: make(map[string]uint64),
	}
}

// Subscribe registers a new consumer channel with the given buffer size.
func (b *Bus) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a consumer channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish stamps the event with the next per-run sequence number and fans it
// out to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	if e == nil {
		return
	}
	b.mu.Lock()
	b.seqs[e.RunID()]++
	if s, ok := e.(stamper); ok {
		s.stamp(b.seqs[e.RunID()])
	}
	subs := make([]chan Event, 0, len(b.subs))
	for ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default: // slow subscriber: drop rather than stall the run
		}
	}
}

// EndRun releases the sequence counter for a finished run.
func (b *Bus) EndRun(runID string) {
	b.mu.Lock()
	delete(b.seqs, runID)
	b.mu.Unlock()
}
