// Package bus feeds work into the single engine loop and fans engine
// activity out to observers.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/sipeed/ircclaw/pkg/event"
)

// Subscriber is a named tap on the activity stream. Multiple subscribers can
// independently consume the same published events (fan-out).
type Subscriber struct {
	Name string
	ch   chan TapEvent
}

// Bus connects producers (connection readers, plugin goroutines) to the one
// engine consumer. The work channel is buffered and blocking: a producer
// waits rather than lose a protocol line, which backpressures the reader
// while the engine catches up. Taps are lossy: slow observers drop.
type Bus struct {
	work      chan Work
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	// Fan-out subscribers; every published tap event is sent to all taps
	taps []*Subscriber
}

// New returns a bus whose work channel buffers up to size items.
func New(size int) *Bus {
	return &Bus{
		work: make(chan Work, size),
		done: make(chan struct{}),
	}
}

// --- Engine feed ---

// PushLine hands an inbound raw line to the engine.
func (b *Bus) PushLine(conn event.Conn, line string) {
	b.push(Work{Kind: KindLine, Conn: conn, Line: line})
}

// PushEmit hands an injected outbound event to the engine.
func (b *Bus) PushEmit(conn event.Conn, ev event.Event) {
	b.push(Work{Kind: KindEmit, Conn: conn, Event: ev})
}

// push blocks while the buffer is full, releasing only when the bus closes.
// Producers stuck here during shutdown drop their item and return.
func (b *Bus) push(w Work) {
	select {
	case <-b.done:
	case b.work <- w:
	}
}

// Consume blocks until the next work item or context end.
func (b *Bus) Consume(ctx context.Context) (Work, bool) {
	select {
	case w := <-b.work:
		return w, true
	case <-ctx.Done():
		return Work{}, false
	}
}

// --- Fan-out subscriptions ---

// Tap creates a named subscriber that receives copies of all published
// activity. The returned channel is buffered; slow consumers drop.
func (b *Bus) Tap(name string) <-chan TapEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan TapEvent, 64)}
	b.taps = append(b.taps, sub)
	return sub.ch
}

// Publish fans an activity event out to all taps.
func (b *Bus) Publish(ev TapEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.taps {
		select {
		case sub.ch <- ev:
		default: // non-blocking, drop if subscriber is slow
		}
	}
}

// Close stops the bus: blocked producers release, and every tap channel
// closes.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.done)
		for _, sub := range b.taps {
			close(sub.ch)
		}
		b.mu.Unlock()
	})
}
