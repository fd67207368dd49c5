package event

// Queue is the outbound response queue. Handlers invoked during a dispatch
// cycle share one Queue by reference and push response events into it; the
// drainer empties it strictly first-in first-out after inbound dispatch
// completes.
//
// The queue is created once and reused for the life of the bot. It is not
// goroutine-safe: all mutation happens on the engine loop, which processes
// one inbound message at a time.
type Queue struct {
	events []Event
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends an event to the back of the queue.
func (q *Queue) Push(ev Event) {
	q.events = append(q.events, ev)
}

// Pop removes and returns the front event. ok is false when the queue is
// empty.
func (q *Queue) Pop() (ev Event, ok bool) {
	if len(q.events) == 0 {
		return nil, false
	}
	ev = q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return ev, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.events) }

// Empty reports whether the queue holds no events.
func (q *Queue) Empty() bool { return len(q.events) == 0 }

// Events returns a snapshot copy of the pending events, front first.
// Observers ("sending.all" handlers, the status API) read this without
// being handed the live backing slice.
func (q *Queue) Events() []Event {
	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}
