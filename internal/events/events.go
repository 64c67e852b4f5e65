// Package events implements the single-callback Event Sink of spec.md §4.9:
// emit(kind, payload) is invoked by the KB on ADDED/RETRACTED/EVICT and by
// the Input Router on INPUT. Producers must never block on emission;
// subscribers that cross goroutine boundaries (a broadcast hub, a UI) are
// buffered and dispatched internally by this package, not by the producer.
package events

// Kind names one of the event categories spec.md §4.9 defines.
type Kind string

const (
	KindAdded     Kind = "assert-added"
	KindRetracted Kind = "assert-retracted"
	KindEvicted   Kind = "evict"
	KindInput     Kind = "assert-input"
)

// Event is one emitted occurrence; Payload's concrete type depends on Kind
// (callers type-assert to the payload shape they expect, e.g. *kb.Assertion
// for Added/Retracted/Evicted or a raw KIF string for Input).
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Sink is the single emit(kind, payload) entry point producers call.
type Sink interface {
	Emit(kind Kind, payload interface{})
}

// bufferSize bounds how many events may be queued for a slow subscriber
// before the oldest is dropped; this keeps Emit non-blocking for producers
// without an unbounded goroutine-per-event fan-out.
const bufferSize = 4096

// Bus is a Sink that dispatches every emitted event to zero or more
// subscriber callbacks. Dispatch runs on the Bus's own goroutine so a slow
// subscriber can never block a producer's Emit call; subscribers themselves
// are invoked synchronously one after another on that goroutine, though, so
// a subscriber that blocks (e.g. one sending on a channel that can fill up)
// delays delivery to every other subscriber until it returns.
type Bus struct {
	subscribe chan func(Event)
	events    chan Event
	done      chan struct{}
}

// NewBus starts a Bus's internal dispatch goroutine and returns it. Call
// Close to stop dispatching.
func NewBus() *Bus {
	b := &Bus{
		subscribe: make(chan func(Event)),
		events:    make(chan Event, bufferSize),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers fn to be called for every subsequently emitted
// event, from the Bus's own dispatch goroutine (never concurrently with
// itself, but never on the producer's goroutine either).
func (b *Bus) Subscribe(fn func(Event)) {
	select {
	case b.subscribe <- fn:
	case <-b.done:
	}
}

// Emit enqueues an event for dispatch. Non-blocking: if the internal
// buffer is full, the oldest undelivered event is dropped to make room,
// since the Sink contract forbids blocking the producer.
func (b *Bus) Emit(kind Kind, payload interface{}) {
	ev := Event{Kind: kind, Payload: payload}
	select {
	case b.events <- ev:
		return
	default:
	}
	select {
	case <-b.events:
	default:
	}
	select {
	case b.events <- ev:
	default:
	}
}

// Close stops the dispatch goroutine. Safe to call once.
func (b *Bus) Close() {
	close(b.done)
}

func (b *Bus) run() {
	var subscribers []func(Event)
	for {
		select {
		case fn := <-b.subscribe:
			subscribers = append(subscribers, fn)
		case ev := <-b.events:
			for _, fn := range subscribers {
				fn(ev)
			}
		case <-b.done:
			return
		}
	}
}
