package stt

import (
	"sync"
	"time"
)

// EventSink delivers events to a consumer while enforcing the stream
// contract: once an end or error event has been delivered nothing else is
// sent and the channel is closed exactly once.
//
// Sends block until the consumer reads, so the consumer must drain
// Events until it is closed.
type EventSink struct {
	mu     sync.Mutex
	ch     chan Event
	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewEventSink creates a sink with the given channel buffer
func NewEventSink(buffer int) *EventSink {
	return &EventSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Events returns the consumer side
func (s *EventSink) Events() <-chan Event {
	return s.ch
}

// Done is closed once a terminal event has been delivered
func (s *EventSink) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether a terminal event has been delivered
func (s *EventSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Emit delivers ev unless the sink is already terminated. A terminal event
// closes the sink. It returns whether the event was delivered.
func (s *EventSink) Emit(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.ch <- ev

	if ev.Type.Terminal() {
		s.closed = true
		close(s.ch)
		close(s.done)
	}
	return true
}

// Partial emits a revisable hypothesis
func (s *EventSink) Partial(text string, confidence float64) bool {
	return s.Emit(Event{Type: EventPartial, Text: text, Confidence: confidence})
}

// Final emits confirmed text
func (s *EventSink) Final(text string, confidence float64) bool {
	return s.Emit(Event{Type: EventFinal, Text: text, Confidence: confidence})
}

// End terminates the stream cleanly
func (s *EventSink) End() bool {
	return s.Emit(Event{Type: EventEnd})
}

// Fail terminates the stream with an error
func (s *EventSink) Fail(err error) bool {
	return s.Emit(Event{Type: EventError, Err: err})
}
