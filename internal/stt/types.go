package stt

import (
	"context"
	"errors"
	"time"
)

// ErrRecognition wraps failures reported by a recognition provider. It is
// terminal for the session.
var ErrRecognition = errors.New("recognition error")

// ErrStreamClosed is returned by Write after the stream has ended
var ErrStreamClosed = errors.New("recognition stream closed")

// EventType classifies a recognition event
type EventType string

const (
	EventPartial EventType = "partial" // revisable hypothesis
	EventFinal   EventType = "final"   // confirmed text
	EventEnd     EventType = "end"     // clean closure, terminal
	EventError   EventType = "error"   // provider failure, terminal
)

// Terminal reports whether no event can follow this one
func (t EventType) Terminal() bool {
	return t == EventEnd || t == EventError
}

// Event is delivered by a Stream
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Err        error
	At         time.Time
}

// Stream is one open recognition session. Writes must come from a single
// goroutine. Events must be drained until the channel is closed.
type Stream interface {
	// Write sends PCM16LE audio to the recognizer
	Write(ctx context.Context, audio []byte) error

	// Events emits zero or more partial/final events followed by exactly
	// one end or error event, then the channel is closed
	Events() <-chan Event

	// Close ends the stream. It is idempotent.
	Close() error
}

// Recognizer opens recognition streams
type Recognizer interface {
	Open(ctx context.Context, sessionID string) (Stream, error)
	Name() string
}
