package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lexiqai/conversation-pipeline/internal/audio"
)

const mockService = "mock"

// DefaultMockScript is spoken back, one line per detected utterance, when
// no script is configured
var DefaultMockScript = []string{
	"hello, can you hear me",
	"let's go over the agenda for today",
	"that sounds good to me",
}

// MockRecognizer is an offline recognizer for development and tests. It runs
// an energy VAD over incoming PCM16 audio and, for every utterance it
// detects, emits a partial hypothesis at speech start and the next scripted
// line as a final result at speech end.
type MockRecognizer struct {
	script []string
	vad    audio.VADConfig
}

// NewMockRecognizer creates a mock recognizer. A nil vad config uses the
// package defaults.
func NewMockRecognizer(script []string, vad *audio.VADConfig) *MockRecognizer {
	if len(script) == 0 {
		script = DefaultMockScript
	}
	if vad == nil {
		vad = audio.DefaultVADConfig()
	}
	return &MockRecognizer{script: script, vad: *vad}
}

// Name implements Recognizer
func (r *MockRecognizer) Name() string {
	return mockService
}

// Open implements Recognizer
func (r *MockRecognizer) Open(ctx context.Context, sessionID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vadCfg := r.vad
	return &mockStream{
		script: r.script,
		vad:    audio.NewVADDetector(&vadCfg),
		sink:   NewEventSink(64),
	}, nil
}

type mockStream struct {
	mu        sync.Mutex
	script    []string
	next      int
	vad       *audio.VADDetector
	sink      *EventSink
	closeOnce sync.Once
}

func (s *mockStream) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.sink.Closed() {
		return ErrStreamClosed
	}

	samples, err := audio.BytesToPCM16(pcm)
	if err != nil {
		return fmt.Errorf("mock recognizer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range s.vad.Process(samples) {
		line := s.script[s.next%len(s.script)]
		switch ev {
		case audio.SpeechStarted:
			s.sink.Partial(firstWord(line), 0.5)
		case audio.SpeechEnded:
			s.next++
			s.sink.Final(line, 1.0)
		}
	}
	return nil
}

func (s *mockStream) Events() <-chan Event {
	return s.sink.Events()
}

func (s *mockStream) Close() error {
	s.closeOnce.Do(func() {
		s.sink.End()
	})
	return nil
}

func firstWord(line string) string {
	if fields := strings.Fields(line); len(fields) > 0 {
		return fields[0]
	}
	return line
}
