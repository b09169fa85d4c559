package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc"
)

// fakeRecognizeStream plays scripted responses and records sent requests
type fakeRecognizeStream struct {
	grpc.ClientStream

	mu        sync.Mutex
	sent      []*speechpb.StreamingRecognizeRequest
	responses chan *speechpb.StreamingRecognizeResponse
	recvErr   error
}

func newFakeRecognizeStream() *fakeRecognizeStream {
	return &fakeRecognizeStream{responses: make(chan *speechpb.StreamingRecognizeResponse, 10)}
}

func (f *fakeRecognizeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeRecognizeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	resp, ok := <-f.responses
	if !ok {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.recvErr != nil {
			return nil, f.recvErr
		}
		return nil, io.EOF
	}
	return resp, nil
}

func (f *fakeRecognizeStream) CloseSend() error {
	close(f.responses)
	return nil
}

func result(text string, final bool) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.75}},
			IsFinal:      final,
		}},
	}
}

func newFakeGoogle(fake *fakeRecognizeStream) *GoogleRecognizer {
	return &GoogleRecognizer{
		open: func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) {
			return fake, nil
		},
		sampleRate:   16000,
		languageCode: "en-US",
	}
}

func collectEvents(t *testing.T, s Stream) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("Timed out waiting for events")
			return nil
		}
	}
}

func TestGoogleRecognizer_SendsConfigThenAudio(t *testing.T) {
	fake := newFakeRecognizeStream()
	stream, err := newFakeGoogle(fake).Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := stream.Write(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	stream.Close()
	collectEvents(t, stream)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(fake.sent))
	}
	cfg := fake.sent[0].GetStreamingConfig()
	if cfg == nil || cfg.GetConfig().GetSampleRateHertz() != 16000 || !cfg.GetInterimResults() {
		t.Errorf("Expected streaming config first, got %+v", fake.sent[0])
	}
	if string(fake.sent[1].GetAudioContent()) != string([]byte{1, 2}) {
		t.Errorf("Expected audio content second, got %+v", fake.sent[1])
	}
}

func TestGoogleRecognizer_MapsResults(t *testing.T) {
	fake := newFakeRecognizeStream()
	stream, err := newFakeGoogle(fake).Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	fake.responses <- result("hel", false)
	fake.responses <- result("", true)
	fake.responses <- result("hello there", true)
	stream.Close()

	events := collectEvents(t, stream)
	expected := []EventType{EventPartial, EventFinal, EventEnd}
	if len(events) != len(expected) {
		t.Fatalf("Expected %d events, got %d: %+v", len(expected), len(events), events)
	}
	for i, typ := range expected {
		if events[i].Type != typ {
			t.Errorf("Event %d: expected %s, got %s", i, typ, events[i].Type)
		}
	}
	if events[1].Text != "hello there" || events[1].Confidence != 0.75 {
		t.Errorf("Unexpected final event: %+v", events[1])
	}
}

func TestGoogleRecognizer_RecvErrorIsTerminal(t *testing.T) {
	fake := newFakeRecognizeStream()
	fake.recvErr = errors.New("unavailable")

	stream, err := newFakeGoogle(fake).Open(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// closing the fake's response channel without going through Close
	// simulates the server dropping the stream
	close(fake.responses)

	events := collectEvents(t, stream)
	if len(events) != 1 || events[0].Type != EventError {
		t.Fatalf("Expected a single error event, got %+v", events)
	}
	if !errors.Is(events[0].Err, ErrRecognition) {
		t.Errorf("Expected ErrRecognition, got %v", events[0].Err)
	}
}
