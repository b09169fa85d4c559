package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"github.com/lexiqai/conversation-pipeline/internal/config"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

const googleService = "google"

// closeGrace bounds how long Close waits for the server to acknowledge
// half-close before the stream context is cancelled
const closeGrace = 5 * time.Second

type streamOpener func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error)

// GoogleRecognizer streams audio to Google Cloud Speech-to-Text over gRPC
type GoogleRecognizer struct {
	client       *speech.Client
	open         streamOpener
	sampleRate   int32
	languageCode string
}

// NewGoogleRecognizer creates a Speech client using application default
// credentials
func NewGoogleRecognizer(ctx context.Context, cfg *config.Config) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleRecognizer{
		client:       client,
		open:         func(ctx context.Context) (speechpb.Speech_StreamingRecognizeClient, error) { return client.StreamingRecognize(ctx) },
		sampleRate:   int32(cfg.AudioSampleRate),
		languageCode: cfg.GoogleLanguageCode,
	}, nil
}

// Name implements Recognizer
func (r *GoogleRecognizer) Name() string {
	return googleService
}

// Close releases the underlying gRPC connection
func (r *GoogleRecognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Open implements Recognizer
func (r *GoogleRecognizer) Open(ctx context.Context, sessionID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	rpc, err := r.open(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to open streaming recognize: %v", ErrRecognition, err)
	}

	err = rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            r.sampleRate,
					LanguageCode:               r.languageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to send streaming config: %v", ErrRecognition, err)
	}

	s := &googleStream{
		rpc:    rpc,
		sink:   NewEventSink(64),
		cancel: cancel,
		logger: observability.WithSession(sessionID).With().Str("provider", googleService).Logger(),
	}
	go s.receive()

	s.logger.Info().Str("language", r.languageCode).Msg("Google speech stream opened")
	return s, nil
}

type googleStream struct {
	rpc    speechpb.Speech_StreamingRecognizeClient
	sink   *EventSink
	cancel context.CancelFunc
	logger zerolog.Logger

	sendMu    sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
}

func (s *googleStream) receive() {
	defer s.cancel()

	for {
		resp, err := s.rpc.Recv()
		if errors.Is(err, io.EOF) {
			s.sink.End()
			return
		}
		if err != nil {
			if s.closing.Load() {
				s.sink.End()
				return
			}
			s.logger.Error().Err(err).Msg("Google speech stream failed")
			s.sink.Fail(fmt.Errorf("%w: %v", ErrRecognition, err))
			return
		}

		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			s.sink.Fail(fmt.Errorf("%w: google: %s", ErrRecognition, st.GetMessage()))
			return
		}

		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 || alts[0].GetTranscript() == "" {
				continue
			}
			alt := alts[0]
			if result.GetIsFinal() {
				s.sink.Final(alt.GetTranscript(), float64(alt.GetConfidence()))
			} else {
				s.sink.Partial(alt.GetTranscript(), float64(result.GetStability()))
			}
		}
	}
}

func (s *googleStream) Write(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closing.Load() || s.sink.Closed() {
		return ErrStreamClosed
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	err := s.rpc.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio to Google: %w", err)
	}
	return nil
}

func (s *googleStream) Events() <-chan Event {
	return s.sink.Events()
}

func (s *googleStream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		s.sendMu.Lock()
		err := s.rpc.CloseSend()
		s.sendMu.Unlock()
		if err != nil {
			s.logger.Warn().Err(err).Msg("CloseSend failed")
			s.cancel()
			return
		}

		time.AfterFunc(closeGrace, s.cancel)
	})
	return nil
}
