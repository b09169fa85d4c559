package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/conversation-pipeline/internal/config"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/resilience"
)

const deepgramService = "deepgram"

// DeepgramRecognizer opens Deepgram live transcription websockets. Connects
// and writes share one circuit breaker so a Deepgram outage fails new
// sessions fast instead of piling up dial attempts.
type DeepgramRecognizer struct {
	config  *config.Config
	breaker *resilience.CircuitBreaker
}

// NewDeepgramRecognizer creates a recognizer from service configuration
func NewDeepgramRecognizer(cfg *config.Config) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		config: cfg,
		breaker: resilience.NewCircuitBreaker(
			deepgramService,
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
			resilience.WithHalfOpenProbes(cfg.CircuitBreakerProbes),
			resilience.WithStateChangeHook(func(name string, state resilience.CircuitState) {
				observability.UpdateCircuitBreakerState(name, int(state))
			}),
		),
	}
}

// Name implements Recognizer
func (r *DeepgramRecognizer) Name() string {
	return deepgramService
}

// HealthCheck reports not ready while the circuit to Deepgram is open
func (r *DeepgramRecognizer) HealthCheck(ctx context.Context) (bool, error) {
	state, requests, failures, rate := r.breaker.GetStats()
	if state == resilience.StateOpen {
		return false, fmt.Errorf("deepgram circuit open: %d of %d requests failed (%.1f%%)", failures, requests, rate)
	}
	return true, nil
}

// Open implements Recognizer
func (r *DeepgramRecognizer) Open(ctx context.Context, sessionID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The websocket outlives the request that opened it
	streamCtx, cancel := context.WithCancel(context.Background())

	s := &deepgramStream{
		sessionID: sessionID,
		sink:      NewEventSink(64),
		breaker:   r.breaker,
		cancel:    cancel,
		logger:    observability.WithSession(sessionID).With().Str("provider", deepgramService).Logger(),
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          r.config.DeepgramModel,
		Language:       r.config.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     r.config.AudioSampleRate,
	}

	callback := &deepgramCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		stream:                 s,
	}

	err := r.breaker.Call(func() error {
		client, err := listenClient.NewWSUsingCallback(streamCtx, r.config.DeepgramAPIKey, nil, tOptions, callback)
		if err != nil {
			return fmt.Errorf("failed to create Deepgram client: %w", err)
		}
		if !client.Connect() {
			return fmt.Errorf("failed to connect to Deepgram")
		}
		s.client = client
		return nil
	})
	if err != nil {
		cancel()
		observability.IncrementCircuitBreakerFailures(deepgramService)
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}

	s.logger.Info().
		Str("model", r.config.DeepgramModel).
		Str("language", r.config.DeepgramLanguage).
		Msg("Deepgram stream opened")

	return s, nil
}

// deepgramCallback embeds the SDK default handler and overrides the
// callbacks that carry transcripts and termination
type deepgramCallback struct {
	*websocketv1api.DefaultCallbackHandler
	stream *deepgramStream
}

func (c *deepgramCallback) Message(msg *msginterfaces.MessageResponse) error {
	c.stream.handleMessage(msg)
	return nil
}

func (c *deepgramCallback) Error(errResp *msginterfaces.ErrorResponse) error {
	c.stream.breaker.RecordResult(false)
	observability.IncrementCircuitBreakerFailures(deepgramService)

	err := fmt.Errorf("%w: deepgram error", ErrRecognition)
	if errResp != nil {
		err = fmt.Errorf("%w: deepgram: %+v", ErrRecognition, *errResp)
	}
	c.stream.logger.Error().Err(err).Msg("Deepgram reported an error")
	c.stream.sink.Fail(err)
	return nil
}

func (c *deepgramCallback) Close(*msginterfaces.CloseResponse) error {
	c.stream.sink.End()
	return nil
}

type deepgramStream struct {
	sessionID string
	client    *listenClient.WSCallback
	sink      *EventSink
	breaker   *resilience.CircuitBreaker
	cancel    context.CancelFunc
	logger    zerolog.Logger

	closeOnce sync.Once
}

func (s *deepgramStream) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	if msg.IsFinal {
		s.logger.Debug().Str("text", alt.Transcript).Float64("confidence", alt.Confidence).Msg("Deepgram final transcript")
		s.sink.Final(alt.Transcript, alt.Confidence)
		return
	}
	s.sink.Partial(alt.Transcript, alt.Confidence)
}

func (s *deepgramStream) Write(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.sink.Closed() {
		return ErrStreamClosed
	}

	return s.breaker.Call(func() error {
		if _, err := s.client.Write(audio); err != nil {
			observability.IncrementCircuitBreakerFailures(deepgramService)
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})
}

func (s *deepgramStream) Events() <-chan Event {
	return s.sink.Events()
}

func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		s.client.Finish()
		s.cancel()
		s.sink.End()
		s.logger.Info().Msg("Deepgram stream closed")
	})
	return nil
}
