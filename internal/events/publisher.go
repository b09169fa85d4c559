// Package events fans persisted conversation records out to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

// Event types carried in the eventType header
const (
	EventTranscriptFinal = "transcript.final"
	EventAITurn          = "ai.turn"
)

// Config holds Kafka publisher configuration
type Config struct {
	Enabled          bool
	Brokers          []string
	TopicTranscripts string
	TopicTurns       string
}

// Publisher writes final transcripts and AI turns to their own topics.
// When disabled it only logs.
type Publisher struct {
	writerTranscripts *kafka.Writer
	writerTurns       *kafka.Writer
	brokers           []string
	topicTranscripts  string
	topicTurns        string
	enabled           bool
}

// New creates a publisher; a nil or disabled config yields log-only mode
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{}
	}

	p := &Publisher{
		brokers:          cfg.Brokers,
		topicTranscripts: cfg.TopicTranscripts,
		topicTurns:       cfg.TopicTurns,
	}
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	transport := &kafka.Transport{
		Dial: (&kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}).DialFunc,
	}
	p.writerTranscripts = newWriter(cfg.Brokers, cfg.TopicTranscripts, transport)
	p.writerTurns = newWriter(cfg.Brokers, cfg.TopicTurns, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("topicTurns", cfg.TopicTurns).
		Msg("Kafka publisher initialized")
	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// Enabled reports whether records actually reach Kafka
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishTranscript publishes a final transcript keyed by session
func (p *Publisher) PublishTranscript(ctx context.Context, record models.TranscriptRecord) error {
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, EventTranscriptFinal, record.SessionID, record)
}

// PublishTurn publishes a persisted AI turn keyed by session
func (p *Publisher) PublishTurn(ctx context.Context, record models.AIMessageRecord) error {
	return p.publish(ctx, p.writerTurns, p.topicTurns, EventAITurn, record.SessionID, record)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	log.Debug().
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		observability.RecordPublish(topic, false)
		return fmt.Errorf("failed to write to topic %s: %w", topic, err)
	}

	observability.RecordPublish(topic, true)
	return nil
}

// HealthCheck dials the first broker; always healthy in log-only mode
func (p *Publisher) HealthCheck(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka broker unreachable: %w", err)
	}
	return conn.Close()
}

// Close closes both writers
func (p *Publisher) Close() error {
	var err error
	for _, w := range []*kafka.Writer{p.writerTranscripts, p.writerTurns} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("topic", w.Topic).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
