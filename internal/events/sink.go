package events

import (
	"context"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

// RecordStore is the persistence half of a RecordSink
type RecordStore interface {
	SaveTranscript(ctx context.Context, record models.TranscriptRecord) error
	SaveAITurn(ctx context.Context, record models.AIMessageRecord) error
}

// RecordPublisher is the fan-out half of a RecordSink
type RecordPublisher interface {
	PublishTranscript(ctx context.Context, record models.TranscriptRecord) error
	PublishTurn(ctx context.Context, record models.AIMessageRecord) error
}

// RecordSink persists a record and then publishes it. Only the persistence
// result is returned; publish failures are logged and counted.
type RecordSink struct {
	store     RecordStore
	publisher RecordPublisher
}

// NewRecordSink wires a store to an optional publisher
func NewRecordSink(store RecordStore, publisher RecordPublisher) *RecordSink {
	return &RecordSink{store: store, publisher: publisher}
}

// SaveTranscript persists a final transcript and publishes it
func (s *RecordSink) SaveTranscript(ctx context.Context, record models.TranscriptRecord) error {
	if err := s.store.SaveTranscript(ctx, record); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTranscript(ctx, record); err != nil {
			logger := observability.WithSession(record.SessionID)
			logger.Warn().Err(err).
				Str("transcript_id", record.ID).
				Msg("Failed to publish transcript")
			observability.RecordError("publish_failed", "events")
		}
	}
	return nil
}

// SaveAITurn persists an AI turn and publishes it
func (s *RecordSink) SaveAITurn(ctx context.Context, record models.AIMessageRecord) error {
	if err := s.store.SaveAITurn(ctx, record); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTurn(ctx, record); err != nil {
			logger := observability.WithSession(record.SessionID)
			logger.Warn().Err(err).
				Str("turn_id", record.TurnID).
				Msg("Failed to publish AI turn")
			observability.RecordError("publish_failed", "events")
		}
	}
	return nil
}
