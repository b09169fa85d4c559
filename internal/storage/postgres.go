package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists records in PostgreSQL through a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and applies the schema
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to execute embedded schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// SaveTranscript implements Store
func (s *PostgresStore) SaveTranscript(ctx context.Context, r models.TranscriptRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (id, session_id, speaker, participant_id, participant_name, text, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.SessionID, r.Speaker, r.ParticipantID, r.ParticipantName, r.Text, r.Confidence, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// SaveAITurn implements Store
func (s *PostgresStore) SaveAITurn(ctx context.Context, r models.AIMessageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_messages (turn_id, session_id, text, provider, mode, trigger_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (turn_id) DO NOTHING
	`, r.TurnID, r.SessionID, r.Text, r.Provenance.Provider, r.Provenance.Mode, r.Provenance.TriggerSource, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ai message: %w", err)
	}
	return nil
}

// ListTranscripts implements Store
func (s *PostgresStore) ListTranscripts(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, speaker, participant_id, participant_name, text, confidence, created_at
		FROM transcripts
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TranscriptRecord, error) {
		var r models.TranscriptRecord
		err := row.Scan(&r.ID, &r.SessionID, &r.Speaker, &r.ParticipantID, &r.ParticipantName,
			&r.Text, &r.Confidence, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan transcripts: %w", err)
	}
	return records, nil
}

// ListAITurns implements Store
func (s *PostgresStore) ListAITurns(ctx context.Context, sessionID string) ([]models.AIMessageRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT turn_id, session_id, text, provider, mode, trigger_source, created_at
		FROM ai_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ai messages: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AIMessageRecord, error) {
		var r models.AIMessageRecord
		err := row.Scan(&r.TurnID, &r.SessionID, &r.Text, &r.Provenance.Provider,
			&r.Provenance.Mode, &r.Provenance.TriggerSource, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ai messages: %w", err)
	}
	return records, nil
}

// TurnIDs implements Store
func (s *PostgresStore) TurnIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT turn_id FROM ai_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turn ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan turn ids: %w", err)
	}
	return ids, nil
}

// Ping implements Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
