package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteStore persists records in a local SQLite file through the pure-Go
// modernc driver
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveTranscript implements Store
func (s *SQLiteStore) SaveTranscript(ctx context.Context, r models.TranscriptRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, session_id, speaker, participant_id, participant_name, text, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.SessionID, r.Speaker, r.ParticipantID, r.ParticipantName, r.Text, r.Confidence, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

// SaveAITurn implements Store
func (s *SQLiteStore) SaveAITurn(ctx context.Context, r models.AIMessageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_messages (turn_id, session_id, text, provider, mode, trigger_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (turn_id) DO NOTHING
	`, r.TurnID, r.SessionID, r.Text, r.Provenance.Provider, r.Provenance.Mode, r.Provenance.TriggerSource, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert ai message: %w", err)
	}
	return nil
}

// ListTranscripts implements Store
func (s *SQLiteStore) ListTranscripts(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, speaker, participant_id, participant_name, text, confidence, created_at
		FROM transcripts
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var records []models.TranscriptRecord
	for rows.Next() {
		var r models.TranscriptRecord
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Speaker, &r.ParticipantID, &r.ParticipantName,
			&r.Text, &r.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListAITurns implements Store
func (s *SQLiteStore) ListAITurns(ctx context.Context, sessionID string) ([]models.AIMessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, session_id, text, provider, mode, trigger_source, created_at
		FROM ai_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query ai messages: %w", err)
	}
	defer rows.Close()

	var records []models.AIMessageRecord
	for rows.Next() {
		var r models.AIMessageRecord
		var createdAt int64
		if err := rows.Scan(&r.TurnID, &r.SessionID, &r.Text, &r.Provenance.Provider,
			&r.Provenance.Mode, &r.Provenance.TriggerSource, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ai message: %w", err)
		}
		r.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// TurnIDs implements Store
func (s *SQLiteStore) TurnIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT turn_id FROM ai_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turn ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan turn id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Ping implements Store
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
