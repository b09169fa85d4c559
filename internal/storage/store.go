// Package storage persists transcript and AI turn records.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/resilience"
)

// Store is the persistence boundary for the pipeline
type Store interface {
	// SaveTranscript inserts a transcript; a repeated ID is ignored
	SaveTranscript(ctx context.Context, record models.TranscriptRecord) error
	// SaveAITurn inserts a turn; a repeated TurnID is ignored
	SaveAITurn(ctx context.Context, record models.AIMessageRecord) error
	// ListTranscripts returns a session's transcripts in creation order
	ListTranscripts(ctx context.Context, sessionID string) ([]models.TranscriptRecord, error)
	// ListAITurns returns a session's turns in creation order
	ListAITurns(ctx context.Context, sessionID string) ([]models.AIMessageRecord, error)
	// TurnIDs returns the ids of a session's persisted turns
	TurnIDs(ctx context.Context, sessionID string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes a backend
type Config struct {
	Driver         string
	SQLitePath     string
	DatabaseURL    string
	ConnectRetries int
	RetryBackoff   time.Duration
}

// Open connects to the configured backend, applies the schema and verifies
// the connection, retrying with exponential backoff while the database is
// unreachable
func Open(ctx context.Context, cfg Config) (Store, error) {
	logger := observability.WithComponent("storage")
	if cfg.ConnectRetries < 1 {
		cfg.ConnectRetries = 1
	}

	var store Store
	err := resilience.RetryWithExponentialBackoff(ctx, func() error {
		s, err := open(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Str("driver", cfg.Driver).Msg("Storage not ready")
			return err
		}
		store = s
		return nil
	}, cfg.ConnectRetries, cfg.RetryBackoff)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
	}

	logger.Info().Str("driver", cfg.Driver).Msg("Storage opened")
	return store, nil
}

func open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
