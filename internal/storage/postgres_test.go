package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres() failed: %v", err)
	}
	defer store.Close()

	sessionID := "test-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := store.SaveTranscript(ctx, models.TranscriptRecord{ID: uuid.NewString(), SessionID: sessionID, Text: "hi", CreatedAt: now}); err != nil {
		t.Fatalf("SaveTranscript() failed: %v", err)
	}
	turn := models.AIMessageRecord{TurnID: uuid.NewString(), SessionID: sessionID, Text: "hello", CreatedAt: now}
	for i := 0; i < 2; i++ {
		if err := store.SaveAITurn(ctx, turn); err != nil {
			t.Fatalf("SaveAITurn() failed: %v", err)
		}
	}

	transcripts, err := store.ListTranscripts(ctx, sessionID)
	if err != nil || len(transcripts) != 1 {
		t.Fatalf("Expected 1 transcript, got %d (err %v)", len(transcripts), err)
	}
	ids, err := store.TurnIDs(ctx, sessionID)
	if err != nil || len(ids) != 1 || ids[0] != turn.TurnID {
		t.Errorf("Expected turn ids [%s], got %v (err %v)", turn.TurnID, ids, err)
	}
}
