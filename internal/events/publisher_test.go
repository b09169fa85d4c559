package events

import (
	"context"
	"testing"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.Enabled() {
				t.Error("Expected publisher to be disabled")
			}
			if p.writerTranscripts != nil || p.writerTurns != nil {
				t.Error("Expected nil writers when disabled")
			}
			if err := p.HealthCheck(context.Background()); err != nil {
				t.Errorf("Expected healthy log-only publisher, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("Expected Close to succeed, got %v", err)
			}
		})
	}
}

func TestNew_EnabledBuildsWriters(t *testing.T) {
	p := New(&Config{
		Enabled:          true,
		Brokers:          []string{"localhost:9092"},
		TopicTranscripts: "test.transcripts",
		TopicTurns:       "test.turns",
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("Expected publisher to be enabled")
	}
	if p.writerTranscripts.Topic != "test.transcripts" {
		t.Errorf("Expected transcripts topic 'test.transcripts', got '%s'", p.writerTranscripts.Topic)
	}
	if p.writerTurns.Topic != "test.turns" {
		t.Errorf("Expected turns topic 'test.turns', got '%s'", p.writerTurns.Topic)
	}
}

func TestPublisher_DisabledPublishSucceeds(t *testing.T) {
	p := New(&Config{Enabled: false})
	ctx := context.Background()

	if err := p.PublishTranscript(ctx, models.TranscriptRecord{ID: "t1", SessionID: "s1", Text: "hi"}); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if err := p.PublishTurn(ctx, models.AIMessageRecord{TurnID: "turn-1", SessionID: "s1", Text: "hello"}); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
}
