package models

import (
	"strings"
	"time"
)

// TranscriptRecord is one finalized recognition result. Immutable once created.
type TranscriptRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Speaker         string    `json:"speaker,omitempty"`
	ParticipantID   string    `json:"participant_id,omitempty"`
	ParticipantName string    `json:"participant_name,omitempty"`
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	CreatedAt       time.Time `json:"created_at"`
}

// Provenance describes where an AI reply came from
type Provenance struct {
	Provider      string `json:"provider"`
	Mode          string `json:"mode"`
	TriggerSource string `json:"trigger_source"`
}

// String renders provenance as provider/mode/trigger, skipping empty parts
func (p Provenance) String() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Provider, p.Mode, p.TriggerSource} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// AIMessageRecord is one persisted AI reply turn. TurnID is unique.
type AIMessageRecord struct {
	TurnID     string     `json:"turn_id"`
	SessionID  string     `json:"session_id"`
	Text       string     `json:"text"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Participant identifies the human behind a recognition session
type Participant struct {
	ID      string `json:"participant_id,omitempty"`
	Name    string `json:"participant_name,omitempty"`
	Speaker string `json:"speaker,omitempty"`
}
