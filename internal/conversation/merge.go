// Package conversation merges human transcripts and AI turns into one
// chronological log for summarization and evaluation.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

// Mode selects which sources a merge includes
type Mode string

const (
	ModeHumanOnly Mode = "human_only"
	ModeAIOnly    Mode = "ai_only"
	ModeCombined  Mode = "combined"
)

// ParseMode accepts the canonical names; an empty string means combined
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCombined:
		return ModeCombined, nil
	case ModeHumanOnly:
		return ModeHumanOnly, nil
	case ModeAIOnly:
		return ModeAIOnly, nil
	default:
		return "", fmt.Errorf("unknown conversation mode %q", s)
	}
}

func (m Mode) includesHuman() bool { return m == ModeCombined || m == ModeHumanOnly }

func (m Mode) includesAI() bool { return m == ModeCombined || m == ModeAIOnly }

// SpeakerTag distinguishes human from AI messages
type SpeakerTag string

const (
	SpeakerHuman SpeakerTag = "human"
	SpeakerAI    SpeakerTag = "ai"
)

// Speaker name placeholders
const (
	UnknownSpeaker = "Unknown Speaker"
	AISpeaker      = "AI"
)

// Message is one entry of the merged view. It is never persisted.
type Message struct {
	Speaker     SpeakerTag `json:"speaker"`
	SpeakerName string     `json:"speaker_name"`
	Text        string     `json:"text"`
	Timestamp   time.Time  `json:"timestamp"`
	Provenance  string     `json:"provenance,omitempty"`
}

// Stats summarizes a merged log
type Stats struct {
	Total                 int           `json:"total"`
	Human                 int           `json:"human"`
	AI                    int           `json:"ai"`
	DistinctHumanSpeakers int           `json:"distinct_human_speakers"`
	Duration              time.Duration `json:"duration_ns"`
}

// Log is the merged conversation
type Log struct {
	Messages []Message `json:"messages"`
	Stats    Stats     `json:"stats"`
}

// Merge projects both record sets to messages, concatenates human before
// AI according to mode and stable-sorts by timestamp. Equal timestamps keep
// that concatenation order, so a human message precedes an AI message at
// the same instant. The inputs are not modified.
func Merge(transcripts []models.TranscriptRecord, turns []models.AIMessageRecord, mode Mode) Log {
	messages := make([]Message, 0, len(transcripts)+len(turns))

	if mode.includesHuman() {
		for _, t := range transcripts {
			messages = append(messages, fromTranscript(t))
		}
	}
	if mode.includesAI() {
		for _, t := range turns {
			messages = append(messages, fromTurn(t))
		}
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return Log{Messages: messages, Stats: ComputeStats(messages)}
}

func fromTranscript(t models.TranscriptRecord) Message {
	name := t.ParticipantName
	if name == "" {
		name = t.Speaker
	}
	if name == "" {
		name = UnknownSpeaker
	}
	return Message{
		Speaker:     SpeakerHuman,
		SpeakerName: name,
		Text:        t.Text,
		Timestamp:   t.CreatedAt,
	}
}

func fromTurn(t models.AIMessageRecord) Message {
	return Message{
		Speaker:     SpeakerAI,
		SpeakerName: AISpeaker,
		Text:        t.Text,
		Timestamp:   t.CreatedAt,
		Provenance:  t.Provenance.String(),
	}
}

// ComputeStats derives counts and duration from ordered messages
func ComputeStats(messages []Message) Stats {
	stats := Stats{Total: len(messages)}
	speakers := make(map[string]struct{})

	for _, m := range messages {
		switch m.Speaker {
		case SpeakerHuman:
			stats.Human++
			speakers[m.SpeakerName] = struct{}{}
		case SpeakerAI:
			stats.AI++
		}
	}
	stats.DistinctHumanSpeakers = len(speakers)

	if len(messages) >= 2 {
		stats.Duration = messages[len(messages)-1].Timestamp.Sub(messages[0].Timestamp)
	}
	return stats
}

// FormatTranscript renders messages as "HH:MM:SS name: text" lines, the
// plain-text form handed to summarizers
func FormatTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s %s: %s\n", m.Timestamp.Format("15:04:05"), m.SpeakerName, m.Text)
	}
	return b.String()
}
