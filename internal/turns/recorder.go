// Package turns buffers streamed AI reply text into discrete turns and
// persists each turn at most once.
package turns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

// ErrPersistenceFailed wraps a failed save. The buffer is kept so a later
// CompleteTurn or Flush can retry.
var ErrPersistenceFailed = errors.New("turn persistence failed")

// Saver persists one AI turn. Implementations should treat a repeated
// TurnID as already saved.
type Saver interface {
	SaveAITurn(ctx context.Context, record models.AIMessageRecord) error
}

// Persistence paths, used for metrics and logs
const (
	pathComplete = "complete"
	pathFlush    = "flush"
)

// Recorder accumulates reply deltas for one session and turns them into
// persisted turns.
//
// A Recorder is not safe for concurrent use. Callers that reach the same
// recorder from more than one goroutine must use SyncRecorder.
type Recorder struct {
	sessionID  string
	saver      Saver
	provenance models.Provenance
	newID      func() string
	now        func() time.Time
	logger     zerolog.Logger

	buffer        strings.Builder
	currentTurnID string
	confirmed     map[string]struct{}
}

// Option configures a Recorder
type Option func(*Recorder)

// WithProvenance sets the provider, mode and trigger stamped on saved turns
func WithProvenance(p models.Provenance) Option {
	return func(r *Recorder) {
		r.provenance = p
	}
}

// WithIDGenerator overrides turn id generation
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) {
		r.newID = fn
	}
}

// WithClock overrides the timestamp source for saved turns
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates an empty recorder for sessionID
func NewRecorder(sessionID string, saver Saver, opts ...Option) *Recorder {
	r := &Recorder{
		sessionID: sessionID,
		saver:     saver,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
		logger:    observability.WithSession(sessionID).With().Str("component", "turn_recorder").Logger(),
		confirmed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AppendChunk adds reply text to the buffer
func (r *Recorder) AppendChunk(text string) {
	r.buffer.WriteString(text)
}

// CompleteTurn persists the buffer as a new turn under a freshly minted id.
// It returns false with a nil error when there is nothing to persist. On
// failure the buffer and the outstanding turn id are left as they were, and
// the next attempt mints another id.
func (r *Recorder) CompleteTurn(ctx context.Context) (bool, error) {
	if r.bufferEmpty() {
		return false, nil
	}

	id := r.mintID()
	prev := r.currentTurnID
	r.currentTurnID = id

	if err := r.persist(ctx, id); err != nil {
		r.currentTurnID = prev
		observability.RecordTurn(pathComplete, "failed")
		r.logger.Error().Err(err).Str("turn_id", id).Msg("Failed to persist completed turn")
		return false, fmt.Errorf("%w: turn %s: %v", ErrPersistenceFailed, id, err)
	}

	r.confirm(id)
	observability.RecordTurn(pathComplete, "persisted")
	r.logger.Debug().Str("turn_id", id).Msg("Turn completed")
	return true, nil
}

// Flush persists whatever is buffered when the reply stream is interrupted.
// If the outstanding turn id was already confirmed the buffer is dropped
// without saving. A failed flush keeps both the buffer and the turn id so
// the retry reuses the id.
func (r *Recorder) Flush(ctx context.Context) (bool, error) {
	if r.bufferEmpty() {
		return false, nil
	}

	if r.currentTurnID != "" && r.IsConfirmed(r.currentTurnID) {
		r.logger.Debug().Str("turn_id", r.currentTurnID).Msg("Discarding buffer of an already persisted turn")
		r.buffer.Reset()
		r.currentTurnID = ""
		observability.RecordTurn(pathFlush, "discarded")
		return false, nil
	}

	if r.currentTurnID == "" {
		r.currentTurnID = r.mintID()
	}
	id := r.currentTurnID

	if err := r.persist(ctx, id); err != nil {
		observability.RecordTurn(pathFlush, "failed")
		r.logger.Error().Err(err).Str("turn_id", id).Msg("Failed to flush turn")
		return false, fmt.Errorf("%w: turn %s: %v", ErrPersistenceFailed, id, err)
	}

	r.confirm(id)
	observability.RecordTurn(pathFlush, "persisted")
	r.logger.Debug().Str("turn_id", id).Msg("Turn flushed")
	return true, nil
}

// RestoreConfirmedTurnIDs replaces the confirmed set, typically with the
// turn ids already persisted for the session
func (r *Recorder) RestoreConfirmedTurnIDs(ids []string) {
	r.confirmed = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		r.confirmed[id] = struct{}{}
	}
}

// SetMode changes the mode stamped on turns persisted from now on,
// including text already buffered
func (r *Recorder) SetMode(mode string) {
	r.provenance.Mode = mode
}

// Buffer returns the text not yet persisted
func (r *Recorder) Buffer() string {
	return r.buffer.String()
}

// CurrentTurnID returns the id of the turn being persisted, if any
func (r *Recorder) CurrentTurnID() string {
	return r.currentTurnID
}

// IsConfirmed reports whether id is known to be persisted
func (r *Recorder) IsConfirmed(id string) bool {
	_, ok := r.confirmed[id]
	return ok
}

// ConfirmedCount returns the size of the confirmed set
func (r *Recorder) ConfirmedCount() int {
	return len(r.confirmed)
}

// Provenance returns the provenance that the next save would use
func (r *Recorder) Provenance() models.Provenance {
	return r.provenance
}

func (r *Recorder) bufferEmpty() bool {
	return strings.TrimSpace(r.buffer.String()) == ""
}

// mintID never hands out an id already in the confirmed set
func (r *Recorder) mintID() string {
	for {
		id := r.newID()
		if !r.IsConfirmed(id) {
			return id
		}
	}
}

func (r *Recorder) persist(ctx context.Context, id string) error {
	return r.saver.SaveAITurn(ctx, models.AIMessageRecord{
		TurnID:     id,
		SessionID:  r.sessionID,
		Text:       r.buffer.String(),
		Provenance: r.provenance,
		CreatedAt:  r.now(),
	})
}

func (r *Recorder) confirm(id string) {
	r.confirmed[id] = struct{}{}
	r.buffer.Reset()
	r.currentTurnID = ""
}
