// Package pipeline ties recognition streams to the session store and turns
// final recognition results into persisted transcripts.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/session"
	"github.com/lexiqai/conversation-pipeline/internal/stt"
	"github.com/lexiqai/conversation-pipeline/internal/uploader"
)

// Session end reasons used in metrics
const (
	ReasonEnd      = "end"
	ReasonError    = "error"
	ReasonClient   = "client"
	ReasonStale    = "stale"
	ReasonShutdown = "shutdown"
)

// TranscriptSaver persists finalized recognition results
type TranscriptSaver interface {
	SaveTranscript(ctx context.Context, record models.TranscriptRecord) error
}

// Subscriber receives every event of one session, including the terminal
// one. It is called from the session's consumer goroutine and must not block.
type Subscriber func(ev stt.Event)

// Options tunes a Manager
type Options struct {
	MaxFrameBytes  int
	PersistTimeout time.Duration
	// Store holds the open sessions; nil uses an in-memory store
	Store session.Store
}

// Manager creates, tracks and tears down recognition sessions
type Manager struct {
	recognizer     stt.Recognizer
	saver          TranscriptSaver
	store          session.Store
	uploader       *uploader.Uploader
	persistTimeout time.Duration

	mu      sync.Mutex
	tracked map[*session.Session]*tracked
	wg      sync.WaitGroup
}

type tracked struct {
	sess        *session.Session
	participant models.Participant
	metrics     *observability.SessionMetrics

	mu        sync.Mutex
	subs      map[int]Subscriber
	nextSub   int
	endReason string
}

// NewManager creates a manager that opens streams through recognizer and
// saves final transcripts through saver
func NewManager(recognizer stt.Recognizer, saver TranscriptSaver, opts Options) *Manager {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	return &Manager{
		recognizer:     recognizer,
		saver:          saver,
		store:          opts.Store,
		uploader:       uploader.New(opts.Store, opts.MaxFrameBytes),
		persistTimeout: opts.PersistTimeout,
		tracked:        make(map[*session.Session]*tracked),
	}
}

// Store exposes the session store, for the janitor and readiness checks
func (m *Manager) Store() session.Store {
	return m.store
}

// Create opens a recognition stream for id and registers it. If a session
// with that id is already open it is returned unchanged with created=false.
func (m *Manager) Create(ctx context.Context, id string, participant models.Participant) (*session.Session, bool, error) {
	if existing, ok := m.store.Get(id); ok {
		return existing, false, nil
	}

	logger := observability.WithSession(id)
	stream, err := m.recognizer.Open(ctx, id)
	if err != nil {
		observability.RecordError("stream_open_failed", m.recognizer.Name())
		logger.Error().Err(err).Str("provider", m.recognizer.Name()).Msg("Failed to open recognition stream")
		return nil, false, fmt.Errorf("open recognition stream for session %s: %w", id, err)
	}

	m.mu.Lock()
	if existing, ok := m.store.Get(id); ok {
		m.mu.Unlock()
		// lost a race with a concurrent create
		go drain(stream)
		stream.Close()
		return existing, false, nil
	}
	sess := &session.Session{ID: id, Stream: stream, CreatedAt: time.Now()}
	t := &tracked{
		sess:        sess,
		participant: participant,
		metrics:     observability.NewSessionMetrics(id),
		subs:        make(map[int]Subscriber),
	}
	m.tracked[sess] = t
	m.store.Put(sess)
	m.mu.Unlock()

	t.metrics.RecordSessionStart()
	logger.Info().
		Str("provider", m.recognizer.Name()).
		Str("participant", participant.Name).
		Msg("Recognition session created")

	m.wg.Add(1)
	go m.consume(t)
	return sess, true, nil
}

// Lookup returns the open session for id
func (m *Manager) Lookup(id string) (*session.Session, bool) {
	return m.store.Get(id)
}

// Upload forwards one audio chunk into the session's stream
func (m *Manager) Upload(ctx context.Context, id string, seq uint64, payload []byte) error {
	return m.uploader.Upload(ctx, id, seq, payload)
}

// Subscribe registers fn for the events of session id. The returned
// function unregisters it.
func (m *Manager) Subscribe(id string, fn Subscriber) (func(), error) {
	sess, ok := m.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	m.mu.Lock()
	t, ok := m.tracked[sess]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}

	t.mu.Lock()
	key := t.nextSub
	t.nextSub++
	t.subs[key] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subs, key)
		t.mu.Unlock()
	}, nil
}

// Terminate closes the session for id. It reports whether one was open.
func (m *Manager) Terminate(id string) bool {
	sess, ok := m.store.Get(id)
	if !ok {
		return false
	}
	t, ok := m.lookupTracked(sess)
	if !ok || !t.markEnded(ReasonClient) {
		return false
	}
	m.store.RemoveIf(id, sess)
	m.closeStream(sess)
	return true
}

// Reap closes the streams of sessions whose store entries were removed
// outside the manager, by a stale sweep or a backend expiry. It returns how
// many streams it closed.
func (m *Manager) Reap() int {
	closed := 0
	for _, t := range m.trackedSessions() {
		if cur, ok := m.store.Get(t.sess.ID); ok && cur == t.sess {
			continue
		}
		if !t.markEnded(ReasonStale) {
			continue
		}
		logger := observability.WithSession(t.sess.ID)
		logger.Warn().
			Time("created_at", t.sess.CreatedAt).
			Msg("Closing stale session")
		m.closeStream(t.sess)
		closed++
	}
	return closed
}

// Shutdown closes every open session and waits for their consumers to
// finish or ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, t := range m.trackedSessions() {
		if t.markEnded(ReasonShutdown) {
			m.store.RemoveIf(t.sess.ID, t.sess)
			m.closeStream(t.sess)
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) lookupTracked(sess *session.Session) (*tracked, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracked[sess]
	return t, ok
}

func (m *Manager) trackedSessions() []*tracked {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*tracked, 0, len(m.tracked))
	for _, t := range m.tracked {
		out = append(out, t)
	}
	return out
}

// closeStream ends a session that has already been marked ended. The
// consumer goroutine sees the stream's terminal event and finishes cleanup.
func (m *Manager) closeStream(sess *session.Session) {
	if err := sess.Stream.Close(); err != nil {
		logger := observability.WithSession(sess.ID)
		logger.Warn().Err(err).Msg("Error closing recognition stream")
	}
}

func (m *Manager) consume(t *tracked) {
	defer m.wg.Done()

	sess := t.sess
	logger := observability.WithSession(sess.ID)
	reason := ReasonEnd

	for ev := range sess.Stream.Events() {
		t.metrics.RecordRecognitionEvent(string(ev.Type))

		switch ev.Type {
		case stt.EventFinal:
			m.saveFinal(t, ev)
		case stt.EventError:
			reason = ReasonError
			observability.RecordError("recognition_error", m.recognizer.Name())
			logger.Error().Err(ev.Err).Msg("Recognition stream failed")
		case stt.EventEnd:
			logger.Info().Msg("Recognition stream ended")
		}

		t.notify(ev)
	}

	// a recognition error is terminal; nothing is retried
	t.markEnded(reason)
	m.store.RemoveIf(sess.ID, sess)
	if _, reused := m.store.Get(sess.ID); !reused {
		m.uploader.Forget(sess.ID)
	}
	sess.Stream.Close()
	t.metrics.RecordSessionEnd(t.reason())

	m.mu.Lock()
	delete(m.tracked, sess)
	m.mu.Unlock()
}

func (m *Manager) saveFinal(t *tracked, ev stt.Event) {
	if ev.Text == "" {
		return
	}
	createdAt := ev.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	speaker := t.participant.Speaker
	if speaker == "" {
		speaker = "human"
	}
	record := models.TranscriptRecord{
		ID:              uuid.New().String(),
		SessionID:       t.sess.ID,
		Speaker:         speaker,
		ParticipantID:   t.participant.ID,
		ParticipantName: t.participant.Name,
		Text:            ev.Text,
		Confidence:      ev.Confidence,
		CreatedAt:       createdAt,
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
	defer cancel()

	err := m.saver.SaveTranscript(ctx, record)
	observability.RecordTranscriptSaved(err == nil)
	if err != nil {
		logger := observability.WithSession(t.sess.ID)
		logger.Error().
			Err(err).
			Str("transcript_id", record.ID).
			Msg("Failed to save transcript")
	}
}

// markEnded records why the session ends. Only the first call wins.
func (t *tracked) markEnded(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.endReason != "" {
		return false
	}
	t.endReason = reason
	return true
}

func (t *tracked) reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endReason
}

func (t *tracked) notify(ev stt.Event) {
	t.mu.Lock()
	subs := make([]Subscriber, 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func drain(stream stt.Stream) {
	for range stream.Events() {
	}
}
