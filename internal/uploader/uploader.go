// Package uploader forwards client audio chunks into recognition streams,
// splitting chunks that exceed the downstream wire limit.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/session"
)

// ErrStreamWriteFailed wraps a failed write into a recognition stream.
// Slices written before the failure are not rolled back.
var ErrStreamWriteFailed = errors.New("stream write failed")

// Uploader writes audio chunks into the session's recognition stream
type Uploader struct {
	store         session.Store
	maxFrameBytes int

	mu      sync.Mutex
	lastSeq map[string]uint64
}

// New creates an uploader enforcing maxFrameBytes per stream write
func New(store session.Store, maxFrameBytes int) *Uploader {
	if maxFrameBytes < 1 {
		maxFrameBytes = 1
	}
	return &Uploader{
		store:         store,
		maxFrameBytes: maxFrameBytes,
		lastSeq:       make(map[string]uint64),
	}
}

// Upload writes payload into the stream of sessionID, in maxFrameBytes
// slices when it is larger than the limit. seq is used for diagnostics only;
// chunks are written in the order Upload is called.
func (u *Uploader) Upload(ctx context.Context, sessionID string, seq uint64, payload []byte) error {
	sess, ok := u.store.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, sessionID)
	}

	u.checkSequence(sessionID, seq)

	slices := Split(payload, u.maxFrameBytes)
	written := 0
	for i, slice := range slices {
		if err := sess.Stream.Write(ctx, slice); err != nil {
			observability.RecordStreamWriteFailure()
			logger := observability.WithSession(sessionID)
			logger.Error().
				Err(err).
				Uint64("sequence", seq).
				Int("slice", i).
				Int("slices", len(slices)).
				Msg("Stream write failed")
			return fmt.Errorf("%w: session %s seq %d slice %d/%d: %w", ErrStreamWriteFailed, sessionID, seq, i+1, len(slices), err)
		}
		written += len(slice)
	}

	observability.RecordStreamWrite(written, len(slices))
	return nil
}

// Forget drops sequence tracking for a finished session
func (u *Uploader) Forget(sessionID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.lastSeq, sessionID)
}

func (u *Uploader) checkSequence(sessionID string, seq uint64) {
	u.mu.Lock()
	last, seen := u.lastSeq[sessionID]
	u.lastSeq[sessionID] = seq
	u.mu.Unlock()

	if seen && seq <= last {
		logger := observability.WithSession(sessionID)
		logger.Warn().
			Uint64("sequence", seq).
			Uint64("previous", last).
			Msg("Out-of-order frame sequence")
	}
}

// Split cuts payload into consecutive slices of at most max bytes. Every
// slice but the last has exactly max bytes. An empty payload yields no
// slices. The slices alias payload.
func Split(payload []byte, max int) [][]byte {
	if len(payload) == 0 {
		return nil
	}
	if max < 1 {
		max = 1
	}
	if len(payload) <= max {
		return [][]byte{payload}
	}

	slices := make([][]byte, 0, (len(payload)+max-1)/max)
	for start := 0; start < len(payload); start += max {
		end := start + max
		if end > len(payload) {
			end = len(payload)
		}
		slices = append(slices, payload[start:end:end])
	}
	return slices
}
