package turns

import (
	"context"
	"sync"
)

// SyncRecorder serializes access to a Recorder shared by several goroutines,
// such as a reply stream handler and an explicit flush endpoint. A
// persistence call holds the lock until it returns, so a flush can never
// race a completion of the same buffer.
type SyncRecorder struct {
	mu sync.Mutex
	r  *Recorder
}

// NewSyncRecorder wraps r
func NewSyncRecorder(r *Recorder) *SyncRecorder {
	return &SyncRecorder{r: r}
}

func (s *SyncRecorder) AppendChunk(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.AppendChunk(text)
}

func (s *SyncRecorder) CompleteTurn(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.CompleteTurn(ctx)
}

func (s *SyncRecorder) Flush(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Flush(ctx)
}

func (s *SyncRecorder) RestoreConfirmedTurnIDs(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.RestoreConfirmedTurnIDs(ids)
}

func (s *SyncRecorder) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.SetMode(mode)
}

func (s *SyncRecorder) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Buffer()
}

func (s *SyncRecorder) CurrentTurnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.CurrentTurnID()
}

func (s *SyncRecorder) IsConfirmed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IsConfirmed(id)
}

func (s *SyncRecorder) ConfirmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.ConfirmedCount()
}
