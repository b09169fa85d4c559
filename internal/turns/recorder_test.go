package turns

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/conversation-pipeline/internal/models"
)

// fakeSaver records every submission and fails while failNext > 0
type fakeSaver struct {
	mu        sync.Mutex
	submitted []models.AIMessageRecord
	succeeded []bool
	saved     map[string]models.AIMessageRecord
	failNext  int
}

func newFakeSaver() *fakeSaver {
	return &fakeSaver{saved: make(map[string]models.AIMessageRecord)}
}

func (f *fakeSaver) SaveAITurn(ctx context.Context, record models.AIMessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, record)
	if f.failNext > 0 {
		f.failNext--
		f.succeeded = append(f.succeeded, false)
		return errors.New("database unavailable")
	}
	f.succeeded = append(f.succeeded, true)
	f.saved[record.TurnID] = record
	return nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("t%d", n)
	}
}

func newTestRecorder(saver Saver, opts ...Option) *Recorder {
	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithProvenance(models.Provenance{Provider: "openai", Mode: "voice", TriggerSource: "agent"}),
	}
	return NewRecorder("session-1", saver, append(base, opts...)...)
}

func TestRecorder_CompleteTurn(t *testing.T) {
	saver := newFakeSaver()
	r := newTestRecorder(saver)

	r.AppendChunk("hello ")
	r.AppendChunk("world")

	ok, err := r.CompleteTurn(context.Background())
	if err != nil || !ok {
		t.Fatalf("Expected successful completion, got %v, %v", ok, err)
	}

	rec, saved := saver.saved["t1"]
	if !saved {
		t.Fatal("Expected turn t1 to be saved")
	}
	if rec.Text != "hello world" || rec.SessionID != "session-1" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if r.Buffer() != "" || r.CurrentTurnID() != "" {
		t.Errorf("Expected cleared state, got buffer %q id %q", r.Buffer(), r.CurrentTurnID())
	}
	if !r.IsConfirmed("t1") {
		t.Error("Expected t1 to be confirmed")
	}
}

func TestRecorder_EmptyBufferIsNoop(t *testing.T) {
	saver := newFakeSaver()
	r := newTestRecorder(saver)

	r.AppendChunk("  \n\t ")

	if ok, err := r.CompleteTurn(context.Background()); ok || err != nil {
		t.Errorf("Expected no-op completion, got %v, %v", ok, err)
	}
	if ok, err := r.Flush(context.Background()); ok || err != nil {
		t.Errorf("Expected no-op flush, got %v, %v", ok, err)
	}
	if len(saver.submitted) != 0 {
		t.Errorf("Expected no submissions, got %d", len(saver.submitted))
	}
}

func TestRecorder_RetryAfterFailedCompletion(t *testing.T) {
	saver := newFakeSaver()
	saver.failNext = 1
	r := newTestRecorder(saver)

	r.AppendChunk("hello")

	ok, err := r.CompleteTurn(context.Background())
	if ok || !errors.Is(err, ErrPersistenceFailed) {
		t.Fatalf("Expected ErrPersistenceFailed, got %v, %v", ok, err)
	}
	if r.Buffer() != "hello" {
		t.Errorf("Expected buffer to be preserved, got %q", r.Buffer())
	}
	if r.CurrentTurnID() != "" {
		t.Errorf("Expected no outstanding turn id, got %q", r.CurrentTurnID())
	}

	ok, err = r.CompleteTurn(context.Background())
	if !ok || err != nil {
		t.Fatalf("Expected retry to succeed, got %v, %v", ok, err)
	}

	if len(saver.submitted) != 2 {
		t.Fatalf("Expected 2 submissions, got %d", len(saver.submitted))
	}
	first, second := saver.submitted[0].TurnID, saver.submitted[1].TurnID
	if first == second {
		t.Errorf("Expected a fresh id on retry, both were %q", first)
	}
}

func TestRecorder_FlushAfterCompleteIsNoop(t *testing.T) {
	saver := newFakeSaver()
	r := newTestRecorder(saver)

	r.AppendChunk("reply")
	r.CompleteTurn(context.Background())

	ok, err := r.Flush(context.Background())
	if ok || err != nil {
		t.Errorf("Expected no-op flush, got %v, %v", ok, err)
	}
	if len(saver.submitted) != 1 {
		t.Errorf("Expected a single submission, got %d", len(saver.submitted))
	}
}

func TestRecorder_FlushRetryReusesTurnID(t *testing.T) {
	saver := newFakeSaver()
	saver.failNext = 1
	r := newTestRecorder(saver)

	r.AppendChunk("partial reply")

	ok, err := r.Flush(context.Background())
	if ok || !errors.Is(err, ErrPersistenceFailed) {
		t.Fatalf("Expected ErrPersistenceFailed, got %v, %v", ok, err)
	}
	if r.CurrentTurnID() != "t1" || r.Buffer() != "partial reply" {
		t.Errorf("Expected buffer and id t1 to be kept, got %q / %q", r.Buffer(), r.CurrentTurnID())
	}

	ok, err = r.Flush(context.Background())
	if !ok || err != nil {
		t.Fatalf("Expected second flush to succeed, got %v, %v", ok, err)
	}
	if saver.submitted[1].TurnID != "t1" {
		t.Errorf("Expected retry to reuse t1, got %q", saver.submitted[1].TurnID)
	}
}

func TestRecorder_FlushDiscardsConfirmedTurn(t *testing.T) {
	saver := newFakeSaver()
	saver.failNext = 1
	r := newTestRecorder(saver)

	r.AppendChunk("partial reply")
	r.Flush(context.Background())

	// a resync reveals that t1 did reach storage despite the error
	r.RestoreConfirmedTurnIDs([]string{"t1"})

	ok, err := r.Flush(context.Background())
	if ok || err != nil {
		t.Errorf("Expected discard, got %v, %v", ok, err)
	}
	if r.Buffer() != "" || r.CurrentTurnID() != "" {
		t.Errorf("Expected cleared state, got %q / %q", r.Buffer(), r.CurrentTurnID())
	}
	if len(saver.submitted) != 1 {
		t.Errorf("Expected no resubmission, got %d submissions", len(saver.submitted))
	}
}

func TestRecorder_MintSkipsConfirmedIDs(t *testing.T) {
	saver := newFakeSaver()
	r := newTestRecorder(saver)
	r.RestoreConfirmedTurnIDs([]string{"t1", "t2"})

	r.AppendChunk("text")
	r.CompleteTurn(context.Background())

	if _, ok := saver.saved["t3"]; !ok {
		t.Errorf("Expected turn to be saved as t3, got %+v", saver.submitted)
	}
}

func TestRecorder_RestoreReplacesWholesale(t *testing.T) {
	r := newTestRecorder(newFakeSaver())
	r.RestoreConfirmedTurnIDs([]string{"a", "b"})
	r.RestoreConfirmedTurnIDs([]string{"c"})

	if r.IsConfirmed("a") || !r.IsConfirmed("c") || r.ConfirmedCount() != 1 {
		t.Error("Expected confirmed set to be replaced")
	}
}

func TestRecorder_SetModeAppliesAtPersistence(t *testing.T) {
	saver := newFakeSaver()
	r := newTestRecorder(saver)

	r.AppendChunk("buffered before mode switch")
	r.SetMode("text")
	r.CompleteTurn(context.Background())

	if got := saver.saved["t1"].Provenance.Mode; got != "text" {
		t.Errorf("Expected mode 'text', got '%s'", got)
	}
	if got := saver.saved["t1"].Provenance.Provider; got != "openai" {
		t.Errorf("Expected provider 'openai', got '%s'", got)
	}
}

func TestRecorder_AtMostOncePersistence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		saver := newFakeSaver()
		r := newTestRecorder(saver)

		for step := 0; step < 200; step++ {
			if rng.Intn(4) == 0 {
				saver.failNext = 1
			}
			switch rng.Intn(4) {
			case 0, 1:
				r.AppendChunk(fmt.Sprintf("w%d ", step))
			case 2:
				r.CompleteTurn(context.Background())
			case 3:
				r.Flush(context.Background())
			}
			saver.failNext = 0
		}

		persisted := make(map[string]bool)
		for i, rec := range saver.submitted {
			if persisted[rec.TurnID] {
				t.Fatalf("run %d: turn %s submitted after it was persisted", run, rec.TurnID)
			}
			if saver.succeeded[i] {
				persisted[rec.TurnID] = true
			}
		}
	}
}

func TestSyncRecorder_ConcurrentCompleteAndFlush(t *testing.T) {
	saver := newFakeSaver()
	ids := sequentialIDs()
	var idMu sync.Mutex
	rec := NewSyncRecorder(NewRecorder("s", saver, WithIDGenerator(func() string {
		idMu.Lock()
		defer idMu.Unlock()
		return ids()
	})))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rec.AppendChunk("x")
				if (i+g)%2 == 0 {
					rec.CompleteTurn(context.Background())
				} else {
					rec.Flush(context.Background())
				}
			}
		}(g)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, r := range saver.submitted {
		if seen[r.TurnID] {
			t.Fatalf("Turn %s submitted twice", r.TurnID)
		}
		seen[r.TurnID] = true
	}
	if rec.ConfirmedCount() != len(saver.saved) {
		t.Errorf("Expected %d confirmed ids, got %d", len(saver.saved), rec.ConfirmedCount())
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(newFakeSaver())

	a, created := reg.Acquire("s1")
	if !created {
		t.Error("Expected first Acquire to create a recorder")
	}
	again, created := reg.Acquire("s1")
	if created || again != a {
		t.Error("Expected second Acquire to return the same recorder")
	}

	if got, ok := reg.Get("s1"); !ok || got != a {
		t.Error("Expected Get to find the recorder")
	}

	other := NewSyncRecorder(NewRecorder("s1", newFakeSaver()))
	if reg.Release("s1", other) {
		t.Error("Expected Release with a foreign recorder to be a no-op")
	}
	if reg.Release("s1", a) {
		t.Error("Expected Release to keep the recorder while another holder remains")
	}
	if !reg.Release("s1", a) {
		t.Error("Expected the last Release to remove the recorder")
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", reg.Len())
	}
}

func TestRegistry_SharedUntilLastRelease(t *testing.T) {
	reg := NewRegistry(newFakeSaver())

	first, _ := reg.Acquire("s1")
	second, _ := reg.Acquire("s1")
	reg.Release("s1", first)

	third, created := reg.Acquire("s1")
	if created || third != second {
		t.Error("Expected a later holder to share the live recorder")
	}

	reg.Release("s1", second)
	if _, ok := reg.Get("s1"); !ok {
		t.Error("Expected recorder to stay live while held")
	}
	reg.Release("s1", third)
	if _, ok := reg.Get("s1"); ok {
		t.Error("Expected recorder dropped after the last release")
	}
}
