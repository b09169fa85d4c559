package session

import (
	"context"
	"time"

	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

// Janitor periodically sweeps sessions whose clients went away without
// tearing them down
type Janitor struct {
	store      Store
	staleAfter time.Duration
	interval   time.Duration
	reap       func() int
}

// JanitorOption configures a Janitor
type JanitorOption func(*Janitor)

// WithReaper runs fn after every sweep. It releases whatever the swept
// sessions held, such as open recognition streams, and returns how many it
// released.
func WithReaper(fn func() int) JanitorOption {
	return func(j *Janitor) {
		j.reap = fn
	}
}

// NewJanitor creates a janitor for store
func NewJanitor(store Store, staleAfter, interval time.Duration, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		store:      store,
		staleAfter: staleAfter,
		interval:   interval,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every interval until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) {
	logger := observability.WithComponent("session_janitor")
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	logger.Info().
		Dur("stale_after", j.staleAfter).
		Dur("interval", j.interval).
		Msg("Session janitor started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			if n := j.Sweep(); n > 0 {
				logger.Warn().Int("removed", n).Int("remaining", j.store.Len()).Msg("Removed stale sessions")
			}
		}
	}
}

// Sweep runs one cleanup pass and returns how many sessions it removed
func (j *Janitor) Sweep() int {
	n := j.store.CleanupOlderThan(j.staleAfter)
	observability.RecordStaleSessionsSwept(n)
	if j.reap != nil {
		if closed := j.reap(); closed > 0 {
			logger := observability.WithComponent("session_janitor")
			logger.Debug().Int("closed", closed).Msg("Released swept sessions")
		}
	}
	return n
}
