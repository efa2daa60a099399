// Package sweep flips expired sessions inactive on a fixed interval so the
// sessions table converges even when tokens are never presented again.
package sweep

import (
	"context"
	"log"
	"time"

	sessionrepo "janua/engine/internal/session/repository"
)

// Sweeper periodically marks expired sessions inactive. Rows are never
// deleted; revoked and expired sessions stay queryable for audit.
type Sweeper struct {
	sessions sessionrepo.Repository
	interval time.Duration
	timeout  time.Duration
}

// New returns a Sweeper that runs every interval.
func New(sessions sessionrepo.Repository, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{sessions: sessions, interval: interval, timeout: 30 * time.Second}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.sessions.SweepExpired(sweepCtx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("sweep: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("sweep: expired %d sessions", n)
	}
}
