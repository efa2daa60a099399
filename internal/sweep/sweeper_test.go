package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"janua/engine/internal/session/domain"
	sessionrepo "janua/engine/internal/session/repository"
)

type countingRepo struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRepo) Create(ctx context.Context, s *domain.Session) error { return nil }
func (r *countingRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return nil, nil
}
func (r *countingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	return nil, nil
}
func (r *countingRepo) Revoke(ctx context.Context, id string) error { return nil }
func (r *countingRepo) RevokeFamily(ctx context.Context, familyID, anomaly string) error {
	return nil
}
func (r *countingRepo) RevokeAllForUser(ctx context.Context, userID string) error { return nil }
func (r *countingRepo) RotateRefresh(ctx context.Context, sessionID string, expectedSeq int64, rot sessionrepo.Rotation) error {
	return nil
}

func (r *countingRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return 2, nil
}

func (r *countingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRunSweepsImmediatelyAndOnTick(t *testing.T) {
	repo := &countingRepo{}
	s := New(repo, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for repo.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := repo.count(); got < 3 {
		t.Fatalf("sweeps = %d, want at least 3 (one immediate plus ticks)", got)
	}
}

func TestNewClampsInterval(t *testing.T) {
	s := New(&countingRepo{}, 0)
	if s.interval != 10*time.Minute {
		t.Fatalf("interval = %v", s.interval)
	}
}
