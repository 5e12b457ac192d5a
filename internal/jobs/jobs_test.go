package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	actor orders.Actor
	err   error
}

func (s *countingSweeper) SweepOverdue(_ context.Context, actor orders.Actor) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.actor = actor
	return []string{"inv-1", "inv-2"}, s.err
}

type fakeLocker struct {
	held     bool
	unlocked int
	err      error
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) Unlock(context.Context, string) error {
	l.held = false
	l.unlocked++
	return nil
}

func TestOverdueSweepTakesLock(t *testing.T) {
	sw := &countingSweeper{}
	lk := &fakeLocker{}
	job := OverdueSweep{Ledger: sw, Lock: lk, Log: zaptest.NewLogger(t)}

	n, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, orders.SystemActor, sw.actor)
	assert.Equal(t, 1, lk.unlocked)
	assert.False(t, lk.held)

	lk.held = true
	n, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "another replica holds the lock")
	assert.Equal(t, 1, sw.calls)
}

func TestOverdueSweepErrors(t *testing.T) {
	job := OverdueSweep{Ledger: &countingSweeper{}, Lock: &fakeLocker{err: errors.New("redis down")}, Log: zaptest.NewLogger(t)}
	_, err := job.Run(context.Background())
	assert.Error(t, err)

	sw := &countingSweeper{err: errors.New("db down")}
	lk := &fakeLocker{}
	job = OverdueSweep{Ledger: sw, Lock: lk, Log: zaptest.NewLogger(t)}
	_, err = job.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, lk.unlocked, "lock released on failure")
	job.Tick(context.Background())
}

func TestSchedulerRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(ctx, zaptest.NewLogger(t))

	require.Error(t, s.Add("bad", "not a schedule", func(context.Context) {}))

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))
	s.Start()
	defer s.Stop(context.Background())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
