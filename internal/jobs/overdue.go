package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

type Sweeper interface {
	SweepOverdue(ctx context.Context, actor orders.Actor) ([]string, error)
}

// Locker is a best-effort cluster lock. redisx.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

const overdueLock = "overdue-sweep"

// OverdueSweep flips past-due invoices to Overdue. With a Locker, only one
// replica runs a given tick.
type OverdueSweep struct {
	Ledger  Sweeper
	Lock    Locker
	LockTTL time.Duration
	Log     *zap.Logger
}

// Run sweeps once and reports how many invoices were marked.
func (j OverdueSweep) Run(ctx context.Context) (int, error) {
	if j.Lock != nil {
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		ok, err := j.Lock.TryLock(ctx, overdueLock, ttl)
		if err != nil {
			return 0, err
		}
		if !ok {
			j.Log.Debug("overdue sweep held elsewhere")
			return 0, nil
		}
		defer func() {
			if err := j.Lock.Unlock(context.WithoutCancel(ctx), overdueLock); err != nil {
				j.Log.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}
	ids, err := j.Ledger.SweepOverdue(ctx, orders.SystemActor)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Tick adapts Run to the scheduler; failures are logged.
func (j OverdueSweep) Tick(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil {
		j.Log.Error("overdue sweep failed", zap.Error(err))
	}
}
