package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const lockKey = "expire-stale"

type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Sweeper runs the expiry sweep on a fixed interval. The sweep is
// idempotent, so a missed or doubled tick only shifts when staleness is
// noticed.
type Sweeper struct {
	expirer  Expirer
	locker   Locker
	interval time.Duration
}

func New(expirer Expirer, locker Locker, interval time.Duration) *Sweeper {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{expirer: expirer, locker: locker, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	zap.L().Info("expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			zap.L().Error("expiry sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			zap.L().Info("expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps if this instance wins the lease. It returns the number of
// requests expired, 0 when another instance holds the lease.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	release, ok, err := s.locker.TryLock(ctx, lockKey, s.interval)
	if err != nil {
		return 0, err
	}
	if !ok {
		zap.L().Debug("expiry sweep skipped, lease held elsewhere")
		return 0, nil
	}
	defer release(context.WithoutCancel(ctx))
	count, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		zap.L().Info("expiry sweep finished", zap.Int("expired", count))
	}
	return count, nil
}
