package pricing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospbill/billing/internal/platform/lock"
)

const applierLockKey = "price-applier"

type sweeper interface {
	ApplyDue(ctx context.Context, now time.Time) (SweepResult, error)
}

// Applier drains due scheduled price changes on a fixed interval. A lock
// keeps replicas from sweeping at the same time.
type Applier struct {
	svc      sweeper
	locker   lock.Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewApplier(svc sweeper, locker lock.Locker, interval time.Duration, logger zerolog.Logger) *Applier {
	ttl := interval
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return &Applier{
		svc:      svc,
		locker:   locker,
		interval: interval,
		lockTTL:  ttl,
		logger:   logger.With().Str("component", "price_applier").Logger(),
		now:      time.Now,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (a *Applier) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ticker.C:
			a.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Applier) tick(ctx context.Context) {
	if _, _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error().Err(err).Msg("price sweep failed")
	}
}

// RunOnce performs a single sweep if the lock is free. ran is false when
// another holder has the lock.
func (a *Applier) RunOnce(ctx context.Context) (res SweepResult, ran bool, err error) {
	release, ok, err := a.locker.TryLock(ctx, applierLockKey, a.lockTTL)
	if err != nil {
		return res, false, err
	}
	if !ok {
		a.logger.Debug().Msg("sweep skipped, lock held elsewhere")
		return res, false, nil
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			a.logger.Warn().Err(rerr).Msg("release sweep lock")
		}
	}()

	start := a.now()
	res, err = a.svc.ApplyDue(ctx, start)
	if err != nil {
		return res, true, err
	}
	for _, f := range res.Failed {
		a.logger.Warn().Str("change_id", f.ID.String()).Str("error", f.Error).Msg("scheduled price change failed")
	}
	ev := a.logger.Info()
	if len(res.Applied) == 0 && len(res.Failed) == 0 {
		ev = a.logger.Debug()
	}
	ev.Int("applied", len(res.Applied)).
		Int("failed", len(res.Failed)).
		Int("skipped", res.Skipped).
		Dur("took", a.now().Sub(start)).
		Msg("price sweep complete")
	return res, true, nil
}
