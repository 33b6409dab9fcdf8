package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/your-org/facegate/internal/observability"
)

// SweepLockKey is the distributed lock guarding the lifecycle sweep.
const SweepLockKey = "facegate:observed:sweep:lock"

type SweepResult struct {
	Expired int64
	// Skipped is true when another process held the sweep lock.
	Skipped bool
}

// Sweeper expires observed identities whose temporary access window has passed.
// Overlapping calls in one process share a single run; across processes the
// Locker admits one holder at a time.
type Sweeper struct {
	store    ExpiryStore
	locker   Locker
	lockTTL  time.Duration
	interval time.Duration
	group    singleflight.Group
	clock    func() time.Time
}

// NewSweeper builds a sweeper. locker may be nil for single-process deployments.
func NewSweeper(store ExpiryStore, locker Locker, interval, lockTTL time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		locker:   locker,
		lockTTL:  lockTTL,
		interval: interval,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	ch := s.group.DoChan("sweep", func() (interface{}, error) {
		// The shared run must outlive the first caller's cancellation but stay
		// inside the lock lease.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout())
		defer cancel()
		return s.sweep(runCtx)
	})
	select {
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SweepResult{}, res.Err
		}
		return res.Val.(SweepResult), nil
	}
}

func (s *Sweeper) runTimeout() time.Duration {
	if s.lockTTL > 0 {
		return s.lockTTL
	}
	return 30 * time.Second
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, SweepLockKey, s.lockTTL)
		if err != nil {
			observability.SweepRuns.WithLabelValues("error").Inc()
			return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			observability.SweepRuns.WithLabelValues("skipped").Inc()
			return SweepResult{Skipped: true}, nil
		}
		defer func() {
			if err := release(ctx); err != nil {
				slog.Warn("release sweep lock", "error", err)
			}
		}()
	}

	n, err := s.store.ExpireElapsed(ctx, s.clock())
	if err != nil {
		observability.SweepRuns.WithLabelValues("error").Inc()
		return SweepResult{}, fmt.Errorf("expire observed identities: %w", err)
	}
	observability.SweepRuns.WithLabelValues("ok").Inc()
	observability.SweepExpired.Add(float64(n))
	if n > 0 {
		slog.Info("expired observed identities", "count", n)
	}
	return SweepResult{Expired: n}, nil
}

// Run sweeps every interval until ctx is cancelled. A failed or panicking pass is
// logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("lifecycle sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("lifecycle sweeper stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			observability.SweepRuns.WithLabelValues("error").Inc()
			slog.Error("lifecycle sweep panicked", "panic", p)
		}
	}()

	opCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if _, err := s.Sweep(opCtx); err != nil {
		slog.Error("lifecycle sweep", "error", err)
	}
}
