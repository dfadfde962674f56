package stackshop

import (
	"context"
	"time"

	"encore.dev/rlog"

	"encore.app/internal/pglocks"
)

// Cron fallback loops
//
// Self-hosted deployments without Encore Cron can run these in-process loops
// instead. Each loop takes a Postgres advisory lock before working so only one
// replica performs a given sweep per tick.

func (s *Service) startCronFallbackLoops() {
	if !s.cfg.CronFallback {
		return
	}
	rlog.Info("starting cron fallback loops")
	go s.runLeaderLoop("purge-sessions", 10*time.Minute, func(ctx context.Context) error {
		_, err := s.purgeExpiredSessions(ctx)
		return err
	})
	go s.runLeaderLoop("instance-sync", 15*time.Minute, func(ctx context.Context) error {
		_, err := s.syncAllInstances(ctx)
		return err
	})
}

func (s *Service) runLeaderLoop(name string, every time.Duration, fn func(ctx context.Context) error) {
	key := pglocks.KeyFromString("stackshop:" + name)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		ctx := context.Background()
		if err := s.runUnderLock(ctx, key, fn); err != nil {
			rlog.Error("cron fallback run error", "name", name, "err", err)
		}
		<-ticker.C
	}
}

func (s *Service) runUnderLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	lock, ok, err := pglocks.TryAdvisoryLock(ctx, s.db, key)
	if err != nil {
		return err
	}
	if !ok {
		// Another replica holds the lock; its run covers this tick.
		return nil
	}
	defer func() {
		_ = lock.Unlock(context.Background())
	}()
	return fn(ctx)
}
