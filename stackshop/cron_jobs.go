package stackshop

import (
	"context"

	"encore.dev/cron"
	"encore.dev/rlog"
)

// Cron jobs
//
// These jobs are the preferred scheduling mechanism in Encore-managed
// environments. Self-hosted deployments that cannot use Encore Cron can enable
// the in-process fallback loops instead (cron_fallback config flag), which hit
// the same code paths under an advisory lock.

//encore:api private method=POST path=/internal/cron/sessions/purge
func CronPurgeExpiredSessions(ctx context.Context) error {
	if defaultService == nil || defaultService.db == nil {
		return nil
	}
	_, err := defaultService.purgeExpiredSessions(ctx)
	return err
}

//encore:api private method=POST path=/internal/cron/instances/sync
func CronSyncAllInstances(ctx context.Context) error {
	if defaultService == nil || defaultService.db == nil {
		return nil
	}
	resp, err := defaultService.syncAllInstances(ctx)
	if err != nil {
		return err
	}
	if resp.Errors > 0 {
		rlog.Warn("scheduled sweep finished with errors",
			"synced", resp.Synced,
			"errors", resp.Errors,
		)
	}
	return nil
}

var (
	_ = cron.NewJob("stackshop-purge-sessions", cron.JobConfig{
		Title:    "Purge expired console sessions",
		Endpoint: CronPurgeExpiredSessions,
		Every:    10 * cron.Minute,
	})
	_ = cron.NewJob("stackshop-instance-sync", cron.JobConfig{
		Title:    "Sync instances from providers",
		Endpoint: CronSyncAllInstances,
		Every:    15 * cron.Minute,
	})
)
