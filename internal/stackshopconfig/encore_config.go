package stackshopconfig

// EncoreConfig is the Encore-managed config schema for the Stackshop server.
//
// The schema lives in a shared internal package, but config.Load must be
// called from within a service package (per Encore rules).
type EncoreConfig struct {
	// ConsoleSessionTTL is a duration string, e.g. "30m".
	ConsoleSessionTTL string
	// SyncWorkers bounds the worker pool used by bulk sweeps.
	SyncWorkers int
	// ProviderTimeoutSeconds bounds every outbound provider call.
	ProviderTimeoutSeconds int
	// AdminUsers is a comma/semicolon/newline separated list of usernames that
	// may open consoles on locked instances.
	AdminUsers string
	// SeedFile optionally points at a YAML file of providers/workshops to
	// upsert at startup (self-hosted bootstrap).
	SeedFile string
	// CronFallbackEnabled runs in-process sweep loops for deployments without
	// Encore cron.
	CronFallbackEnabled bool
}
