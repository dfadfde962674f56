package stackshopconfig

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(EncoreConfig{}, Secrets{})
	if cfg.ConsoleSessionTTL != 30*time.Minute {
		t.Fatalf("default TTL: got %s", cfg.ConsoleSessionTTL)
	}
	if cfg.SyncWorkers != 4 {
		t.Fatalf("default workers: got %d", cfg.SyncWorkers)
	}
	if cfg.ProviderTimeout != 15*time.Second {
		t.Fatalf("default provider timeout: got %s", cfg.ProviderTimeout)
	}
	if cfg.CronFallback {
		t.Fatalf("cron fallback must default off")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg := LoadConfig(EncoreConfig{
		ConsoleSessionTTL:      "1h",
		SyncWorkers:            8,
		ProviderTimeoutSeconds: 60,
		AdminUsers:             "alice, bob; alice\ncarol",
	}, Secrets{SessionSecret: " s3cret "})
	if cfg.ConsoleSessionTTL != time.Hour {
		t.Fatalf("TTL: got %s", cfg.ConsoleSessionTTL)
	}
	if cfg.SyncWorkers != 8 {
		t.Fatalf("workers: got %d", cfg.SyncWorkers)
	}
	if cfg.ProviderTimeout != 60*time.Second {
		t.Fatalf("provider timeout: got %s", cfg.ProviderTimeout)
	}
	if want := []string{"alice", "bob", "carol"}; !reflect.DeepEqual(cfg.AdminUsers, want) {
		t.Fatalf("admin users: got %v want %v", cfg.AdminUsers, want)
	}
	if cfg.SessionSecret != "s3cret" {
		t.Fatalf("session secret must be trimmed, got %q", cfg.SessionSecret)
	}
}

func TestLoadConfigRejectsOutOfRange(t *testing.T) {
	cfg := LoadConfig(EncoreConfig{
		ConsoleSessionTTL:      "not-a-duration",
		SyncWorkers:            1000,
		ProviderTimeoutSeconds: 900,
	}, Secrets{})
	if cfg.ConsoleSessionTTL != 30*time.Minute {
		t.Fatalf("bad TTL must fall back, got %s", cfg.ConsoleSessionTTL)
	}
	if cfg.SyncWorkers != 4 {
		t.Fatalf("out-of-range workers must fall back, got %d", cfg.SyncWorkers)
	}
	if cfg.ProviderTimeout != 15*time.Second {
		t.Fatalf("out-of-range timeout must fall back, got %s", cfg.ProviderTimeout)
	}
}

func TestIsAdminUser(t *testing.T) {
	cfg := LoadConfig(EncoreConfig{AdminUsers: "alice,bob"}, Secrets{})
	if !cfg.IsAdminUser("alice") || !cfg.IsAdminUser("ALICE") {
		t.Fatalf("admin matching must be case-insensitive")
	}
	if cfg.IsAdminUser("mallory") || cfg.IsAdminUser("") {
		t.Fatalf("non-admins must not match")
	}
}

func TestSecretOrEnv(t *testing.T) {
	t.Setenv("STACKSHOP_TEST_SECRET", "from-env")
	if got := SecretOrEnv("from-secret", "STACKSHOP_TEST_SECRET"); got != "from-secret" {
		t.Fatalf("secret value must win, got %q", got)
	}
	if got := SecretOrEnv("  ", "STACKSHOP_TEST_SECRET"); got != "from-env" {
		t.Fatalf("env fallback: got %q", got)
	}
}

func TestLoadConfigSeedFileEnvFallback(t *testing.T) {
	t.Setenv("STACKSHOP_SEED_FILE", "/etc/stackshop/seed.yaml")
	cfg := LoadConfig(EncoreConfig{}, Secrets{})
	if cfg.SeedFile != "/etc/stackshop/seed.yaml" {
		t.Fatalf("seed file env fallback: got %q", cfg.SeedFile)
	}

	cfg = LoadConfig(EncoreConfig{SeedFile: "/opt/seed.yaml"}, Secrets{})
	if cfg.SeedFile != "/opt/seed.yaml" {
		t.Fatalf("explicit seed file must win: got %q", cfg.SeedFile)
	}
}
