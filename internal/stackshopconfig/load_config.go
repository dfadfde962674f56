package stackshopconfig

import (
	"log"
	"os"
	"sort"
	"strings"
	"time"
)

// Secrets are the secret values a service package resolved from Encore
// secrets (with env fallbacks for self-hosted deployments).
type Secrets struct {
	SessionSecret         string
	PreviousSessionSecret string
	InternalToken         string
}

// Config is the resolved runtime configuration.
type Config struct {
	ConsoleSessionTTL time.Duration
	SyncWorkers       int
	ProviderTimeout   time.Duration
	AdminUsers        []string
	SeedFile          string
	CronFallback      bool

	SessionSecret         string
	PreviousSessionSecret string
	InternalToken         string
}

func parseUserList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\n", ",")
	raw = strings.ReplaceAll(raw, ";", ",")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// LoadConfig resolves runtime configuration from Encore config and secrets.
func LoadConfig(enc EncoreConfig, sec Secrets) Config {
	sessionTTL := 30 * time.Minute
	if raw := strings.TrimSpace(enc.ConsoleSessionTTL); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			sessionTTL = parsed
		} else {
			log.Printf("invalid ConsoleSessionTTL (%s), defaulting to %s", raw, sessionTTL)
		}
	}

	workers := 4
	if enc.SyncWorkers > 0 && enc.SyncWorkers <= 32 {
		workers = enc.SyncWorkers
	}

	providerTimeout := 15 * time.Second
	if enc.ProviderTimeoutSeconds > 0 && enc.ProviderTimeoutSeconds <= 120 {
		providerTimeout = time.Duration(enc.ProviderTimeoutSeconds) * time.Second
	}

	seedFile := strings.TrimSpace(enc.SeedFile)
	if seedFile == "" {
		seedFile = strings.TrimSpace(os.Getenv("STACKSHOP_SEED_FILE"))
	}

	return Config{
		ConsoleSessionTTL:     sessionTTL,
		SyncWorkers:           workers,
		ProviderTimeout:       providerTimeout,
		AdminUsers:            parseUserList(enc.AdminUsers),
		SeedFile:              seedFile,
		CronFallback:          enc.CronFallbackEnabled,
		SessionSecret:         strings.TrimSpace(sec.SessionSecret),
		PreviousSessionSecret: strings.TrimSpace(sec.PreviousSessionSecret),
		InternalToken:         strings.TrimSpace(sec.InternalToken),
	}
}

// IsAdminUser reports whether a username is in the console-override list.
func (c Config) IsAdminUser(username string) bool {
	username = strings.TrimSpace(username)
	for _, admin := range c.AdminUsers {
		if strings.EqualFold(admin, username) {
			return true
		}
	}
	return false
}

// SecretOrEnv prefers the Encore-managed secret value and falls back to the
// environment for self-hosted deployments.
func SecretOrEnv(secretValue, envKey string) string {
	if v := strings.TrimSpace(secretValue); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(envKey))
}
