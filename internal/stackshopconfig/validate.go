package stackshopconfig

import "fmt"

type ConfigValidation struct {
	Errors   []string
	Warnings []string
}

func (v *ConfigValidation) addError(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

func (v *ConfigValidation) addWarning(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// ValidateConfig returns a safe-to-display validation summary of the runtime
// configuration. It must never include secret values.
func ValidateConfig(cfg Config) ConfigValidation {
	var v ConfigValidation

	if cfg.SessionSecret == "" {
		v.addError("session secret is not configured (console tokens cannot be signed)")
	}
	if cfg.InternalToken == "" {
		v.addWarning("internal token is not configured; internal cron endpoints are open to the cluster network")
	}
	if cfg.ConsoleSessionTTL <= 0 {
		v.addError("console session TTL must be positive")
	}
	if cfg.SyncWorkers <= 0 {
		v.addError("sync worker count must be positive")
	}
	if len(cfg.AdminUsers) == 0 {
		v.addWarning("no admin users configured; locked instances cannot be overridden")
	}

	return v
}
