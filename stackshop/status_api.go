package stackshop

import (
	"context"
	"time"

	"encore.dev"

	"encore.app/internal/stackshopconfig"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Migrations string `json:"migrations,omitempty"`
	Time       string `json:"time"`
}

// Health reports process and database liveness. Public so load balancers can
// probe without credentials.
//
//encore:api public method=GET path=/api/health
func (s *Service) Health(ctx context.Context) (*HealthResponse, error) {
	resp := &HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if s.db == nil {
		resp.Status = "degraded"
		resp.Database = "unavailable"
		return resp, nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		return resp, nil
	}
	resp.Database = "ok"
	var n int
	if err := s.db.QueryRowContext(pingCtx, `SELECT count(*) FROM ss_providers`).Scan(&n); err != nil {
		if isMissingDBRelation(err) {
			resp.Status = "degraded"
			resp.Migrations = "pending"
		} else {
			resp.Status = "degraded"
			resp.Migrations = "error"
		}
	}
	return resp, nil
}

type StatusResponse struct {
	Environment    string   `json:"environment"`
	ConfigErrors   []string `json:"configErrors,omitempty"`
	ConfigWarnings []string `json:"configWarnings,omitempty"`
	ArmedLockouts  int      `json:"armedLockouts"`
	SyncWorkers    int      `json:"syncWorkers"`
	SessionTTL     string   `json:"sessionTtl"`
}

// Status summarizes runtime configuration for operators. Secret values are
// never included; validation reports only presence and shape.
//
//encore:api auth method=GET path=/api/status
func (s *Service) Status(ctx context.Context) (*StatusResponse, error) {
	validation := stackshopconfig.ValidateConfig(s.cfg)
	return &StatusResponse{
		Environment:    encore.Meta().Environment.Name,
		ConfigErrors:   validation.Errors,
		ConfigWarnings: validation.Warnings,
		ArmedLockouts:  s.lockouts.Len(),
		SyncWorkers:    s.cfg.SyncWorkers,
		SessionTTL:     s.cfg.ConsoleSessionTTL.String(),
	}, nil
}
