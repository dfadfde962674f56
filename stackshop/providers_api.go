package stackshop

import (
	"context"
	"errors"

	"encore.dev/beta/errs"
	"encore.dev/rlog"

	"encore.app/internal/openstack"
)

type ProviderListResponse struct {
	Providers []ProviderRecord `json:"providers"`
}

// ListProviders returns the configured providers. Passwords never leave the
// store decrypted and the record's JSON shape hides the sealed column.
//
//encore:api auth method=GET path=/api/providers
func (s *Service) ListProviders(ctx context.Context) (*ProviderListResponse, error) {
	providers, err := s.providers.List(ctx, false)
	if err != nil {
		return nil, err
	}
	return &ProviderListResponse{Providers: providers}, nil
}

type ProviderCheckResponse struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	// Detail carries a short failure description; no credential material.
	Detail string `json:"detail,omitempty"`
}

// CheckProvider verifies a provider's stored credentials by performing an
// unscoped authentication against its identity service.
//
//encore:api auth method=POST path=/api/providers/:id/check
func (s *Service) CheckProvider(ctx context.Context, id int) (*ProviderCheckResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("admin required").Err()
	}
	rec, err := s.providers.Get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("provider not found").Err()
	}
	if err != nil {
		return nil, err
	}
	provider, err := s.decryptedProvider(rec)
	if err != nil {
		return &ProviderCheckResponse{Provider: rec.Name, Detail: "stored credentials unreadable"}, nil
	}
	if _, err := s.cloud.Acquire(ctx, provider, openstack.ProjectScope{}); err != nil {
		rlog.Warn("provider credential check failed", "provider", rec.Name, "err", err)
		return &ProviderCheckResponse{Provider: rec.Name, Detail: providerCheckDetail(err)}, nil
	}
	return &ProviderCheckResponse{Provider: rec.Name, OK: true}, nil
}

// providerCheckDetail maps an Acquire failure to a short operator-facing
// description without echoing credential material or response bodies.
func providerCheckDetail(err error) string {
	if errors.Is(err, openstack.ErrIdentityUnreachable) {
		return "identity endpoint unreachable"
	}
	return "authentication failed"
}
