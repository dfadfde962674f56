package stackshop

import (
	"context"
	"errors"
	"time"

	"encore.dev/beta/errs"
	"encore.dev/rlog"

	"encore.app/internal/openstack"
)

// Session broker: issues, extends, and revokes time-bounded console sessions.
// The token is the caller's handle; the row in ss_console_sessions is the
// source of truth for liveness.

func (s *Service) createConsoleSession(ctx context.Context, user *AuthUser, instanceID, consoleType string) (*ConsoleSessionResponse, error) {
	ct, err := openstack.ParseConsoleType(consoleType)
	if err != nil {
		return nil, errs.B().Code(errs.InvalidArgument).Msg(err.Error()).Err()
	}
	inst, err := s.instances.Get(ctx, instanceID)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("instance not found").Err()
	}
	if err != nil {
		return nil, err
	}
	if inst.Locked && !user.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("instance is locked").Err()
	}
	workshop, err := s.workshops.Get(ctx, inst.WorkshopID)
	if err != nil {
		return nil, err
	}
	providerRec, err := s.providers.Get(ctx, workshop.ProviderID)
	if err != nil {
		return nil, err
	}
	provider, err := s.decryptedProvider(providerRec)
	if err != nil {
		return nil, err
	}

	consoleURL, err := s.cloud.CreateConsole(ctx, provider, workshopScope(workshop), inst.OpenStackID, ct)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.tokens.Mint(user.Username, inst.ID, ct)
	if err != nil {
		return nil, err
	}
	rec := &SessionRecord{
		UserID:      user.Username,
		InstanceID:  inst.ID,
		Token:       token,
		ConsoleType: string(ct),
		ExpiresAt:   expiresAt,
	}
	if err := s.sessions.Insert(ctx, rec); err != nil {
		return nil, err
	}
	rlog.Info("console session created",
		"user", user.Username,
		"instance", inst.ID,
		"console_type", string(ct),
	)
	return &ConsoleSessionResponse{
		Token:      token,
		ConsoleURL: consoleURL,
		ExpiresAt:  expiresAt,
	}, nil
}

func (s *Service) extendConsoleSession(ctx context.Context, token string) (*ConsoleSessionResponse, error) {
	rec, err := s.sessions.GetByToken(ctx, token)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("session not found").Err()
	}
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if rec.ExpiresAt.Before(now) {
		// Expired rows are dead the moment they are observed; purge on touch.
		if delErr := s.sessions.DeleteByID(ctx, rec.ID); delErr != nil {
			rlog.Warn("failed to purge expired session", "session", rec.ID, "err", delErr)
		}
		return nil, errs.B().Code(errs.FailedPrecondition).Msg("session expired").Err()
	}
	expiresAt := now.Add(s.tokens.TTL())
	if err := s.sessions.UpdateExpiry(ctx, rec.ID, expiresAt); err != nil {
		return nil, err
	}
	return &ConsoleSessionResponse{Token: rec.Token, ExpiresAt: expiresAt}, nil
}

func (s *Service) closeConsoleSession(ctx context.Context, token string) (bool, error) {
	return s.sessions.DeleteByToken(ctx, token)
}

func (s *Service) closeSessionsForUser(ctx context.Context, userID string) (int64, error) {
	return s.sessions.DeleteForUser(ctx, userID)
}

func (s *Service) closeSessionsForInstance(ctx context.Context, instanceID string) (int64, error) {
	return s.sessions.DeleteForInstance(ctx, instanceID)
}

// purgeExpiredSessions is the externally-triggered GC sweep.
func (s *Service) purgeExpiredSessions(ctx context.Context) (int64, error) {
	purged, err := s.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		rlog.Info("purged expired console sessions", "count", purged)
	}
	return purged, nil
}
