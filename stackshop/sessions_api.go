package stackshop

import (
	"context"
	"strings"
	"time"

	"encore.dev/beta/errs"
)

type ConsoleSessionCreateRequest struct {
	InstanceID string `json:"instanceId"`
	// ConsoleType is one of novnc, vnc, serial, spice, rdp, mks. Empty means novnc.
	ConsoleType string `json:"consoleType,omitempty"`
}

type ConsoleSessionResponse struct {
	Token      string    `json:"token"`
	ConsoleURL string    `json:"consoleUrl,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

type ConsoleSessionTokenRequest struct {
	Token string `json:"token"`
}

type ConsoleSessionCloseResponse struct {
	Closed int64 `json:"closed"`
}

type ConsoleTokenVerifyResponse struct {
	UserID      string `json:"userId"`
	InstanceID  string `json:"instanceId"`
	ConsoleType string `json:"consoleType"`
}

// CreateConsoleSession opens a remote console on an instance and returns the
// one-time console URL together with a renewable session token.
//
//encore:api auth method=POST path=/api/sessions
func (s *Service) CreateConsoleSession(ctx context.Context, req *ConsoleSessionCreateRequest) (*ConsoleSessionResponse, error) {
	user, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.InstanceID) == "" {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("instanceId is required").Err()
	}
	return s.createConsoleSession(ctx, user, strings.TrimSpace(req.InstanceID), req.ConsoleType)
}

// ExtendConsoleSession renews a session's expiry. Expired sessions are purged
// and reported as FailedPrecondition.
//
//encore:api auth method=POST path=/api/sessions/extend
func (s *Service) ExtendConsoleSession(ctx context.Context, req *ConsoleSessionTokenRequest) (*ConsoleSessionResponse, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("token is required").Err()
	}
	return s.extendConsoleSession(ctx, strings.TrimSpace(req.Token))
}

// CloseConsoleSession revokes one session by token.
//
//encore:api auth method=POST path=/api/sessions/close
func (s *Service) CloseConsoleSession(ctx context.Context, req *ConsoleSessionTokenRequest) (*ConsoleSessionCloseResponse, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("token is required").Err()
	}
	closed, err := s.closeConsoleSession(ctx, strings.TrimSpace(req.Token))
	if err != nil {
		return nil, err
	}
	n := int64(0)
	if closed {
		n = 1
	}
	return &ConsoleSessionCloseResponse{Closed: n}, nil
}

type ConsoleSessionsCloseUserRequest struct {
	UserID string `json:"userId"`
}

// CloseUserSessions revokes every session a user holds. Closing zero sessions
// is not an error.
//
//encore:api auth method=POST path=/api/sessions/close-user
func (s *Service) CloseUserSessions(ctx context.Context, req *ConsoleSessionsCloseUserRequest) (*ConsoleSessionCloseResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(strings.TrimSpace(req.UserID))
	if target == "" {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("userId is required").Err()
	}
	if target != caller.Username && !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("cannot close another user's sessions").Err()
	}
	closed, err := s.closeSessionsForUser(ctx, target)
	if err != nil {
		return nil, err
	}
	return &ConsoleSessionCloseResponse{Closed: closed}, nil
}

type ConsoleSessionsCloseInstanceRequest struct {
	InstanceID string `json:"instanceId"`
}

// CloseInstanceSessions revokes every session on an instance. Used by the
// route layer before deleting an instance.
//
//encore:api auth method=POST path=/api/sessions/close-instance
func (s *Service) CloseInstanceSessions(ctx context.Context, req *ConsoleSessionsCloseInstanceRequest) (*ConsoleSessionCloseResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("admin required").Err()
	}
	if strings.TrimSpace(req.InstanceID) == "" {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("instanceId is required").Err()
	}
	closed, err := s.closeSessionsForInstance(ctx, strings.TrimSpace(req.InstanceID))
	if err != nil {
		return nil, err
	}
	return &ConsoleSessionCloseResponse{Closed: closed}, nil
}

// VerifyConsoleToken checks a token's signature, structure, and type
// discriminator. It does not check session liveness; callers that need that
// must also look the session up.
//
//encore:api auth method=POST path=/api/sessions/verify
func (s *Service) VerifyConsoleToken(ctx context.Context, req *ConsoleSessionTokenRequest) (*ConsoleTokenVerifyResponse, error) {
	claims, err := s.tokens.Verify(req.Token)
	if err != nil {
		return nil, errs.B().Code(errs.Unauthenticated).Msg("invalid console token").Err()
	}
	return &ConsoleTokenVerifyResponse{
		UserID:      claims.Subject,
		InstanceID:  claims.InstanceID,
		ConsoleType: claims.ConsoleType,
	}, nil
}
