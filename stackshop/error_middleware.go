package stackshop

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"encore.dev/beta/errs"
	"encore.dev/middleware"

	"encore.app/internal/openstack"
)

// ErrorNormalizationMiddleware ensures that all API errors are returned as
// Encore errs with stable codes.
//
//encore:middleware target=all
func (s *Service) ErrorNormalizationMiddleware(req middleware.Request, next middleware.Next) middleware.Response {
	resp := next(req)

	if resp.Err == nil {
		return resp
	}

	var e *errs.Error
	if errors.As(resp.Err, &e) {
		return resp
	}

	resp.Err = translateErr(resp.Err)
	return resp
}

// translateErr maps internal sentinels onto API error codes.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errs.B().Code(errs.DeadlineExceeded).Msg("deadline exceeded").Err()
	case errors.Is(err, context.Canceled):
		return errs.B().Code(errs.Canceled).Msg("request canceled").Err()
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, errNotFound):
		return errs.B().Code(errs.NotFound).Msg("not found").Err()
	case errors.Is(err, openstack.ErrNotFoundRemote):
		return errs.B().Code(errs.NotFound).Msg("remote instance not found").Err()
	case errors.Is(err, openstack.ErrAuthenticationFailed):
		return errs.B().Code(errs.Unauthenticated).Msg(sanitizeError(err)).Err()
	case errors.Is(err, openstack.ErrEndpointNotFound):
		return errs.B().Code(errs.FailedPrecondition).Msg(sanitizeError(err)).Err()
	case errors.Is(err, openstack.ErrRequestFailed):
		return errs.B().Code(errs.Unavailable).Msg(sanitizeError(err)).Err()
	case errors.Is(err, errDBUnavailable):
		return errs.B().Code(errs.Unavailable).Msg("database unavailable").Err()
	default:
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = "internal error"
		}
		return errs.B().Code(errs.Internal).Msg(msg).Err()
	}
}

// sanitizeError trims provider response bodies out of messages that may end up
// in user-facing responses.
func sanitizeError(err error) string {
	msg := strings.TrimSpace(err.Error())
	if idx := strings.Index(msg, ": {"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}
