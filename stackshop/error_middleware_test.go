package stackshop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"encore.dev/beta/errs"

	"encore.app/internal/openstack"
)

func TestTranslateErr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   error
		want errs.ErrCode
	}{
		{"deadline", context.DeadlineExceeded, errs.DeadlineExceeded},
		{"canceled", context.Canceled, errs.Canceled},
		{"sql no rows", sql.ErrNoRows, errs.NotFound},
		{"store not found", errNotFound, errs.NotFound},
		{"remote not found", fmt.Errorf("get: %w", openstack.ErrNotFoundRemote), errs.NotFound},
		{"auth failed", fmt.Errorf("acquire: %w", openstack.ErrAuthenticationFailed), errs.Unauthenticated},
		{"endpoint missing", openstack.ErrEndpointNotFound, errs.FailedPrecondition},
		{"request failed", openstack.ErrRequestFailed, errs.Unavailable},
		{"db unavailable", errDBUnavailable, errs.Unavailable},
		{"unknown", errors.New("boom"), errs.Internal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := translateErr(tt.in)
			var e *errs.Error
			if !errors.As(got, &e) {
				t.Fatalf("expected *errs.Error, got %T", got)
			}
			if e.Code != tt.want {
				t.Fatalf("code: got %v want %v", e.Code, tt.want)
			}
		})
	}

	if translateErr(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestSanitizeErrorTrimsBodies(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf(`%w: identity returned 401: {"error":{"message":"secret detail"}}`, openstack.ErrAuthenticationFailed)
	got := sanitizeError(err)
	if strings.Contains(got, "secret detail") {
		t.Fatalf("response body leaked: %q", got)
	}
	if !strings.Contains(got, "identity returned 401") {
		t.Fatalf("status context lost: %q", got)
	}

	long := errors.New(strings.Repeat("x", 400))
	if got := sanitizeError(long); len(got) > 310 {
		t.Fatalf("long message not truncated: %d chars", len(got))
	}
}
