package stackshop

import (
	"context"
	"errors"
	"strings"
	"time"

	"encore.dev/beta/errs"
	"encore.dev/rlog"

	"encore.app/internal/lockout"
)

// enforceWorkshopLockoutByID is the scheduler's end-of-window callback: revoke
// every live console session in the workshop and mark its instances locked.
// Both steps are idempotent; failures are logged because no caller is waiting.
func (s *Service) enforceWorkshopLockoutByID(ctx context.Context, workshopID int) {
	closed, err := s.sessions.DeleteForWorkshop(ctx, workshopID)
	if err != nil {
		rlog.Error("lockout session revocation failed", "workshop", workshopID, "err", err)
	} else if closed > 0 {
		rlog.Info("lockout revoked console sessions", "workshop", workshopID, "count", closed)
	}
	if err := s.instances.SetLockedForWorkshop(ctx, workshopID, true); err != nil {
		rlog.Error("lockout instance flagging failed", "workshop", workshopID, "err", err)
		return
	}
	rlog.Info("workshop locked", "workshop", workshopID)
}

// releaseWorkshopLockoutByID is the scheduler's window-open callback: clear
// the locked flag applied while the workshop waited for its start boundary.
// Idempotent and log-only, like enforcement.
func (s *Service) releaseWorkshopLockoutByID(ctx context.Context, workshopID int) {
	if err := s.instances.SetLockedForWorkshop(ctx, workshopID, false); err != nil {
		rlog.Error("lockout release failed", "workshop", workshopID, "err", err)
		return
	}
	rlog.Info("workshop unlocked", "workshop", workshopID)
}

// initLockouts rebuilds timer state from workshop rows at startup. Only
// workshops with both boundaries configured get timers; a lone boundary is a
// half-configured window the operator must finish via the reschedule endpoint.
func (s *Service) initLockouts(ctx context.Context) error {
	workshops, err := s.workshops.ListEnabled(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	armed := 0
	for i := range workshops {
		w := &workshops[i]
		if w.LockoutStart == nil || w.LockoutEnd == nil {
			continue
		}
		state := s.lockouts.Schedule(w.ID, w.LockoutStart, w.LockoutEnd, now)
		if err := s.applyLockoutState(ctx, w.ID, state); err != nil {
			rlog.Warn("applying lockout state failed", "workshop", w.ID, "state", string(state), "err", err)
		}
		armed++
	}
	rlog.Info("lockout timers initialized", "workshops", armed)
	return nil
}

// applyLockoutState makes the instance rows agree with the computed state.
// The scheduler only arms timers; the immediate locked/unlocked effect is ours.
func (s *Service) applyLockoutState(ctx context.Context, workshopID int, state lockout.State) error {
	if state == lockout.StateNoWindow {
		return nil
	}
	if state.Locked() {
		if _, err := s.sessions.DeleteForWorkshop(ctx, workshopID); err != nil {
			return err
		}
	}
	return s.instances.SetLockedForWorkshop(ctx, workshopID, state.Locked())
}

type LockoutRescheduleRequest struct {
	// Start and End are RFC 3339 timestamps. Both empty clears the window.
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type LockoutStatusResponse struct {
	WorkshopID    int        `json:"workshopId"`
	State         string     `json:"state"`
	Locked        bool       `json:"locked"`
	LockoutStart  *time.Time `json:"lockoutStart,omitempty"`
	LockoutEnd    *time.Time `json:"lockoutEnd,omitempty"`
	StartTimerSet bool       `json:"startTimerSet"`
	EndTimerSet   bool       `json:"endTimerSet"`
}

// RescheduleLockout replaces a workshop's access window, persists it, and
// re-arms the timers. Rescheduling is idempotent: repeating the same request
// cancels and re-installs the same pair.
//
//encore:api auth method=POST path=/api/workshops/:id/lockout
func (s *Service) RescheduleLockout(ctx context.Context, id string, req *LockoutRescheduleRequest) (*LockoutStatusResponse, error) {
	caller, err := requireAuthUser()
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, errs.B().Code(errs.PermissionDenied).Msg("admin required").Err()
	}
	workshopID, err := parseWorkshopID(id)
	if err != nil {
		return nil, err
	}
	workshop, err := s.workshops.Get(ctx, workshopID)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("workshop not found").Err()
	}
	if err != nil {
		return nil, err
	}

	start, err := parseLockoutBoundary(req.Start)
	if err != nil {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("start must be RFC 3339").Err()
	}
	end, err := parseLockoutBoundary(req.End)
	if err != nil {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("end must be RFC 3339").Err()
	}
	if start != nil && end != nil && !end.After(*start) {
		return nil, errs.B().Code(errs.InvalidArgument).Msg("end must be after start").Err()
	}

	workshop.LockoutStart = start
	workshop.LockoutEnd = end
	if _, err := s.workshops.Upsert(ctx, workshop); err != nil {
		return nil, err
	}

	state := s.lockouts.Schedule(workshopID, start, end, time.Now())
	if err := s.applyLockoutState(ctx, workshopID, state); err != nil {
		return nil, err
	}
	rlog.Info("lockout window rescheduled",
		"workshop", workshopID,
		"state", string(state),
		"user", caller.Username,
	)

	hasStart, hasEnd := s.lockouts.Active(workshopID)
	return &LockoutStatusResponse{
		WorkshopID:    workshopID,
		State:         string(state),
		Locked:        state.Locked(),
		LockoutStart:  start,
		LockoutEnd:    end,
		StartTimerSet: hasStart,
		EndTimerSet:   hasEnd,
	}, nil
}

// GetLockoutStatus reports the configured window and which timers are armed.
//
//encore:api auth method=GET path=/api/workshops/:id/lockout
func (s *Service) GetLockoutStatus(ctx context.Context, id string) (*LockoutStatusResponse, error) {
	workshopID, err := parseWorkshopID(id)
	if err != nil {
		return nil, err
	}
	workshop, err := s.workshops.Get(ctx, workshopID)
	if errors.Is(err, errNotFound) {
		return nil, errs.B().Code(errs.NotFound).Msg("workshop not found").Err()
	}
	if err != nil {
		return nil, err
	}
	hasStart, hasEnd := s.lockouts.Active(workshopID)
	state := lockoutStateNow(workshop, time.Now())
	return &LockoutStatusResponse{
		WorkshopID:    workshopID,
		State:         string(state),
		Locked:        state.Locked(),
		LockoutStart:  workshop.LockoutStart,
		LockoutEnd:    workshop.LockoutEnd,
		StartTimerSet: hasStart,
		EndTimerSet:   hasEnd,
	}, nil
}

// lockoutStateNow computes the window state without touching timers.
func lockoutStateNow(w *WorkshopRecord, now time.Time) lockout.State {
	start, end := w.LockoutStart, w.LockoutEnd
	switch {
	case start == nil && end == nil:
		return lockout.StateNoWindow
	case start != nil && now.Before(*start):
		return lockout.StatePreStartLocked
	case end != nil && !now.Before(*end):
		return lockout.StateEndedLocked
	default:
		return lockout.StateUnlocked
	}
}

func parseLockoutBoundary(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
