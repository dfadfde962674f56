// Package lockout enforces per-workshop access windows with in-process,
// single-shot timers. State is not persisted; the owning service re-derives it
// from workshop configuration at startup.
package lockout

import (
	"context"
	"sync"
	"time"
)

// State is the access state computed for a workshop at scheduling time.
type State string

const (
	StateUnlocked       State = "unlocked"
	StatePreStartLocked State = "pre_start_locked"
	StateEndedLocked    State = "ended_locked"
	StateNoWindow       State = "no_window"
)

// Locked reports whether the state requires the workshop to be locked right now.
func (s State) Locked() bool {
	return s == StatePreStartLocked || s == StateEndedLocked
}

// EnforceFunc is called when a workshop's window ends. It must be idempotent;
// errors are the implementation's problem to log since no caller is waiting.
type EnforceFunc func(ctx context.Context, workshopID int)

// ReleaseFunc is called when a workshop's window opens, so the owner can undo
// the lock it applied for StatePreStartLocked. Same contract as EnforceFunc.
type ReleaseFunc func(ctx context.Context, workshopID int)

type timerPair struct {
	start *time.Timer
	end   *time.Timer
}

// Scheduler keeps at most one (start, end) timer pair per workshop.
// Rescheduling cancels the existing pair and installs the new one under a
// single mutex hold, so concurrent reschedules can never leave duplicates.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[int]*timerPair
	enforce EnforceFunc
	release ReleaseFunc
}

func NewScheduler(enforce EnforceFunc, release ReleaseFunc) *Scheduler {
	if enforce == nil {
		enforce = func(context.Context, int) {}
	}
	if release == nil {
		release = func(context.Context, int) {}
	}
	return &Scheduler{
		timers:  make(map[int]*timerPair),
		enforce: enforce,
		release: release,
	}
}

// Schedule computes the workshop's current state from its optional window
// boundaries and arms the timers that state requires. Any previously armed
// timers for the workshop are cancelled first.
//
// The caller is responsible for applying the returned state's immediate
// effect (locking or unlocking the workshop's instances); later boundary
// transitions are delivered through the release and enforce hooks.
func (s *Scheduler) Schedule(workshopID int, start, end *time.Time, now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(workshopID)

	switch {
	case start != nil && end != nil:
		switch {
		case now.Before(*start):
			pair := &timerPair{}
			pair.start = s.arm(workshopID, pair, start.Sub(now), s.fireStart)
			pair.end = s.arm(workshopID, pair, end.Sub(now), s.fireEnd)
			s.timers[workshopID] = pair
			return StatePreStartLocked
		case now.Before(*end):
			pair := &timerPair{}
			pair.end = s.arm(workshopID, pair, end.Sub(now), s.fireEnd)
			s.timers[workshopID] = pair
			return StateUnlocked
		default:
			return StateEndedLocked
		}
	case start != nil:
		if now.Before(*start) {
			pair := &timerPair{}
			pair.start = s.arm(workshopID, pair, start.Sub(now), s.fireStart)
			s.timers[workshopID] = pair
			return StatePreStartLocked
		}
		return StateUnlocked
	case end != nil:
		if now.Before(*end) {
			pair := &timerPair{}
			pair.end = s.arm(workshopID, pair, end.Sub(now), s.fireEnd)
			s.timers[workshopID] = pair
			return StateUnlocked
		}
		return StateEndedLocked
	default:
		return StateNoWindow
	}
}

// arm binds a callback to the pair it belongs to. A Timer.Stop that loses the
// race against a firing callback cannot take it back, so each callback checks
// that its pair is still the installed one and drops out if a reschedule
// replaced it in the meantime.
func (s *Scheduler) arm(workshopID int, pair *timerPair, delay time.Duration, fn func(int, *timerPair)) *time.Timer {
	if delay < 0 {
		delay = 0
	}
	return time.AfterFunc(delay, func() { fn(workshopID, pair) })
}

// fireStart runs when the window opens: drop the start handle and let the
// release hook clear the lock applied at scheduling time.
func (s *Scheduler) fireStart(workshopID int, pair *timerPair) {
	s.mu.Lock()
	if s.timers[workshopID] != pair {
		s.mu.Unlock()
		return
	}
	pair.start = nil
	if pair.end == nil {
		delete(s.timers, workshopID)
	}
	s.mu.Unlock()

	s.release(context.Background(), workshopID)
}

// fireEnd runs enforcement when the window closes, then forgets the workshop.
func (s *Scheduler) fireEnd(workshopID int, pair *timerPair) {
	s.mu.Lock()
	if s.timers[workshopID] != pair {
		s.mu.Unlock()
		return
	}
	if pair.start != nil {
		pair.start.Stop()
	}
	delete(s.timers, workshopID)
	s.mu.Unlock()

	s.enforce(context.Background(), workshopID)
}

// Cancel stops and removes any timer pair for the workshop.
func (s *Scheduler) Cancel(workshopID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(workshopID)
}

func (s *Scheduler) cancelLocked(workshopID int) {
	pair, ok := s.timers[workshopID]
	if !ok {
		return
	}
	if pair.start != nil {
		pair.start.Stop()
	}
	if pair.end != nil {
		pair.end.Stop()
	}
	delete(s.timers, workshopID)
}

// Shutdown cancels every armed timer. Pending windows are not enforced.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.timers {
		s.cancelLocked(id)
	}
}

// Active reports which timers are currently armed for a workshop.
func (s *Scheduler) Active(workshopID int) (hasStart, hasEnd bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.timers[workshopID]
	if !ok {
		return false, false
	}
	return pair.start != nil, pair.end != nil
}

// Len returns the number of workshops with armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
