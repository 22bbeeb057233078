package game

import "time"

// Phase is one of the five states of a room's lifecycle.
type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhasePrep      Phase = "prep"
	PhaseExplore   Phase = "explore"
	PhaseResult    Phase = "result"
)

// PauseReason names why a phase clock is currently paused.
type PauseReason string

const (
	PauseNone       PauseReason = "none"
	PauseDisconnect PauseReason = "disconnect"
)

// ClockEvent is what Tick yields when a boundary is crossed.
type ClockEvent int

const (
	EventNone ClockEvent = iota
	EventPhaseExpired
	EventPauseTimeout
)

// PhaseClock is the monotonic phase scheduler for one room. It never
// reads wall-clock time itself — every operation takes `now` so the
// simulator and tests can drive it with an injected clock.
type PhaseClock struct {
	Phase          Phase
	PhaseEndsAt    time.Time
	HasDeadline    bool
	Paused         bool
	PauseReason    PauseReason
	PauseExpiresAt time.Time
	PausePhase     Phase
	RemainderAtPause time.Duration
}

// NewPhaseClock returns a clock parked in lobby with no deadline.
func NewPhaseClock() *PhaseClock {
	return &PhaseClock{Phase: PhaseLobby, PauseReason: PauseNone}
}

// Enter sets phase and phaseEndsAt = now + duration, clearing any pause
// state. A zero duration means an open-ended phase (no deadline).
// Idempotent if already in `phase` with a non-past deadline and not
// paused.
func (c *PhaseClock) Enter(phase Phase, duration time.Duration, now time.Time) {
	if c.Phase == phase && c.HasDeadline && !now.After(c.PhaseEndsAt) && !c.Paused {
		return
	}
	c.Phase = phase
	c.Paused = false
	c.PauseReason = PauseNone
	c.PauseExpiresAt = time.Time{}
	c.PausePhase = ""
	c.RemainderAtPause = 0

	if duration > 0 {
		c.PhaseEndsAt = now.Add(duration)
		c.HasDeadline = true
	} else {
		c.PhaseEndsAt = time.Time{}
		c.HasDeadline = false
	}
}

// Tick evaluates the clock against `now` and returns the event that
// fired, if any. Pause timeout takes priority over phase expiry.
func (c *PhaseClock) Tick(now time.Time) ClockEvent {
	if c.Paused {
		if !now.Before(c.PauseExpiresAt) {
			return EventPauseTimeout
		}
		return EventNone
	}
	if c.HasDeadline && !now.Before(c.PhaseEndsAt) {
		return EventPhaseExpired
	}
	return EventNone
}

// Pause halts the clock, capturing the remaining duration so resume
// can restore it without cumulative drift. No-op if already paused.
func (c *PhaseClock) Pause(reason PauseReason, grace time.Duration, now time.Time) {
	if c.Paused {
		return
	}
	if c.HasDeadline {
		c.RemainderAtPause = c.PhaseEndsAt.Sub(now)
	} else {
		c.RemainderAtPause = 0
	}
	c.Paused = true
	c.PauseExpiresAt = now.Add(grace)
	c.PausePhase = c.Phase
	c.PauseReason = reason
}

// Resume restores phaseEndsAt from the captured remainder and clears
// pause state. No-op if not paused.
func (c *PhaseClock) Resume(now time.Time) {
	if !c.Paused {
		return
	}
	if c.HasDeadline {
		c.PhaseEndsAt = now.Add(c.RemainderAtPause)
	}
	c.Paused = false
	c.PauseReason = PauseNone
	c.PauseExpiresAt = time.Time{}
	c.PausePhase = ""
	c.RemainderAtPause = 0
}

// RemainingMs returns milliseconds until phaseEndsAt (or pauseExpiresAt
// while paused), for telemetry. Returns 0 when there is no deadline.
func (c *PhaseClock) RemainingMs(now time.Time) int64 {
	if c.Paused {
		d := c.PauseExpiresAt.Sub(now)
		if d < 0 {
			d = 0
		}
		return d.Milliseconds()
	}
	if !c.HasDeadline {
		return 0
	}
	d := c.PhaseEndsAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d.Milliseconds()
}
