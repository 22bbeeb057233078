package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhaseClockEnterSetsDeadline(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhaseCountdown, 3*time.Second, now)

	assert.Equal(t, PhaseCountdown, c.Phase)
	assert.True(t, c.HasDeadline)
	assert.Equal(t, now.Add(3*time.Second), c.PhaseEndsAt)
}

func TestPhaseClockOpenEndedPhaseHasNoDeadline(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhaseResult, 0, now)

	assert.False(t, c.HasDeadline)
	assert.Equal(t, EventNone, c.Tick(now.Add(time.Hour)))
}

func TestPhaseClockTickFiresExpiredExactlyAtDeadline(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhaseCountdown, 3*time.Second, now)

	assert.Equal(t, EventNone, c.Tick(now.Add(2999*time.Millisecond)))
	assert.Equal(t, EventPhaseExpired, c.Tick(now.Add(3*time.Second)))
}

func TestPhaseClockPauseResumePreservesRemainder(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhasePrep, 60*time.Second, now)

	pauseAt := now.Add(10 * time.Second)
	c.Pause(PauseDisconnect, 60*time.Second, pauseAt)
	assert.True(t, c.Paused)
	assert.Equal(t, 50*time.Second, c.RemainderAtPause)

	resumeAt := pauseAt.Add(5 * time.Second)
	c.Resume(resumeAt)
	assert.False(t, c.Paused)
	assert.Equal(t, resumeAt.Add(50*time.Second), c.PhaseEndsAt)
}

func TestPhaseClockResumeIsNoOpWhenNotPaused(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhasePrep, 60*time.Second, now)
	before := c.PhaseEndsAt

	c.Resume(now.Add(time.Second))
	assert.Equal(t, before, c.PhaseEndsAt)
}

func TestPhaseClockPauseIsNoOpWhenAlreadyPaused(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhasePrep, 60*time.Second, now)

	c.Pause(PauseDisconnect, 60*time.Second, now.Add(10*time.Second))
	firstExpiry := c.PauseExpiresAt

	c.Pause(PauseDisconnect, 60*time.Second, now.Add(20*time.Second))
	assert.Equal(t, firstExpiry, c.PauseExpiresAt)
}

func TestPhaseClockPauseTimeoutEvent(t *testing.T) {
	now := time.Now()
	c := NewPhaseClock()
	c.Enter(PhaseExplore, 300*time.Second, now)
	c.Pause(PauseDisconnect, 60*time.Second, now)

	assert.Equal(t, EventNone, c.Tick(now.Add(59*time.Second)))
	assert.Equal(t, EventPauseTimeout, c.Tick(now.Add(60*time.Second)))
}
