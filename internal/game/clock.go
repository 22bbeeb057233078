package game

import "time"

// Clock is a monotonic time source. Production code uses RealClock;
// tests inject a fake so the simulator and phase clock are driven
// deterministically (design requirement: stepwise, injected clock).
type Clock interface {
	Now() time.Time
}

// RealClock backs Clock with the wall clock.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }
