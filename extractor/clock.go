package extractor

import "time"

// Clock is the engine's only source of time. Every pause in the engine is a
// Sleep on this clock so tests can run the full retry policy instantly.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// waitUntil polls cond every interval until it holds or timeout elapses.
// cond is always evaluated at least once.
func waitUntil(c Clock, timeout, interval time.Duration, cond func() bool) bool {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := c.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if !c.Now().Before(deadline) {
			return false
		}
		c.Sleep(interval)
	}
}
