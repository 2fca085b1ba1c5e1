// Package clock provides an injectable time source so that scan windows and
// frame pacing can be driven deterministically in tests.
//
// Production code holds a Clock field initialised with Real(). Tests use
// Fake(start) and move time forward with Advance.
package clock

import "time"

// Clock abstracts the time operations used by the scanner.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks on C. Call Stop to release it.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
