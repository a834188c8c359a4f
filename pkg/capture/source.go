// Package capture runs the OTP capture loop: acquire a text dump, extract a
// passcode, retry on a fixed interval, then deliver the passcode to an input.
package capture

import "time"

// Source acquires a fresh text snapshot of the UI.
type Source interface {
	Name() string
	Dump() (string, error)
}

type funcSource struct {
	name string
	fn   func() (string, error)
}

func (s funcSource) Name() string          { return s.name }
func (s funcSource) Dump() (string, error) { return s.fn() }

// NewSource adapts a function to a Source.
func NewSource(name string, fn func() (string, error)) Source {
	return funcSource{name: name, fn: fn}
}

// Clock provides time and the inter-attempt sleep.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }
