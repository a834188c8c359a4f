// Package wait replaces unconditional sleeps with explicit wait-for-condition
// polling under a fixed or exponential backoff policy.
package wait

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/devicelab-dev/otpcap/pkg/core"
)

// Clock provides time and sleep. capture.Clock satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Condition reports whether the awaited state has been reached. A non-nil
// error counts as "not yet" and is kept as the cause of a timeout.
type Condition func() (bool, error)

// Policy bounds a wait. At least one of MaxAttempts or Timeout must be set.
type Policy struct {
	// Interval is the fixed poll interval, or the first interval when
	// Exponential is set.
	Interval    time.Duration
	Exponential bool
	Multiplier  float64       // exponential growth factor, default 2
	MaxInterval time.Duration // exponential interval cap, default 30s
	MaxAttempts int           // condition evaluations, 0 = unlimited
	Timeout     time.Duration // total wait, 0 = unlimited
}

// Fixed polls every interval, at most attempts times.
func Fixed(interval time.Duration, attempts int) Policy {
	return Policy{Interval: interval, MaxAttempts: attempts}
}

// Exponential doubles the interval from initial up to max until timeout.
func Exponential(initial, max, timeout time.Duration) Policy {
	return Policy{Interval: initial, Exponential: true, Multiplier: 2, MaxInterval: max, Timeout: timeout}
}

// Validate checks that the policy terminates.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 && p.Timeout <= 0 {
		return core.ErrInvalidConfig.WithMessage("wait: policy needs max attempts or a timeout")
	}
	if p.Interval < 0 || p.MaxInterval < 0 || p.Timeout < 0 {
		return core.ErrInvalidConfig.WithMessage("wait: durations must not be negative")
	}
	if p.Exponential && p.Multiplier != 0 && p.Multiplier < 1 {
		return core.ErrInvalidConfig.WithMessage("wait: multiplier must be at least 1")
	}
	return nil
}

func (p Policy) backOff(clock Clock) backoff.BackOff {
	var b backoff.BackOff
	if p.Exponential {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = p.Interval
		eb.RandomizationFactor = 0
		eb.Multiplier = 2
		if p.Multiplier > 0 {
			eb.Multiplier = p.Multiplier
		}
		eb.MaxInterval = 30 * time.Second
		if p.MaxInterval > 0 {
			eb.MaxInterval = p.MaxInterval
		}
		eb.MaxElapsedTime = p.Timeout
		eb.Clock = clock
		b = eb
	} else {
		b = backoff.NewConstantBackOff(p.Interval)
	}
	// WithMaxRetries treats 0 as unlimited; a single attempt is handled by Until.
	if p.MaxAttempts > 1 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// Until evaluates cond until it returns true or the policy is exhausted. A
// nil clock means the wall clock. The last condition error is wrapped in an
// error matching core.ErrWaitTimeout.
func Until(cond Condition, p Policy, clock Clock) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if clock == nil {
		clock = realClock{}
	}

	b := p.backOff(clock)
	b.Reset()
	start := clock.Now()
	attempts := 0
	var lastErr error

	for {
		attempts++
		ok, err := cond()
		if ok && err == nil {
			return nil
		}
		lastErr = err
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			break
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			break
		}
		if p.Timeout > 0 && clock.Now().Add(next).Sub(start) > p.Timeout {
			break
		}
		clock.Sleep(next)
	}

	elapsed := clock.Now().Sub(start)
	return core.ErrWaitTimeout.WithCause(lastErr).WithDetails(map[string]interface{}{
		"attempts": attempts,
		"elapsed":  elapsed.String(),
	}).WithMessage(fmt.Sprintf("condition not met after %d checks in %v", attempts, elapsed))
}
