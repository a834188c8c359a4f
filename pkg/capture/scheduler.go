package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
	"github.com/devicelab-dev/otpcap/pkg/otp"
)

// Defaults used by the source scripts.
const (
	DefaultMaxAttempts = 15
	DefaultDelay       = 2 * time.Second
	MaxAttemptsCeiling = 100
)

// Outcome of a single attempt.
type Outcome int

const (
	OutcomeNoText      Outcome = iota // every source failed or returned empty text
	OutcomeNoCandidate                // text was read but nothing survived extraction
	OutcomeFound                      // a passcode was selected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoText:
		return "no text"
	case OutcomeNoCandidate:
		return "no candidate"
	case OutcomeFound:
		return "found"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	for _, v := range []Outcome{OutcomeNoText, OutcomeNoCandidate, OutcomeFound} {
		if v.String() == string(text) {
			*o = v
			return nil
		}
	}
	return fmt.Errorf("unknown attempt outcome %q", text)
}

// Attempt is one iteration of the loop.
type Attempt struct {
	Index    int           `json:"index"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  Outcome       `json:"outcome"`
	Source   string        `json:"source,omitempty"` // source that produced the passcode
	// Errors holds absorbed acquisition failures, one per failing source.
	Errors []string `json:"errors,omitempty"`
}

// Result is the terminal outcome of one Run.
type Result struct {
	Found     bool          `json:"found"`
	Passcode  otp.Candidate `json:"passcode"`
	Attempts  []Attempt     `json:"attempts"`
	Delays    int           `json:"delays"`
	Elapsed   time.Duration `json:"elapsed"`
	Delivered bool          `json:"delivered"`
}

// Last returns the final attempt.
func (r *Result) Last() Attempt {
	if len(r.Attempts) == 0 {
		return Attempt{}
	}
	return r.Attempts[len(r.Attempts)-1]
}

// Scheduler repeats dump acquisition and extraction until a passcode is
// found or MaxAttempts is reached. Attempts are strictly sequential and the
// fixed Delay separates consecutive attempts; there is no trailing delay.
type Scheduler struct {
	Sources     []Source
	Extractor   *otp.Extractor
	MaxAttempts int
	Delay       time.Duration
	Clock       Clock

	// OnAttempt is called after every attempt.
	OnAttempt func(Attempt)
	// OnExhausted is called once before Run reports exhaustion.
	OnExhausted func(*Result)
}

func (s *Scheduler) validate() error {
	if len(s.Sources) == 0 {
		return core.ErrInvalidConfig.WithMessage("capture: at least one text source is required")
	}
	if s.MaxAttempts < 1 || s.MaxAttempts > MaxAttemptsCeiling {
		return core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("capture: max attempts must be between 1 and %d, got %d", MaxAttemptsCeiling, s.MaxAttempts))
	}
	if s.Delay < 0 {
		return core.ErrInvalidConfig.WithMessage("capture: delay must not be negative")
	}
	return nil
}

// Run executes the loop. On exhaustion it returns the result together with
// an error matching core.ErrExhausted.
func (s *Scheduler) Run() (*Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	clock := s.Clock
	if clock == nil {
		clock = RealClock{}
	}
	extractor := s.Extractor
	if extractor == nil {
		var err error
		if extractor, err = otp.New(nil); err != nil {
			return nil, err
		}
	}

	res := &Result{}
	start := clock.Now()
	logger.Info("Monitoring for OTP (max %d attempts, %v delay, profile %s)",
		s.MaxAttempts, s.Delay, extractor.Profile().Name)

	for i := 1; i <= s.MaxAttempts; i++ {
		att, cand := s.attempt(i, clock, extractor)
		res.Attempts = append(res.Attempts, att)
		logger.Info("Attempt %d/%d: %s", i, s.MaxAttempts, att.Outcome)
		if s.OnAttempt != nil {
			s.OnAttempt(att)
		}

		if att.Outcome == OutcomeFound {
			res.Found = true
			res.Passcode = cand
			res.Elapsed = clock.Now().Sub(start)
			logger.Info("Selected OTP %s (rule %s, rank %d) from %s", cand.Value, cand.Rule, cand.Rank, att.Source)
			return res, nil
		}

		if i < s.MaxAttempts {
			clock.Sleep(s.Delay)
			res.Delays++
		}
	}

	res.Elapsed = clock.Now().Sub(start)
	logger.Warn("OTP not found after %d attempts", s.MaxAttempts)
	if s.OnExhausted != nil {
		s.OnExhausted(res)
	}
	return res, core.ErrExhausted.WithDetails(map[string]interface{}{
		"attempts": s.MaxAttempts,
		"elapsed":  res.Elapsed.String(),
	}).WithMessage(fmt.Sprintf("no passcode found after %d attempts", s.MaxAttempts))
}

// attempt tries each source in order and stops at the first passcode.
func (s *Scheduler) attempt(idx int, clock Clock, e *otp.Extractor) (Attempt, otp.Candidate) {
	att := Attempt{Index: idx, Started: clock.Now(), Outcome: OutcomeNoText}

	for _, src := range s.Sources {
		text, err := src.Dump()
		if err != nil {
			logger.Debug("%s: %v", src.Name(), err)
			att.Errors = append(att.Errors, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		att.Outcome = OutcomeNoCandidate
		logger.Debug("%s preview: %s", src.Name(), preview(text, 200))

		if cand, ok := e.Extract(text); ok {
			att.Outcome = OutcomeFound
			att.Source = src.Name()
			att.Duration = clock.Now().Sub(att.Started)
			return att, cand
		}
	}
	att.Duration = clock.Now().Sub(att.Started)
	return att, otp.Candidate{}
}

// preview collapses whitespace and cuts text to n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n]) + "..."
	}
	return text
}
