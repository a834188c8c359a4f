package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/otpcap/pkg/capture"
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
	"github.com/devicelab-dev/otpcap/pkg/otp"
)

// Options describe the run being recorded.
type Options struct {
	OutputDir   string
	Serial      string
	Locale      string
	Profile     *otp.Profile
	MaxAttempts int
	Delay       time.Duration
	Sources     []string
	// Now overrides the wall clock.
	Now func() time.Time
}

// Writer owns one report file and rewrites it on every update.
type Writer struct {
	mu     sync.Mutex
	path   string
	report *Report
	now    func() time.Time
	err    error
}

// NewWriter creates a pending report with a fresh run ID. Nothing is written
// until Start.
func NewWriter(opts Options) *Writer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	start := now()
	runID := uuid.New().String()

	r := &Report{
		Version:     Version,
		RunID:       runID,
		Status:      StatusPending,
		StartTime:   start,
		LastUpdated: start,
		Device:      Device{Serial: opts.Serial, Locale: opts.Locale},
		Settings: Settings{
			MaxAttempts: opts.MaxAttempts,
			DelayMs:     opts.Delay.Milliseconds(),
			Sources:     opts.Sources,
		},
		Attempts: []capture.Attempt{},
	}
	if p := opts.Profile; p != nil {
		r.Profile = Profile{Name: p.Name, Policy: p.Policy.String(), Deviation: p.Deviation}
	}

	name := fmt.Sprintf("otpcap-%s-%s.json", start.Format("20060102-150405"), runID[:8])
	return &Writer{
		path:   filepath.Join(opts.OutputDir, name),
		report: r,
		now:    now,
	}
}

// Path returns the report file path.
func (w *Writer) Path() string {
	return w.path
}

// RunID returns the run identifier.
func (w *Writer) RunID() string {
	return w.report.RunID
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Start marks the run as started.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.report.Status = StatusRunning
	w.report.StartTime = now
	w.flushLocked()
}

// Attempt records a finished attempt. It can be used as Scheduler.OnAttempt.
func (w *Writer) Attempt(a capture.Attempt) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.report.Attempts = append(w.report.Attempts, a)
	w.flushLocked()
}

// SetScreenshot records the exhaustion screenshot.
func (w *Writer) SetScreenshot(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.report.Screenshot = path
}

// Finish records the outcome and writes the final report. Either res or
// runErr may be nil.
func (w *Writer) Finish(res *capture.Result, del *Delivery, runErr error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	end := w.now()
	w.report.EndTime = &end
	if res != nil {
		w.report.Result = &Result{
			Found:     res.Found,
			Attempts:  len(res.Attempts),
			Delays:    res.Delays,
			ElapsedMs: res.Elapsed.Milliseconds(),
		}
		if res.Found {
			w.report.Result.Passcode = res.Passcode.Value
			w.report.Result.Rule = res.Passcode.Rule
			w.report.Result.Source = res.Last().Source
		}
	}
	w.report.Delivery = del
	w.report.Error = ErrorFrom(runErr)

	w.report.Status = StatusFailed
	if runErr == nil && res != nil && res.Found {
		w.report.Status = StatusPassed
	}
	w.flushLocked()
	return w.err
}

// Snapshot returns a copy of the current report.
func (w *Writer) Snapshot() Report {
	w.mu.Lock()
	defer w.mu.Unlock()

	r := *w.report
	r.Attempts = append([]capture.Attempt(nil), w.report.Attempts...)
	return r
}

func (w *Writer) flushLocked() {
	w.report.UpdateSeq++
	w.report.LastUpdated = w.now()
	if err := atomicWriteJSON(w.path, w.report); err != nil {
		logger.Error("write report %s: %v", w.path, err)
		if w.err == nil {
			w.err = err
		}
	}
}

// ErrorFrom converts err for the report. Errors outside the taxonomy are
// reported with category "unknown".
func ErrorFrom(err error) *Error {
	if err == nil {
		return nil
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		return &Error{
			Category: ee.Category.String(),
			Code:     ee.Code,
			Message:  err.Error(),
			Terminal: ee.Category.IsTerminal(),
			Details:  ee.Details,
		}
	}
	return &Error{Category: "unknown", Code: "error", Message: err.Error(), Terminal: true}
}

// DeliveryFrom builds the delivery record for a finished run.
func DeliveryFrom(res *capture.Result, submit bool, target string, pos *core.Point, runErr error) *Delivery {
	if res == nil || !res.Found {
		return nil
	}
	d := &Delivery{Target: target, Position: pos, Delivered: res.Delivered}
	d.Submitted = submit && res.Delivered
	var ee *core.ExecutionError
	if errors.As(runErr, &ee) && errors.Is(ee, core.ErrDelivery) {
		if stage, ok := ee.Detail("stage").(string); ok {
			d.Stage = stage
		}
	}
	return d
}
