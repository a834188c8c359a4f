// Package report writes a JSON record of one capture run.
//
// The report file is rewritten after every attempt so a run that is killed
// midway still leaves a readable record of the attempts made so far.
package report

import (
	"time"

	"github.com/devicelab-dev/otpcap/pkg/capture"
	"github.com/devicelab-dev/otpcap/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the run status.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Report is the whole run record.
type Report struct {
	Version     string     `json:"version"`
	RunID       string     `json:"runId"`
	UpdateSeq   uint64     `json:"updateSeq"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	LastUpdated time.Time  `json:"lastUpdated"`

	Device   Device   `json:"device"`
	Profile  Profile  `json:"profile"`
	Settings Settings `json:"settings"`

	Attempts []capture.Attempt `json:"attempts"`
	Result   *Result           `json:"result,omitempty"`
	Delivery *Delivery         `json:"delivery,omitempty"`
	Error    *Error            `json:"error,omitempty"`

	// Screenshot taken when the attempts ran out.
	Screenshot string `json:"screenshot,omitempty"`
}

// Device identifies the device the run used.
type Device struct {
	Serial string `json:"serial"`
	Locale string `json:"locale,omitempty"`
}

// Profile describes the extraction profile.
type Profile struct {
	Name      string `json:"name"`
	Policy    string `json:"policy"`
	Deviation string `json:"deviation,omitempty"`
}

// Settings are the loop parameters.
type Settings struct {
	MaxAttempts int      `json:"maxAttempts"`
	DelayMs     int64    `json:"delayMs"`
	Sources     []string `json:"sources"`
}

// Result summarizes the capture loop.
type Result struct {
	Found     bool   `json:"found"`
	Passcode  string `json:"passcode,omitempty"`
	Rule      string `json:"rule,omitempty"`
	Source    string `json:"source,omitempty"`
	Attempts  int    `json:"attempts"`
	Delays    int    `json:"delays"`
	ElapsedMs int64  `json:"elapsedMs"`
}

// Delivery records the delivery step.
type Delivery struct {
	Target    string      `json:"target,omitempty"` // locator that resolved
	Position  *core.Point `json:"position,omitempty"`
	Submitted bool        `json:"submitted"`
	Delivered bool        `json:"delivered"`
	Stage     string      `json:"stage,omitempty"` // failing stage
}

// Error is a serialized core.ExecutionError.
type Error struct {
	Category string                 `json:"category"`
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Terminal bool                   `json:"terminal"` // false for retried acquisition errors
	Details  map[string]interface{} `json:"details,omitempty"`
}
