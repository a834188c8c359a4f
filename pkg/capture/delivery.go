package capture

import (
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
)

// Target is an input location on the device under automation.
type Target interface {
	Focus() error
	Clear() error
	Write(text string) error
	Submit() error
}

// Delivery writes a passcode into a Target. It never retries; the caller
// owns any retry policy.
type Delivery struct {
	Target Target
	// Submit triggers Target.Submit after a successful write.
	Submit bool
}

// Deliver focuses the target, clears it, writes the passcode and optionally
// submits. A failure at any stage returns an error matching core.ErrDelivery
// with a "stage" detail, and later stages are not run.
func (d *Delivery) Deliver(passcode string) error {
	if passcode == "" {
		return deliveryError("input", nil).WithMessage("no passcode to deliver")
	}
	if d.Target == nil {
		return deliveryError("input", nil).WithMessage("no delivery target")
	}

	if err := d.Target.Focus(); err != nil {
		return deliveryError("focus", err)
	}
	if err := d.Target.Clear(); err != nil {
		return deliveryError("clear", err)
	}
	if err := d.Target.Write(passcode); err != nil {
		return deliveryError("write", err)
	}
	logger.Info("OTP written to target")

	if d.Submit {
		if err := d.Target.Submit(); err != nil {
			return deliveryError("submit", err)
		}
		logger.Info("OTP submitted")
	}
	return nil
}

func deliveryError(stage string, cause error) *core.ExecutionError {
	logger.Error("OTP delivery failed at %s: %v", stage, cause)
	return core.ErrDelivery.WithCause(cause).WithDetails(map[string]interface{}{"stage": stage})
}

// Capture runs the scheduler and, when a passcode is found and d is not nil,
// delivers it.
func Capture(s *Scheduler, d *Delivery) (*Result, error) {
	res, err := s.Run()
	if err != nil {
		return res, err
	}
	if d == nil {
		return res, nil
	}
	if err := d.Deliver(res.Passcode.Value); err != nil {
		return res, err
	}
	res.Delivered = true
	return res, nil
}
