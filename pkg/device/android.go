// Package device drives an Android device through the adb CLI: text dumps of
// the current screen, taps, key events and text input.
package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
	"github.com/devicelab-dev/otpcap/pkg/wait"
)

// Runner executes a host command. It is swapped out in tests.
type Runner interface {
	Run(name string, args ...string) (stdout []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("%w: %s", err, errMsg)
	}
	return stdout.Bytes(), nil
}

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial  string
	adbPath string
	runner  Runner
	clock   wait.Clock
	// settle is slept after taps and key events so the UI can catch up.
	settle time.Duration
}

// Option configures an AndroidDevice.
type Option func(*AndroidDevice)

// WithADBPath uses an explicit adb binary instead of searching PATH.
func WithADBPath(path string) Option {
	return func(d *AndroidDevice) { d.adbPath = path }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(d *AndroidDevice) { d.runner = r }
}

// WithClock replaces the clock used for settle delays and waits.
func WithClock(c wait.Clock) Option {
	return func(d *AndroidDevice) { d.clock = c }
}

// WithSettle sets the pause after each input action.
func WithSettle(dur time.Duration) Option {
	return func(d *AndroidDevice) { d.settle = dur }
}

// ConnectedDevice represents a device found via ADB.
type ConnectedDevice struct {
	Serial string
	State  string // "device", "offline", "unauthorized"
	Type   string // "emulator" or "device"
}

type sleepClock struct{}

func (sleepClock) Now() time.Time        { return time.Now() }
func (sleepClock) Sleep(d time.Duration) { time.Sleep(d) }

// New creates an AndroidDevice for the given serial.
// If serial is empty, it auto-detects the first connected device.
func New(serial string, opts ...Option) (*AndroidDevice, error) {
	d := &AndroidDevice{
		serial: serial,
		runner: execRunner{},
		clock:  sleepClock{},
		settle: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.adbPath == "" {
		path, err := findADB()
		if err != nil {
			return nil, err
		}
		d.adbPath = path
	}

	if d.serial == "" {
		devices, err := d.listDevices()
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		for _, cd := range devices {
			if cd.State == "device" {
				d.serial = cd.Serial
				break
			}
		}
		if d.serial == "" {
			return nil, core.ErrDeviceNotFound
		}
		logger.Info("Auto-detected device %s", d.serial)
	}

	if err := d.waitForDevice(5 * time.Second); err != nil {
		return nil, core.ErrDeviceNotFound.WithCause(err).
			WithMessage(fmt.Sprintf("device %s not found", d.serial))
	}

	return d, nil
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(args ...string) (string, error) {
	out, err := d.adb(append([]string{"shell"}, args...)...)
	return string(out), err
}

// ListDevices returns all devices known to the adb server.
func (d *AndroidDevice) ListDevices() ([]ConnectedDevice, error) {
	return d.listDevices()
}

func (d *AndroidDevice) listDevices() ([]ConnectedDevice, error) {
	out, err := d.runner.Run(d.adbPath, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	return parseDeviceList(string(out)), nil
}

// ListDevices returns all connected Android devices using adb from PATH.
func ListDevices() ([]ConnectedDevice, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}
	d := &AndroidDevice{adbPath: adbPath, runner: execRunner{}}
	return d.listDevices()
}

// parseDeviceList parses output of "adb devices".
func parseDeviceList(output string) []ConnectedDevice {
	var devices []ConnectedDevice
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		cd := ConnectedDevice{Serial: parts[0], State: parts[1], Type: "device"}
		// Emulators have serial like "emulator-5554"
		if strings.HasPrefix(cd.Serial, "emulator-") {
			cd.Type = "emulator"
		}
		devices = append(devices, cd)
	}
	return devices
}

// adb executes an ADB command against this device.
func (d *AndroidDevice) adb(args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	out, err := d.runner.Run(d.adbPath, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// waitForDevice polls "adb get-state" until the device reports "device".
func (d *AndroidDevice) waitForDevice(timeout time.Duration) error {
	interval := 500 * time.Millisecond
	attempts := int(timeout/interval) + 1
	return wait.Until(func() (bool, error) {
		out, err := d.adb("get-state")
		if err != nil {
			return false, err
		}
		return strings.TrimSpace(string(out)) == "device", nil
	}, wait.Fixed(interval, attempts), d.clock)
}

func (d *AndroidDevice) pause() {
	if d.settle > 0 {
		d.clock.Sleep(d.settle)
	}
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", core.ErrDeviceNotFound.WithMessage("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
