package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/locate"
	"github.com/devicelab-dev/otpcap/pkg/logger"
)

// Key codes used by the capture workflow.
const (
	KeyEnter = "KEYCODE_ENTER"
	KeyCtrlA = "KEYCODE_CTRL_A"
	KeyDel   = "KEYCODE_DEL"
)

// Tap taps the screen at (x, y).
func (d *AndroidDevice) Tap(x, y int) error {
	logger.Debug("tap (%d, %d)", x, y)
	if _, err := d.Shell("input", "tap", strconv.Itoa(x), strconv.Itoa(y)); err != nil {
		return err
	}
	d.pause()
	return nil
}

// KeyEvent sends a key event such as KEYCODE_ENTER.
func (d *AndroidDevice) KeyEvent(code string) error {
	if _, err := d.Shell("input", "keyevent", code); err != nil {
		return err
	}
	d.pause()
	return nil
}

// ClearField selects all text in the focused field and deletes it.
func (d *AndroidDevice) ClearField() error {
	if err := d.KeyEvent(KeyCtrlA); err != nil {
		return err
	}
	return d.KeyEvent(KeyDel)
}

// InputText types text into the focused field.
func (d *AndroidDevice) InputText(text string) error {
	if text == "" {
		return nil
	}
	if _, err := d.Shell("input", "text", escapeInputText(text)); err != nil {
		return err
	}
	d.pause()
	return nil
}

// escapeInputText escapes text for "input text", which runs under the device
// shell and treats %s as a space.
func escapeInputText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ':
			b.WriteString("%s")
		case strings.ContainsRune(`()<>|;&*\~"'$`+"`", r):
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Screenshot writes a PNG of the current screen to path.
func (d *AndroidDevice) Screenshot(path string) error {
	png, err := d.adb("exec-out", "screencap", "-p")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, png, 0644)
}

// ForceStop stops an application package.
func (d *AndroidDevice) ForceStop(pkg string) error {
	_, err := d.Shell("am", "force-stop", pkg)
	return err
}

// LaunchActivity starts an activity given as "package/.Activity".
func (d *AndroidDevice) LaunchActivity(component string) error {
	out, err := d.Shell("am", "start", "-n", component)
	if err != nil {
		return err
	}
	if strings.Contains(out, "Error:") {
		return fmt.Errorf("am start %s: %s", component, strings.TrimSpace(out))
	}
	return nil
}

// Resolve finds a screen position for the first locator that matches the
// current hierarchy. Coords locators resolve without a dump.
func (d *AndroidDevice) Resolve(locs []locate.Locator) (core.Point, locate.Locator, error) {
	var elems []*Element
	var dumpErr error
	dumped := false

	return locate.FirstMatch(locs, func(l locate.Locator) (core.Point, error) {
		if l.Kind == locate.KindCoords {
			return l.Point()
		}
		if !dumped {
			elems, _, dumpErr = d.Hierarchy()
			dumped = true
		}
		if dumpErr != nil {
			return core.Point{}, dumpErr
		}
		e, ok := MatchLocator(elems, l)
		if !ok {
			return core.Point{}, fmt.Errorf("%s not on screen", l)
		}
		if !e.Enabled {
			return core.Point{}, fmt.Errorf("%s is disabled", l)
		}
		if e.Bounds.IsEmpty() {
			return core.Point{}, fmt.Errorf("%s has no bounds", l)
		}
		x, y := e.Bounds.Center()
		return core.Point{X: x, Y: y}, nil
	})
}

// InputTarget is a text field on the device. It implements capture.Target.
type InputTarget struct {
	Device *AndroidDevice
	// Locators are resolved in order on Focus.
	Locators  []locate.Locator
	SubmitKey string

	resolved core.Point
	via      locate.Locator
}

// Focus resolves the target and taps it.
func (t *InputTarget) Focus() error {
	p, l, err := t.Device.Resolve(t.Locators)
	if err != nil {
		return err
	}
	t.resolved = p
	t.via = l
	logger.Info("OTP input resolved via %s at %s", l, p)
	return t.Device.Tap(p.X, p.Y)
}

// Clear removes any existing content.
func (t *InputTarget) Clear() error {
	return t.Device.ClearField()
}

// Write types the passcode.
func (t *InputTarget) Write(text string) error {
	return t.Device.InputText(text)
}

// Submit sends the submit key, KEYCODE_ENTER by default.
func (t *InputTarget) Submit() error {
	key := t.SubmitKey
	if key == "" {
		key = KeyEnter
	}
	return t.Device.KeyEvent(key)
}

// Position returns where the target was tapped.
func (t *InputTarget) Position() core.Point {
	return t.resolved
}

// Via returns the locator that resolved the target, or the zero Locator
// before Focus succeeds.
func (t *InputTarget) Via() locate.Locator {
	return t.via
}
