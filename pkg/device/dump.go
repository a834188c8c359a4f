package device

import (
	"errors"
	"strings"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/logger"
)

// Location of the uiautomator dump on the device.
const DumpPath = "/sdcard/window_dump.xml"

// Source names accepted by SourceByName.
const (
	SourceUI            = "ui"
	SourceAccessibility = "accessibility"
	SourceWindow        = "window"
	SourceProbe         = "probe"
)

// Hierarchy dumps and parses the current UI hierarchy.
func (d *AndroidDevice) Hierarchy() ([]*Element, string, error) {
	raw, err := d.UIDumpXML()
	if err != nil {
		return nil, "", err
	}
	elems, err := ParseHierarchy(raw)
	if err != nil {
		return nil, raw, err
	}
	return elems, raw, nil
}

// UIDumpXML runs "uiautomator dump" and reads back the XML.
func (d *AndroidDevice) UIDumpXML() (string, error) {
	out, err := d.Shell("uiautomator", "dump", DumpPath)
	if err != nil {
		return "", core.ErrAcquisition.WithCause(err)
	}
	if strings.Contains(strings.ToLower(out), "error") {
		return "", core.ErrAcquisition.WithCause(errors.New(strings.TrimSpace(out)))
	}
	xml, err := d.Shell("cat", DumpPath)
	if err != nil {
		return "", core.ErrAcquisition.WithCause(err)
	}
	return xml, nil
}

// UIText returns the text and content-desc values of the current screen.
func (d *AndroidDevice) UIText() (string, error) {
	elems, raw, err := d.Hierarchy()
	if err != nil {
		if raw == "" {
			return "", err
		}
		// Fall back to attribute scanning when the XML is truncated.
		logger.Debug("hierarchy parse failed, scanning attributes: %v", err)
		return AttributeText(raw, "text", "content-desc"), nil
	}
	return ElementsText(elems), nil
}

// AccessibilityText returns text found in "dumpsys accessibility".
func (d *AndroidDevice) AccessibilityText() (string, error) {
	out, err := d.Shell("dumpsys", "accessibility")
	if err != nil {
		return "", core.ErrAcquisition.WithCause(err)
	}
	return AttributeText(out, "text", "content-desc"), nil
}

// WindowText returns text and window titles found in "dumpsys window windows".
func (d *AndroidDevice) WindowText() (string, error) {
	out, err := d.Shell("dumpsys", "window", "windows")
	if err != nil {
		return "", core.ErrAcquisition.WithCause(err)
	}
	return AttributeText(out, "text", "title"), nil
}

// TextSource adapts one of the device dumps to capture.Source.
type TextSource struct {
	name string
	fn   func() (string, error)
}

func (s *TextSource) Name() string          { return s.name }
func (s *TextSource) Dump() (string, error) { return s.fn() }

// UISource reads the uiautomator hierarchy.
func (d *AndroidDevice) UISource() *TextSource {
	return &TextSource{name: SourceUI, fn: d.UIText}
}

// AccessibilitySource reads the accessibility service dump.
func (d *AndroidDevice) AccessibilitySource() *TextSource {
	return &TextSource{name: SourceAccessibility, fn: d.AccessibilityText}
}

// WindowSource reads the window manager dump.
func (d *AndroidDevice) WindowSource() *TextSource {
	return &TextSource{name: SourceWindow, fn: d.WindowText}
}

// ProbeSource taps each position in turn and reads the hierarchy after every
// tap. Some apps only render the code once a field is touched.
func (d *AndroidDevice) ProbeSource(positions []core.Point) *TextSource {
	return &TextSource{name: SourceProbe, fn: func() (string, error) {
		var parts []string
		var lastErr error
		for _, p := range positions {
			if err := d.Tap(p.X, p.Y); err != nil {
				lastErr = err
				continue
			}
			text, err := d.UIText()
			if err != nil {
				lastErr = err
				continue
			}
			parts = append(parts, text)
		}
		if len(parts) == 0 && lastErr != nil {
			return "", lastErr
		}
		return strings.Join(parts, "\n"), nil
	}}
}

// SourceByName returns the named source. Probe needs positions.
func (d *AndroidDevice) SourceByName(name string, probe []core.Point) (*TextSource, error) {
	switch strings.ToLower(name) {
	case SourceUI:
		return d.UISource(), nil
	case SourceAccessibility:
		return d.AccessibilitySource(), nil
	case SourceWindow:
		return d.WindowSource(), nil
	case SourceProbe:
		if len(probe) == 0 {
			return nil, core.ErrInvalidConfig.WithMessage("probe source needs at least one position")
		}
		return d.ProbeSource(probe), nil
	}
	return nil, core.ErrInvalidConfig.WithMessage("unknown text source " + name)
}
