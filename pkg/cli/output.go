package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/otpcap/pkg/capture"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printAttempt(w io.Writer, a capture.Attempt, max int) {
	mark, c := "·", colorDim
	switch a.Outcome {
	case capture.OutcomeFound:
		mark, c = "✓", colorGreen
	case capture.OutcomeNoText:
		mark, c = "✗", colorYellow
	}
	line := fmt.Sprintf("  %s%s%s attempt %d/%d: %s", color(c), mark, color(colorReset), a.Index, max, a.Outcome)
	if a.Source != "" {
		line += fmt.Sprintf(" %s(%s)%s", color(colorDim), a.Source, color(colorReset))
	}
	if len(a.Errors) > 0 {
		line += fmt.Sprintf(" %s%s%s", color(colorDim), strings.Join(a.Errors, "; "), color(colorReset))
	}
	fmt.Fprintln(w, line)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintf(w, "\n  %s%s%s\n", color(colorBold), title, color(colorReset))
	fmt.Fprintln(w, strings.Repeat("─", 60))
}

func printField(w io.Writer, name, value string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", color(colorCyan), name, color(colorReset), value)
}

func printFailure(w io.Writer, msg string) {
	fmt.Fprintf(w, "\n  %s✗ %s%s\n", color(colorRed), msg, color(colorReset))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "\n  %s✓ %s%s\n", color(colorGreen), msg, color(colorReset))
}

// formatDuration formats milliseconds to human readable
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
