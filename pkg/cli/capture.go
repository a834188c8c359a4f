package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/otpcap/pkg/capture"
	"github.com/devicelab-dev/otpcap/pkg/config"
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/device"
	"github.com/devicelab-dev/otpcap/pkg/jsengine"
	"github.com/devicelab-dev/otpcap/pkg/logger"
	"github.com/devicelab-dev/otpcap/pkg/otp"
	"github.com/devicelab-dev/otpcap/pkg/report"
	"github.com/devicelab-dev/otpcap/pkg/wait"
)

var captureCommand = &cli.Command{
	Name:  "capture",
	Usage: "Watch the device screen for a passcode and type it into the input field",
	Description: `Poll the device text dumps until a passcode appears, then tap the first
target locator that resolves, clear it, type the passcode and press submit.
Without a target the passcode is only printed.

Locators are kind=value: id, text, contains, desc, hint or coords (x,y).

Examples:
  otpcap capture --target id=otp_input --target coords=540,1650
  otpcap capture --wait-for "Enter OTP" --source ui --source window
  otpcap capture --no-submit --output ./reports
  otpcap capture --launch com.bank.app/.LoginActivity --wait-for "Enter OTP"`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Extraction profile (see 'otpcap profiles')",
		},
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Attempt ceiling (1-100)",
		},
		&cli.DurationFlag{
			Name:  "delay",
			Usage: "Delay between attempts",
		},
		&cli.StringSliceFlag{
			Name:  "source",
			Usage: "Text source in priority order: ui, accessibility, window, probe (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "Input locator, tried in order (repeatable)",
		},
		&cli.BoolFlag{
			Name:  "no-submit",
			Usage: "Type the passcode without pressing the submit key",
		},
		&cli.StringFlag{
			Name:  "wait-for",
			Usage: "Text that must be on screen before the first attempt",
		},
		&cli.DurationFlag{
			Name:  "wait-timeout",
			Usage: "How long to wait for --wait-for (0 keeps capture.waitTimeout, default 30s)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Report directory",
		},
		&cli.StringFlag{
			Name:  "launch",
			Usage: "Force-stop and start package/.Activity before capturing",
		},
	},
	Action: runCapture,
}

// captureClock drives the retry loop and waits. Tests replace it.
var captureClock capture.Clock = capture.RealClock{}

// applyCaptureFlags overlays command flags on the loaded configuration.
func applyCaptureFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("profile") {
		cfg.Capture.Profile = c.String("profile")
	}
	if c.IsSet("max-attempts") {
		cfg.Capture.MaxAttempts = c.Int("max-attempts")
	}
	if c.IsSet("delay") {
		cfg.Capture.Delay = config.Duration(c.Duration("delay"))
	}
	if c.IsSet("source") {
		cfg.Capture.Sources = c.StringSlice("source")
	}
	if c.IsSet("target") {
		cfg.Delivery.Target = c.StringSlice("target")
	}
	if c.Bool("no-submit") {
		off := false
		cfg.Delivery.Submit = &off
	}
	if c.IsSet("wait-for") {
		cfg.Capture.WaitFor = c.String("wait-for")
	}
	if d := c.Duration("wait-timeout"); d != 0 {
		cfg.Capture.WaitTimeout = config.Duration(d)
	}
	if c.IsSet("output") {
		cfg.Paths.Output = c.String("output")
		cfg.Paths.Screenshots = filepath.Join(cfg.Paths.Output, "screenshots")
	}
	return cfg.Validate()
}

// filterVars are the globals a profile filter sees next to the candidate.
func filterVars(cfg *config.Config) map[string]interface{} {
	env := make(map[string]interface{}, len(cfg.Env))
	for k, v := range cfg.Env {
		env[k] = v
	}
	return map[string]interface{}{
		"locale": cfg.Locale,
		"device": cfg.Device,
		"env":    env,
	}
}

// buildExtractor creates the extractor for the profile, compiling its filter.
func buildExtractor(p *otp.Profile, cfg *config.Config) (*otp.Extractor, error) {
	var opts []otp.Option
	if p.Filter != "" {
		f, err := jsengine.Filter(p.Filter, filterVars(cfg))
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		opts = append(opts, otp.WithFilter(f))
	}
	return otp.New(p, opts...)
}

// relaunch force-stops the component's package and starts it again.
func relaunch(d *device.AndroidDevice, component string) error {
	pkg := component[:strings.Index(component, "/")]
	logger.Info("Restarting %s", component)
	if err := d.ForceStop(pkg); err != nil {
		return fmt.Errorf("force-stop %s: %w", pkg, err)
	}
	return d.LaunchActivity(component)
}

func buildSources(d *device.AndroidDevice, cfg *config.Config) ([]capture.Source, error) {
	sources := make([]capture.Source, 0, len(cfg.Capture.Sources))
	for _, name := range cfg.Capture.Sources {
		src, err := d.SourceByName(name, cfg.Capture.Probe)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// waitForText polls the hierarchy until text appears, backing off up to 5s
// between dumps.
func waitForText(d *device.AndroidDevice, text string, timeout time.Duration) error {
	want := strings.ToLower(text)
	logger.Info("Waiting up to %v for %q", timeout, text)
	return wait.Until(func() (bool, error) {
		screen, err := d.UIText()
		if err != nil {
			return false, err
		}
		return strings.Contains(strings.ToLower(screen), want), nil
	}, wait.Exponential(500*time.Millisecond, 5*time.Second, timeout), captureClock)
}

func runCapture(c *cli.Context) error {
	out := c.App.Writer

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyCaptureFlags(c, cfg); err != nil {
		return err
	}
	launch := c.String("launch")
	if launch != "" && strings.Index(launch, "/") < 1 {
		return core.ErrInvalidConfig.WithMessage(fmt.Sprintf("--launch %q: want package/.Activity", launch))
	}
	closeLog, err := initLogger(c)
	if err != nil {
		return err
	}
	defer closeLog()

	logger.Info("=== OTP capture started ===")
	logger.Info("Config: %+v", cfg.Redacted().Capture)

	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	extractor, err := buildExtractor(profile, cfg)
	if err != nil {
		return err
	}
	locs, err := cfg.Locators()
	if err != nil {
		return err
	}

	d, err := openDevice(cfg)
	if err != nil {
		return err
	}
	sources, err := buildSources(d, cfg)
	if err != nil {
		return err
	}

	printHeader(out, "otpcap "+Version)
	printField(out, "device", d.Serial())
	printField(out, "profile", profile.Name)
	if profile.IsDeviation() && profile.Deviation != "" {
		printField(out, "deviation", profile.Deviation)
	}
	printField(out, "attempts", fmt.Sprintf("%d every %v", cfg.Capture.MaxAttempts, cfg.Capture.Delay))
	printField(out, "sources", strings.Join(cfg.Capture.Sources, ", "))
	fmt.Fprintln(out)

	if launch != "" {
		if err := relaunch(d, launch); err != nil {
			printFailure(out, err.Error())
			return err
		}
	}
	if cfg.Capture.WaitFor != "" {
		if err := waitForText(d, cfg.Capture.WaitFor, cfg.Capture.WaitTimeout.D()); err != nil {
			printFailure(out, fmt.Sprintf("%q did not appear", cfg.Capture.WaitFor))
			return err
		}
	}

	rw := report.NewWriter(report.Options{
		OutputDir:   cfg.Paths.Output,
		Serial:      d.Serial(),
		Locale:      cfg.Locale,
		Profile:     profile,
		MaxAttempts: cfg.Capture.MaxAttempts,
		Delay:       cfg.Capture.Delay.D(),
		Sources:     cfg.Capture.Sources,
		Now:         captureClock.Now,
	})
	rw.Start()

	sched := &capture.Scheduler{
		Sources:     sources,
		Extractor:   extractor,
		MaxAttempts: cfg.Capture.MaxAttempts,
		Delay:       cfg.Capture.Delay.D(),
		Clock:       captureClock,
		OnAttempt: func(a capture.Attempt) {
			printAttempt(out, a, cfg.Capture.MaxAttempts)
			rw.Attempt(a)
		},
		OnExhausted: func(res *capture.Result) {
			path := filepath.Join(cfg.Paths.Screenshots, fmt.Sprintf("otp_attempt_%d.png", len(res.Attempts)))
			if err := d.Screenshot(path); err != nil {
				logger.Warn("exhaustion screenshot failed: %v", err)
				return
			}
			logger.Info("Screenshot saved for manual review: %s", path)
			rw.SetScreenshot(path)
		},
	}

	var delivery *capture.Delivery
	var target *device.InputTarget
	if len(locs) > 0 {
		target = &device.InputTarget{Device: d, Locators: locs, SubmitKey: cfg.Delivery.SubmitKey}
		delivery = &capture.Delivery{Target: target, Submit: cfg.SubmitEnabled()}
	}

	res, runErr := capture.Capture(sched, delivery)

	var pos *core.Point
	var via string
	if target != nil && target.Via().Kind != "" {
		p := target.Position()
		pos, via = &p, target.Via().String()
	}
	if err := rw.Finish(res, report.DeliveryFrom(res, cfg.SubmitEnabled(), via, pos, runErr), runErr); err != nil {
		logger.Warn("report not written: %v", err)
	}

	printResult(out, res, runErr, delivery != nil)
	fmt.Fprintf(out, "  %sreport%s %s\n\n", color(colorDim), color(colorReset), rw.Path())
	logger.Info("=== OTP capture finished ===")
	return runErr
}

func printResult(w io.Writer, res *capture.Result, err error, delivering bool) {
	switch {
	case res == nil:
		printFailure(w, err.Error())
	case !res.Found:
		printFailure(w, fmt.Sprintf("No passcode after %d attempts (%s)", len(res.Attempts), formatDuration(res.Elapsed)))
	case err != nil:
		printFailure(w, fmt.Sprintf("Passcode %s found but not delivered: %v", res.Passcode.Value, err))
	case delivering:
		printSuccess(w, fmt.Sprintf("Passcode %s delivered (%s, %s)", res.Passcode.Value, res.Passcode.Rule, formatDuration(res.Elapsed)))
	default:
		printSuccess(w, fmt.Sprintf("Passcode %s (%s, %s)", res.Passcode.Value, res.Passcode.Rule, formatDuration(res.Elapsed)))
	}
}
