// Package cli provides the command-line interface for otpcap.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/otpcap/pkg/config"
	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/device"
	"github.com/devicelab-dev/otpcap/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// Exit codes.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitExhausted = 2
	ExitDelivery  = 3
	ExitConfig    = 4
)

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file (default: otpcap.yaml in the current directory)",
		EnvVars: []string{"OTPCAP_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s"},
		Usage:   "adb serial of the device (default: first connected device)",
		EnvVars: []string{"OTPCAP_DEVICE", "ANDROID_SERIAL"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"OTPCAP_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
	&cli.StringFlag{
		Name:    "log",
		Usage:   "Log file (default: <home>/otpcap.log)",
		EnvVars: []string{"OTPCAP_LOG"},
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Minimum log level: debug, info, warn, error",
		Value:   "info",
		EnvVars: []string{"OTPCAP_LOG_LEVEL"},
	},
}

// App builds the otpcap application.
func App() *cli.App {
	return &cli.App{
		Name:    "otpcap",
		Usage:   "Capture one-time passcodes from an Android screen and type them in",
		Version: Version,
		Description: `otpcap reads the text on an Android device screen over adb, extracts a
one-time passcode with prioritized rules, and types it into an input field.

Examples:
  otpcap capture --target id=otp_input
  otpcap capture --profile first-match --max-attempts 10
  otpcap extract sms.txt --all
  otpcap dump --source accessibility`,
		Flags: GlobalFlags,

		// coords=x,y locators carry a comma; repeat slice flags instead.
		DisableSliceFlagSeparator: true,

		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			captureCommand,
			extractCommand,
			dumpCommand,
			profilesCommand,
			configCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, core.ErrExhausted):
		return ExitExhausted
	case errors.Is(err, core.ErrDelivery), errors.Is(err, core.ErrLocatorNotFound):
		return ExitDelivery
	case errors.Is(err, core.ErrInvalidConfig), errors.Is(err, core.ErrUnknownProfile):
		return ExitConfig
	}
	return ExitError
}

// loadConfig reads --config, or otpcap.yaml from the working directory, and
// applies --device.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, err
	}
	if serial := c.String("device"); serial != "" {
		cfg.Device = serial
	}
	return cfg, nil
}

// initLogger opens the log file. The returned func closes it.
func initLogger(c *cli.Context) (func(), error) {
	level, err := logger.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(err.Error())
	}
	if c.Bool("verbose") {
		level = logger.LevelDebug
	}

	path := c.String("log")
	if path == "" {
		path = config.GetLogPath()
	}
	if err := logger.Init(path); err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger.Close, nil
}

// openDevice connects to the configured device. Tests replace it.
var openDevice = func(cfg *config.Config) (*device.AndroidDevice, error) {
	var opts []device.Option
	if cfg.ADBPath != "" {
		opts = append(opts, device.WithADBPath(cfg.ADBPath))
	}
	return device.New(cfg.Device, opts...)
}
