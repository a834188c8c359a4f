package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/otpcap/pkg/core"
	"github.com/devicelab-dev/otpcap/pkg/otp"
)

var extractCommand = &cli.Command{
	Name:      "extract",
	Usage:     "Extract a passcode from text in a file or on stdin",
	ArgsUsage: "[file]",
	Description: `Run the extraction rules over a text dump without a device. Reads stdin
when no file is given or the file is "-".

Examples:
  otpcap extract sms.txt
  adb shell dumpsys accessibility | otpcap extract --all
  otpcap extract --profile first-match --json dump.txt`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Extraction profile",
		},
		&cli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "Print every surviving candidate in rank order",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print JSON",
		},
	},
	Action: runExtract,
}

type extractOutput struct {
	Profile    string          `json:"profile"`
	Found      bool            `json:"found"`
	Passcode   *otp.Candidate  `json:"passcode,omitempty"`
	Candidates []otp.Candidate `json:"candidates,omitempty"`
}

func readInput(c *cli.Context) ([]byte, error) {
	path := c.Args().First()
	if path == "" || path == "-" {
		return io.ReadAll(c.App.Reader)
	}
	return os.ReadFile(path) //#nosec G304 -- user-provided input file
}

func runExtract(c *cli.Context) error {
	out := c.App.Writer

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("profile") {
		cfg.Capture.Profile = c.String("profile")
	}
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	ext, err := buildExtractor(profile, cfg)
	if err != nil {
		return err
	}

	data, err := readInput(c)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	text := string(data)
	cands := ext.Candidates(text)
	best, found := otp.Select(cands, profile.Policy)

	if c.Bool("json") {
		res := extractOutput{Profile: profile.Name, Found: found}
		if found {
			res.Passcode = &best
		}
		if c.Bool("all") {
			res.Candidates = cands
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		if found {
			fmt.Fprintln(out, best.Value)
		}
		if c.Bool("all") {
			for _, cand := range cands {
				mark := " "
				if found && cand.Value == best.Value {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-6s rank %-3d %s\n", mark, cand.Value, cand.Rank, cand.Rule)
			}
		}
	}

	if !found {
		return core.ErrExhausted.WithMessage("no passcode in input")
	}
	return nil
}
