package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/otpcap/pkg/otp"
)

var profilesCommand = &cli.Command{
	Name:  "profiles",
	Usage: "List extraction profiles",
	Description: `List the built-in profiles and the ones defined in the config file.
Profiles that depart from the prefer-4-then-6 policy are flagged.`,
	Action: runProfiles,
}

func runProfiles(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOLICY\tEXCLUSIONS\tSOURCE\tDESCRIPTION")
	for _, name := range otp.ProfileNames(cfg.Profiles) {
		p, err := otp.FindProfile(name, cfg.Profiles)
		if err != nil {
			return err
		}
		origin := "builtin"
		for _, cp := range cfg.Profiles {
			if cp.Name == name {
				origin = "config"
			}
		}
		marker := ""
		if name == cfg.Capture.Profile {
			marker = " (selected)"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%d\t%s\t%s\n", p.Name, marker, p.Policy, p.Exclusions().Len(), origin, p.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	var deviations []string
	for _, name := range otp.ProfileNames(cfg.Profiles) {
		p, _ := otp.FindProfile(name, cfg.Profiles)
		if p.IsDeviation() {
			note := p.Deviation
			if note == "" {
				note = "differs from the default selection policy or exclusions"
			}
			deviations = append(deviations, fmt.Sprintf("  %s! %s%s: %s", color(colorYellow), p.Name, color(colorReset), note))
		}
	}
	if len(deviations) > 0 {
		fmt.Fprintln(c.App.Writer)
		fmt.Fprintln(c.App.Writer, strings.Join(deviations, "\n"))
	}
	return nil
}
