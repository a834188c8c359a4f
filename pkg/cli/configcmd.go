package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "Print the effective configuration with credentials masked",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print JSON instead of YAML",
		},
	},
	Action: runConfig,
}

func runConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r := cfg.Redacted()

	if c.Bool("json") {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}

	data, err := r.YAML()
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, string(data))
	return nil
}
