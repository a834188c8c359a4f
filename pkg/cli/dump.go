package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "Print the text dump of one source once",
	Description: `Read one text source from the device and print it, to check what the
extraction rules will see.

Examples:
  otpcap dump
  otpcap dump --source window
  otpcap dump --raw`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "ui, accessibility, window or probe",
			Value: "ui",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Print the uiautomator XML instead of extracted text",
		},
	},
	Action: runDump,
}

func runDump(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	closeLog, err := initLogger(c)
	if err != nil {
		return err
	}
	defer closeLog()

	d, err := openDevice(cfg)
	if err != nil {
		return err
	}

	if c.Bool("raw") {
		xml, err := d.UIDumpXML()
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, xml)
		return nil
	}

	src, err := d.SourceByName(c.String("source"), cfg.Capture.Probe)
	if err != nil {
		return err
	}
	text, err := src.Dump()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, text)
	return nil
}
