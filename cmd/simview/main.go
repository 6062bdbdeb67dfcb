package main

import (
	"fmt"
	"os"

	"github.com/danmuck/simview/internal/logging"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:                   "simview",
		Usage:                  "Mirror a remote physics simulation into a headless scene",
		Action:                 runViewer,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load settings from the TOML `FILE`.",
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Connect to the simulation server at `HOSTNAME`.",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Connect to `PORT` of the simulation server.",
			},
			&cli.IntFlag{
				Name:  "ticks",
				Usage: "Stop after `COUNT` ticks; 0 runs until interrupted.",
			},
			&cli.StringFlag{
				Name:  "snapshot",
				Usage: "Write a CBOR scene snapshot to `FILE` on exit.",
			},
		},
	}

	logging.ConfigureRuntime()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "simview: %v\n", err)
		os.Exit(1)
	}
}
