package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/magx/config"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := cli.NewApp()
	app.Name = "magx"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", config.Version, config.Date, config.Commit)
	app.Usage = "I2C bus master cli"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "board file describing the buses",
			EnvVars: []string{"MAGX_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "bus",
			Aliases: []string{"b"},
			Usage:   "bus name from the board file (first bus by default)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		level := chlog.InfoLevel
		if path := ctx.String("config"); path != "" {
			cfg, err := config.Load(path)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			level, err = chlog.ParseLevel(cfg.LogLevel)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
		}
		if ctx.Bool("verbose") {
			level = chlog.DebugLevel
		}
		charm.SetLevel(level)
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&initCmd,
		&releaseCmd,
		&scanCmd,
		&writeCmd,
		&readCmd,
		&regsCmd,
		&blockCmd,
		&mcp2221Cmd,
		&usbCmd,
	}
	err := app.Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}
