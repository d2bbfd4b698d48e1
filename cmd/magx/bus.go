package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/magx/cmd/magx/console"
	"github.com/mklimuk/magx/i2c"
)

var initCmd = cli.Command{
	Name:  "init",
	Usage: "program the bus clock and enable the bus",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "hz", Usage: "SCL frequency (board file value by default)"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = s.close() }()
		if hz := c.Uint("hz"); hz > 0 {
			s.cfg.ClockHz = uint32(hz)
		}
		if s.clock == nil {
			console.Warnf("adapter %s has no programmable clock", s.cfg.Adapter)
			return nil
		}
		actual, err := s.start()
		switch {
		case errors.Is(err, i2c.ErrClockTolerance):
			console.Warnf("bus %s enabled at %d Hz, requested %d Hz", s.cfg.Name, actual, s.cfg.ClockHz)
			return console.Exit(2, "clock out of tolerance")
		case err != nil:
			return console.Exit(1, "init failed: %s", console.Red(err))
		}
		console.PInfof(console.PictoFinish, "bus %s enabled at %s Hz", s.cfg.Name, console.Green(actual))
		return nil
	},
}

var releaseCmd = cli.Command{
	Name:  "release",
	Usage: "issue a STOP condition to free the bus",
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = s.close() }()
		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		defer cancel()
		if err := s.release(ctx); err != nil {
			return console.Exit(1, "release failed: %s", console.Red(err))
		}
		console.Infof("bus %s released", s.cfg.Name)
		return nil
	},
}

// the reserved 7-bit ranges are left out of a scan
const (
	scanFirst = 0x08
	scanLast  = 0x77
)

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every address with an address-only write",
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = s.close() }()
		if _, err := s.start(); err != nil && !errors.Is(err, i2c.ErrClockTolerance) {
			return console.Exit(1, "init failed: %s", console.Red(err))
		}
		found := 0
		console.Print("     0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F")
		for row := 0; row < 0x80; row += 0x10 {
			line := fmt.Sprintf("%02X: ", row)
			for addr := row; addr < row+0x10; addr++ {
				if addr < scanFirst || addr > scanLast {
					line += "   "
					continue
				}
				_, err := s.raw.Write(byte(addr), nil)
				switch {
				case err == nil:
					line += console.Green(fmt.Sprintf("%02X", addr)) + " "
					found++
				case errors.Is(err, i2c.ErrNoAck):
					line += "-- "
				default:
					return console.Exit(1, "scan aborted at %#02x: %s", addr, console.Red(err))
				}
			}
			console.Print(line)
		}
		console.PInfof(console.PictoPin, "%d device(s) found on %s", found, s.cfg.Name)
		return nil
	},
}
