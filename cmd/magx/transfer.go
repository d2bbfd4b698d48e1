package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/magx/cmd/magx/console"
	"github.com/mklimuk/magx/i2c"
)

var writeCmd = cli.Command{
	Name:      "write",
	Usage:     "write bytes to a device",
	ArgsUsage: "<addr> <hex data>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "reg", Usage: "register to write to (hex)"},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		data, err := parseHex(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		if !c.Bool("yes") {
			answer, err := console.YesOrNo(fmt.Sprintf("write %d byte(s) to %#02x?", len(data), addr))
			if err != nil {
				return console.Exit(1, "prompt error: %v", err)
			}
			if answer != console.Yes {
				return nil
			}
		}
		s, err := openStartedSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		var n int
		if c.IsSet("reg") {
			var reg byte
			reg, err = parseByte(c.String("reg"))
			if err != nil {
				return console.Exit(1, "could not decode register: %v", err)
			}
			n, err = s.tx.WriteRegisters(addr, reg, data)
		} else {
			n, err = s.tx.Write(addr, data)
		}
		if err != nil {
			return transferFailed(n, err)
		}
		console.Infof("%d byte(s) written", n)
		return nil
	},
}

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "read bytes from a device",
	ArgsUsage: "<addr>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "n", Value: 1, Usage: "number of bytes to read"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		if c.Int("n") < 0 {
			return console.Exit(1, "invalid byte count %d", c.Int("n"))
		}
		s, err := openStartedSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		buf := make([]byte, c.Int("n"))
		n, err := s.tx.Read(addr, buf)
		if err != nil {
			return transferFailed(n, err)
		}
		console.Dump(0, buf[:n])
		return nil
	},
}

var regsCmd = cli.Command{
	Name:      "regs",
	Usage:     "read consecutive registers of a device",
	ArgsUsage: "<addr> <reg>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "n", Value: 1, Usage: "number of registers to read"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "could not decode address: %v", err)
		}
		reg, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "could not decode register: %v", err)
		}
		if c.Int("n") < 0 {
			return console.Exit(1, "invalid register count %d", c.Int("n"))
		}
		s, err := openStartedSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		buf := make([]byte, c.Int("n"))
		n, err := s.tx.ReadRegisters(addr, reg, buf)
		if err != nil {
			return transferFailed(n, err)
		}
		console.Dump(reg, buf[:n])
		return nil
	},
}

var blockCmd = cli.Command{
	Name:  "block",
	Usage: "register block transfers (up to 255 bytes)",
	Subcommands: cli.Commands{
		&blockReadCmd,
		&blockWriteCmd,
	},
}

var blockReadCmd = cli.Command{
	Name:      "read",
	ArgsUsage: "<addr> <reg> <size>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return console.Exit(1, "expected 3 arguments, got %d", c.NArg())
		}
		b, err := parseBlock(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		if _, err := fmt.Sscanf(c.Args().Get(2), "%d", &b.Size); err != nil {
			return console.Exit(1, "could not decode size: %v", err)
		}
		if b.Size >= 0 {
			b.Data = make([]byte, b.Size)
		}
		s, err := openStartedSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		if s.master == nil {
			return console.Exit(1, "block transfers need a bus master, adapter %s is a bridge", s.cfg.Adapter)
		}
		b.Bus = s.master
		n, err := s.tx.ReadBlock(b)
		if err != nil {
			return transferFailed(n, err)
		}
		console.Dump(b.Register, b.Data[:n])
		return nil
	},
}

var blockWriteCmd = cli.Command{
	Name:      "write",
	ArgsUsage: "<addr> <reg> <hex data>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return console.Exit(1, "expected 3 arguments, got %d", c.NArg())
		}
		b, err := parseBlock(c.Args().Get(0), c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%v", err)
		}
		b.Data, err = parseHex(c.Args().Get(2))
		if err != nil {
			return console.Exit(1, "could not decode data: %v", err)
		}
		b.Size = len(b.Data)
		s, err := openStartedSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = s.close() }()
		if s.master == nil {
			return console.Exit(1, "block transfers need a bus master, adapter %s is a bridge", s.cfg.Adapter)
		}
		b.Bus = s.master
		n, err := s.tx.WriteBlock(b)
		if err != nil {
			return transferFailed(n, err)
		}
		console.Infof("%d byte(s) written", n)
		return nil
	},
}

func openStartedSession(c *cli.Context) (*session, error) {
	s, err := openSession(c)
	if err != nil {
		return nil, console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	if _, err := s.start(); err != nil {
		// an inaccurate clock still leaves a working bus
		console.Warnf("%v", err)
	}
	return s, nil
}

func transferFailed(n int, err error) error {
	site := i2c.SiteOf(err)
	if site != i2c.SiteNone {
		return console.Exit(int(i2c.ResultOf(err))+1, "transfer failed at %s after %d byte(s): %s", site, n, console.Red(err))
	}
	return console.Exit(int(i2c.ResultOf(err))+1, "transfer failed after %d byte(s): %s", n, console.Red(err))
}

func parseBlock(addr, reg string) (i2c.Block, error) {
	a, err := parseByte(addr)
	if err != nil {
		return i2c.Block{}, fmt.Errorf("could not decode address: %w", err)
	}
	r, err := parseByte(reg)
	if err != nil {
		return i2c.Block{}, fmt.Errorf("could not decode register: %w", err)
	}
	return i2c.Block{Addr: i2c.Address(a), Register: r}, nil
}

func parseByte(s string) (byte, error) {
	b, err := parseHex(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("expected a single byte, got %d", len(b))
	}
	return b[0], nil
}

// parseHex accepts "0x0a", "0A" and "a0b1c2" forms.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
