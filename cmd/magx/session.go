package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/magx"
	"github.com/mklimuk/magx/adapter"
	"github.com/mklimuk/magx/config"
	"github.com/mklimuk/magx/i2c"
	"github.com/mklimuk/magx/sim"
)

type initializer interface {
	Init(hz uint32) (uint32, error)
}

// session is one opened bus as described by the board file.
type session struct {
	cfg config.Bus
	// raw is the transactor without logging, used where failures are expected.
	raw    magx.Transactor
	tx     *i2c.Logged
	bus    magx.I2CBus
	clock  initializer
	master *i2c.Master
	close  func() error
}

func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	b, err := cfg.Bus(c.String("bus"))
	if err != nil {
		return nil, err
	}
	s := &session{cfg: b, close: func() error { return nil }}
	switch b.Adapter {
	case config.AdapterSim:
		ctl := sim.NewBus(sim.WithPeripheralClock(peripheralClock(b)))
		for _, addr := range b.Devices {
			ctl.Attach(addr, sim.NewRegisterFile())
		}
		m := i2c.NewMaster(b.HALModule(), ctl,
			i2c.WithTimeout(b.PollTimeout()),
			i2c.WithSettleDelay(b.SettleDelay),
		)
		s.raw, s.bus, s.clock, s.master = m, m, m, m
	case config.AdapterMCP2221:
		id := -1
		if b.Device != "" {
			id, err = strconv.Atoi(b.Device)
			if err != nil {
				return nil, fmt.Errorf("invalid mcp2221 device index %q: %w", b.Device, err)
			}
		}
		a := adapter.NewMCP2221(adapter.WithOpener(adapter.OpenHID(id)))
		s.raw, s.bus, s.clock = a, a, a
	case config.AdapterLinux:
		g, err := i2c.NewGenericBus(b.Device)
		if err != nil {
			return nil, err
		}
		s.raw, s.bus, s.clock, s.close = g, g, g, g.Close
	default:
		return nil, fmt.Errorf("unknown adapter %q", b.Adapter)
	}
	s.tx = i2c.NewLogged(s.raw, nil)
	slog.Debug("bus opened", "bus", b.Name, "adapter", b.Adapter, "clock_hz", b.ClockHz)
	return s, nil
}

// start brings the bus up at the configured clock. Adapters without a
// programmable clock are left as they are.
func (s *session) start() (uint32, error) {
	if s.clock == nil {
		return 0, nil
	}
	return s.clock.Init(s.cfg.ClockHz)
}

func (s *session) release(ctx context.Context) error {
	return s.bus.Release(ctx)
}

func peripheralClock(b config.Bus) uint32 {
	if b.PeripheralClockHz == 0 {
		return sim.DefaultPeripheralClock
	}
	return b.PeripheralClockHz
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
