package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/magx"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var (
	_ magx.I2CBus     = &GenericBus{}
	_ magx.Transactor = &GenericBus{}
)

// GenericBus runs transactions through the host's I2C driver (i2c-dev on
// Linux). The host driver does not report partial transfers, so a failed
// transaction reports zero bytes moved.
type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		name: dev,
		bus:  bus,
	}, nil
}

func (b *GenericBus) String() string {
	return b.name
}

func (b *GenericBus) Write(address byte, buffer []byte) (int, error) {
	if err := b.tx(opWrite, address, buffer, nil); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (b *GenericBus) Read(address byte, buffer []byte) (int, error) {
	if err := b.tx(opRead, address, nil, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (b *GenericBus) ReadRegisters(address, reg byte, buffer []byte) (int, error) {
	if err := b.tx(opReadRegisters, address, []byte{reg}, buffer); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (b *GenericBus) WriteRegisters(address, reg byte, buffer []byte) (int, error) {
	w := make([]byte, 0, len(buffer)+1)
	w = append(w, reg)
	w = append(w, buffer...)
	if err := b.tx(opWriteRegisters, address, w, nil); err != nil {
		return 0, err
	}
	return len(buffer), nil
}

func (b *GenericBus) tx(op string, address byte, w, r []byte) error {
	err := b.bus.Tx(uint16(address), w, r)
	if err != nil {
		return &Error{Op: op, Addr: Address(address), Site: SiteNone, Index: -1, Err: err}
	}
	return nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	_, err := b.Read(address, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	_, err := b.Write(address, buffer)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// Init changes the bus clock where the host driver allows it. The host does
// not report the achieved frequency, so hz is returned as is.
func (b *GenericBus) Init(hz uint32) (uint32, error) {
	if hz == 0 {
		return 0, fmt.Errorf("%s: %w: 0 Hz", b, ErrInvalidClock)
	}
	if err := b.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
		return 0, fmt.Errorf("could not set %s speed: %w", b, err)
	}
	return hz, nil
}

// Release halts host buses that support it. i2c-dev ends every Tx with a
// STOP, so a bus opened through it is never left held and needs nothing.
func (b *GenericBus) Release(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, ok := b.bus.(conn.Resource)
	if !ok {
		return nil
	}
	if err := h.Halt(); err != nil {
		return &Error{Op: "release", Site: SiteNone, Index: -1, Err: err}
	}
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
