package i2c

import (
	"context"
	"fmt"
	"math"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var _ i2c.Bus = &PeriphBus{}

// PeriphBus exposes a Master as a periph.io bus so that periph device
// drivers can run on top of the transaction engine.
type PeriphBus struct {
	m *Master
}

func NewPeriphBus(m *Master) *PeriphBus {
	return &PeriphBus{m: m}
}

func (b *PeriphBus) String() string {
	return "magx-" + b.m.String()
}

// Halt issues a STOP condition.
func (b *PeriphBus) Halt() error {
	return b.m.Release(context.Background())
}

// Tx writes w and then reads r after a repeated START.
func (b *PeriphBus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7F {
		return fmt.Errorf("%s: %w: %#x", b, ErrInvalidAddress, addr)
	}
	_, _, err := b.m.Tx(byte(addr), w, r)
	return err
}

func (b *PeriphBus) SetSpeed(f physic.Frequency) error {
	hz := f / physic.Hertz
	if hz <= 0 || hz > math.MaxUint32 {
		return fmt.Errorf("%s: %w: %s", b, ErrInvalidClock, f)
	}
	_, err := b.m.Init(uint32(hz))
	return err
}
