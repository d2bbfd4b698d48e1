package adapter

import (
	"encoding/binary"
	"fmt"
	"io"

	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/magx"
)

var (
	_ gobot.Connector  = &Gobot{}
	_ gobot.Connection = &gobotConnection{}
)

// Gobot lets gobot i2c drivers run over transactors. Bus numbers are
// indexes into the transactor list; bus 0 is the default.
type Gobot struct {
	buses []magx.Transactor
}

func NewGobot(buses ...magx.Transactor) *Gobot {
	return &Gobot{buses: buses}
}

func (g *Gobot) GetI2cConnection(address int, busNr int) (gobot.Connection, error) {
	if busNr < 0 || busNr >= len(g.buses) {
		return nil, fmt.Errorf("bus number %d out of range [0-%d]", busNr, len(g.buses)-1)
	}
	if address < 0 || address > 0x7F {
		return nil, fmt.Errorf("invalid 7-bit address %#x", address)
	}
	return &gobotConnection{bus: g.buses[busNr], addr: byte(address)}, nil
}

func (g *Gobot) DefaultI2cBus() int {
	return 0
}

// gobotConnection maps the SMBus shaped operations onto simple and
// register transactions. Words travel low byte first.
type gobotConnection struct {
	bus  magx.Transactor
	addr byte
}

func (c *gobotConnection) Read(p []byte) (int, error) {
	return c.bus.Read(c.addr, p)
}

func (c *gobotConnection) Write(p []byte) (int, error) {
	return c.bus.Write(c.addr, p)
}

func (c *gobotConnection) Close() error {
	return nil
}

func (c *gobotConnection) ReadByte() (byte, error) {
	buf := []byte{0}
	_, err := c.bus.Read(c.addr, buf)
	return buf[0], err
}

func (c *gobotConnection) ReadByteData(reg uint8) (uint8, error) {
	buf := []byte{0}
	_, err := c.bus.ReadRegisters(c.addr, reg, buf)
	return buf[0], err
}

func (c *gobotConnection) ReadWordData(reg uint8) (uint16, error) {
	buf := make([]byte, 2)
	if _, err := c.bus.ReadRegisters(c.addr, reg, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (c *gobotConnection) ReadBlockData(reg uint8, data []byte) error {
	n, err := c.bus.ReadRegisters(c.addr, reg, data)
	if err == nil && n < len(data) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (c *gobotConnection) WriteByte(val byte) error {
	_, err := c.bus.Write(c.addr, []byte{val})
	return err
}

func (c *gobotConnection) WriteByteData(reg uint8, val uint8) error {
	_, err := c.bus.WriteRegisters(c.addr, reg, []byte{val})
	return err
}

func (c *gobotConnection) WriteWordData(reg uint8, val uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, val)
	_, err := c.bus.WriteRegisters(c.addr, reg, buf)
	return err
}

func (c *gobotConnection) WriteBlockData(reg uint8, data []byte) error {
	n, err := c.bus.WriteRegisters(c.addr, reg, data)
	if err == nil && n < len(data) {
		return io.ErrShortWrite
	}
	return err
}

func (c *gobotConnection) WriteBytes(data []byte) error {
	n, err := c.bus.Write(c.addr, data)
	if err == nil && n < len(data) {
		return io.ErrShortWrite
	}
	return err
}
