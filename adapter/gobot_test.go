package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobot "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/magx/hal"
	"github.com/mklimuk/magx/i2c"
	"github.com/mklimuk/magx/sim"
)

func newSimMaster(t *testing.T) (*i2c.Master, *sim.Bus, *sim.RegisterFile) {
	t.Helper()
	bus := sim.NewBus()
	dev := sim.NewRegisterFile()
	bus.Attach(0x50, dev)
	m := i2c.NewMaster(hal.I2C1, bus, i2c.WithSettleDelay(0))
	_, err := m.Init(100_000)
	require.NoError(t, err)
	return m, bus, dev
}

func TestGobot_GenericDriver(t *testing.T) {
	m, bus, dev := newSimMaster(t)
	drv := gobot.NewGenericDriver(NewGobot(m), "eeprom", 0x50)
	require.NoError(t, drv.Start())
	defer func() { _ = drv.Halt() }()

	require.NoError(t, drv.WriteByteData(0x10, 0x5A))
	assert.Equal(t, []byte{0x5A}, dev.Bytes(0x10, 1))

	bus.ResetEvents()
	v, err := drv.ReadByteData(0x10)
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), v)
	assert.Equal(t, "START, ADDR(0x50,W), 0x10, REPEATED-START, ADDR(0x50,R), 0x5A(NACK), STOP", sim.Format(bus.Events()))

	buf := make([]byte, 1)
	require.NoError(t, drv.Read(buf))
}

func TestGobot_Connection(t *testing.T) {
	m, _, dev := newSimMaster(t)
	g := NewGobot(m)
	assert.Equal(t, 0, g.DefaultI2cBus())

	c, err := g.GetI2cConnection(0x50, 0)
	require.NoError(t, err)

	require.NoError(t, c.WriteWordData(0x20, 0xBEEF))
	assert.Equal(t, []byte{0xEF, 0xBE}, dev.Bytes(0x20, 2))
	w, err := c.ReadWordData(0x20)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), w)

	require.NoError(t, c.WriteBlockData(0x30, []byte{1, 2, 3}))
	block := make([]byte, 3)
	require.NoError(t, c.ReadBlockData(0x30, block))
	assert.Equal(t, []byte{1, 2, 3}, block)

	// pointer write followed by a plain read
	require.NoError(t, c.WriteByte(0x31))
	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(2), b)

	require.NoError(t, c.WriteBytes([]byte{0x40, 0x77}))
	n, err := c.Write([]byte{0x40})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = c.Read(block[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x77), block[0])
	assert.NoError(t, c.Close())
}

func TestGobot_ConnectionErrors(t *testing.T) {
	m, _, _ := newSimMaster(t)
	g := NewGobot(m)

	_, err := g.GetI2cConnection(0x50, 1)
	assert.Error(t, err)
	_, err = g.GetI2cConnection(0x80, 0)
	assert.Error(t, err)

	c, err := g.GetI2cConnection(0x22, 0)
	require.NoError(t, err)
	_, err = c.ReadByteData(0x00)
	assert.ErrorIs(t, err, i2c.ErrNoAck)
	assert.Equal(t, i2c.SiteAddrWrite, i2c.SiteOf(err))
}
