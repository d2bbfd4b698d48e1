package i2c

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/magx/hal"
	"github.com/mklimuk/magx/sim"
)

const devAddr = 0x50

// stepClock advances by step on every reading so bounded polls end quickly.
type stepClock struct {
	mx   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// markingDelayer remembers how many wire events preceded each delay.
type markingDelayer struct {
	bus    *sim.Bus
	delays []time.Duration
	marks  []int
}

func (d *markingDelayer) Delay(dur time.Duration) {
	d.delays = append(d.delays, dur)
	d.marks = append(d.marks, len(d.bus.Events()))
}

func newTestMaster(t *testing.T, opts ...MasterOpt) (*Master, *sim.Bus, *sim.RegisterFile) {
	t.Helper()
	bus := sim.NewBus()
	dev := sim.NewRegisterFile()
	bus.Attach(devAddr, dev)
	defaults := []MasterOpt{
		WithClock(&stepClock{step: time.Millisecond}),
		WithTimeout(50 * time.Millisecond),
		WithDelayer(&markingDelayer{bus: bus}),
	}
	m := NewMaster(hal.I2C1, bus, append(defaults, opts...)...)
	return m, bus, dev
}

func payload(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(0xA0 + i)
	}
	return buf
}

func TestWrite_Scenario(t *testing.T) {
	m, bus, dev := newTestMaster(t)
	dev.Load(0x00, 0x00)

	n, err := m.Write(devAddr, []byte{0xAA, 0xBB})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, Success, ResultOf(err))
	assert.Equal(t, "START, ADDR(0x50,W), 0xAA, 0xBB, STOP", sim.Format(bus.Events()))
}

func TestWrite_NackAtSecondPayloadByte(t *testing.T) {
	m, bus, _ := newTestMaster(t)
	bus.FailWrite(2, sim.FaultNack)

	n, err := m.Write(devAddr, []byte{0xAA, 0xBB})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, GenericError, ResultOf(err))
	assert.ErrorIs(t, err, ErrNoAck)
	assert.Equal(t, SiteData, SiteOf(err))
	assert.Equal(t, 1, bus.Count(sim.EventStop))
	assert.Equal(t, "START, ADDR(0x50,W), 0xAA, 0xBB(NACK), STOP", sim.Format(bus.Events()))
}

func TestWrite_FailureAtEveryIndex(t *testing.T) {
	for _, fault := range []sim.Fault{sim.FaultNack, sim.FaultCollision} {
		for length := 1; length <= 6; length++ {
			for k := 0; k < length; k++ {
				t.Run(fmt.Sprintf("fault %d len %d at %d", fault, length, k), func(t *testing.T) {
					m, bus, _ := newTestMaster(t)
					bus.FailWrite(k+1, fault)

					n, err := m.Write(devAddr, payload(length))
					assert.Equal(t, k, n)
					assert.Equal(t, GenericError, ResultOf(err))
					var e *Error
					require.ErrorAs(t, err, &e)
					assert.Equal(t, SiteData, e.Site)
					assert.Equal(t, k, e.Index)
					assert.Equal(t, 1, bus.Count(sim.EventStop))
					// nothing after the failing byte goes on the wire
					assert.Equal(t, k+1, bus.Count(sim.EventWrite)+boolToInt(fault == sim.FaultCollision))
				})
			}
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestWrite_AddressNotAcknowledged(t *testing.T) {
	m, bus, _ := newTestMaster(t)

	n, err := m.Write(0x33, []byte{0x01, 0x02})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrNoAck)
	assert.Equal(t, SiteAddrWrite, SiteOf(err))
	assert.Equal(t, "START, ADDR(0x33,W)(NACK), STOP", sim.Format(bus.Events()))
}

func TestWrite_StartCollisionDoesNotStop(t *testing.T) {
	m, bus, _ := newTestMaster(t)
	bus.CollideOnStart(true)

	n, err := m.Write(devAddr, []byte{0x01})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrCollision)
	assert.Equal(t, SiteStart, SiteOf(err))
	assert.Empty(t, bus.Events())
}

func TestWrite_InvalidAddress(t *testing.T) {
	m, bus, _ := newTestMaster(t)

	_, err := m.Write(0x80, []byte{0x01})
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Empty(t, bus.Events())
}

func TestRead_AckNackConvention(t *testing.T) {
	for length := 0; length <= 6; length++ {
		t.Run(fmt.Sprintf("len %d", length), func(t *testing.T) {
			m, bus, dev := newTestMaster(t)
			dev.Load(0x00, payload(length)...)

			buf := make([]byte, length)
			n, err := m.Read(devAddr, buf)
			require.NoError(t, err)
			assert.Equal(t, length, n)
			assert.Equal(t, payload(length), buf)

			var reads []sim.Event
			for _, e := range bus.Events() {
				if e.Kind == sim.EventRead {
					reads = append(reads, e)
				}
			}
			require.Len(t, reads, length)
			for i, e := range reads {
				assert.Equal(t, i < length-1, e.Ack, "byte %d", i)
			}
			assert.Equal(t, 1, bus.Count(sim.EventStop))
		})
	}
}

func TestRead_SingleByteIsNacked(t *testing.T) {
	m, bus, dev := newTestMaster(t)
	dev.Load(0x00, 0x42)

	buf := make([]byte, 1)
	n, err := m.Read(devAddr, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "START, ADDR(0x50,R), 0x42(NACK), STOP", sim.Format(bus.Events()))
}

func TestRead_OverflowKeepsReceivedBytes(t *testing.T) {
	m, bus, dev := newTestMaster(t)
	dev.Load(0x00, 0x11, 0x22, 0x33, 0x44)
	bus.Overflow(2)

	buf := make([]byte, 4)
	n, err := m.Read(devAddr, buf)
	assert.Equal(t, 2, n)
	assert.Equal(t, ReceiveOverflow, ResultOf(err))
	assert.ErrorIs(t, err, ErrReceiveOverflow)
	assert.Equal(t, []byte{0x11, 0x22, 0x00, 0x00}, buf)
	assert.Equal(t, "START, ADDR(0x50,R), 0x11(ACK), 0x22(ACK), STOP", sim.Format(bus.Events()))
}

func TestRead_AddressNotAcknowledged(t *testing.T) {
	m, bus, _ := newTestMaster(t)

	buf := make([]byte, 2)
	n, err := m.Read(0x51, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, SiteAddrRead, SiteOf(err))
	assert.Equal(t, 0, bus.Count(sim.EventRead))
	assert.Equal(t, 1, bus.Count(sim.EventStop))
}

func TestReadRegisters_Scenario(t *testing.T) {
	m, bus, dev := newTestMaster(t)
	dev.Load(0x10, 0x01, 0x02, 0x03)

	buf := make([]byte, 3)
	n, err := m.ReadRegisters(devAddr, 0x10, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf)
	assert.Equal(t,
		"START, ADDR(0x50,W), 0x10, REPEATED-START, ADDR(0x50,R), 0x01(ACK), 0x02(ACK), 0x03(NACK), STOP",
		sim.Format(bus.Events()))
}

func TestReadRegisters_HeaderOrderIsInvariant(t *testing.T) {
	for length := 0; length <= 5; length++ {
		t.Run(fmt.Sprintf("len %d", length), func(t *testing.T) {
			m, bus, _ := newTestMaster(t)

			_, err := m.ReadRegisters(devAddr, 0x20, make([]byte, length))
			require.NoError(t, err)
			events := bus.Events()
			require.GreaterOrEqual(t, len(events), 5)
			assert.Equal(t, "START, ADDR(0x50,W), 0x20, REPEATED-START, ADDR(0x50,R)", sim.Format(events[:5]))
			assert.Len(t, events, 6+length)
		})
	}
}

func TestReadRegisters_SettleDelayFollowsRegisterByte(t *testing.T) {
	bus := sim.NewBus()
	bus.Attach(devAddr, sim.NewRegisterFile())
	delayer := &markingDelayer{bus: bus}
	m := NewMaster(hal.I2C1, bus, WithDelayer(delayer), WithSettleDelay(40*time.Microsecond))

	_, err := m.ReadRegisters(devAddr, 0x10, make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{40 * time.Microsecond}, delayer.delays)
	// START, ADDR(W), register byte
	assert.Equal(t, []int{3}, delayer.marks)
}

func TestReadRegisters_FailureSites(t *testing.T) {
	tests := []struct {
		name      string
		inject    func(*sim.Bus)
		addr      byte
		site      Site
		result    Result
		n         int
		repeated  int
		readBytes int
	}{
		{
			name:   "device address write",
			inject: func(b *sim.Bus) { b.FailWrite(0, sim.FaultNack) },
			addr:   devAddr,
			site:   SiteAddrWrite,
			result: GenericError,
		},
		{
			name:   "register address",
			inject: func(b *sim.Bus) { b.FailWrite(1, sim.FaultNack) },
			addr:   devAddr,
			site:   SiteRegister,
			result: GenericError,
		},
		{
			name:     "repeated device address read",
			inject:   func(b *sim.Bus) { b.FailWrite(2, sim.FaultNack) },
			addr:     devAddr,
			site:     SiteAddrRead,
			result:   GenericError,
			repeated: 1,
		},
		{
			name:      "data byte overflow",
			inject:    func(b *sim.Bus) { b.Overflow(1) },
			addr:      devAddr,
			site:      SiteData,
			result:    ReceiveOverflow,
			n:         1,
			repeated:  1,
			readBytes: 1,
		},
		{
			name:   "register collision",
			inject: func(b *sim.Bus) { b.FailWrite(1, sim.FaultCollision) },
			addr:   devAddr,
			site:   SiteRegister,
			result: GenericError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, bus, _ := newTestMaster(t)
			tt.inject(bus)

			n, err := m.ReadRegisters(tt.addr, 0x10, make([]byte, 3))
			require.Error(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.site, SiteOf(err))
			assert.Equal(t, tt.result, ResultOf(err))
			assert.Equal(t, tt.repeated, bus.Count(sim.EventRepeatedStart))
			assert.Equal(t, tt.readBytes, bus.Count(sim.EventRead))
			assert.Equal(t, 1, bus.Count(sim.EventStop))
		})
	}
}

func TestWriteRegisters(t *testing.T) {
	m, bus, dev := newTestMaster(t)

	n, err := m.WriteRegisters(devAddr, 0x08, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xDE, 0xAD}, dev.Bytes(0x08, 2))
	assert.Equal(t, "START, ADDR(0x50,W), 0x08, 0xDE, 0xAD, STOP", sim.Format(bus.Events()))
}

func TestWriteRegisters_ZeroLength(t *testing.T) {
	m, bus, _ := newTestMaster(t)

	n, err := m.WriteRegisters(devAddr, 0x08, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "START, ADDR(0x50,W), 0x08, STOP", sim.Format(bus.Events()))
}

func TestTimeouts(t *testing.T) {
	tests := []struct {
		flag sim.Flag
		site Site
		stop int
	}{
		{flag: sim.FlagIdle, site: SiteStart, stop: 0},
		{flag: sim.FlagStart, site: SiteStart, stop: 1},
		{flag: sim.FlagTransmitReady, site: SiteAddrWrite, stop: 1},
		{flag: sim.FlagTransmitComplete, site: SiteAddrWrite, stop: 1},
	}
	for _, tt := range tests {
		t.Run(tt.site.String(), func(t *testing.T) {
			m, bus, _ := newTestMaster(t)
			bus.Stall(tt.flag)

			n, err := m.Write(devAddr, []byte{0x01})
			assert.Equal(t, 0, n)
			assert.ErrorIs(t, err, ErrTimeout)
			assert.Equal(t, GenericError, ResultOf(err))
			assert.Equal(t, tt.site, SiteOf(err))
			assert.Equal(t, tt.stop, bus.Count(sim.EventStop))
		})
	}
}

func TestTimeout_StopNotConfirmed(t *testing.T) {
	m, bus, _ := newTestMaster(t)
	bus.Stall(sim.FlagStop)

	n, err := m.Write(devAddr, []byte{0x01})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, SiteStop, SiteOf(err))
}

func TestTimeout_ReceiveStalled(t *testing.T) {
	m, bus, _ := newTestMaster(t)
	bus.Stall(sim.FlagDataAvailable)

	n, err := m.Read(devAddr, make([]byte, 2))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, SiteData, SiteOf(err))
	assert.Equal(t, 1, bus.Count(sim.EventStop))
}

func TestTx(t *testing.T) {
	m, bus, dev := newTestMaster(t)
	dev.Load(0x30, 0x0A, 0x0B)

	r := make([]byte, 2)
	nw, nr, err := m.Tx(devAddr, []byte{0x30}, r)
	require.NoError(t, err)
	assert.Equal(t, 1, nw)
	assert.Equal(t, 2, nr)
	assert.Equal(t, []byte{0x0A, 0x0B}, r)
	assert.Equal(t, 1, bus.Count(sim.EventRepeatedStart))

	bus.ResetEvents()
	bus.FailWrite(0, sim.FaultNack)
	nw, nr, err = m.Tx(devAddr, []byte{0x30}, r)
	assert.Error(t, err)
	assert.Equal(t, 0, nw)
	assert.Equal(t, 0, nr)
}

func TestMaster_SerializesTransactions(t *testing.T) {
	m, bus, _ := newTestMaster(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Write(devAddr, []byte{0x00, 0x01, 0x02})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	events := bus.Events()
	require.Len(t, events, 8*6)
	for i := 0; i < len(events); i += 6 {
		assert.Equal(t, "START, ADDR(0x50,W), 0x00, 0x01, 0x02, STOP", sim.Format(events[i:i+6]))
	}
}
