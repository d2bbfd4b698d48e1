package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mklimuk/magx/hal"
)

func TestBus_SetFrequency(t *testing.T) {
	tests := []struct {
		name     string
		pclk     uint32
		hz       uint32
		expected uint32
	}{
		{name: "standard", pclk: DefaultPeripheralClock, hz: 100_000, expected: 100_000},
		{name: "fast", pclk: DefaultPeripheralClock, hz: 400_000, expected: 416_666},
		{name: "clamped low", pclk: DefaultPeripheralClock, hz: 5_000_000, expected: 1_250_000},
		{name: "clamped high", pclk: 80_000_000, hz: 1, expected: 610},
		{name: "zero", pclk: DefaultPeripheralClock, hz: 0, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBus(WithPeripheralClock(tt.pclk))
			assert.Equal(t, tt.expected, b.SetFrequency(tt.hz))
			assert.Equal(t, tt.expected, b.Frequency())
		})
	}
}

func TestBus_WriteSequence(t *testing.T) {
	b := NewBus()
	dev := NewRegisterFile()
	b.Attach(0x50, dev)

	assert.True(t, b.Start())
	assert.True(t, b.Status().Has(hal.StatusStart))
	assert.True(t, b.SendByte(0xA0))
	assert.True(t, b.ByteWasAcknowledged())
	assert.True(t, b.SendByte(0x10))
	assert.True(t, b.SendByte(0x42))
	assert.True(t, b.ByteWasAcknowledged())
	b.Stop()
	assert.True(t, b.Status().Has(hal.StatusStop))

	assert.Equal(t, "START, ADDR(0x50,W), 0x10, 0x42, STOP", Format(b.Events()))
	assert.Equal(t, []byte{0x42}, dev.Bytes(0x10, 1))
}

func TestBus_ReadSequence(t *testing.T) {
	b := NewBus()
	dev := NewRegisterFile()
	dev.Load(0x20, 0x01, 0x02)
	b.Attach(0x50, dev)

	b.Start()
	b.SendByte(0xA0)
	b.SendByte(0x20)
	b.RepeatStart()
	b.SendByte(0xA1)
	for i := 0; i < 2; i++ {
		assert.True(t, b.EnableReceiver())
		assert.True(t, b.ReceivedDataIsAvailable())
		b.AcknowledgeByte(i == 0)
		assert.Equal(t, byte(i+1), b.GetByte())
	}
	b.Stop()
	assert.Equal(t, "START, ADDR(0x50,W), 0x20, REPEATED-START, ADDR(0x50,R), 0x01(ACK), 0x02(NACK), STOP", Format(b.Events()))
	assert.Equal(t, 1, b.Count(EventRepeatedStart))
}

func TestBus_AbsentDevice(t *testing.T) {
	b := NewBus()
	b.Start()
	b.SendByte(0x44)
	assert.False(t, b.ByteWasAcknowledged())
	assert.True(t, b.EnableReceiver())
	assert.Equal(t, byte(0xFF), b.GetByte())
	assert.Equal(t, "START, ADDR(0x22,W)(NACK)", Format(b.Events()))
}

func TestBus_Faults(t *testing.T) {
	b := NewBus()
	b.Attach(0x50, NewRegisterFile())

	b.CollideOnStart(true)
	assert.False(t, b.Start())
	assert.Empty(t, b.Events())
	b.CollideOnStart(false)

	b.FailWrite(1, FaultNack)
	b.FailWrite(2, FaultCollision)
	b.Overflow(0)
	b.Start()
	assert.True(t, b.SendByte(0xA0))
	assert.True(t, b.ByteWasAcknowledged())
	assert.True(t, b.SendByte(0x00))
	assert.False(t, b.ByteWasAcknowledged())
	assert.False(t, b.SendByte(0x01))
	assert.False(t, b.EnableReceiver())

	b.Stall(FlagTransmitReady)
	b.Stall(FlagStop)
	assert.False(t, b.TransmitterIsReady())
	b.Stop()
	assert.False(t, b.Status().Has(hal.StatusStop))

	b.ClearFaults()
	assert.True(t, b.TransmitterIsReady())
	assert.True(t, b.Status().Has(hal.StatusStop))
}

func TestBus_Enable(t *testing.T) {
	b := NewBus()
	assert.False(t, b.Enabled())
	b.Enable(true)
	assert.True(t, b.Enabled())
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		event    Event
		expected string
	}{
		{Event{Kind: EventStart}, "START"},
		{Event{Kind: EventAddress, Byte: 0xA1, Ack: true}, "ADDR(0x50,R)"},
		{Event{Kind: EventWrite, Byte: 0x0B}, "0x0B(NACK)"},
		{Event{Kind: EventRead, Byte: 0xFE, Ack: true}, "0xFE(ACK)"},
		{Event{Kind: EventKind(42)}, "event(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.event.String())
	}
}

func TestRegisterFile_Wraps(t *testing.T) {
	r := NewRegisterFile()
	r.Load(0xFF, 0x01, 0x02)
	assert.Equal(t, []byte{0x02}, r.Bytes(0x00, 1))
	assert.Equal(t, []byte{0x01, 0x02}, r.Bytes(0xFF, 2))
}
