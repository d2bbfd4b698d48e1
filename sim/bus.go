package sim

import (
	"sync"

	"github.com/mklimuk/magx/hal"
)

// DefaultPeripheralClock is the peripheral bus clock of the simulated
// microcontroller.
const DefaultPeripheralClock = 10_000_000

var _ hal.Controller = &Bus{}

// Flag names a hardware condition the master busy-waits on.
type Flag int

const (
	FlagIdle Flag = iota
	FlagStart
	FlagStop
	FlagTransmitReady
	FlagTransmitComplete
	FlagDataAvailable
	FlagAckComplete
)

// Fault is an injected failure of a written byte.
type Fault int

const (
	FaultNack Fault = iota + 1
	FaultCollision
)

// Bus simulates one I2C peripheral together with the devices attached to
// its wire. Every condition and byte is recorded as an Event.
//
// Byte indexes used for fault injection count from the START of a
// transaction: written bytes (address bytes included) and received bytes
// are numbered separately.
type Bus struct {
	mx sync.Mutex

	peripheralClock uint32
	frequency       uint32
	enabled         bool

	devices map[byte]Device
	events  []Event

	status     hal.Status
	expectAddr bool
	selected   Device
	reading    bool
	acked      bool
	rx         byte
	rxReady    bool
	written    int
	received   int

	writeFaults    map[int]Fault
	overflows      map[int]bool
	stalled        map[Flag]bool
	startCollision bool
}

type BusOpt func(*Bus)

func WithPeripheralClock(hz uint32) BusOpt {
	return func(b *Bus) {
		b.peripheralClock = hz
	}
}

func NewBus(opts ...BusOpt) *Bus {
	b := &Bus{
		peripheralClock: DefaultPeripheralClock,
		devices:         make(map[byte]Device),
		writeFaults:     make(map[int]Fault),
		overflows:       make(map[int]bool),
		stalled:         make(map[Flag]bool),
		status:          hal.StatusStop,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach connects dev at the 7-bit address addr.
func (b *Bus) Attach(addr byte, dev Device) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[addr&0x7F] = dev
}

// FailWrite makes the k-th written byte of every transaction fail with f.
func (b *Bus) FailWrite(k int, f Fault) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.writeFaults[k] = f
}

// Overflow makes the k-th received byte of every transaction report a
// receive overflow.
func (b *Bus) Overflow(k int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.overflows[k] = true
}

// CollideOnStart makes every fresh START lose the bus.
func (b *Bus) CollideOnStart(on bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.startCollision = on
}

// Stall keeps flag from ever becoming ready.
func (b *Bus) Stall(flag Flag) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.stalled[flag] = true
}

// ClearFaults removes every injected fault and stall.
func (b *Bus) ClearFaults() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.writeFaults = make(map[int]Fault)
	b.overflows = make(map[int]bool)
	b.stalled = make(map[Flag]bool)
	b.startCollision = false
}

// Events returns a copy of the recorded wire sequence.
func (b *Bus) Events() []Event {
	b.mx.Lock()
	defer b.mx.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Count returns how many events of kind were recorded.
func (b *Bus) Count(kind EventKind) int {
	b.mx.Lock()
	defer b.mx.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ResetEvents drops the recorded wire sequence.
func (b *Bus) ResetEvents() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.events = nil
}

func (b *Bus) Frequency() uint32 {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.frequency
}

func (b *Bus) Enabled() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.enabled
}

// SetFrequency mimics a baud rate generator: BRG = Fpb/(2*Fscl) - 2,
// Fscl = Fpb/(2*(BRG+2)), with BRG limited to 2..0xFFFF.
func (b *Bus) SetFrequency(hz uint32) uint32 {
	b.mx.Lock()
	defer b.mx.Unlock()
	if hz == 0 {
		b.frequency = 0
		return 0
	}
	brg := int64(b.peripheralClock)/(2*int64(hz)) - 2
	if brg < 2 {
		brg = 2
	}
	if brg > 0xFFFF {
		brg = 0xFFFF
	}
	b.frequency = uint32(int64(b.peripheralClock) / (2 * (brg + 2)))
	return b.frequency
}

func (b *Bus) Enable(on bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.enabled = on
}

func (b *Bus) BusIsIdle() bool {
	return b.ready(FlagIdle)
}

func (b *Bus) Start() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.startCollision {
		return false
	}
	b.events = append(b.events, Event{Kind: EventStart})
	b.status = hal.StatusStart
	b.expectAddr = true
	b.selected = nil
	b.written = 0
	b.received = 0
	return true
}

func (b *Bus) RepeatStart() {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.events = append(b.events, Event{Kind: EventRepeatedStart})
	b.status = hal.StatusStart
	b.expectAddr = true
}

func (b *Bus) Stop() {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.selected != nil {
		b.selected.Stop()
		b.selected = nil
	}
	b.events = append(b.events, Event{Kind: EventStop})
	b.status = hal.StatusStop
	b.expectAddr = false
}

func (b *Bus) Status() hal.Status {
	b.mx.Lock()
	defer b.mx.Unlock()
	s := b.status
	if b.stalled[FlagStart] {
		s &^= hal.StatusStart
	}
	if b.stalled[FlagStop] {
		s &^= hal.StatusStop
	}
	return s
}

func (b *Bus) TransmitterIsReady() bool {
	return b.ready(FlagTransmitReady)
}

func (b *Bus) SendByte(v byte) bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	fault := b.writeFaults[b.written]
	b.written++
	if fault == FaultCollision {
		b.acked = false
		return false
	}
	if b.expectAddr {
		b.expectAddr = false
		b.selected = nil
		read := v&0x01 != 0
		dev, ok := b.devices[v>>1]
		b.acked = false
		if ok && fault != FaultNack && dev.Select(read) {
			b.acked = true
			b.selected = dev
			b.reading = read
		}
		b.events = append(b.events, Event{Kind: EventAddress, Byte: v, Ack: b.acked})
		return true
	}
	b.acked = false
	if b.selected != nil && !b.reading && fault != FaultNack {
		b.acked = b.selected.Receive(v)
	}
	b.events = append(b.events, Event{Kind: EventWrite, Byte: v, Ack: b.acked})
	return true
}

func (b *Bus) TransmissionHasCompleted() bool {
	return b.ready(FlagTransmitComplete)
}

func (b *Bus) ByteWasAcknowledged() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.acked
}

func (b *Bus) EnableReceiver() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	k := b.received
	b.received++
	if b.overflows[k] {
		return false
	}
	// a released bus reads as all ones
	b.rx = 0xFF
	if b.selected != nil && b.reading {
		b.rx = b.selected.Transmit()
	}
	b.rxReady = true
	return true
}

func (b *Bus) ReceivedDataIsAvailable() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.rxReady && !b.stalled[FlagDataAvailable]
}

func (b *Bus) AcknowledgeByte(ack bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.events = append(b.events, Event{Kind: EventRead, Byte: b.rx, Ack: ack})
}

func (b *Bus) AcknowledgeHasCompleted() bool {
	return b.ready(FlagAckComplete)
}

func (b *Bus) GetByte() byte {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.rxReady = false
	return b.rx
}

func (b *Bus) ready(flag Flag) bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return !b.stalled[flag]
}
