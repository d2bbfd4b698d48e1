package hal

import "fmt"

// Module identifies one of the independent I2C peripheral instances of the
// microcontroller.
type Module int

const (
	I2C1 Module = iota
	I2C2
)

func (m Module) String() string {
	return fmt.Sprintf("I2C%d", int(m)+1)
}

// Status is the subset of the peripheral status register the master cares about.
type Status uint16

const (
	// StatusStart is set once a START or REPEATED START has been detected on the bus.
	StatusStart Status = 1 << iota
	// StatusStop is set once a STOP has been detected on the bus.
	StatusStop
)

func (s Status) Has(flag Status) bool {
	return s&flag != 0
}

// Controller is the register-level facility of a single I2C peripheral.
// Every method returns immediately; waiting for a flag is the caller's job.
type Controller interface {
	// SetFrequency programs the baud rate generator for the requested SCL
	// frequency and returns the frequency actually achieved.
	SetFrequency(hz uint32) uint32
	Enable(on bool)

	BusIsIdle() bool
	// Start issues a START condition. It returns false when a bus collision
	// was detected while doing so.
	Start() bool
	RepeatStart()
	Stop()
	Status() Status

	TransmitterIsReady() bool
	// SendByte loads b into the transmit register. It returns false on
	// master bus collision.
	SendByte(b byte) bool
	TransmissionHasCompleted() bool
	ByteWasAcknowledged() bool

	// EnableReceiver starts clocking in one byte. It returns false when the
	// receive buffer overflowed.
	EnableReceiver() bool
	ReceivedDataIsAvailable() bool
	// AcknowledgeByte sends ACK (true) or NACK (false) for the received byte.
	AcknowledgeByte(ack bool)
	AcknowledgeHasCompleted() bool
	GetByte() byte
}
