package sim

import (
	"fmt"
	"strings"
)

type EventKind int

const (
	EventStart EventKind = iota
	EventRepeatedStart
	EventStop
	// EventAddress is the first byte written after a START or REPEATED START.
	EventAddress
	// EventWrite is a data byte written by the master.
	EventWrite
	// EventRead is a data byte driven by the device and answered by the master.
	EventRead
)

// Event is one condition or byte observed on the wire.
type Event struct {
	Kind EventKind
	Byte byte
	// Ack is the acknowledgment bit that followed the byte: given by the
	// device for address and write events, by the master for read events.
	Ack bool
}

func (e Event) String() string {
	switch e.Kind {
	case EventStart:
		return "START"
	case EventRepeatedStart:
		return "REPEATED-START"
	case EventStop:
		return "STOP"
	case EventAddress:
		dir := "W"
		if e.Byte&0x01 != 0 {
			dir = "R"
		}
		s := fmt.Sprintf("ADDR(0x%02X,%s)", e.Byte>>1, dir)
		if !e.Ack {
			s += "(NACK)"
		}
		return s
	case EventWrite:
		if !e.Ack {
			return fmt.Sprintf("0x%02X(NACK)", e.Byte)
		}
		return fmt.Sprintf("0x%02X", e.Byte)
	case EventRead:
		if e.Ack {
			return fmt.Sprintf("0x%02X(ACK)", e.Byte)
		}
		return fmt.Sprintf("0x%02X(NACK)", e.Byte)
	}
	return fmt.Sprintf("event(%d)", int(e.Kind))
}

// Format renders a wire sequence as "START, ADDR(0x50,W), 0xAA, STOP".
func Format(events []Event) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
