package i2c

import (
	"errors"
	"fmt"
)

// Result is the outcome class of a transaction. Callers branch on it rather
// than on the concrete error.
type Result int

const (
	Success Result = iota
	GenericError
	ReceiveOverflow
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case ReceiveOverflow:
		return "receive overflow"
	default:
		return "error"
	}
}

var (
	ErrNoAck           = errors.New("byte was not acknowledged")
	ErrCollision       = errors.New("master bus collision")
	ErrReceiveOverflow = errors.New("receive overflow")
	ErrTimeout         = errors.New("timed out waiting for bus")
	ErrClockTolerance  = errors.New("clock frequency error exceeds 10%")
	ErrInvalidClock    = errors.New("invalid clock frequency")
	ErrInvalidAddress  = errors.New("invalid 7-bit address")
	ErrBlockSize       = errors.New("block size exceeds 255 bytes")
	ErrBufferTooSmall  = errors.New("buffer smaller than block size")
)

// Site tags the step of a transaction where it failed. It is meant for
// diagnostics only.
type Site int

const (
	SiteNone Site = iota
	SiteStart
	SiteRepeatedStart
	SiteAddrRead
	SiteAddrWrite
	SiteRegister
	SiteData
	SiteStop
)

var siteNames = map[Site]string{
	SiteNone:          "none",
	SiteStart:         "start",
	SiteRepeatedStart: "repeated start",
	SiteAddrRead:      "device address (read)",
	SiteAddrWrite:     "device address (write)",
	SiteRegister:      "register address",
	SiteData:          "data byte",
	SiteStop:          "stop",
}

func (s Site) String() string {
	if n, ok := siteNames[s]; ok {
		return n
	}
	return fmt.Sprintf("site(%d)", int(s))
}

// Error describes the first failure of a transaction.
type Error struct {
	Op   string
	Addr Address
	Site Site
	// Index is the position of the failing data byte, -1 outside the data phase.
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e.Site == SiteData {
		return fmt.Sprintf("i2c %s %s: %s %d: %v", e.Op, e.Addr, e.Site, e.Index, e.Err)
	}
	return fmt.Sprintf("i2c %s %s: %s: %v", e.Op, e.Addr, e.Site, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Result() Result {
	return ResultOf(e.Err)
}

// ResultOf maps err onto the result taxonomy.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrReceiveOverflow):
		return ReceiveOverflow
	default:
		return GenericError
	}
}

// SiteOf returns the failure site carried by err, if any.
func SiteOf(err error) Site {
	var e *Error
	if errors.As(err, &e) {
		return e.Site
	}
	return SiteNone
}
