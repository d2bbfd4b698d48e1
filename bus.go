package magx

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

// Transactor performs the addressed I2C transaction shapes. Every method
// returns the number of data bytes actually moved, also on failure.
type Transactor interface {
	Write(address byte, buffer []byte) (int, error)
	Read(address byte, buffer []byte) (int, error)
	// ReadRegisters writes reg and reads len(buffer) bytes after a repeated start.
	ReadRegisters(address, reg byte, buffer []byte) (int, error)
	// WriteRegisters writes reg followed by buffer in one transaction.
	WriteRegisters(address, reg byte, buffer []byte) (int, error)
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the context aware view of a bus used by tooling.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
