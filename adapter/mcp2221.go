package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/magx"
	"github.com/mklimuk/magx/i2c"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// MaxTransfer is the largest payload carried by a single HID report.
const MaxTransfer = 60

// the bridge derives the bus clock from its 12MHz core
const mcp2221Clock = 12_000_000

const (
	cmdStatus           = 0x10
	cmdGetData          = 0x40
	cmdWrite            = 0x90
	cmdRead             = 0x91
	cmdReadRepeated     = 0x93
	cmdWriteNoStop      = 0x94
	statusCancel        = 0x10
	statusSetSpeed      = 0x20
	statusSpeedRejected = 0x21
	getDataFailed       = 0x41
	getDataInvalidSize  = 127
)

// states of the bridge's I2C engine, reported in status and read replies
const (
	stateIdle            = 0x00
	stateStartTimeout    = 0x12
	stateRepStartTimeout = 0x17
	stateAddrTimeout     = 0x23
	stateAddrNack        = 0x25
	stateWriteTimeout    = 0x44
	stateWritingNoStop   = 0x45
	stateReadTimeout     = 0x52
	stateStopTimeout     = 0x62
)

const (
	stateRetries  = 5
	statePollWait = 300 * time.Microsecond
)

var ErrCommandFailed = errors.New("command failed")
var ErrTransferSize = fmt.Errorf("transfer larger than %d bytes", MaxTransfer)

var errAddressNack = fmt.Errorf("%w: address", i2c.ErrNoAck)

var (
	_ magx.Transactor = &MCP2221{}
	_ magx.I2CBus     = &MCP2221{}
)

// HIDDevice is an opened USB HID endpoint.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener opens the bridge for a single command exchange.
type Opener func() (HIDDevice, error)

// OpenHID opens the id-th MCP2221 found on the USB bus. A negative id
// requires exactly one bridge to be connected.
func OpenHID(id int) Opener {
	return func() (HIDDevice, error) {
		devs := hid.Enumerate(VendorID, ProductID)
		if len(devs) == 0 {
			return nil, fmt.Errorf("MCP2221 device not found")
		}
		if id < 0 {
			if len(devs) > 1 {
				return nil, fmt.Errorf("ambiguous device identification")
			}
			id = 0
		}
		if id >= len(devs) {
			return nil, fmt.Errorf("no device with id %d", id)
		}
		dev, err := devs[id].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
}

type MCP2221Opt func(*MCP2221)

func WithOpener(open Opener) MCP2221Opt {
	return func(d *MCP2221) {
		d.open = open
	}
}

// WithResponseWait sets how long the bridge is given to prepare a response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// MCP2221 drives a Microchip USB to I2C bridge. The bridge runs the bus
// itself, so only whole transfers are visible and a failed transfer
// reports zero bytes moved.
type MCP2221 struct {
	mx           sync.Mutex
	open         Opener
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		open:         OpenHID(-1),
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *MCP2221) String() string {
	return "mcp2221"
}

// Init programs the bridge's bus clock. The divider is an integer, so the
// achieved frequency is returned together with ErrClockTolerance when it
// misses hz by more than 10%.
func (d *MCP2221) Init(hz uint32) (uint32, error) {
	if hz == 0 {
		return 0, fmt.Errorf("%s: %w: 0 Hz", d, i2c.ErrInvalidClock)
	}
	div := mcp2221Clock/int64(hz) - 3
	if div < 1 || div > 0xFF {
		return 0, fmt.Errorf("%s: %w: %d Hz out of range", d, i2c.ErrInvalidClock, hz)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = statusSetSpeed
	d.request[4] = byte(div)
	if err := d.send(context.Background()); err != nil {
		return 0, fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] == statusSpeedRejected {
		return 0, magx.ErrBusBusy
	}
	actual := uint32(mcp2221Clock / (div + 3))
	deviation := int64(actual) - int64(hz)
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > int64(hz)/10 {
		return actual, fmt.Errorf("%s: %w: requested %d Hz, got %d Hz", d, i2c.ErrClockTolerance, hz, actual)
	}
	return actual, nil
}

func (d *MCP2221) Write(address byte, buffer []byte) (int, error) {
	if err := d.WriteToAddr(context.Background(), address, buffer); err != nil {
		return 0, wrap(opWrite, address, err)
	}
	return len(buffer), nil
}

func (d *MCP2221) Read(address byte, buffer []byte) (int, error) {
	if err := d.ReadFromAddr(context.Background(), address, buffer); err != nil {
		return 0, wrap(opRead, address, err)
	}
	return len(buffer), nil
}

// ReadRegisters writes reg without a STOP and reads buffer after a
// repeated START.
func (d *MCP2221) ReadRegisters(address, reg byte, buffer []byte) (int, error) {
	if err := d.readRegisters(context.Background(), address, reg, buffer); err != nil {
		return 0, wrap(opReadRegisters, address, err)
	}
	return len(buffer), nil
}

func (d *MCP2221) WriteRegisters(address, reg byte, buffer []byte) (int, error) {
	w := make([]byte, 0, len(buffer)+1)
	w = append(w, reg)
	w = append(w, buffer...)
	if err := d.WriteToAddr(context.Background(), address, w); err != nil {
		return 0, wrap(opWriteRegisters, address, err)
	}
	return len(buffer), nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.write(ctx, cmdWrite, address, buffer)
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.read(ctx, cmdRead, address, buffer)
}

// readRegisters cancels the transfer on any failure after the bridge took
// the register write. The bridge holds the bus between the two halves.
func (d *MCP2221) readRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.command(ctx, cmdWriteNoStop, address, []byte{reg}); err != nil {
		return err
	}
	err := d.awaitWrite(ctx, cmdWriteNoStop)
	if err == nil {
		err = d.read(ctx, cmdReadRepeated, address, buffer)
	}
	if err != nil {
		if _, cerr := d.releaseBus(context.WithoutCancel(ctx)); cerr != nil {
			slog.Warn("could not cancel transfer", "addr", i2c.Address(address).String(), "error", cerr)
		}
		return err
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if err := d.command(ctx, cmd, address, buffer); err != nil {
		return err
	}
	return d.awaitWrite(ctx, cmd)
}

// command hands a write to the bridge. Acceptance says nothing about the
// bus, see awaitWrite.
func (d *MCP2221) command(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if !i2c.Address(address).Valid() {
		return fmt.Errorf("%w: %#x", i2c.ErrInvalidAddress, address)
	}
	if len(buffer) > MaxTransfer {
		return ErrTransferSize
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = i2c.Address(address).Byte(i2c.DirWrite)
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("write to %#x failed: %w", address, err)
	}
	// the engine is still busy with a previous transfer
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy", "addr", fmt.Sprintf("%#x", address))
		return magx.ErrBusBusy
	}
	return nil
}

// awaitWrite polls the engine state until the write left the bus. A write
// without STOP is done once the engine waits for the repeated START.
func (d *MCP2221) awaitWrite(ctx context.Context, cmd byte) error {
	for range stateRetries {
		d.resetBuffers()
		d.request[0] = cmdStatus
		if err := d.send(ctx); err != nil {
			return fmt.Errorf("status request failed: %w", err)
		}
		state := d.response[8]
		if state == stateIdle || (cmd == cmdWriteNoStop && state == stateWritingNoStop) {
			return nil
		}
		if err := stateError(state); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(statePollWait):
		}
	}
	return fmt.Errorf("%w: engine state %#02x", i2c.ErrTimeout, d.response[8])
}

func stateError(state byte) error {
	switch state {
	case stateAddrNack:
		return errAddressNack
	case stateStartTimeout, stateRepStartTimeout, stateAddrTimeout,
		stateWriteTimeout, stateReadTimeout, stateStopTimeout:
		return fmt.Errorf("%w: engine state %#02x", i2c.ErrTimeout, state)
	}
	return nil
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if !i2c.Address(address).Valid() {
		return fmt.Errorf("%w: %#x", i2c.ErrInvalidAddress, address)
	}
	if len(buffer) > MaxTransfer {
		return ErrTransferSize
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = i2c.Address(address).Byte(i2c.DirRead)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return magx.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetData
	err = d.send(ctx)
	if err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if err := stateError(d.response[2]); err != nil {
		return err
	}
	if d.response[1] == getDataFailed {
		return fmt.Errorf("%w: error reading the I2C slave data from the I2C engine", ErrCommandFailed)
	}
	if d.response[3] == getDataInvalidSize || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
		25: Read pending
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels the current transfer, which makes the bridge free the bus.
func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = statusCancel
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("cancel request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("could not close adapter", "error", err)
		}
	}()
	verbose := slog.Default().Enabled(ctx, slog.LevelDebug)
	if verbose {
		slog.Debug("sending message to adapter", "dump", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if d.responseWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.responseWait):
		}
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "dump", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
