package i2c

import "errors"

const (
	opWrite          = "write"
	opRead           = "read"
	opReadRegisters  = "read registers"
	opWriteRegisters = "write registers"
	opReadBlock      = "read block"
	opWriteBlock     = "write block"
	opTx             = "tx"
)

// Write sends buffer to the device: START, ADDR(W), data..., STOP.
// It returns the number of data bytes the device acknowledged.
func (m *Master) Write(address byte, buffer []byte) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.writeFrame(opWrite, Address(address), nil, buffer)
}

// Read fills buffer from the device: START, ADDR(R), data (ACK)..., last
// data (NACK), STOP. It returns the number of bytes received.
func (m *Master) Read(address byte, buffer []byte) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.readFrame(opRead, Address(address), nil, buffer)
}

// ReadRegisters reads len(buffer) bytes starting at register reg:
// START, ADDR(W), reg, REPEATED START, ADDR(R), data..., STOP.
func (m *Master) ReadRegisters(address, reg byte, buffer []byte) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.readFrame(opReadRegisters, Address(address), []byte{reg}, buffer)
}

// WriteRegisters writes buffer starting at register reg:
// START, ADDR(W), reg, data..., STOP.
func (m *Master) WriteRegisters(address, reg byte, buffer []byte) (int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.writeFrame(opWriteRegisters, Address(address), []byte{reg}, buffer)
}

// transaction frames body with START and STOP. The STOP is issued whenever
// a START reached the bus, whatever body returned. The first failure wins.
func (m *Master) transaction(op string, addr Address, body func() (int, error)) (int, error) {
	if !addr.Valid() {
		return 0, &Error{Op: op, Addr: addr, Site: SiteNone, Index: -1, Err: ErrInvalidAddress}
	}
	framed, err := m.startTransfer(false)
	if err != nil {
		if framed {
			_ = m.stopTransfer()
		}
		return 0, &Error{Op: op, Addr: addr, Site: SiteStart, Index: -1, Err: err}
	}
	n, err := body()
	if stopErr := m.stopTransfer(); stopErr != nil && err == nil {
		err = &Error{Op: op, Addr: addr, Site: SiteStop, Index: -1, Err: stopErr}
	}
	return n, err
}

// sendHeader sends the device address for a write followed by the register
// bytes. The settle delay runs between the last register byte and its
// acknowledgment check.
func (m *Master) sendHeader(op string, addr Address, regs []byte) error {
	if err := m.sendByte(addr.Byte(DirWrite)); err != nil {
		return &Error{Op: op, Addr: addr, Site: SiteAddrWrite, Index: -1, Err: err}
	}
	for i, reg := range regs {
		if err := m.transmitByte(reg); err != nil {
			return &Error{Op: op, Addr: addr, Site: SiteRegister, Index: i, Err: err}
		}
		if i == len(regs)-1 {
			m.delay.Delay(m.settle)
		}
		if !m.ctl.ByteWasAcknowledged() {
			return &Error{Op: op, Addr: addr, Site: SiteRegister, Index: i, Err: ErrNoAck}
		}
	}
	return nil
}

func (m *Master) writeFrame(op string, addr Address, regs []byte, data []byte) (int, error) {
	return m.transaction(op, addr, func() (int, error) {
		if err := m.sendHeader(op, addr, regs); err != nil {
			return 0, err
		}
		for i, b := range data {
			if err := m.sendByte(b); err != nil {
				return i, &Error{Op: op, Addr: addr, Site: SiteData, Index: i, Err: err}
			}
		}
		return len(data), nil
	})
}

// readFrame reads data from addr. With regs present the register address is
// written first and the read phase follows a repeated START.
func (m *Master) readFrame(op string, addr Address, regs []byte, data []byte) (int, error) {
	return m.transaction(op, addr, func() (int, error) {
		if len(regs) > 0 {
			if err := m.sendHeader(op, addr, regs); err != nil {
				return 0, err
			}
			if _, err := m.startTransfer(true); err != nil {
				return 0, &Error{Op: op, Addr: addr, Site: SiteRepeatedStart, Index: -1, Err: err}
			}
		}
		if err := m.sendByte(addr.Byte(DirRead)); err != nil {
			return 0, &Error{Op: op, Addr: addr, Site: SiteAddrRead, Index: -1, Err: err}
		}
		for i := range data {
			b, err := m.receiveByte(i < len(data)-1)
			if err != nil {
				return i, &Error{Op: op, Addr: addr, Site: SiteData, Index: i, Err: err}
			}
			data[i] = b
		}
		return len(data), nil
	})
}

// Tx performs a combined transfer the way most host bus APIs define it:
// w is written, then r is read after a repeated START. Either may be empty.
func (m *Master) Tx(address byte, w, r []byte) (int, int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	addr := Address(address)
	switch {
	case len(r) == 0:
		n, err := m.writeFrame(opTx, addr, nil, w)
		return n, 0, err
	case len(w) == 0:
		n, err := m.readFrame(opTx, addr, nil, r)
		return 0, n, err
	}
	n, err := m.readFrame(opTx, addr, w, r)
	written := len(w)
	var e *Error
	if errors.As(err, &e) {
		switch e.Site {
		case SiteNone, SiteStart, SiteAddrWrite:
			written = 0
		case SiteRegister:
			written = e.Index
		}
	}
	return written, n, err
}
