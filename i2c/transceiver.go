package i2c

// transmitByte clocks b out once the transmitter is ready and waits for the
// transmission to complete. Acknowledgment is checked by the caller.
func (m *Master) transmitByte(b byte) error {
	if err := m.poll.Until(m.ctl.TransmitterIsReady); err != nil {
		return err
	}
	if !m.ctl.SendByte(b) {
		return ErrCollision
	}
	return m.poll.Until(m.ctl.TransmissionHasCompleted)
}

// sendByte transmits b and requires the receiver to acknowledge it.
func (m *Master) sendByte(b byte) error {
	if err := m.transmitByte(b); err != nil {
		return err
	}
	if !m.ctl.ByteWasAcknowledged() {
		return ErrNoAck
	}
	return nil
}

// receiveByte clocks in one byte and answers it with ACK when more bytes
// are expected, NACK when it is the last one of the burst.
func (m *Master) receiveByte(ackNext bool) (byte, error) {
	if !m.ctl.EnableReceiver() {
		return 0, ErrReceiveOverflow
	}
	if err := m.poll.Until(m.ctl.ReceivedDataIsAvailable); err != nil {
		return 0, err
	}
	m.ctl.AcknowledgeByte(ackNext)
	if err := m.poll.Until(m.ctl.AcknowledgeHasCompleted); err != nil {
		return 0, err
	}
	return m.ctl.GetByte(), nil
}
