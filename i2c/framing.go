package i2c

import "github.com/mklimuk/magx/hal"

// startTransfer frames a transfer. A fresh START waits for the bus to go
// idle first; a repeated START pivots an ongoing transfer without releasing
// the bus. framed reports whether a condition was driven on the bus, in
// which case the transfer has to be closed with a STOP even on error.
func (m *Master) startTransfer(repeated bool) (framed bool, err error) {
	if repeated {
		m.ctl.RepeatStart()
	} else {
		if err := m.poll.Until(m.ctl.BusIsIdle); err != nil {
			return false, err
		}
		if !m.ctl.Start() {
			return false, ErrCollision
		}
	}
	return true, m.poll.Until(m.startDetected)
}

// stopTransfer releases the bus. Only a bounded poller can make it fail.
func (m *Master) stopTransfer() error {
	m.ctl.Stop()
	return m.poll.Until(m.stopDetected)
}

func (m *Master) startDetected() bool {
	return m.ctl.Status().Has(hal.StatusStart)
}

func (m *Master) stopDetected() bool {
	return m.ctl.Status().Has(hal.StatusStop)
}
