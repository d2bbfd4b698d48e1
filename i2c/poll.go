package i2c

import (
	"time"

	"github.com/mklimuk/magx/hal"
)

// Poller busy-waits on a hardware condition. A zero Timeout waits forever,
// a bounded one turns a stuck bus into ErrTimeout.
type Poller struct {
	Clock   hal.Clock
	Timeout time.Duration
}

// Until spins until ready reports true.
func (p Poller) Until(ready func() bool) error {
	if ready() {
		return nil
	}
	if p.Timeout <= 0 {
		for !ready() {
		}
		return nil
	}
	clock := p.Clock
	if clock == nil {
		clock = hal.SystemClock()
	}
	deadline := clock.Now().Add(p.Timeout)
	for !ready() {
		if !clock.Now().Before(deadline) {
			return ErrTimeout
		}
	}
	return nil
}
